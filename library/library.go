// Package library is the host-facing surface of the SDK: a Library object
// built from settings and host collaborators, and the Open call that runs
// login, binding/PIN resolution and the embedded-browser handoff in sequence.
package library

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spenselabs/partnersdk/analytics"
	"github.com/spenselabs/partnersdk/api"
	"github.com/spenselabs/partnersdk/binding"
	"github.com/spenselabs/partnersdk/browser"
	"github.com/spenselabs/partnersdk/device"
	"github.com/spenselabs/partnersdk/encryption"
	"github.com/spenselabs/partnersdk/flow"
	"github.com/spenselabs/partnersdk/internal/config"
	"github.com/spenselabs/partnersdk/pin"
	"github.com/spenselabs/partnersdk/storage"
)

// Overlay is the busy indicator shown while binding and PIN resolution run,
// before the browser surface takes over.
type Overlay interface {
	Show()
	Dismiss()
}

type nopOverlay struct{}

func (nopOverlay) Show()    {}
func (nopOverlay) Dismiss() {}

// Deps are the host-supplied collaborators. Store, Surface and Prompter are
// required; the rest degrade to no-ops when absent.
type Deps struct {
	Store    storage.Store
	Surface  browser.Surface
	Opener   browser.ExternalOpener
	Viewer   browser.DocumentViewer
	Prompter flow.Prompter
	Overlay  Overlay
	Sink     analytics.Sink

	// DeviceOverrides lets the host report real hardware identity instead of
	// the runtime defaults.
	DeviceOverrides device.Overrides

	// HTTPClient, when set, replaces the api client's transport (primarily
	// for tests).
	HTTPClient *http.Client
}

// Library is one fully wired SDK instance.
type Library struct {
	settings config.Settings
	deps     Deps

	client     *api.Client
	gate       *pin.Gate
	orch       *flow.Orchestrator
	holder     *browser.Holder
	downloader *browser.Downloader
	keys       *encryption.KeyCache

	log     zerolog.Logger
	sink    analytics.Sink
	overlay Overlay

	rulesMu sync.Mutex
	rules   *browser.Rules
}

// Option configures a Library.
type Option func(*libraryConfig)

type libraryConfig struct {
	log            zerolog.Logger
	bindingOptions []binding.MachineOption
}

// WithLogger sets the logger shared by all components.
func WithLogger(log zerolog.Logger) Option {
	return func(c *libraryConfig) { c.log = log }
}

// WithBindingOptions forwards options to the binding machine (primarily for
// tests shortening the poll cadence).
func WithBindingOptions(options ...binding.MachineOption) Option {
	return func(c *libraryConfig) { c.bindingOptions = append(c.bindingOptions, options...) }
}

// New wires a Library from settings and host collaborators.
func New(settings Settings, deps Deps, options ...Option) (*Library, error) {
	if deps.Store == nil {
		return nil, errors.New("[library.New] store is required")
	}
	if deps.Surface == nil {
		return nil, errors.New("[library.New] browser surface is required")
	}
	if deps.Prompter == nil {
		return nil, errors.New("[library.New] prompter is required")
	}

	cfg := libraryConfig{log: zerolog.Nop()}
	for _, opt := range options {
		opt(&cfg)
	}
	sink := deps.Sink
	if sink == nil {
		sink = analytics.NopSink{}
	}
	overlay := deps.Overlay
	if overlay == nil {
		overlay = nopOverlay{}
	}

	clientOptions := []api.Option{api.WithLogger(cfg.log)}
	if deps.HTTPClient != nil {
		clientOptions = append(clientOptions, api.WithHTTPClient(deps.HTTPClient))
	}
	client, err := api.NewClient(settings.BaseHost, clientOptions...)
	if err != nil {
		return nil, errors.Wrap(err, "[library.New] api client")
	}

	fingerprint, err := device.Resolve(deps.Store, deps.DeviceOverrides)
	if err != nil {
		return nil, errors.Wrap(err, "[library.New] device fingerprint")
	}

	machineOptions := append([]binding.MachineOption{binding.WithLogger(cfg.log), binding.WithSink(sink)}, cfg.bindingOptions...)
	machine, err := binding.NewMachine(client, deps.Store, fingerprint, settings.DeviceBindingEnabled, machineOptions...)
	if err != nil {
		return nil, errors.Wrap(err, "[library.New] binding machine")
	}

	gate, err := pin.NewGate(deps.Store, client, pin.WithLogger(cfg.log))
	if err != nil {
		return nil, errors.Wrap(err, "[library.New] pin gate")
	}

	orch, err := flow.New(machine, gate, deps.Prompter, settings, flow.WithLogger(cfg.log), flow.WithSink(sink))
	if err != nil {
		return nil, errors.Wrap(err, "[library.New] orchestrator")
	}

	downloader, err := browser.NewDownloader(&http.Client{Jar: client.Jar()}, settings.DownloadDir)
	if err != nil {
		return nil, errors.Wrap(err, "[library.New] downloader")
	}

	keys, err := encryption.NewKeyCache(client, deps.Store)
	if err != nil {
		return nil, errors.Wrap(err, "[library.New] key cache")
	}

	// The host surface lives in the holder from day one, so every handoff
	// goes through a claim and concurrent opens cannot share it.
	holder := browser.NewHolder()
	holder.Preload(deps.Surface, nil)

	return &Library{
		settings:   settings,
		deps:       deps,
		client:     client,
		gate:       gate,
		orch:       orch,
		holder:     holder,
		downloader: downloader,
		keys:       keys,
		log:        cfg.log,
		sink:       sink,
		overlay:    overlay,
	}, nil
}

// Client exposes the backend client for host-level calls (session checks).
func (l *Library) Client() *api.Client {
	return l.client
}

// Gate exposes the PIN gate so the host can drive standalone PIN management
// screens (change, reset) outside an Open run.
func (l *Library) Gate() *pin.Gate {
	return l.gate
}

// SigningKey returns the backend's current public signing key, cached until
// its published expiry.
func (l *Library) SigningKey(ctx context.Context) (encryption.PublicKey, error) {
	return l.keys.PublicKey(ctx)
}

// Preload warms the first Open by fetching the server-side browser
// configuration ahead of time. The surface itself is already parked in the
// holder; a failed fetch only costs the warm start.
func (l *Library) Preload(ctx context.Context) {
	l.navigationRules(ctx)
}

// Open runs the full sequence for one module: login, busy overlay, binding
// and PIN resolution, then the browser handoff. It returns once the handoff
// is launched; the callback later receives exactly one NavigationOutcome.
//
// Cancelling ctx before a terminal outcome abandons the session and the
// callback receives a Continue.
func (l *Library) Open(ctx context.Context, token, modulePath string, callback browser.Callback) error {
	if callback == nil {
		return errors.New("[Library.Open] callback is required")
	}

	if _, err := l.client.Login(ctx, token); err != nil {
		return errors.Wrap(err, "[Library.Open] login")
	}

	bank := bankFromModule(modulePath)
	if bank != "" {
		l.overlay.Show()
		err := l.orch.Run(ctx, bank, bank)
		l.overlay.Dismiss()
		if err != nil {
			return errors.Wrap(err, "[Library.Open] binding/pin resolution")
		}
	}

	return l.handoff(ctx, modulePath, callback)
}

// handoff claims the browser surface and points it at the module URL,
// reusing a previously armed session when one is parked in the holder.
func (l *Library) handoff(ctx context.Context, modulePath string, callback browser.Callback) error {
	target := l.settings.BaseHost + "/" + strings.TrimLeft(modulePath, "/")
	rules := l.navigationRules(ctx)

	surface, prior, err := l.holder.Claim()
	if err != nil {
		return errors.Wrap(err, "[Library.handoff] claim browser surface")
	}

	// The surface and its armed session are parked back in the holder before
	// the outcome reaches the caller, so a follow-up Open can claim them
	// immediately.
	var session *browser.Session
	done := make(chan struct{})
	wrapped := func(outcome browser.NavigationOutcome) {
		l.holder.Release()
		l.holder.Preload(surface, session)
		callback(outcome)
		close(done)
	}

	session = prior
	if session != nil {
		err = session.UpdateAndReuse(target, wrapped)
		if err != nil {
			l.holder.Release()
			return errors.Wrap(err, "[Library.handoff] reuse session")
		}
	} else {
		// Construct before starting: a surface that reaches a terminal
		// classification from inside the first load must find the session
		// already assigned when the wrapped callback parks it.
		session, err = browser.NewSession(browser.SessionConfig{
			TargetURL:  target,
			Rules:      rules,
			Surface:    surface,
			Opener:     l.deps.Opener,
			Viewer:     l.deps.Viewer,
			Downloader: l.downloader,
			Jar:        l.client.Jar(),
			Callback:   wrapped,
			Logger:     l.log,
			Sink:       l.sink,
		})
		if err != nil {
			l.holder.Release()
			return errors.Wrap(err, "[Library.handoff] open session")
		}
		session.Start()
	}

	go l.watch(ctx, session, done)
	return nil
}

// watch abandons the session if the caller's context ends before a terminal
// outcome; the abandonment delivers the session's Continue.
func (l *Library) watch(ctx context.Context, session *browser.Session, done <-chan struct{}) {
	select {
	case <-ctx.Done():
		session.Abandon()
	case <-done:
	}
}

// Close drops the parked browser surface.
func (l *Library) Close() {
	l.holder.Drop()
}

// navigationRules lazily merges the server-driven browser configuration with
// the host whitelist. A failed fetch falls back to the built-in defaults.
func (l *Library) navigationRules(ctx context.Context) browser.Rules {
	l.rulesMu.Lock()
	defer l.rulesMu.Unlock()
	if l.rules != nil {
		return *l.rules
	}

	webCfg, err := l.client.WebViewConfig(ctx)
	if err != nil {
		l.log.Debug().Err(err).Msg("browser configuration unavailable, using defaults")
		rules := browser.NewRules(nil, nil, l.settings.WhitelistedURLs, l.settings.Host())
		return rules
	}

	rules := browser.NewRules(webCfg.RedirectPaths, webCfg.LogoutPaths, l.settings.WhitelistedURLs, l.settings.Host())
	l.rules = &rules
	return rules
}

// bankFromModule extracts the bank token from a "banking/{bank}/..." module
// path. Non-banking modules skip binding and PIN resolution entirely.
func bankFromModule(modulePath string) string {
	parts := strings.Split(strings.Trim(modulePath, "/"), "/")
	if len(parts) >= 2 && parts[0] == "banking" {
		return parts[1]
	}
	return ""
}
