// Package browser owns the embedded-browser handoff: one surface, one
// classification pass per navigation request, and exactly one outcome
// delivered to the caller.
package browser

import (
	"context"
	"net/http"
	"net/url"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spenselabs/partnersdk/analytics"
	sdkerrors "github.com/spenselabs/partnersdk/internal/errors"
)

// Callback receives the session's single outcome.
type Callback func(NavigationOutcome)

// SessionConfig wires one handoff session.
type SessionConfig struct {
	TargetURL  string
	Rules      Rules
	Surface    Surface
	Opener     ExternalOpener
	Viewer     DocumentViewer
	Downloader *Downloader
	Jar        http.CookieJar // session cookies pushed into the surface
	Callback   Callback
	Logger     zerolog.Logger
	Sink       analytics.Sink
}

// Session is one embedded-browser interaction, from open (or reuse) to the
// terminal outcome. A Session owns its surface exclusively.
type Session struct {
	rules      Rules
	surface    Surface
	opener     ExternalOpener
	viewer     DocumentViewer
	downloader *Downloader
	jar        http.CookieJar
	log        zerolog.Logger
	sink       analytics.Sink

	mu       sync.Mutex
	target   *url.URL
	callback Callback
	terminal bool
}

// NewSession validates the target URL and builds the session without starting
// the navigation. Callers that need the session in hand before the first load
// construct and Start separately, since the outcome can arrive from inside
// Start; Open does both in one step.
func NewSession(cfg SessionConfig) (*Session, error) {
	if cfg.Surface == nil {
		return nil, errors.New("[browser.NewSession] surface is required")
	}
	if cfg.Callback == nil {
		return nil, errors.New("[browser.NewSession] callback is required")
	}
	target, err := parseTarget(cfg.TargetURL)
	if err != nil {
		return nil, err
	}

	sink := cfg.Sink
	if sink == nil {
		sink = analytics.NopSink{}
	}
	session := &Session{
		rules:      cfg.Rules,
		surface:    cfg.Surface,
		opener:     cfg.Opener,
		viewer:     cfg.Viewer,
		downloader: cfg.Downloader,
		jar:        cfg.Jar,
		log:        cfg.Logger,
		sink:       sink,
		target:     target,
		callback:   cfg.Callback,
	}
	return session, nil
}

// Start propagates session cookies into the surface and begins the load.
func (s *Session) Start() {
	s.mu.Lock()
	target := s.target
	s.mu.Unlock()
	s.load(target)
}

// Open builds the session and immediately starts the navigation. A malformed
// URL fails before anything touches the surface.
func Open(cfg SessionConfig) (*Session, error) {
	session, err := NewSession(cfg)
	if err != nil {
		return nil, err
	}
	session.Start()
	return session, nil
}

// UpdateAndReuse re-targets the session at a new URL with a fresh callback,
// keeping the warmed surface. Any previous terminal state is discarded; the
// session is armed again.
func (s *Session) UpdateAndReuse(targetURL string, callback Callback) error {
	if callback == nil {
		return errors.New("[Session.UpdateAndReuse] callback is required")
	}
	target, err := parseTarget(targetURL)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.target = target
	s.callback = callback
	s.terminal = false
	s.mu.Unlock()

	s.load(target)
	return nil
}

// DecideNavigation classifies one outgoing navigation request and reports
// whether the surface may load it in-page. After a terminal outcome the
// session no longer classifies; everything is refused.
func (s *Session) DecideNavigation(rawURL string) bool {
	s.mu.Lock()
	if s.terminal {
		s.mu.Unlock()
		return false
	}
	rules := s.rules
	s.mu.Unlock()

	classification, err := rules.Classify(rawURL)
	if err != nil {
		s.log.Warn().Err(err).Str("url", rawURL).Msg("refusing malformed navigation url")
		return false
	}

	switch classification.Class {
	case ClassRedirect:
		s.sink.LogEvent("WEBVIEW_CALLBACK", map[string]any{"status": classification.Status, "url": rawURL})
		s.finish(NavigationOutcome{Kind: OutcomeRedirect, Status: classification.Status, URL: rawURL})
		return false

	case ClassLogout:
		s.finish(NavigationOutcome{Kind: OutcomeLogout, URL: rawURL})
		return false

	case ClassDownload:
		s.handleDownload(rawURL)
		return false

	case ClassAllow:
		return true

	default: // ClassExternal
		if s.opener != nil {
			if err := s.opener.OpenExternal(rawURL); err != nil {
				s.log.Warn().Err(err).Str("url", rawURL).Msg("external open failed")
			}
			s.sink.LogEvent("OPENING_URL_EXTERNALLY", map[string]any{"url": rawURL})
		}
		return false
	}
}

// Abandon ends a session that never reached a terminal classification (the
// host dismissed the surface). The caller still gets its one outcome, a
// Continue, rather than a silently leaked callback.
func (s *Session) Abandon() {
	s.finish(NavigationOutcome{Kind: OutcomeContinue})
}

// ReportNavigationError records an engine-level load failure. The outcome
// callback is not involved; the surface stays up so the user can retry.
func (s *Session) ReportNavigationError(err error) {
	s.log.Warn().Err(err).Msg("surface navigation failed")
}

// Terminal reports whether the session has delivered its outcome.
func (s *Session) Terminal() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.terminal
}

// finish delivers the outcome at most once. The surface is left up: its
// owner parks it for the next handoff or tears it down via the holder.
func (s *Session) finish(outcome NavigationOutcome) {
	s.mu.Lock()
	if s.terminal {
		s.mu.Unlock()
		return
	}
	s.terminal = true
	callback := s.callback
	s.mu.Unlock()

	callback(outcome)
}

// load attaches the session as the surface's decider, pushes the cookie
// batch and starts the navigation. The batch gates the load; individual
// cookie failures do not.
func (s *Session) load(target *url.URL) {
	s.surface.Attach(s)
	if s.jar != nil {
		s.surface.SetCookies(s.jar.Cookies(target))
	}
	if err := s.surface.Load(target.String()); err != nil {
		s.ReportNavigationError(err)
	}
}

func (s *Session) handleDownload(rawURL string) {
	if s.downloader == nil || s.viewer == nil {
		s.log.Warn().Str("url", rawURL).Msg("download requested but no downloader/viewer wired")
		return
	}
	// Fetch and preview off the navigation path; the decision has already
	// been returned to the engine.
	go func() {
		path, err := s.downloader.Fetch(context.Background(), rawURL)
		if err != nil {
			s.log.Warn().Err(err).Str("url", rawURL).Msg("document download failed")
			return
		}
		if err := s.viewer.Preview(path); err != nil {
			s.log.Warn().Err(err).Str("path", path).Msg("document preview failed")
		}
	}()
}

func parseTarget(rawURL string) (*url.URL, error) {
	target, err := url.Parse(rawURL)
	if err != nil || target.Scheme == "" || target.Host == "" {
		return nil, sdkerrors.Wrapf(sdkerrors.ErrInvalidURL, "[browser.parseTarget] %q", rawURL)
	}
	return target, nil
}
