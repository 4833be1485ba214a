// partnerdemo drives one full handoff from a terminal: login, device
// binding, PIN gate and the browser handoff, with every host surface
// replaced by a headless console implementation.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/spenselabs/partnersdk/analytics"
	"github.com/spenselabs/partnersdk/api"
	"github.com/spenselabs/partnersdk/browser"
	"github.com/spenselabs/partnersdk/device"
	"github.com/spenselabs/partnersdk/flow"
	"github.com/spenselabs/partnersdk/library"
	"github.com/spenselabs/partnersdk/storage"
)

type demoConfig struct {
	BaseHost             string   `yaml:"baseHost"`
	Token                string   `yaml:"token"`
	Module               string   `yaml:"module"`
	Whitelist            []string `yaml:"whitelist"`
	DeviceBindingEnabled bool     `yaml:"deviceBindingEnabled"`
	StatePath            string   `yaml:"statePath"`
	Pin                  string   `yaml:"pin"`
}

func main() {
	if err := run(); err != nil {
		log.Fatalf("partnerdemo: %s\n", err)
	}
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	displayAppname("partnerdemo")

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	settings, err := library.NewSettings(cfg.BaseHost, cfg.DeviceBindingEnabled, cfg.Whitelist, false)
	if err != nil {
		return err
	}

	store, err := storage.NewFileStore(cfg.StatePath)
	if err != nil {
		return err
	}

	sink, closeSink, err := newAnalytics(settings, store, logger)
	if err != nil {
		return err
	}
	defer closeSink()

	lib, err := library.New(settings, library.Deps{
		Store:    store,
		Surface:  &consoleSurface{log: logger},
		Opener:   &consoleOpener{log: logger},
		Viewer:   &consoleViewer{log: logger},
		Prompter: &consolePrompter{log: logger, pin: cfg.Pin},
		Overlay:  &consoleOverlay{log: logger},
		Sink:     sink,
	}, library.WithLogger(logger))
	if err != nil {
		return err
	}
	defer lib.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	lib.Preload(ctx)

	outcomes := make(chan browser.NavigationOutcome, 1)
	if err := lib.Open(ctx, cfg.Token, cfg.Module, func(outcome browser.NavigationOutcome) {
		outcomes <- outcome
	}); err != nil {
		return err
	}

	select {
	case outcome := <-outcomes:
		logger.Info().Str("outcome", outcome.String()).Msg("handoff finished")
	case <-ctx.Done():
		logger.Info().Msg("interrupted")
		<-outcomes
	}
	return nil
}

func loadConfig() (demoConfig, error) {
	cfg := demoConfig{
		Module:               "banking/acme/accounts",
		DeviceBindingEnabled: true,
		StatePath:            "partnerdemo-state.json",
		Pin:                  "1234",
	}

	configPath := pflag.String("config", "", "yaml config file")
	baseHost := pflag.String("base-host", "", "backend origin, e.g. https://partner.example.com")
	token := pflag.String("token", "", "host bearer token")
	module := pflag.String("module", "", "module path to open")
	statePath := pflag.String("state", "", "persisted state file")
	pin := pflag.String("pin", "", "pin answered to every prompt")
	bind := pflag.Bool("bind", true, "enable device binding")
	pflag.Parse()

	if *configPath != "" {
		data, err := os.ReadFile(*configPath)
		if err != nil {
			return demoConfig{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return demoConfig{}, fmt.Errorf("parse config: %w", err)
		}
	}

	// Flags beat the config file.
	if *baseHost != "" {
		cfg.BaseHost = *baseHost
	}
	if *token != "" {
		cfg.Token = *token
	}
	if *module != "" {
		cfg.Module = *module
	}
	if *statePath != "" {
		cfg.StatePath = *statePath
	}
	if *pin != "" {
		cfg.Pin = *pin
	}
	if pflag.CommandLine.Changed("bind") {
		cfg.DeviceBindingEnabled = *bind
	}

	if cfg.BaseHost == "" {
		return demoConfig{}, fmt.Errorf("base host is required (--base-host or config file)")
	}
	if cfg.Token == "" {
		return demoConfig{}, fmt.Errorf("token is required (--token or config file)")
	}
	return cfg, nil
}

// newAnalytics wires the batch logger through its own api client so upload
// traffic never shares the session client's bearer state.
func newAnalytics(settings library.Settings, store storage.Store, logger zerolog.Logger) (analytics.Sink, func(), error) {
	client, err := api.NewClient(settings.BaseHost, api.WithLogger(logger))
	if err != nil {
		return nil, nil, err
	}
	fingerprint, err := device.Resolve(store, device.Overrides{})
	if err != nil {
		return nil, nil, err
	}
	batcher := analytics.NewBatchLogger(client, fingerprint, analytics.WithLogger(logger))
	return batcher, batcher.Close, nil
}

type consoleSurface struct {
	log     zerolog.Logger
	decider browser.NavigationDecider
}

func (cs *consoleSurface) Attach(decider browser.NavigationDecider) {
	cs.decider = decider
}

func (cs *consoleSurface) Load(rawURL string) error {
	cs.log.Info().Str("url", rawURL).Msg("surface load")
	return nil
}

func (cs *consoleSurface) SetCookies(cookies []*http.Cookie) {
	cs.log.Debug().Int("cookies", len(cookies)).Msg("surface cookies set")
}

func (cs *consoleSurface) Close() {
	cs.log.Info().Msg("surface closed")
}

type consoleOpener struct {
	log zerolog.Logger
}

func (co *consoleOpener) OpenExternal(rawURL string) error {
	co.log.Info().Str("url", rawURL).Msg("open in system browser")
	return nil
}

type consoleViewer struct {
	log zerolog.Logger
}

func (cv *consoleViewer) Preview(path string) error {
	cv.log.Info().Str("path", path).Msg("preview document")
	return nil
}

type consoleOverlay struct {
	log zerolog.Logger
}

func (co *consoleOverlay) Show()    { co.log.Info().Msg("busy overlay shown") }
func (co *consoleOverlay) Dismiss() { co.log.Info().Msg("busy overlay dismissed") }

type consolePrompter struct {
	log zerolog.Logger
	pin string
}

func (cp *consolePrompter) RelayAuthCode(_ context.Context, recipient, body string) error {
	cp.log.Info().Str("recipient", recipient).Str("body", body).Msg("relay auth code over sms")
	return nil
}

func (cp *consolePrompter) PromptPIN(_ context.Context, prompt flow.PinPrompt) (string, error) {
	cp.log.Info().Int("mode", int(prompt.Mode)).Int("attempt", prompt.Attempt).Msg("answering pin prompt")
	return cp.pin, nil
}

func (cp *consolePrompter) NotifyPinLocked(until time.Time) {
	cp.log.Warn().Time("until", until).Msg("pin entry locked")
}

func (cp *consolePrompter) NotifyBindingFailed() {
	cp.log.Warn().Msg("device binding failed, continuing")
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
