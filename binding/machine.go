// Package binding implements the device binding state machine: deciding
// whether binding is needed, issuing the challenge, relaying the auth code
// for out-of-band confirmation and polling for the result.
package binding

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spenselabs/partnersdk/analytics"
	"github.com/spenselabs/partnersdk/api"
	"github.com/spenselabs/partnersdk/device"
	sdkerrors "github.com/spenselabs/partnersdk/internal/errors"
	"github.com/spenselabs/partnersdk/storage"
)

const (
	defaultPollInterval = 5 * time.Second
	defaultMaxAttempts  = 6
)

// Result is the single terminal report of a binding run.
type Result int

const (
	ResultSuccess Result = iota
	ResultFailure
)

func (r Result) String() string {
	if r == ResultSuccess {
		return "SUCCESS"
	}
	return "FAILURE"
}

// Challenge is an accepted binding request. The auth code must be relayed
// out-of-band (SMS) before the backend will confirm the binding.
type Challenge struct {
	BindingID string
	AuthCode  string
	DeviceID  int
}

// AuthCodeRelay surfaces the challenge to the UI layer and returns once the
// user has dispatched the relay message. Polling starts after it returns.
type AuthCodeRelay func(ctx context.Context, challenge Challenge) error

// API is the slice of the backend client the machine needs.
type API interface {
	OnboardingNext(ctx context.Context, bank string) (api.OnboardingNextResponse, error)
	InitiateBinding(ctx context.Context, partner string, req api.InitiateBindingRequest) (api.InitiateBindingResponse, error)
	BindingStatus(ctx context.Context, partner, bindingID string) (api.BindingStatusResponse, error)
	FailBinding(ctx context.Context, partner, bindingID string) error
	RegisterDeviceSession(ctx context.Context, partner string, fp device.Fingerprint) (api.DeviceSessionResponse, error)
}

// Machine drives one binding attempt at a time.
type Machine struct {
	api         API
	store       storage.Store
	fingerprint device.Fingerprint
	enabled     bool
	log         zerolog.Logger
	sink        analytics.Sink

	pollInterval time.Duration
	maxAttempts  int
}

// MachineOption configures a Machine.
type MachineOption func(*Machine)

// WithPollInterval overrides the status poll cadence (primarily for testing).
func WithPollInterval(interval time.Duration) MachineOption {
	return func(m *Machine) { m.pollInterval = interval }
}

// WithMaxAttempts overrides the poll attempt bound (primarily for testing).
func WithMaxAttempts(attempts int) MachineOption {
	return func(m *Machine) { m.maxAttempts = attempts }
}

// WithLogger sets the machine logger.
func WithLogger(log zerolog.Logger) MachineOption {
	return func(m *Machine) { m.log = log }
}

// WithSink sets the analytics sink.
func WithSink(sink analytics.Sink) MachineOption {
	return func(m *Machine) { m.sink = sink }
}

// NewMachine builds a Machine. enabled mirrors the partner-level device
// binding feature flag.
func NewMachine(apiClient API, store storage.Store, fingerprint device.Fingerprint, enabled bool, options ...MachineOption) (*Machine, error) {
	if apiClient == nil {
		return nil, errors.New("[NewMachine] api client is required")
	}
	if store == nil {
		return nil, errors.New("[NewMachine] store is required")
	}
	machine := &Machine{
		api:          apiClient,
		store:        store,
		fingerprint:  fingerprint,
		enabled:      enabled,
		log:          zerolog.Nop(),
		sink:         analytics.NopSink{},
		pollInterval: defaultPollInterval,
		maxAttempts:  defaultMaxAttempts,
	}
	for _, opt := range options {
		opt(machine)
	}
	return machine, nil
}

// CheckRequired reports whether the device must run the binding challenge for
// the given bank. Binding is required unless the feature is disabled or the
// onboarding step carries an explicit success/complete marker.
func (m *Machine) CheckRequired(ctx context.Context, bank string) (bool, error) {
	if !m.enabled {
		return false, nil
	}
	next, err := m.api.OnboardingNext(ctx, bank)
	if err != nil {
		return false, errors.Wrap(err, "[Machine.CheckRequired] onboarding next")
	}
	if strings.Contains(next.Path, "/onboarding/success") || strings.Contains(next.Path, "/onboarding/complete") {
		return false, nil
	}
	return true, nil
}

// Run executes one full binding attempt: challenge, auth-code relay, bounded
// polling, exactly one terminal result. Every failure path notifies the
// backend exactly once so pending server state is released.
func (m *Machine) Run(ctx context.Context, partner string, relay AuthCodeRelay) (Result, error) {
	if relay == nil {
		return ResultFailure, errors.New("[Machine.Run] relay is required")
	}

	bindingID := uuid.New().String()
	var failOnce sync.Once
	failNotify := func() {
		failOnce.Do(func() {
			// Detached context: the release call must go out even when the
			// run was cancelled.
			notifyCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := m.api.FailBinding(notifyCtx, partner, bindingID); err != nil {
				m.log.Warn().Err(err).Str("binding_id", bindingID).Msg("fail-notify did not reach backend")
			}
		})
	}

	initResp, err := m.api.InitiateBinding(ctx, partner, api.InitiateBindingRequest{
		DeviceBindingID: bindingID,
		Fingerprint:     m.fingerprint,
	})
	if err != nil {
		failNotify()
		return ResultFailure, sdkerrors.Wrapf(sdkerrors.ErrBindingFailure, "[Machine.Run] initiate: %v", err)
	}
	if initResp.DeviceAuth == "" {
		failNotify()
		return ResultFailure, errors.Wrap(sdkerrors.ErrBindingFailure, "[Machine.Run] no auth code issued")
	}

	m.sink.LogEvent("DEVICE_BINDING_CHALLENGE_ISSUED", map[string]any{"partner": partner})

	challenge := Challenge{BindingID: bindingID, AuthCode: initResp.DeviceAuth, DeviceID: initResp.DeviceID}
	if err := relay(ctx, challenge); err != nil {
		failNotify()
		return ResultFailure, sdkerrors.Wrapf(sdkerrors.ErrBindingFailure, "[Machine.Run] auth code relay: %v", err)
	}

	result, err := m.poll(ctx, partner, challenge, failNotify)
	m.sink.LogEvent("DEVICE_BINDING_COMPLETED", map[string]any{"partner": partner, "result": result.String()})
	return result, err
}

// poll queries the binding status on a fixed cadence, at most maxAttempts
// times. The terminal guard is structural: a single return delivers the one
// result, and failNotify's once-guard keeps the release call single-shot even
// if both an explicit failure and cancellation race.
func (m *Machine) poll(ctx context.Context, partner string, challenge Challenge, failNotify func()) (Result, error) {
	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	for attempt := 1; attempt <= m.maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			failNotify()
			return ResultFailure, sdkerrors.Wrapf(sdkerrors.ErrBindingFailure, "[Machine.poll] cancelled: %v", ctx.Err())
		case <-ticker.C:
		}

		status, err := m.api.BindingStatus(ctx, partner, challenge.BindingID)
		if err != nil {
			failNotify()
			return ResultFailure, sdkerrors.Wrapf(sdkerrors.ErrBindingFailure, "[Machine.poll] status check: %v", err)
		}

		switch status.Status {
		case api.BindingStatusSuccess:
			if err := m.persistBinding(challenge); err != nil {
				m.log.Error().Err(err).Msg("binding succeeded but could not be persisted")
			}
			return ResultSuccess, nil
		case api.BindingStatusFailure:
			failNotify()
			return ResultFailure, errors.Wrap(sdkerrors.ErrBindingFailure, "[Machine.poll] explicit failure status")
		default:
			m.log.Debug().Int("attempt", attempt).Str("status", status.Status).Msg("binding still pending")
		}
	}

	failNotify()
	return ResultFailure, errors.Wrapf(sdkerrors.ErrBindingFailure, "[Machine.poll] no terminal status after %d attempts", m.maxAttempts)
}

func (m *Machine) persistBinding(challenge Challenge) error {
	if err := m.store.Set(storage.KeyDeviceBindingID, challenge.BindingID); err != nil {
		return errors.Wrap(err, "[Machine.persistBinding] binding id")
	}
	if err := m.store.Set(storage.KeyDeviceID, strconv.Itoa(challenge.DeviceID)); err != nil {
		return errors.Wrap(err, "[Machine.persistBinding] device id")
	}
	return nil
}

// RegisterSession performs the lightweight device-session registration used
// when binding is not required, and again after each successful PIN
// verification. A refusal code from the backend is logged but not fatal.
func (m *Machine) RegisterSession(ctx context.Context, partner string) error {
	resp, err := m.api.RegisterDeviceSession(ctx, partner, m.fingerprint)
	if err != nil {
		return errors.Wrap(err, "[Machine.RegisterSession] register")
	}
	if resp.Code == api.CodeDeviceSessionFailure {
		m.log.Warn().Str("partner", partner).Msg("backend refused device session, proceeding")
	}
	return nil
}
