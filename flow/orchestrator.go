// Package flow composes the device binding machine and the PIN gate into the
// pre-handoff sequence: decide whether binding is needed, run it, then gate on
// the PIN before the browser is allowed to open.
package flow

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spenselabs/partnersdk/analytics"
	"github.com/spenselabs/partnersdk/binding"
	"github.com/spenselabs/partnersdk/internal/config"
	sdkerrors "github.com/spenselabs/partnersdk/internal/errors"
	"github.com/spenselabs/partnersdk/pin"
)

// PinMode tells the prompter which PIN screen to present.
type PinMode int

const (
	// PinModeSetup collects a brand new PIN (guided setup).
	PinModeSetup PinMode = iota
	// PinModeVerify collects the existing PIN (unlock screen).
	PinModeVerify
	// PinModeChangeOld collects the current PIN at the start of a forced
	// rotation.
	PinModeChangeOld
	// PinModeChangeNew collects the replacement PIN during rotation.
	PinModeChangeNew
)

// PinPrompt carries everything the PIN screen needs to render one entry.
type PinPrompt struct {
	Mode PinMode
	// Attempt counts verification tries within this run, starting at 1.
	Attempt int
}

// Prompter is the UI contract for the screens the orchestrator drives. The
// screens themselves live in the host application; the orchestrator only
// sequences them.
type Prompter interface {
	// RelayAuthCode asks the host to dispatch the binding auth code to the
	// recipient, typically by composing an SMS with the given body.
	RelayAuthCode(ctx context.Context, recipient, body string) error
	// PromptPIN collects one PIN entry for the given screen. An error means
	// the user abandoned the screen.
	PromptPIN(ctx context.Context, prompt PinPrompt) (string, error)
	// NotifyPinLocked tells the user entry is refused until the deadline.
	NotifyPinLocked(until time.Time)
	// NotifyBindingFailed surfaces a failed binding attempt. The flow still
	// proceeds afterwards.
	NotifyBindingFailed()
}

// Orchestrator runs the binding and PIN sequence for one handoff.
type Orchestrator struct {
	machine  *binding.Machine
	gate     *pin.Gate
	prompter Prompter
	settings config.Settings
	log      zerolog.Logger
	sink     analytics.Sink
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the orchestrator logger.
func WithLogger(log zerolog.Logger) Option {
	return func(o *Orchestrator) { o.log = log }
}

// WithSink sets the analytics sink.
func WithSink(sink analytics.Sink) Option {
	return func(o *Orchestrator) { o.sink = sink }
}

// New builds an Orchestrator.
func New(machine *binding.Machine, gate *pin.Gate, prompter Prompter, settings config.Settings, options ...Option) (*Orchestrator, error) {
	if machine == nil {
		return nil, errors.New("[flow.New] binding machine is required")
	}
	if gate == nil {
		return nil, errors.New("[flow.New] pin gate is required")
	}
	if prompter == nil {
		return nil, errors.New("[flow.New] prompter is required")
	}
	orchestrator := &Orchestrator{
		machine:  machine,
		gate:     gate,
		prompter: prompter,
		settings: settings,
		log:      zerolog.Nop(),
		sink:     analytics.NopSink{},
	}
	for _, opt := range options {
		opt(orchestrator)
	}
	return orchestrator, nil
}

// Run resolves binding and PIN for (bank, partner). When it returns nil the
// device is ready for the browser handoff.
//
// Binding is deliberately non-fatal: an explicit failure, a timeout or a
// relay error notifies the user and the flow still continues into the PIN
// gate. A locked PIN is the one hard stop.
func (o *Orchestrator) Run(ctx context.Context, bank, partner string) error {
	required, err := o.machine.CheckRequired(ctx, bank)
	if err != nil {
		o.log.Warn().Err(err).Str("bank", bank).Msg("binding requirement check failed, treating as not required")
		required = false
	}

	if !required {
		o.registerSession(ctx, partner)
		return nil
	}

	if !o.gate.IsSet() {
		result, err := o.machine.Run(ctx, partner, o.relayChallenge)
		if err != nil || result == binding.ResultFailure {
			o.log.Warn().Err(err).Str("partner", partner).Msg("device binding failed, proceeding to pin gate")
			o.prompter.NotifyBindingFailed()
		}
	}

	return o.runPinGate(ctx, partner)
}

// relayChallenge adapts the machine's challenge into the SMS relay contract:
// the body is the configured prefix followed by the auth code.
func (o *Orchestrator) relayChallenge(ctx context.Context, challenge binding.Challenge) error {
	body := fmt.Sprintf("%s %s", o.settings.SMSRelayPrefix, challenge.AuthCode)
	return o.prompter.RelayAuthCode(ctx, o.settings.SMSRelayRecipient, body)
}

// runPinGate loops the PIN screens until the gate is satisfied. Each pass
// re-reads the gate decision so a lock persisted mid-run takes effect
// immediately.
func (o *Orchestrator) runPinGate(ctx context.Context, partner string) error {
	attempt := 0
	for {
		if err := ctx.Err(); err != nil {
			return errors.Wrap(err, "[Orchestrator.runPinGate] cancelled")
		}

		switch o.gate.Decide(ctx) {
		case pin.DecisionSetup:
			candidate, err := o.prompter.PromptPIN(ctx, PinPrompt{Mode: PinModeSetup})
			if err != nil {
				return errors.Wrap(err, "[Orchestrator.runPinGate] setup abandoned")
			}
			if err := o.gate.Setup(candidate); err != nil {
				o.log.Debug().Err(err).Msg("pin setup rejected, re-prompting")
				continue
			}
			o.sink.LogEvent("PIN_SETUP_COMPLETED", nil)
			o.registerSession(ctx, partner)
			return nil

		case pin.DecisionVerify:
			attempt++
			candidate, err := o.prompter.PromptPIN(ctx, PinPrompt{Mode: PinModeVerify, Attempt: attempt})
			if err != nil {
				return errors.Wrap(err, "[Orchestrator.runPinGate] verify abandoned")
			}
			switch o.gate.Verify(candidate) {
			case pin.VerifyOK:
				o.sink.LogEvent("PIN_VERIFIED", nil)
				o.registerSession(ctx, partner)
				return nil
			case pin.VerifyWrong:
				continue
			default: // pin.VerifyLockedNow
				return o.lockedErr()
			}

		case pin.DecisionChangeRequired:
			oldPin, err := o.prompter.PromptPIN(ctx, PinPrompt{Mode: PinModeChangeOld})
			if err != nil {
				return errors.Wrap(err, "[Orchestrator.runPinGate] change abandoned")
			}
			newPin, err := o.prompter.PromptPIN(ctx, PinPrompt{Mode: PinModeChangeNew})
			if err != nil {
				return errors.Wrap(err, "[Orchestrator.runPinGate] change abandoned")
			}
			if err := o.gate.Change(oldPin, newPin); err != nil {
				o.log.Debug().Err(err).Msg("pin change rejected, re-prompting")
				continue
			}
			o.sink.LogEvent("PIN_CHANGED", nil)
			o.registerSession(ctx, partner)
			return nil

		default: // pin.DecisionLocked
			return o.lockedErr()
		}
	}
}

func (o *Orchestrator) lockedErr() error {
	if until, ok := o.gate.LockedUntil(); ok {
		o.prompter.NotifyPinLocked(until)
		return sdkerrors.Wrapf(sdkerrors.ErrPinLocked, "[Orchestrator.runPinGate] locked until %s", until.UTC().Format(time.RFC3339))
	}
	return errors.Wrap(sdkerrors.ErrPinLocked, "[Orchestrator.runPinGate]")
}

// registerSession is best-effort: the backend is told about the device
// session, and any failure is logged without blocking the handoff.
func (o *Orchestrator) registerSession(ctx context.Context, partner string) {
	if err := o.machine.RegisterSession(ctx, partner); err != nil {
		o.log.Warn().Err(err).Str("partner", partner).Msg("device session registration failed, proceeding")
	}
}
