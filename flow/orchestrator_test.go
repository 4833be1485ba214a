package flow_test

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/spenselabs/partnersdk/api"
	"github.com/spenselabs/partnersdk/binding"
	"github.com/spenselabs/partnersdk/device"
	"github.com/spenselabs/partnersdk/flow"
	"github.com/spenselabs/partnersdk/flow/flowfakes"
	"github.com/spenselabs/partnersdk/internal/config"
	sdkerrors "github.com/spenselabs/partnersdk/internal/errors"
	"github.com/spenselabs/partnersdk/pin"
	"github.com/spenselabs/partnersdk/storage"
	"github.com/spenselabs/partnersdk/storage/storefakes"
	"github.com/stretchr/testify/require"
)

// scriptedAPI answers the binding machine from canned responses and records
// every backend interaction.
type scriptedAPI struct {
	lock sync.Mutex

	nextPath string
	nextErr  error
	initResp api.InitiateBindingResponse
	initErr  error
	// statuses is consumed one entry per BindingStatus call.
	statuses    []string
	sessionCode string
	sessionErr  error

	initCalls    int
	failCalls    int
	sessionCalls int
}

func (s *scriptedAPI) OnboardingNext(context.Context, string) (api.OnboardingNextResponse, error) {
	return api.OnboardingNextResponse{Path: s.nextPath}, s.nextErr
}

func (s *scriptedAPI) InitiateBinding(context.Context, string, api.InitiateBindingRequest) (api.InitiateBindingResponse, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.initCalls++
	return s.initResp, s.initErr
}

func (s *scriptedAPI) BindingStatus(context.Context, string, string) (api.BindingStatusResponse, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if len(s.statuses) == 0 {
		return api.BindingStatusResponse{Status: api.BindingStatusPending}, nil
	}
	next := s.statuses[0]
	s.statuses = s.statuses[1:]
	return api.BindingStatusResponse{Status: next}, nil
}

func (s *scriptedAPI) FailBinding(context.Context, string, string) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.failCalls++
	return nil
}

func (s *scriptedAPI) RegisterDeviceSession(context.Context, string, device.Fingerprint) (api.DeviceSessionResponse, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.sessionCalls++
	return api.DeviceSessionResponse{Code: s.sessionCode}, s.sessionErr
}

type flowFixture struct {
	api      *scriptedAPI
	store    *storefakes.FakeStore
	prompter *flowfakes.FakePrompter
	gate     *pin.Gate
	orch     *flow.Orchestrator
	settings config.Settings
}

func newFlowFixture(t *testing.T, backend *scriptedAPI) *flowFixture {
	t.Helper()
	settings, err := config.New("https://partner.example.com", true, nil, false)
	require.NoError(t, err)

	store := storefakes.NewFakeStore()
	machine, err := binding.NewMachine(backend, store, device.Fingerprint{DeviceUUID: "test-device"}, true,
		binding.WithPollInterval(time.Millisecond))
	require.NoError(t, err)
	gate, err := pin.NewGate(store, nil)
	require.NoError(t, err)

	prompter := &flowfakes.FakePrompter{}
	orch, err := flow.New(machine, gate, prompter, settings)
	require.NoError(t, err)

	return &flowFixture{api: backend, store: store, prompter: prompter, gate: gate, orch: orch, settings: settings}
}

func TestRunNotRequiredRegistersSession(t *testing.T) {
	fixture := newFlowFixture(t, &scriptedAPI{nextPath: "/onboarding/success"})

	require.NoError(t, fixture.orch.Run(context.Background(), "acme", "acme"))
	require.Equal(t, 1, fixture.api.sessionCalls)
	require.Equal(t, 0, fixture.api.initCalls)
	require.Empty(t, fixture.prompter.Prompts)
}

func TestRunFreshDeviceBindsThenSetsUpPin(t *testing.T) {
	backend := &scriptedAPI{
		nextPath: "/onboarding/verify-device",
		initResp: api.InitiateBindingResponse{DeviceAuth: "AUTH42", DeviceID: 7},
		statuses: []string{api.BindingStatusPending, api.BindingStatusSuccess},
	}
	fixture := newFlowFixture(t, backend)
	fixture.prompter.PinQueue = []string{"1234"}

	require.NoError(t, fixture.orch.Run(context.Background(), "acme", "acme"))

	// Challenge relayed with the configured recipient and keyword prefix.
	require.Equal(t, []string{fixture.settings.SMSRelayRecipient}, fixture.prompter.RelayRecipients)
	require.Equal(t, []string{fixture.settings.SMSRelayPrefix + " AUTH42"}, fixture.prompter.RelayBodies)

	// Guided setup ran once, then the session was registered.
	require.Len(t, fixture.prompter.Prompts, 1)
	require.Equal(t, flow.PinModeSetup, fixture.prompter.Prompts[0].Mode)
	require.Equal(t, 1, backend.sessionCalls)
	require.Equal(t, 0, backend.failCalls)
	require.True(t, fixture.gate.IsSet())
}

func TestRunBindingFailureIsNonFatal(t *testing.T) {
	backend := &scriptedAPI{
		nextPath: "/onboarding/verify-device",
		initResp: api.InitiateBindingResponse{DeviceAuth: "AUTH42", DeviceID: 7},
		statuses: []string{api.BindingStatusFailure},
	}
	fixture := newFlowFixture(t, backend)
	fixture.prompter.PinQueue = []string{"1234"}

	require.NoError(t, fixture.orch.Run(context.Background(), "acme", "acme"))
	require.Equal(t, 1, fixture.prompter.BindingFailures)
	require.Equal(t, 1, backend.failCalls)
	// The user still reaches PIN setup and the session is registered.
	require.Len(t, fixture.prompter.Prompts, 1)
	require.Equal(t, 1, backend.sessionCalls)
}

func TestRunBoundDeviceVerifiesPin(t *testing.T) {
	backend := &scriptedAPI{nextPath: "/onboarding/verify-device"}
	fixture := newFlowFixture(t, backend)
	require.NoError(t, fixture.gate.Setup("1234"))
	fixture.prompter.PinQueue = []string{"9999", "1234"}

	require.NoError(t, fixture.orch.Run(context.Background(), "acme", "acme"))

	// Already bound: no challenge issued, straight to verification.
	require.Equal(t, 0, backend.initCalls)
	require.Len(t, fixture.prompter.Prompts, 2)
	require.Equal(t, flow.PinModeVerify, fixture.prompter.Prompts[0].Mode)
	require.Equal(t, 1, fixture.prompter.Prompts[0].Attempt)
	require.Equal(t, 2, fixture.prompter.Prompts[1].Attempt)
	require.Equal(t, 1, backend.sessionCalls)
}

func TestRunLockoutBlocksHandoff(t *testing.T) {
	backend := &scriptedAPI{nextPath: "/onboarding/verify-device"}
	fixture := newFlowFixture(t, backend)
	require.NoError(t, fixture.gate.Setup("1234"))
	fixture.prompter.PinQueue = []string{"0000", "1111", "2222"}

	err := fixture.orch.Run(context.Background(), "acme", "acme")
	require.True(t, sdkerrors.Is(err, sdkerrors.ErrPinLocked))
	require.Len(t, fixture.prompter.LockNotices, 1)
	require.Equal(t, 0, backend.sessionCalls)
}

func TestRunLockedGateRefusesWithoutPrompting(t *testing.T) {
	backend := &scriptedAPI{nextPath: "/onboarding/verify-device"}
	fixture := newFlowFixture(t, backend)
	require.NoError(t, fixture.gate.Setup("1234"))
	lockUntil := time.Now().Add(20 * time.Minute).UnixMilli()
	require.NoError(t, fixture.store.Set(storage.KeyPinLockedUntil, strconv.FormatInt(lockUntil, 10)))

	err := fixture.orch.Run(context.Background(), "acme", "acme")
	require.True(t, sdkerrors.Is(err, sdkerrors.ErrPinLocked))
	require.Empty(t, fixture.prompter.Prompts)
}

func TestRunRotationForcesChange(t *testing.T) {
	backend := &scriptedAPI{nextPath: "/onboarding/verify-device"}
	fixture := newFlowFixture(t, backend)
	require.NoError(t, fixture.gate.Setup("1234"))
	staleSetAt := time.Now().Add(-91 * 24 * time.Hour).UnixMilli()
	require.NoError(t, fixture.store.Set(storage.KeyPinSetAt, strconv.FormatInt(staleSetAt, 10)))

	fixture.prompter.PinQueue = []string{"1234", "5678"}
	require.NoError(t, fixture.orch.Run(context.Background(), "acme", "acme"))

	require.Len(t, fixture.prompter.Prompts, 2)
	require.Equal(t, flow.PinModeChangeOld, fixture.prompter.Prompts[0].Mode)
	require.Equal(t, flow.PinModeChangeNew, fixture.prompter.Prompts[1].Mode)
	require.Equal(t, pin.VerifyOK, fixture.gate.Verify("5678"))
	require.Equal(t, 1, backend.sessionCalls)
}

func TestRunRotationRejectsReusedPin(t *testing.T) {
	backend := &scriptedAPI{nextPath: "/onboarding/verify-device"}
	fixture := newFlowFixture(t, backend)
	require.NoError(t, fixture.gate.Setup("1234"))
	staleSetAt := time.Now().Add(-91 * 24 * time.Hour).UnixMilli()
	require.NoError(t, fixture.store.Set(storage.KeyPinSetAt, strconv.FormatInt(staleSetAt, 10)))

	// First change attempt reuses the old PIN and is refused; the second
	// succeeds.
	fixture.prompter.PinQueue = []string{"1234", "1234", "1234", "5678"}
	require.NoError(t, fixture.orch.Run(context.Background(), "acme", "acme"))
	require.Len(t, fixture.prompter.Prompts, 4)
	require.Equal(t, pin.VerifyOK, fixture.gate.Verify("5678"))
}

func TestRunAbandonedPromptPropagates(t *testing.T) {
	backend := &scriptedAPI{nextPath: "/onboarding/verify-device"}
	fixture := newFlowFixture(t, backend)
	require.NoError(t, fixture.gate.Setup("1234"))
	fixture.prompter.PinErr = context.Canceled

	err := fixture.orch.Run(context.Background(), "acme", "acme")
	require.Error(t, err)
	require.Equal(t, 0, backend.sessionCalls)
}

func TestRunRequirementCheckFailureProceeds(t *testing.T) {
	backend := &scriptedAPI{nextErr: sdkerrors.ErrNetwork}
	fixture := newFlowFixture(t, backend)

	require.NoError(t, fixture.orch.Run(context.Background(), "acme", "acme"))
	require.Equal(t, 0, backend.initCalls)
	require.Equal(t, 1, backend.sessionCalls)
}

func TestRunSessionRefusalIsNonFatal(t *testing.T) {
	backend := &scriptedAPI{nextPath: "/onboarding/success", sessionCode: api.CodeDeviceSessionFailure}
	fixture := newFlowFixture(t, backend)
	require.NoError(t, fixture.orch.Run(context.Background(), "acme", "acme"))
}
