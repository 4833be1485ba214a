// Package pin implements the local PIN gate: setup, verification, lockout
// and rotation. The PIN never leaves the device; only its bcrypt hash is
// stored and comparison is always local.
package pin

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spenselabs/partnersdk/api"
	sdkerrors "github.com/spenselabs/partnersdk/internal/errors"
	"github.com/spenselabs/partnersdk/storage"
	"golang.org/x/crypto/bcrypt"
)

const (
	// PinLength is the required number of digits.
	PinLength = 4

	maxWrongAttempts = 3
	lockWindow       = 30 * time.Minute
	rotationWindow   = 90 * 24 * time.Hour
)

// Decision is the gate's answer to "what should the UI show next".
type Decision int

const (
	// DecisionSetup: no PIN exists, run first-time setup.
	DecisionSetup Decision = iota
	// DecisionVerify: a PIN exists, ask for it.
	DecisionVerify
	// DecisionLocked: too many wrong attempts, entry refused until the lock
	// window elapses.
	DecisionLocked
	// DecisionChangeRequired: the PIN is older than the rotation window; run
	// the guided old/new/confirm flow.
	DecisionChangeRequired
)

// VerifyResult is the outcome of a single verification attempt.
type VerifyResult int

const (
	VerifyOK VerifyResult = iota
	VerifyWrong
	VerifyLockedNow
)

// TimeSource supplies the backend clock. The gate prefers it over the local
// clock so rotation and lockout cannot be defeated by changing device time.
type TimeSource interface {
	ServerTime(ctx context.Context) (api.ServerTimeResponse, error)
}

// Gate decides between setup, verification and lockout, and performs the
// local PIN comparison.
type Gate struct {
	store      storage.Store
	timeSource TimeSource
	log        zerolog.Logger
	nowTime    func() time.Time

	attemptsMu    sync.Mutex
	wrongAttempts int
}

// GateOption configures a Gate.
type GateOption func(*Gate)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) GateOption {
	return func(g *Gate) { g.nowTime = nowFunc }
}

// WithLogger sets the gate logger.
func WithLogger(log zerolog.Logger) GateOption {
	return func(g *Gate) { g.log = log }
}

// NewGate builds a Gate. timeSource may be nil; the gate then runs on local
// policy only.
func NewGate(store storage.Store, timeSource TimeSource, options ...GateOption) (*Gate, error) {
	if store == nil {
		return nil, errors.New("[NewGate] store is required")
	}
	gate := &Gate{
		store:      store,
		timeSource: timeSource,
		log:        zerolog.Nop(),
		nowTime:    time.Now,
	}
	for _, opt := range options {
		opt(gate)
	}
	return gate, nil
}

// Decide returns what the PIN screens should do next.
func (g *Gate) Decide(ctx context.Context) Decision {
	if _, ok := g.store.Get(storage.KeyPin); !ok {
		return DecisionSetup
	}

	now := g.nowMillis(ctx)

	if lockUntil, ok := g.lockUntil(); ok {
		if now < lockUntil {
			return DecisionLocked
		}
		// Window elapsed; drop the stale lock.
		_ = g.store.Clear(storage.KeyPinLockedUntil)
	}

	if setAt, ok := g.setAtMillis(); ok {
		if now-setAt >= rotationWindow.Milliseconds() {
			return DecisionChangeRequired
		}
	}
	return DecisionVerify
}

// Verify compares candidate against the stored PIN. Three cumulative wrong
// attempts lock the gate for the lock window; the counter resets on success.
// The comparison is purely local, no network call is made.
func (g *Gate) Verify(candidate string) VerifyResult {
	if lockUntil, ok := g.lockUntil(); ok && g.nowTime().UnixMilli() < lockUntil {
		return VerifyLockedNow
	}

	hash, ok := g.store.Get(storage.KeyPin)
	if !ok {
		return VerifyWrong
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(candidate)) == nil {
		g.attemptsMu.Lock()
		g.wrongAttempts = 0
		g.attemptsMu.Unlock()
		return VerifyOK
	}

	g.attemptsMu.Lock()
	g.wrongAttempts++
	locked := g.wrongAttempts >= maxWrongAttempts
	if locked {
		g.wrongAttempts = 0
	}
	g.attemptsMu.Unlock()

	if locked {
		lockUntil := g.nowTime().Add(lockWindow).UnixMilli()
		if err := g.store.Set(storage.KeyPinLockedUntil, strconv.FormatInt(lockUntil, 10)); err != nil {
			g.log.Error().Err(err).Msg("failed to persist pin lock")
		}
		return VerifyLockedNow
	}
	return VerifyWrong
}

// Setup stores a new PIN, used for first-time setup and as the final step of
// the change flow. Any previous value, set-time and lock are replaced.
func (g *Gate) Setup(candidate string) error {
	if err := validate(candidate); err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(candidate), bcrypt.DefaultCost)
	if err != nil {
		return errors.Wrap(err, "[Gate.Setup] hash pin")
	}
	if err := g.store.Set(storage.KeyPin, string(hash)); err != nil {
		return errors.Wrap(err, "[Gate.Setup] store pin")
	}
	if err := g.store.Set(storage.KeyPinSetAt, strconv.FormatInt(g.nowMillis(context.Background()), 10)); err != nil {
		return errors.Wrap(err, "[Gate.Setup] store set-time")
	}
	_ = g.store.Clear(storage.KeyPinLockedUntil)

	g.attemptsMu.Lock()
	g.wrongAttempts = 0
	g.attemptsMu.Unlock()
	return nil
}

// Change runs the guided change: the old PIN must match and the new PIN must
// differ from it.
func (g *Gate) Change(oldPin, newPin string) error {
	hash, ok := g.store.Get(storage.KeyPin)
	if !ok {
		return sdkerrors.ErrPinNotSet
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(oldPin)) != nil {
		return sdkerrors.ErrPinMismatch
	}
	if oldPin == newPin {
		return errors.Wrap(sdkerrors.ErrPinMismatch, "[Gate.Change] new pin equals old pin")
	}
	return g.Setup(newPin)
}

// IsSet reports whether a PIN record exists on this device.
func (g *Gate) IsSet() bool {
	_, ok := g.store.Get(storage.KeyPin)
	return ok
}

// Reset clears the stored PIN record entirely (the "forgot PIN" path; the
// caller re-runs device binding afterwards).
func (g *Gate) Reset() error {
	for _, key := range []string{storage.KeyPin, storage.KeyPinSetAt, storage.KeyPinLockedUntil} {
		if err := g.store.Clear(key); err != nil {
			return errors.Wrapf(err, "[Gate.Reset] clear %s", key)
		}
	}
	g.attemptsMu.Lock()
	g.wrongAttempts = 0
	g.attemptsMu.Unlock()
	return nil
}

// LockedUntil reports the active lock deadline, if any.
func (g *Gate) LockedUntil() (time.Time, bool) {
	lockUntil, ok := g.lockUntil()
	if !ok || g.nowTime().UnixMilli() >= lockUntil {
		return time.Time{}, false
	}
	return time.UnixMilli(lockUntil), true
}

// nowMillis prefers the server clock. A failed fetch is non-fatal: the gate
// falls back to local time and logs the degradation.
func (g *Gate) nowMillis(ctx context.Context) int64 {
	if g.timeSource != nil {
		if resp, err := g.timeSource.ServerTime(ctx); err == nil && resp.Time > 0 {
			return resp.Time
		} else if err != nil {
			g.log.Debug().Err(err).Msg("server time unavailable, using local clock")
		}
	}
	return g.nowTime().UnixMilli()
}

func (g *Gate) lockUntil() (int64, bool) {
	raw, ok := g.store.Get(storage.KeyPinLockedUntil)
	if !ok {
		return 0, false
	}
	lockUntil, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return lockUntil, true
}

func (g *Gate) setAtMillis() (int64, bool) {
	raw, ok := g.store.Get(storage.KeyPinSetAt)
	if !ok {
		return 0, false
	}
	setAt, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return setAt, true
}

func validate(candidate string) error {
	if len(candidate) != PinLength {
		return errors.Errorf("[pin.validate] pin must be %d digits", PinLength)
	}
	for _, r := range candidate {
		if r < '0' || r > '9' {
			return errors.New("[pin.validate] pin must be numeric")
		}
	}
	return nil
}
