package library

import (
	"sync"

	"github.com/rs/zerolog"
	sdkerrors "github.com/spenselabs/partnersdk/internal/errors"
)

// Holder guards process-wide initialisation of the SDK. Initialising twice
// without a Reset is a no-op with a logged warning: the first configuration
// and all persisted state stay untouched.
type Holder struct {
	mu  sync.Mutex
	lib *Library
	log zerolog.Logger
}

// HolderOption configures a Holder.
type HolderOption func(*Holder)

// WithHolderLogger sets the holder logger.
func WithHolderLogger(log zerolog.Logger) HolderOption {
	return func(h *Holder) { h.log = log }
}

// NewHolder returns an uninitialised Holder.
func NewHolder(options ...HolderOption) *Holder {
	holder := &Holder{log: zerolog.Nop()}
	for _, opt := range options {
		opt(holder)
	}
	return holder
}

// Initialize builds and installs the Library. A second call before Reset
// leaves the active instance untouched.
func (h *Holder) Initialize(settings Settings, deps Deps, options ...Option) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.lib != nil {
		h.log.Warn().Err(sdkerrors.ErrAlreadyInitialized).Msg("initialize called twice, keeping existing instance")
		return nil
	}

	lib, err := New(settings, deps, options...)
	if err != nil {
		return err
	}
	h.lib = lib
	return nil
}

// Library returns the active instance.
func (h *Holder) Library() (*Library, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.lib == nil {
		return nil, sdkerrors.ErrNotInitialized
	}
	return h.lib, nil
}

// Reset tears down the active instance. The next Initialize builds a fresh
// one.
func (h *Holder) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.lib != nil {
		h.lib.Close()
	}
	h.lib = nil
}
