package browser

import (
	"sync"

	sdkerrors "github.com/spenselabs/partnersdk/internal/errors"
)

// Holder serializes access to the preloaded browser surface. Exactly one
// session may claim the surface at a time; a second concurrent claim fails
// instead of colliding on the shared surface.
type Holder struct {
	mu      sync.Mutex
	surface Surface
	session *Session
	claimed bool
}

// NewHolder returns an empty holder.
func NewHolder() *Holder {
	return &Holder{}
}

// Preload stores a warmed surface (and optionally the session that warmed
// it) for later claims. Replaces any previous unclaimed surface.
func (h *Holder) Preload(surface Surface, session *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.claimed {
		return
	}
	h.surface = surface
	h.session = session
}

// Claim takes exclusive ownership of the preloaded surface. Returns
// ErrSurfaceClaimed while another owner holds it and ErrNotFound when nothing
// was preloaded.
func (h *Holder) Claim() (Surface, *Session, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.claimed {
		return nil, nil, sdkerrors.ErrSurfaceClaimed
	}
	if h.surface == nil {
		return nil, nil, sdkerrors.ErrNotFound
	}
	h.claimed = true
	return h.surface, h.session, nil
}

// Release returns ownership, keeping the surface warm for the next claim.
func (h *Holder) Release() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.claimed = false
}

// Drop discards the held surface entirely (library reset).
func (h *Holder) Drop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.surface != nil {
		h.surface.Close()
	}
	h.surface = nil
	h.session = nil
	h.claimed = false
}
