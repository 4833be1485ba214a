package browser

import "net/http"

// NavigationDecider answers the engine's "may I load this in-page" question.
// Session implements it.
type NavigationDecider interface {
	DecideNavigation(rawURL string) bool
}

// Surface is the embedded browser engine. The platform host supplies the
// implementation; the SDK only ever drives it through this contract.
type Surface interface {
	// Attach hands the surface the decider to consult on every outgoing
	// navigation request. Called before each Load; later calls replace the
	// decider.
	Attach(decider NavigationDecider)
	// Load points the surface at a URL. Cookie propagation has already
	// happened when Load is called.
	Load(rawURL string) error
	// SetCookies pushes session cookies into the surface's own store. The
	// batch is best effort; individual cookie failures are invisible.
	SetCookies(cookies []*http.Cookie)
	// Close tears the surface down. Idempotent.
	Close()
}

// ExternalOpener opens a URL in the system browser.
type ExternalOpener interface {
	OpenExternal(rawURL string) error
}

// DocumentViewer previews a downloaded file with the platform's document
// handler.
type DocumentViewer interface {
	Preview(path string) error
}
