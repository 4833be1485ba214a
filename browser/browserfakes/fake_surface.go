package browserfakes

import (
	"net/http"
	"sync"

	"github.com/spenselabs/partnersdk/browser"
)

var _ browser.Surface = (*FakeSurface)(nil)

// FakeSurface records the calls a session makes against the browser engine.
type FakeSurface struct {
	lock        sync.Mutex
	LoadedURLs  []string
	CookieSets  [][]*http.Cookie
	CloseCalls  int
	LoadErr     error
	loadedHooks []func(string)
	decider     browser.NavigationDecider
}

func (fs *FakeSurface) Attach(decider browser.NavigationDecider) {
	fs.lock.Lock()
	defer fs.lock.Unlock()
	fs.decider = decider
}

// Decider returns the most recently attached navigation decider, letting
// tests play the engine and ask about outgoing requests.
func (fs *FakeSurface) Decider() browser.NavigationDecider {
	fs.lock.Lock()
	defer fs.lock.Unlock()
	return fs.decider
}

func NewFakeSurface() *FakeSurface {
	return &FakeSurface{}
}

func (fs *FakeSurface) Load(rawURL string) error {
	fs.lock.Lock()
	fs.LoadedURLs = append(fs.LoadedURLs, rawURL)
	hooks := append([]func(string){}, fs.loadedHooks...)
	err := fs.LoadErr
	fs.lock.Unlock()

	for _, hook := range hooks {
		hook(rawURL)
	}
	return err
}

func (fs *FakeSurface) SetCookies(cookies []*http.Cookie) {
	fs.lock.Lock()
	defer fs.lock.Unlock()
	fs.CookieSets = append(fs.CookieSets, cookies)
}

func (fs *FakeSurface) Close() {
	fs.lock.Lock()
	defer fs.lock.Unlock()
	fs.CloseCalls++
}

// OnLoad registers a hook invoked after each Load, used by tests to simulate
// in-page navigation.
func (fs *FakeSurface) OnLoad(hook func(string)) {
	fs.lock.Lock()
	defer fs.lock.Unlock()
	fs.loadedHooks = append(fs.loadedHooks, hook)
}

// LastLoaded returns the most recent Load target.
func (fs *FakeSurface) LastLoaded() string {
	fs.lock.Lock()
	defer fs.lock.Unlock()
	if len(fs.LoadedURLs) == 0 {
		return ""
	}
	return fs.LoadedURLs[len(fs.LoadedURLs)-1]
}

var _ browser.ExternalOpener = (*FakeOpener)(nil)

// FakeOpener records system-browser opens.
type FakeOpener struct {
	lock   sync.Mutex
	Opened []string
}

func (fo *FakeOpener) OpenExternal(rawURL string) error {
	fo.lock.Lock()
	defer fo.lock.Unlock()
	fo.Opened = append(fo.Opened, rawURL)
	return nil
}

func (fo *FakeOpener) OpenCount() int {
	fo.lock.Lock()
	defer fo.lock.Unlock()
	return len(fo.Opened)
}

var _ browser.DocumentViewer = (*FakeViewer)(nil)

// FakeViewer records previewed documents.
type FakeViewer struct {
	lock      sync.Mutex
	Previewed []string
	done      chan string
}

// NewFakeViewer returns a viewer whose Done channel receives each previewed
// path, letting tests wait for the async download pipeline.
func NewFakeViewer() *FakeViewer {
	return &FakeViewer{done: make(chan string, 8)}
}

func (fv *FakeViewer) Preview(path string) error {
	fv.lock.Lock()
	fv.Previewed = append(fv.Previewed, path)
	fv.lock.Unlock()
	fv.done <- path
	return nil
}

// Done exposes the preview notifications.
func (fv *FakeViewer) Done() <-chan string {
	return fv.done
}
