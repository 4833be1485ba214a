package browser

import (
	"context"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"

	"github.com/pkg/errors"
	sdkerrors "github.com/spenselabs/partnersdk/internal/errors"
)

// Downloader streams documents to the local cache directory so the platform
// viewer can open them.
type Downloader struct {
	client *http.Client
	dir    string
}

// NewDownloader builds a Downloader writing into dir. The client should share
// the session cookie jar so authenticated documents resolve.
func NewDownloader(client *http.Client, dir string) (*Downloader, error) {
	if client == nil {
		return nil, errors.New("[NewDownloader] client is required")
	}
	if dir == "" {
		return nil, errors.New("[NewDownloader] dir is required")
	}
	return &Downloader{client: client, dir: dir}, nil
}

// Fetch downloads rawURL and returns the local file path. An existing file
// with the same name is replaced.
func (d *Downloader) Fetch(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", sdkerrors.Wrapf(sdkerrors.ErrInvalidURL, "[Downloader.Fetch] %q: %v", rawURL, err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return "", sdkerrors.Wrapf(sdkerrors.ErrNetwork, "[Downloader.Fetch] %s: %v", rawURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", sdkerrors.Wrapf(sdkerrors.ErrNetwork, "[Downloader.Fetch] %s: status %d", rawURL, resp.StatusCode)
	}

	name := path.Base(req.URL.Path)
	if name == "/" || name == "." || name == "" {
		name = "document"
	}
	destination := filepath.Join(d.dir, name)

	if err := os.MkdirAll(d.dir, 0o700); err != nil {
		return "", errors.Wrap(err, "[Downloader.Fetch] mkdir cache dir")
	}
	file, err := os.Create(destination)
	if err != nil {
		return "", errors.Wrap(err, "[Downloader.Fetch] create file")
	}
	defer file.Close()

	if _, err := io.Copy(file, resp.Body); err != nil {
		return "", errors.Wrap(err, "[Downloader.Fetch] stream body")
	}
	return destination, nil
}
