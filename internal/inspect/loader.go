package inspect

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"net/http"
	"strings"

	// Decoders for the formats a field camera or survey tool may produce.
	_ "image/gif"
	_ "image/jpeg"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/banshee-data/rockfall.report/internal/fsutil"
	"github.com/banshee-data/rockfall.report/internal/httputil"
	"github.com/banshee-data/rockfall.report/internal/monitoring"
	"github.com/banshee-data/rockfall.report/internal/security"
)

// DefaultMaxBytes caps the size of an image the loader will decode.
const DefaultMaxBytes = 20 << 20

// ErrNoImage is reported when the selected row has no image reference.
var ErrNoImage = errors.New("row has no image reference")

// Loader fetches remote images over HTTP and reads local ones from a set of
// allowed directories.
type Loader struct {
	Client      httputil.HTTPClient
	FS          fsutil.FileSystem
	AllowedDirs []string
	MaxBytes    int64
}

// Result is the outcome of one load. Err is informational: a failed image
// never fails the page that asked for it.
type Result struct {
	Ref    string
	Remote bool
	Format string
	Image  image.Image
	Err    error
}

// OK reports whether an image was decoded.
func (r Result) OK() bool {
	return r.Err == nil && r.Image != nil
}

// ErrText is the failure message shown in the panel, or "".
func (r Result) ErrText() string {
	if r.Err == nil {
		return ""
	}
	return "Failed to load thumbnail: " + r.Err.Error()
}

// Load resolves ref. Values starting with "http" are fetched, everything else
// is treated as a local path.
func (l *Loader) Load(ctx context.Context, ref string) Result {
	res := Result{Ref: ref, Remote: strings.HasPrefix(ref, "http")}

	var data []byte
	var err error
	switch {
	case ref == "":
		err = ErrNoImage
	case res.Remote:
		data, err = l.fetch(ctx, ref)
	default:
		data, err = l.readLocal(ref)
	}
	if err == nil {
		res.Image, res.Format, err = image.Decode(bytes.NewReader(data))
		if err != nil {
			err = fmt.Errorf("failed to decode image: %w", err)
		}
	}
	if err != nil {
		monitoring.Debugf("inspect: %s: %v", ref, err)
		res.Err = err
	}
	return res
}

func (l *Loader) maxBytes() int64 {
	if l.MaxBytes <= 0 {
		return DefaultMaxBytes
	}
	return l.MaxBytes
}

func (l *Loader) fetch(ctx context.Context, url string) ([]byte, error) {
	if l.Client == nil {
		return nil, errors.New("remote images are disabled")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid image URL: %w", err)
	}
	resp, err := l.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("failed to fetch image: %s", resp.Status)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, l.maxBytes()+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read image body: %w", err)
	}
	if int64(len(data)) > l.maxBytes() {
		return nil, fmt.Errorf("image exceeds %d bytes", l.maxBytes())
	}
	return data, nil
}

func (l *Loader) readLocal(path string) ([]byte, error) {
	if err := security.ValidatePathWithinAllowedDirs(path, l.AllowedDirs); err != nil {
		return nil, err
	}
	fsys := l.FS
	if fsys == nil {
		fsys = fsutil.OSFileSystem{}
	}
	info, err := fsys.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat image: %w", err)
	}
	if info.Size() > l.maxBytes() {
		return nil, fmt.Errorf("image exceeds %d bytes", l.maxBytes())
	}
	return fsys.ReadFile(path)
}

// WritePNG re-encodes a decoded image for the browser.
func WritePNG(w io.Writer, img image.Image) error {
	if err := png.Encode(w, img); err != nil {
		return fmt.Errorf("failed to encode image: %w", err)
	}
	return nil
}
