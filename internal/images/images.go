// Package images stores one picture per item, keyed by "{id}.jpg", and serves
// them back over HTTP.
package images

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// PlaceholderName is the fallback image the client shows when an item has none.
const PlaceholderName = "placeholder.jpg"

// ErrNotFound is returned by Open when no image exists under the name.
var ErrNotFound = errors.New("image not found")

// ErrInvalidName is returned for names that could escape the image directory.
var ErrInvalidName = errors.New("invalid image name")

// ErrEmpty is returned by stores that cannot hold a zero-byte image.
var ErrEmpty = errors.New("empty image")

// Store persists image bytes by file name.
type Store interface {
	// Save writes src under a temporary name, then replaces name with it.
	Save(ctx context.Context, name string, src io.Reader) error
	// Open returns the stored bytes and their modification time.
	Open(ctx context.Context, name string) (io.ReadSeekCloser, time.Time, error)
	Close() error
}

// FileName is the image name for an item id.
func FileName(id string) string {
	return id + ".jpg"
}

// ValidName reports whether name is a single, plain path element.
func ValidName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	if strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0) {
		return false
	}
	return !strings.HasPrefix(name, ".")
}

// Handler serves GET /images/{filename}. Missing files get the standard 404.
func Handler(store Store) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "filename")
		if !ValidName(name) {
			http.NotFound(w, r)
			return
		}

		f, modTime, err := store.Open(r.Context(), name)
		if errors.Is(err, ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		if err != nil {
			hlog.FromRequest(r).Error().Err(err).Str("image", name).Msg("opening image")
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		defer f.Close()

		http.ServeContent(w, r, name, modTime, f)
	})
}

// EnsurePlaceholder writes a plain grey placeholder image unless one exists.
func EnsurePlaceholder(ctx context.Context, store Store) error {
	f, _, err := store.Open(ctx, PlaceholderName)
	if err == nil {
		return f.Close()
	}
	if !errors.Is(err, ErrNotFound) {
		return err
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, placeholderImage(), &jpeg.Options{Quality: 80}); err != nil {
		return err
	}
	return store.Save(ctx, PlaceholderName, &buf)
}

// placeholderImage draws "No Image" centred on a light grey square the size
// of a table thumbnail.
func placeholderImage() image.Image {
	const size = 60
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.Gray{Y: 0xdd}), image.Point{}, draw.Src)

	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.Gray{Y: 0x66}),
		Face: basicfont.Face7x13,
	}
	const label = "No Image"
	x := (size - d.MeasureString(label).Ceil()) / 2
	d.Dot = fixed.P(x, size/2+4)
	d.DrawString(label)
	return img
}

type bytesFile struct {
	*bytes.Reader
}

func (bytesFile) Close() error { return nil }
