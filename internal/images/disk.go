package images

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Disk keeps images as plain files in one directory.
type Disk struct {
	dir string
}

// NewDisk creates the directory if needed and returns a store rooted there.
func NewDisk(dir string) (*Disk, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating image directory: %w", err)
	}
	return &Disk{dir: dir}, nil
}

// Dir is the directory images are written to.
func (d *Disk) Dir() string {
	return d.dir
}

func (d *Disk) Save(ctx context.Context, name string, src io.Reader) error {
	if !ValidName(name) {
		return ErrInvalidName
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	tmp := filepath.Join(d.dir, ".upload-"+uuid.NewString())
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}

	if _, err := io.Copy(f, src); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("writing image: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("closing image: %w", err)
	}

	if err := os.Rename(tmp, filepath.Join(d.dir, name)); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("renaming image: %w", err)
	}
	return nil
}

func (d *Disk) Open(_ context.Context, name string) (io.ReadSeekCloser, time.Time, error) {
	if !ValidName(name) {
		return nil, time.Time{}, ErrNotFound
	}

	f, err := os.Open(filepath.Join(d.dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, time.Time{}, ErrNotFound
	}
	if err != nil {
		return nil, time.Time{}, err
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, time.Time{}, err
	}
	if info.IsDir() {
		f.Close()
		return nil, time.Time{}, ErrNotFound
	}
	return f, info.ModTime(), nil
}

func (d *Disk) Close() error { return nil }
