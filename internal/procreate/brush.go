// Package procreate writes Procreate brushes (.brush) and brush sets (.brushset).
//
// Both are zip archives. Entries are written in a fixed order with fixed timestamps and a
// fixed deflate level so identical inputs produce identical bytes.
package procreate

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/klauspost/compress/flate"
	"github.com/spf13/afero"
	"go.uber.org/multierr"

	"github.com/floegence/brushport/internal/brush"
)

const (
	BrushExtension    = ".brush"
	BrushSetExtension = ".brushset"
)

// Fixed internal layout of a .brush archive.
const (
	ArchiveEntry   = "Brush.archive"
	ShapeEntry     = "Shape.png"
	GrainEntry     = "Grain.png"
	ThumbnailEntry = "QuickLook/Thumbnail.png"
	TitleEntry     = "Title.txt"
)

// Brush is one single-tip destination brush.
type Brush struct {
	Name     string
	Created  time.Time
	Settings brush.Settings
	Tip      brush.TargetTip
}

// FromTarget pairs a translated brush with one of its tips. Tip overrides take precedence
// over brush-level settings.
func FromTarget(tb brush.TargetBrush, tip brush.TargetTip, name string) Brush {
	return Brush{
		Name:     name,
		Created:  tb.Created,
		Settings: tb.Settings.Merge(tip.Overrides),
		Tip:      tip,
	}
}

// EncodeBrush writes b as a .brush archive.
func EncodeBrush(w io.Writer, b Brush) error {
	if len(b.Tip.Shape) == 0 {
		return errors.New("brush has no shape")
	}
	archive, err := encodeArchive(b.Name, b.Created, b.Settings)
	if err != nil {
		return err
	}

	zw := newZipWriter(w)
	entries := []struct {
		name string
		data []byte
	}{
		{ArchiveEntry, archive},
		{ShapeEntry, b.Tip.Shape},
		{GrainEntry, b.Tip.Grain},
		{ThumbnailEntry, b.Tip.Preview},
		{TitleEntry, []byte(b.Name)},
	}
	for _, e := range entries {
		if e.data == nil {
			continue
		}
		if err := writeEntry(zw, e.name, b.Created, e.data); err != nil {
			_ = zw.Close()
			return err
		}
	}
	return zw.Close()
}

// WriteBrush creates path on fs and writes b to it.
func WriteBrush(fs afero.Fs, path string, b Brush) error {
	return writeExclusive(fs, path, func(w io.Writer) error { return EncodeBrush(w, b) })
}

// BrushBytes encodes b in memory.
func BrushBytes(b Brush) ([]byte, error) {
	var buf bytes.Buffer
	if err := EncodeBrush(&buf, b); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func newZipWriter(w io.Writer) *zip.Writer {
	zw := zip.NewWriter(w)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, flate.BestCompression)
	})
	return zw
}

func writeEntry(zw *zip.Writer, name string, modified time.Time, data []byte) error {
	fw, err := zw.CreateHeader(&zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: modified.UTC(),
	})
	if err != nil {
		return fmt.Errorf("zip entry %s: %w", name, err)
	}
	if _, err := fw.Write(data); err != nil {
		return fmt.Errorf("zip entry %s: %w", name, err)
	}
	return nil
}

// writeExclusive creates path, refusing to replace an existing file, and removes whatever
// was written if encode or the file system fails. All failures wrap brush.ErrWrite.
func writeExclusive(fs afero.Fs, path string, encode func(io.Writer) error) (err error) {
	f, err := fs.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("%w: %s already exists", brush.ErrWrite, path)
		}
		return fmt.Errorf("%w: %v", brush.ErrWrite, err)
	}
	defer func() {
		if err == nil {
			return
		}
		if rmErr := fs.Remove(path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			err = multierr.Append(err, rmErr)
		}
	}()

	if err := encode(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("%w: %s: %v", brush.ErrWrite, path, err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("%w: %s: %v", brush.ErrWrite, path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: %s: %v", brush.ErrWrite, path, err)
	}
	return nil
}
