package procreate

import (
	"archive/zip"
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"howett.net/plist"
)

// ManifestEntry is the ordering manifest at the root of a .brushset.
const ManifestEntry = "brushset.plist"

// memberNamespace seeds the deterministic member IDs.
var memberNamespace = uuid.MustParse("6f0b7c1e-5a4d-4f5e-9a53-8d2b1c7e4a10")

// Manifest lists member folders in tip-selection order.
type Manifest struct {
	Name    string   `plist:"name"`
	Brushes []string `plist:"brushes"`
}

// Member is one encoded .brush destined for its own folder in the set.
type Member struct {
	ID      string
	Archive []byte
}

// BrushSet is an ordered collection of single-tip brushes.
type BrushSet struct {
	Name    string
	Created time.Time
	Members []Member
}

// MemberID derives a stable, uppercase UUID for the member at index from the set name and
// the member's shape, so re-running a conversion reproduces the same folder names.
func MemberID(set string, index int, shape []byte) string {
	sum := sha256.Sum256(shape)
	name := fmt.Sprintf("%s/%d/%x", set, index, sum[:])
	return strings.ToUpper(uuid.NewSHA1(memberNamespace, []byte(name)).String())
}

// EncodeBrushSet writes the manifest followed by every member's entries under "<ID>/".
// Members keep their order; entries are copied without recompression.
func EncodeBrushSet(w io.Writer, set BrushSet) error {
	if len(set.Members) == 0 {
		return errors.New("brush set has no members")
	}
	manifest := Manifest{Name: set.Name}
	seen := make(map[string]bool, len(set.Members))
	for _, m := range set.Members {
		if m.ID == "" || seen[m.ID] {
			return fmt.Errorf("brush set member id %q is empty or duplicated", m.ID)
		}
		seen[m.ID] = true
		manifest.Brushes = append(manifest.Brushes, m.ID)
	}
	manifestData, err := plist.MarshalIndent(manifest, plist.XMLFormat, "\t")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}

	zw := newZipWriter(w)
	if err := writeEntry(zw, ManifestEntry, set.Created, manifestData); err != nil {
		_ = zw.Close()
		return err
	}
	for _, m := range set.Members {
		if err := copyMember(zw, m); err != nil {
			_ = zw.Close()
			return err
		}
	}
	return zw.Close()
}

// WriteBrushSet creates path on fs and writes set to it.
func WriteBrushSet(fs afero.Fs, path string, set BrushSet) error {
	return writeExclusive(fs, path, func(w io.Writer) error { return EncodeBrushSet(w, set) })
}

func copyMember(zw *zip.Writer, m Member) error {
	zr, err := zip.NewReader(bytes.NewReader(m.Archive), int64(len(m.Archive)))
	if err != nil {
		return fmt.Errorf("member %s: %w", m.ID, err)
	}
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		hdr := f.FileHeader
		hdr.Name = m.ID + "/" + f.Name
		// CreateRaw appends its own timestamp field.
		hdr.Extra = nil
		fw, err := zw.CreateRaw(&hdr)
		if err != nil {
			return fmt.Errorf("member %s: %w", m.ID, err)
		}
		raw, err := f.OpenRaw()
		if err != nil {
			return fmt.Errorf("member %s: %w", m.ID, err)
		}
		if _, err := io.Copy(fw, raw); err != nil {
			return fmt.Errorf("member %s: %w", m.ID, err)
		}
	}
	return nil
}

// ReadManifest returns the manifest of an encoded .brushset.
func ReadManifest(data []byte) (Manifest, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return Manifest{}, err
	}
	for _, f := range zr.File {
		if f.Name != ManifestEntry {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return Manifest{}, err
		}
		raw, err := io.ReadAll(rc)
		_ = rc.Close()
		if err != nil {
			return Manifest{}, err
		}
		var m Manifest
		if _, err := plist.Unmarshal(raw, &m); err != nil {
			return Manifest{}, fmt.Errorf("decode manifest: %w", err)
		}
		return m, nil
	}
	return Manifest{}, fmt.Errorf("%s not found", ManifestEntry)
}
