package procreate

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/floegence/brushport/internal/brush"
)

func sampleSet(t *testing.T, names ...string) BrushSet {
	t.Helper()
	set := BrushSet{Name: "Watercolor", Created: created}
	for i, name := range names {
		b := sampleBrush(name)
		b.Tip.Shape = []byte("shape-" + name)
		data, err := BrushBytes(b)
		if err != nil {
			t.Fatalf("BrushBytes: %v", err)
		}
		set.Members = append(set.Members, Member{ID: MemberID(set.Name, i, b.Tip.Shape), Archive: data})
	}
	return set
}

func TestMemberID_StableAndDistinct(t *testing.T) {
	t.Parallel()

	a := MemberID("Watercolor", 0, []byte("shape"))
	if a != MemberID("Watercolor", 0, []byte("shape")) {
		t.Fatalf("MemberID is not stable")
	}
	if a != strings.ToUpper(a) {
		t.Fatalf("MemberID %s is not uppercase", a)
	}
	if _, err := uuid.Parse(a); err != nil {
		t.Fatalf("MemberID %s is not a UUID: %v", a, err)
	}
	others := []string{
		MemberID("Watercolor", 1, []byte("shape")),
		MemberID("Gouache", 0, []byte("shape")),
		MemberID("Watercolor", 0, []byte("other")),
	}
	for _, o := range others {
		if o == a {
			t.Fatalf("MemberID collision: %s", o)
		}
	}
}

func TestEncodeBrushSet_ManifestFirstAndOrdered(t *testing.T) {
	t.Parallel()

	set := sampleSet(t, "Wash 1", "Wash 2", "Wash 3")
	var buf bytes.Buffer
	if err := EncodeBrushSet(&buf, set); err != nil {
		t.Fatalf("EncodeBrushSet: %v", err)
	}
	data := buf.Bytes()

	names := entryNames(t, data)
	if names[0] != ManifestEntry {
		t.Fatalf("first entry=%s, want %s", names[0], ManifestEntry)
	}
	var want []string
	want = append(want, ManifestEntry)
	for _, m := range set.Members {
		for _, e := range []string{ArchiveEntry, ShapeEntry, GrainEntry, ThumbnailEntry, TitleEntry} {
			want = append(want, m.ID+"/"+e)
		}
	}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Fatalf("entries (-want +got):\n%s", diff)
	}

	manifest, err := ReadManifest(data)
	if err != nil {
		t.Fatalf("ReadManifest: %v", err)
	}
	wantManifest := Manifest{Name: "Watercolor", Brushes: []string{set.Members[0].ID, set.Members[1].ID, set.Members[2].ID}}
	if diff := cmp.Diff(wantManifest, manifest); diff != "" {
		t.Fatalf("manifest (-want +got):\n%s", diff)
	}

	if got := string(readEntry(t, data, set.Members[1].ID+"/"+TitleEntry)); got != "Wash 2" {
		t.Fatalf("member title=%q", got)
	}
	if got := readEntry(t, data, set.Members[2].ID+"/"+ShapeEntry); !bytes.Equal(got, []byte("shape-Wash 3")) {
		t.Fatalf("member shape=%q", got)
	}
}

func TestEncodeBrushSet_RejectsBadMembers(t *testing.T) {
	t.Parallel()

	if err := EncodeBrushSet(&bytes.Buffer{}, BrushSet{Name: "empty"}); err == nil {
		t.Fatalf("expected error for an empty set")
	}
	set := sampleSet(t, "a", "b")
	set.Members[1].ID = set.Members[0].ID
	if err := EncodeBrushSet(&bytes.Buffer{}, set); err == nil {
		t.Fatalf("expected error for duplicate member ids")
	}
	set = sampleSet(t, "a")
	set.Members[0].Archive = []byte("not a zip")
	if err := EncodeBrushSet(&bytes.Buffer{}, set); err == nil {
		t.Fatalf("expected error for a member that is not a brush archive")
	}
}

func TestWriteBrushSet(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	set := sampleSet(t, "one", "two")
	if err := WriteBrushSet(fs, "/Watercolor.brushset", set); err != nil {
		t.Fatalf("WriteBrushSet: %v", err)
	}
	first, _ := afero.ReadFile(fs, "/Watercolor.brushset")

	var buf bytes.Buffer
	if err := EncodeBrushSet(&buf, set); err != nil {
		t.Fatalf("EncodeBrushSet: %v", err)
	}
	if !bytes.Equal(first, buf.Bytes()) {
		t.Fatalf("file differs from in-memory encoding")
	}

	if err := WriteBrushSet(fs, "/Watercolor.brushset", set); !errors.Is(err, brush.ErrWrite) {
		t.Fatalf("second write err=%v, want ErrWrite", err)
	}
}
