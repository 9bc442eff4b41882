// Package suttest writes synthetic .sut files for tests.
package suttest

import (
	"bytes"
	"database/sql"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "modernc.org/sqlite"
)

// Header stands in for the proprietary preamble that precedes the database.
var Header = []byte("CSFCHUNK\x00\x00\x00\x00brushport-fixture\x00")

// Tip is one MaterialFile row.
type Tip struct {
	PNG []byte
	// Overrides become extra MaterialFile columns.
	Overrides map[string]any
	// Raw replaces the layer blob entirely when set.
	Raw []byte
}

// Fixture describes a .sut file.
type Fixture struct {
	Variant map[string]any
	Tips    []Tip
	// Texture is stored in Variant.TextureImage when set.
	Texture []byte
	// NoVariant omits the Variant table.
	NoVariant bool
	// EmptyVariant creates the Variant table without rows.
	EmptyVariant bool
	// NoHeaderMagic writes garbage instead of a database.
	NoHeaderMagic bool
}

// Write creates the fixture at path.
func Write(path string, fx Fixture) error {
	if fx.NoHeaderMagic {
		return os.WriteFile(path, append(append([]byte(nil), Header...), "not a database"...), 0o644)
	}
	dir, err := os.MkdirTemp("", "suttest-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)

	dbPath := filepath.Join(dir, "brush.sqlite")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return err
	}
	if err := populate(db, fx); err != nil {
		_ = db.Close()
		return err
	}
	if err := db.Close(); err != nil {
		return err
	}

	raw, err := os.ReadFile(dbPath)
	if err != nil {
		return err
	}
	out := append(append([]byte(nil), Header...), raw...)
	return os.WriteFile(path, out, 0o644)
}

func populate(db *sql.DB, fx Fixture) error {
	if !fx.NoVariant {
		variant := make(map[string]any, len(fx.Variant)+2)
		variant["_PW_ID"] = int64(1)
		for k, v := range fx.Variant {
			variant[k] = v
		}
		if fx.Texture != nil {
			variant["TextureImage"] = layerBlob(fx.Texture)
		}
		cols := sortedKeys(variant)
		if err := createTable(db, "Variant", cols, variant); err != nil {
			return err
		}
		if !fx.EmptyVariant {
			if err := insert(db, "Variant", cols, variant); err != nil {
				return err
			}
		}
	}

	extra := make(map[string]any)
	for _, tip := range fx.Tips {
		for k, v := range tip.Overrides {
			extra[k] = v
		}
	}
	cols := append([]string{"_PW_ID", "FileData"}, sortedKeys(extra)...)
	sample := map[string]any{"_PW_ID": int64(0), "FileData": []byte{}}
	for k, v := range extra {
		sample[k] = v
	}
	if err := createTable(db, "MaterialFile", cols, sample); err != nil {
		return err
	}
	for i, tip := range fx.Tips {
		row := map[string]any{"_PW_ID": int64(i + 1)}
		if tip.Raw != nil {
			row["FileData"] = tip.Raw
		} else {
			row["FileData"] = layerBlob(tip.PNG)
		}
		for k, v := range tip.Overrides {
			row[k] = v
		}
		if err := insert(db, "MaterialFile", cols, row); err != nil {
			return err
		}
	}
	return nil
}

// layerBlob wraps a PNG the way the source application stores layer data.
func layerBlob(png []byte) []byte {
	var b bytes.Buffer
	b.WriteString("\x00\x00\x01\x10layer\x00")
	b.Write(png)
	b.WriteString("\x00\x00trailer")
	return b.Bytes()
}

func createTable(db *sql.DB, name string, cols []string, sample map[string]any) error {
	defs := make([]string, 0, len(cols))
	for _, c := range cols {
		typ := "BLOB"
		switch sample[c].(type) {
		case int, int64, bool:
			typ = "INTEGER"
		case float64:
			typ = "REAL"
		case string:
			typ = "TEXT"
		}
		if c == "_PW_ID" {
			typ = "INTEGER PRIMARY KEY"
		}
		defs = append(defs, fmt.Sprintf("%q %s", c, typ))
	}
	_, err := db.Exec(fmt.Sprintf("CREATE TABLE %q (%s)", name, strings.Join(defs, ", ")))
	return err
}

func insert(db *sql.DB, table string, cols []string, row map[string]any) error {
	names := make([]string, len(cols))
	marks := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, c := range cols {
		names[i] = fmt.Sprintf("%q", c)
		marks[i] = "?"
		args[i] = row[c]
	}
	_, err := db.Exec(fmt.Sprintf("INSERT INTO %q (%s) VALUES (%s)", table, strings.Join(names, ", "), strings.Join(marks, ", ")), args...)
	return err
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// PNG encodes a w×h stamp: a dark disc of the given gray level on a transparent background.
func PNG(w, h int, gray uint8) []byte {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	cx, cy := float64(w)/2, float64(h)/2
	r := min(cx, cy) * 0.8
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dx, dy := float64(x)+0.5-cx, float64(y)+0.5-cy
			if dx*dx+dy*dy <= r*r {
				img.SetNRGBA(x, y, color.NRGBA{R: gray, G: gray, B: gray, A: 255})
			}
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	return buf.Bytes()
}
