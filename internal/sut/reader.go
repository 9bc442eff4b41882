// Package sut reads Clip Studio Paint brush files (.sut).
//
// A .sut file is a short proprietary header followed by an SQLite 3 database. The brush
// settings live in the first row of the Variant table; every MaterialFile row holds one
// brush tip whose FileData blob embeds a PNG.
package sut

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/floegence/brushport/internal/brush"
)

// Extension is the file extension of source brushes.
const Extension = ".sut"

var (
	sqliteMagic  = []byte("SQLite format 3\x00")
	pngSignature = []byte("\x89PNG\r\n\x1a\n")
	pngEnd       = []byte("IEND")
)

const (
	settingsTable = "Variant"
	tipTable      = "MaterialFile"
	tipDataColumn = "FileData"
	// grainColumn is an optional Variant blob holding the paper texture.
	grainColumn = "TextureImage"
	// overridePrefix marks MaterialFile columns that override brush settings for one tip.
	overridePrefix = "Brush"
	internalPrefix = "_PW_"
)

// Open reads the source brush at path. Structural problems are reported as
// brush.ErrCorruptContainer; nothing is written outside the OS temp dir. Every tip row is
// returned at its declaration index, including rows whose layer blob holds no PNG.
func Open(ctx context.Context, path string, log *slog.Logger) (*brush.SourceBrush, error) {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p := filepath.Clean(strings.TrimSpace(path))
	info, err := os.Stat(p)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", brush.ErrCorruptContainer, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", brush.ErrCorruptContainer, p)
	}
	raw, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", brush.ErrCorruptContainer, err)
	}
	off := bytes.Index(raw, sqliteMagic)
	if off < 0 {
		return nil, fmt.Errorf("%w: sqlite header not found in %s", brush.ErrCorruptContainer, filepath.Base(p))
	}

	dbPath, cleanup, err := spill(raw[off:])
	if err != nil {
		return nil, fmt.Errorf("%w: spill database: %v", brush.ErrCorruptContainer, err)
	}
	defer cleanup()

	// modernc.org/sqlite uses a file path as DSN.
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", brush.ErrCorruptContainer, err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	settings, grain, err := readSettings(ctx, db)
	if err != nil {
		return nil, err
	}
	tips, err := readTips(ctx, db, log)
	if err != nil {
		return nil, err
	}
	if len(grain) > 0 {
		for i := range tips {
			tips[i].Grain = append([]byte(nil), grain...)
		}
	}

	log.Debug("source brush read", "path", p, "tips", len(tips), "settings", len(settings))
	return &brush.SourceBrush{
		Name:     strings.TrimSuffix(filepath.Base(p), filepath.Ext(p)),
		Modified: info.ModTime().UTC(),
		Settings: settings,
		Tips:     tips,
	}, nil
}

// spill writes the embedded database to a private temp file; the driver needs a path.
func spill(db []byte) (string, func(), error) {
	f, err := os.CreateTemp("", "brushport-*.sqlite")
	if err != nil {
		return "", nil, err
	}
	name := f.Name()
	cleanup := func() { _ = os.Remove(name) }
	if _, err := f.Write(db); err != nil {
		_ = f.Close()
		cleanup()
		return "", nil, err
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", nil, err
	}
	return name, cleanup, nil
}

func readSettings(ctx context.Context, db *sql.DB) (brush.Tree, []byte, error) {
	rows, err := db.QueryContext(ctx, `SELECT * FROM `+settingsTable+` LIMIT 1`)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: settings description: %v", brush.ErrCorruptContainer, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: settings description: %v", brush.ErrCorruptContainer, err)
	}
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, nil, fmt.Errorf("%w: settings description: %v", brush.ErrCorruptContainer, err)
		}
		return nil, nil, fmt.Errorf("%w: settings description is empty", brush.ErrCorruptContainer)
	}
	vals, err := scanRow(rows, len(cols))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: settings description: %v", brush.ErrCorruptContainer, err)
	}

	tree := make(brush.Tree, len(cols))
	var grain []byte
	for i, col := range cols {
		if strings.HasPrefix(col, internalPrefix) {
			continue
		}
		if col == grainColumn {
			if b, ok := vals[i].([]byte); ok {
				if png, err := extractPNG(b); err == nil {
					grain = png
				}
			}
			continue
		}
		if v, ok := toValue(vals[i]); ok {
			tree[col] = v
		}
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("%w: settings description: %v", brush.ErrCorruptContainer, err)
	}
	return tree, grain, nil
}

func readTips(ctx context.Context, db *sql.DB, log *slog.Logger) ([]brush.SourceTip, error) {
	rows, err := db.QueryContext(ctx, `SELECT * FROM `+tipTable+` ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("%w: tip assets: %v", brush.ErrCorruptContainer, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("%w: tip assets: %v", brush.ErrCorruptContainer, err)
	}
	dataIdx := -1
	for i, col := range cols {
		if col == tipDataColumn {
			dataIdx = i
		}
	}
	if dataIdx < 0 {
		return nil, fmt.Errorf("%w: %s has no %s column", brush.ErrCorruptContainer, tipTable, tipDataColumn)
	}

	var tips []brush.SourceTip
	row := 0
	for rows.Next() {
		row++
		vals, err := scanRow(rows, len(cols))
		if err != nil {
			return nil, fmt.Errorf("%w: tip assets: %v", brush.ErrCorruptContainer, err)
		}
		blob, _ := vals[dataIdx].([]byte)
		shape, err := extractPNG(blob)
		if err != nil {
			// The raw blob fails to decode later and the tip is dropped with a diagnostic.
			log.Debug("tip has no embedded png", "tip", row-1, "error", err)
			shape = append([]byte(nil), blob...)
		}
		tip := brush.SourceTip{Index: row - 1, Shape: shape}
		for i, col := range cols {
			if i == dataIdx || !strings.HasPrefix(col, overridePrefix) {
				continue
			}
			if v, ok := toValue(vals[i]); ok {
				if tip.Overrides == nil {
					tip.Overrides = make(brush.Tree)
				}
				tip.Overrides[col] = v
			}
		}
		tips = append(tips, tip)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: tip assets: %v", brush.ErrCorruptContainer, err)
	}
	if len(tips) == 0 {
		return nil, fmt.Errorf("%w: no tip asset found", brush.ErrCorruptContainer)
	}
	return tips, nil
}

func scanRow(rows *sql.Rows, n int) ([]any, error) {
	vals := make([]any, n)
	ptrs := make([]any, n)
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, err
	}
	return vals, nil
}

func toValue(v any) (brush.Value, bool) {
	switch x := v.(type) {
	case nil:
		return brush.Value{}, false
	case int64:
		return brush.Number(float64(x)), true
	case float64:
		return brush.Number(x), true
	case bool:
		return brush.Bool(x), true
	case string:
		return brush.String(x), true
	case []byte:
		return brush.Bytes(append([]byte(nil), x...)), true
	default:
		return brush.String(fmt.Sprint(x)), true
	}
}

// extractPNG cuts the PNG stream out of a layer blob: from the last PNG signature through
// the CRC of the last IEND chunk.
func extractPNG(blob []byte) ([]byte, error) {
	begin := bytes.LastIndex(blob, pngSignature)
	if begin < 0 {
		return nil, errors.New("png signature not found in layer blob")
	}
	end := bytes.LastIndex(blob, pngEnd)
	if end < begin {
		return nil, errors.New("IEND marker not found in layer blob")
	}
	end += len(pngEnd) + 4
	if end > len(blob) {
		end = len(blob)
	}
	return append([]byte(nil), blob[begin:end]...), nil
}
