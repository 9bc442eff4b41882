// Package convert runs one source brush through the whole pipeline: read, translate and
// normalize every tip, then write a single brush or a brush set.
package convert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/floegence/brushport/internal/brush"
	"github.com/floegence/brushport/internal/lockfile"
	"github.com/floegence/brushport/internal/mapping"
	"github.com/floegence/brushport/internal/procreate"
	"github.com/floegence/brushport/internal/sut"
	"github.com/floegence/brushport/internal/tipasset"
	"github.com/floegence/brushport/internal/translate"
)

// Options configures Convert. The zero value converts with the built-in table and defaults.
type Options struct {
	Logger *slog.Logger
	// Fs receives the output. Defaults to the OS file system.
	Fs afero.Fs
	// Table defaults to the built-in mapping table.
	Table  *mapping.Table
	Assets tipasset.Options
	// Workers bounds concurrent tip processing. 0 picks the physical core count.
	Workers int
	// Overwrite replaces an existing output file instead of failing.
	Overwrite bool
	// LockDir holds per-target lock files. Defaults to the OS temp dir.
	LockDir string
}

type tipResult struct {
	tip   brush.TargetTip
	diags []brush.Diagnostic
	err   error
}

// Convert converts the source brush at sourcePath into exactly one file in outputDir and
// returns its path with every diagnostic collected on the way. On error nothing is left
// in outputDir.
func Convert(ctx context.Context, sourcePath, outputDir string, opts Options) (*brush.Result, error) {
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	fs := opts.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}
	table := opts.Table
	if table == nil {
		t, err := mapping.Default()
		if err != nil {
			return nil, err
		}
		table = t
	}
	if strings.TrimSpace(sourcePath) == "" {
		return nil, errors.New("missing source path")
	}
	if strings.TrimSpace(outputDir) == "" {
		return nil, errors.New("missing output directory")
	}
	sourcePath = filepath.Clean(strings.TrimSpace(sourcePath))
	outputDir = filepath.Clean(strings.TrimSpace(outputDir))

	stem := strings.TrimSuffix(filepath.Base(sourcePath), filepath.Ext(sourcePath))
	lock, err := lockfile.Acquire(lockfile.PathFor(opts.LockDir, filepath.Join(outputDir, stem)))
	if err != nil {
		if errors.Is(err, lockfile.ErrAlreadyLocked) {
			return nil, fmt.Errorf("%w: another conversion is writing %s", brush.ErrWrite, filepath.Join(outputDir, stem))
		}
		return nil, fmt.Errorf("%w: lock: %v", brush.ErrWrite, err)
	}
	defer func() {
		if err := lock.Release(); err != nil {
			log.Warn("release lock failed", "lock", lock.Path(), "error", err)
		}
	}()

	src, err := sut.Open(ctx, sourcePath, log)
	if err != nil {
		return nil, err
	}

	target, diags, err := translateBrush(ctx, src, table, opts, log)
	if err != nil {
		return nil, err
	}

	path, err := write(fs, outputDir, target, opts.Overwrite)
	if err != nil {
		return nil, err
	}
	log.Info("brush converted", "source", sourcePath, "output", path, "tips", len(target.Tips), "diagnostics", len(diags))
	return &brush.Result{ProducedPaths: []string{path}, Diagnostics: diags}, nil
}

// translateBrush translates settings and normalizes tips concurrently. Tips that cannot be
// decoded are dropped with a diagnostic; results keep declaration order.
func translateBrush(ctx context.Context, src *brush.SourceBrush, table *mapping.Table, opts Options, log *slog.Logger) (brush.TargetBrush, []brush.Diagnostic, error) {
	tr := translate.New(table)
	settings, diags := tr.Brush(src.Settings)
	norm := tipasset.New(opts.Assets)

	results := make([]tipResult, len(src.Tips))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers(opts.Workers))
	for i, tip := range src.Tips {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			over, tipDiags := tr.Tip(src.Settings, tip.Overrides, tip.Index)
			tt, err := norm.Normalize(tip)
			tt.Overrides = over
			results[i] = tipResult{tip: tt, diags: tipDiags, err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return brush.TargetBrush{}, nil, err
	}

	target := brush.TargetBrush{Name: src.Name, Created: src.Modified, Settings: settings}
	for i, r := range results {
		diags = append(diags, r.diags...)
		if r.err != nil {
			log.Warn("tip dropped", "tip", src.Tips[i].Index, "error", r.err)
			diags = append(diags, brush.Diagnostic{
				Field:  fmt.Sprintf("tips[%d]", src.Tips[i].Index),
				Kind:   brush.Unsupported,
				Detail: "tip dropped: " + r.err.Error(),
			})
			continue
		}
		target.Tips = append(target.Tips, r.tip)
	}
	if len(target.Tips) == 0 {
		return brush.TargetBrush{}, nil, fmt.Errorf("%w: none of %d tips could be decoded", brush.ErrUnsupportedAssetFormat, len(src.Tips))
	}
	log.Debug("brush translated", "settings", len(settings), "tips", len(target.Tips), "diagnostics", len(diags))
	return target, diags, nil
}

// write emits a .brush for one tip and a .brushset otherwise. With overwrite the archive is
// written to a sibling temp file and renamed over the target, so a failed write leaves the
// previous output in place.
func write(fs afero.Fs, outputDir string, target brush.TargetBrush, overwrite bool) (string, error) {
	ext := procreate.BrushExtension
	if len(target.Tips) > 1 {
		ext = procreate.BrushSetExtension
	}
	path := filepath.Join(outputDir, target.Name+ext)

	if err := fs.MkdirAll(outputDir, 0o755); err != nil {
		return "", fmt.Errorf("%w: %v", brush.ErrWrite, err)
	}
	if !overwrite {
		return path, encode(fs, path, target)
	}

	// The target lock is held, so a leftover temp file belongs to an interrupted run.
	tmp := path + tempSuffix
	if err := fs.Remove(tmp); err != nil && !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("%w: %v", brush.ErrWrite, err)
	}
	if err := encode(fs, tmp, target); err != nil {
		return "", err
	}
	if err := fs.Rename(tmp, path); err != nil {
		_ = fs.Remove(tmp)
		return "", fmt.Errorf("%w: replace %s: %v", brush.ErrWrite, path, err)
	}
	return path, nil
}

const tempSuffix = ".tmp"

func encode(fs afero.Fs, path string, target brush.TargetBrush) error {
	if len(target.Tips) == 1 {
		return procreate.WriteBrush(fs, path, procreate.FromTarget(target, target.Tips[0], target.Name))
	}

	set := procreate.BrushSet{Name: target.Name, Created: target.Created}
	for n, tip := range target.Tips {
		data, err := procreate.BrushBytes(procreate.FromTarget(target, tip, fmt.Sprintf("%s %d", target.Name, n+1)))
		if err != nil {
			return fmt.Errorf("%w: tip %d: %v", brush.ErrWrite, tip.Index, err)
		}
		set.Members = append(set.Members, procreate.Member{
			ID:      procreate.MemberID(target.Name, tip.Index, tip.Shape),
			Archive: data,
		})
	}
	return procreate.WriteBrushSet(fs, path, set)
}

func workers(n int) int {
	if n > 0 {
		return n
	}
	if cores, err := cpu.Counts(false); err == nil && cores > 0 {
		return cores
	}
	return runtime.NumCPU()
}
