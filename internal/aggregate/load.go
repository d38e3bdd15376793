package aggregate

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/newhook/necropolis/internal/logging"
	"github.com/newhook/necropolis/internal/outcome"
)

// load reads every record from the artifacts. Unreadable or malformed
// records are reported and skipped.
func (a *Aggregator) load(ctx context.Context, artifacts []Artifact) ([]*outcome.Record, error) {
	var records []*outcome.Record
	for _, art := range artifacts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		switch art.Kind {
		case KindZip:
			records = append(records, a.loadZip(art.Path)...)
		case KindJSON:
			if rec := a.loadJSON(art.Path); rec != nil {
				records = append(records, rec)
			}
		case KindNDJSON:
			records = append(records, a.loadNDJSON(art.Path)...)
		}
	}
	return records, nil
}

func (a *Aggregator) loadJSON(path string) *outcome.Record {
	rec, err := outcome.LoadFile(path)
	if err != nil {
		a.warn(path, err)
		return nil
	}
	a.checkVersion(path, rec)
	return rec
}

func (a *Aggregator) loadNDJSON(path string) []*outcome.Record {
	var records []*outcome.Record
	err := outcome.ScanNDJSON(path, func(_ int, rec *outcome.Record, err error) {
		if err != nil {
			a.warn(path, err)
			return
		}
		a.checkVersion(path, rec)
		records = append(records, rec)
	})
	if err != nil {
		a.warn(path, err)
	}
	return records
}

// loadZip extracts the bundle into a scratch directory that is removed on
// every exit path, then loads each outcome.json inside it.
func (a *Aggregator) loadZip(path string) []*outcome.Record {
	scratch, err := os.MkdirTemp("", "necropolis-artifact-*")
	if err != nil {
		a.warn(path, err)
		return nil
	}
	defer os.RemoveAll(scratch)

	if err := extractZip(path, scratch); err != nil {
		a.warn(path, err)
		return nil
	}

	var records []*outcome.Record
	err = filepath.WalkDir(scratch, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == scratch {
				return err
			}
			a.warn(p, err)
			return skipEntry(d)
		}
		if d.IsDir() || d.Name() != outcome.JSONFileName {
			return nil
		}
		if rec := a.loadJSON(p); rec != nil {
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		a.warn(path, err)
	}
	logging.Debug("loaded artifact bundle", "path", path, "records", len(records))
	return records
}

func extractZip(src, dest string) error {
	r, err := zip.OpenReader(src)
	if err != nil {
		return fmt.Errorf("failed to open zip: %w", err)
	}
	defer r.Close()

	base := filepath.Clean(dest)
	root := base + string(os.PathSeparator)
	for _, f := range r.File {
		target := filepath.Join(dest, f.Name)
		if target != base && !strings.HasPrefix(target, root) {
			return fmt.Errorf("zip entry %q escapes extraction directory", f.Name)
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0755); err != nil {
				return err
			}
			continue
		}
		if err := extractFile(f, target); err != nil {
			return err
		}
	}
	return nil
}

func extractFile(f *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("failed to open zip entry %s: %w", f.Name, err)
	}
	defer rc.Close()

	out, err := os.Create(target)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return fmt.Errorf("failed to extract %s: %w", f.Name, err)
	}
	return out.Close()
}

func (a *Aggregator) checkVersion(path string, rec *outcome.Record) {
	if err := outcome.CheckVersion(rec); err != nil {
		fmt.Fprintf(a.out, "warning: %s: %v\n", path, err)
		logging.Warn("incompatible outcome version", "path", path, "error", err)
	}
}

func (a *Aggregator) warn(path string, err error) {
	fmt.Fprintf(a.out, "warning: skipping %s: %v\n", path, err)
	logging.Warn("skipped outcome record", "path", path, "error", err)
}
