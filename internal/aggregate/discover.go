package aggregate

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/newhook/necropolis/internal/outcome"
)

// ArtifactKind is the shape of a discovered artifact.
type ArtifactKind string

// Artifact kinds.
const (
	KindZip    ArtifactKind = "zip"
	KindJSON   ArtifactKind = "json"
	KindNDJSON ArtifactKind = "ndjson"
)

// zipPattern matches the uploaded CI artifact bundles.
const zipPattern = "necromancer-*.zip"

// Artifact is one file that may contain outcome records.
type Artifact struct {
	Path string
	Kind ArtifactKind
}

// KindOf classifies a file name. ok is false for files that hold no records.
func KindOf(name string) (kind ArtifactKind, ok bool) {
	switch name {
	case outcome.JSONFileName:
		return KindJSON, true
	case outcome.NDJSONFileName:
		return KindNDJSON, true
	}
	if matched, _ := filepath.Match(zipPattern, name); matched {
		return KindZip, true
	}
	return "", false
}

// Discover walks root in lexical order and returns every artifact bundle and
// bare outcome file. An outcome.ndjson is skipped when an outcome.json sits
// next to it, since the parser writes the same record to both. A missing root
// yields no artifacts.
//
// Unreadable entries below root are skipped; their errors are joined into the
// returned error alongside the artifacts that were found.
func Discover(root string) ([]Artifact, error) {
	if _, err := os.Stat(root); errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}

	var artifacts []Artifact
	var skipped []error
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			skipped = append(skipped, err)
			return skipEntry(d)
		}
		if d.IsDir() {
			return nil
		}

		kind, ok := KindOf(d.Name())
		if !ok {
			return nil
		}
		if kind == KindNDJSON {
			sibling := filepath.Join(filepath.Dir(path), outcome.JSONFileName)
			if _, err := os.Stat(sibling); err == nil {
				return nil
			}
		}
		artifacts = append(artifacts, Artifact{Path: path, Kind: kind})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan artifacts: %w", err)
	}
	return artifacts, errors.Join(skipped...)
}

// skipEntry is the WalkDir result for an entry that could not be read.
func skipEntry(d fs.DirEntry) error {
	if d != nil && d.IsDir() {
		return filepath.SkipDir
	}
	return nil
}
