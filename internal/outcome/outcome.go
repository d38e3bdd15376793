// Package outcome defines the outcome record written for every CI step and
// the tolerant loaders the aggregator uses to read them back.
package outcome

import (
	"bufio"
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Outcome values.
const (
	Success = "SUCCESS"
	Failure = "FAILURE"
)

// Version is the record format version stamped on every record.
const Version = "1.0.0"

// File names written by the parser and discovered by the aggregator.
const (
	JSONFileName   = "outcome.json"
	NDJSONFileName = "outcome.ndjson"
)

// ErrSchema is returned when a document is valid JSON but not an outcome record.
var ErrSchema = errors.New("outcome record does not match schema")

//go:embed outcome.schema.json
var schemaText string

const schemaURL = "https://necropolis.local/outcome.schema.json"

var recordSchema = mustCompileSchema()

// compatibleVersions is the range of necropolis_version values this build reads.
var compatibleVersions = mustConstraint("^1.0.0")

// Record is one immutable CI step result.
type Record struct {
	Name              string   `json:"name"`
	Outcome           string   `json:"outcome"`
	ErrorType         string   `json:"error_type"`
	Fingerprint       string   `json:"fingerprint"`
	Category          string   `json:"category"`
	Variant           string   `json:"variant"`
	ExitCode          int      `json:"exit_code"`
	DurationSeconds   float64  `json:"duration_seconds"`
	OS                string   `json:"os"`
	Arch              string   `json:"arch"`
	RunnerName        string   `json:"runner_name"`
	Job               string   `json:"job"`
	Step              string   `json:"step"`
	GitSHA            string   `json:"git_sha"`
	GitRef            string   `json:"git_ref"`
	Actor             string   `json:"actor"`
	Workflow          string   `json:"workflow"`
	RunID             string   `json:"run_id"`
	Timestamp         string   `json:"timestamp"`
	NecropolisVersion string   `json:"necropolis_version"`
	CollectionType    string   `json:"collection_type"`
	FailedChecks      []string `json:"failed_checks,omitempty"`
}

// IsFailure reports whether the step failed.
func (r *Record) IsFailure() bool {
	return r.Outcome == Failure
}

func mustCompileSchema() *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(schemaURL, strings.NewReader(schemaText)); err != nil {
		panic(fmt.Sprintf("outcome schema load failed: %v", err))
	}
	return c.MustCompile(schemaURL)
}

func mustConstraint(s string) *semver.Constraints {
	c, err := semver.NewConstraint(s)
	if err != nil {
		panic(err)
	}
	return c
}

// Decode validates data against the record schema and decodes it.
func Decode(data []byte) (*Record, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if err := recordSchema.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchema, err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	return &rec, nil
}

// LoadFile reads a single outcome.json document.
func LoadFile(path string) (*Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	rec, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rec, nil
}

// ScanNDJSON calls fn once per non-blank line of an NDJSON file with either a
// decoded record or the error for that line. Only I/O errors are returned.
func ScanNDJSON(path string, fn func(line int, rec *Record, err error)) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	n := 0
	for scanner.Scan() {
		n++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		rec, err := Decode(line)
		if err != nil {
			fn(n, nil, fmt.Errorf("%s:%d: %w", path, n, err))
			continue
		}
		fn(n, rec, nil)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	return nil
}

// CheckVersion reports whether the record was produced by a compatible
// format version. Records without a version are accepted.
func CheckVersion(rec *Record) error {
	if rec.NecropolisVersion == "" {
		return nil
	}
	v, err := semver.NewVersion(rec.NecropolisVersion)
	if err != nil {
		return fmt.Errorf("unparseable necropolis_version %q: %w", rec.NecropolisVersion, err)
	}
	if !compatibleVersions.Check(v) {
		return fmt.Errorf("necropolis_version %s is outside %s", v, compatibleVersions)
	}
	return nil
}

// WriteFile writes rec as indented JSON to path.
func WriteFile(path string, rec *Record) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode outcome: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// WriteFiles writes rec into dir twice: pretty-printed as outcome.json and as
// a single newline-terminated line in outcome.ndjson. dir is created if needed.
func WriteFiles(dir string, rec *Record) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := WriteFile(filepath.Join(dir, JSONFileName), rec); err != nil {
		return err
	}

	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode outcome: %w", err)
	}
	line = append(line, '\n')
	if err := os.WriteFile(filepath.Join(dir, NDJSONFileName), line, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", NDJSONFileName, err)
	}
	return nil
}
