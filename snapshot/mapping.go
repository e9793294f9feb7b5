// Package snapshot resolves VM-internal function and class ids to and from
// the symbolic offsets recorded in a compiled snapshot's info file, and
// watches that file for replacement.
package snapshot

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// infoFileSchema constrains the shape of a <snapshot>.info.json file,
// mirroring the teacher's schema-validated argument/output pattern
// (gojsonschema.Validate against an embedded JSON Schema) applied here to a
// snapshot metadata document instead of a capability argument.
const infoFileSchema = `{
  "type": "object",
  "required": ["snapshot_hash", "function_offsets", "class_offsets"],
  "properties": {
    "snapshot_hash": {"type": "integer"},
    "function_offsets": {"type": "object"},
    "class_offsets": {"type": "object"}
  }
}`

// NameOffsetMapping is the raw content of a snapshot's info file: symbolic
// names mapped to their offset within the snapshot, plus the hash the
// snapshot was built from.
type NameOffsetMapping struct {
	SnapshotHash    uint64            `json:"snapshot_hash"`
	FunctionOffsets map[string]int    `json:"function_offsets"`
	ClassOffsets    map[string]int    `json:"class_offsets"`
}

// InfoPathFor derives the info file path adjacent to a snapshot location. An
// empty snapshotLocation means "alongside the script", represented by
// defaultScript.
func InfoPathFor(snapshotLocation, defaultScript string) string {
	loc := snapshotLocation
	if loc == "" {
		loc = defaultScript
	}
	return loc + ".info.json"
}

// LoadNameOffsetMapping reads and validates a snapshot info file.
func LoadNameOffsetMapping(path string) (*NameOffsetMapping, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &InfoFileNotFoundError{Path: absPath(path)}
		}
		return nil, fmt.Errorf("read info file %s: %w", path, err)
	}

	schemaLoader := gojsonschema.NewStringLoader(infoFileSchema)
	documentLoader := gojsonschema.NewBytesLoader(raw)
	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return nil, &MalformedInfoFileError{Path: path, Reason: err.Error()}
	}
	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			details = append(details, e.String())
		}
		return nil, &MalformedInfoFileError{Path: path, Reason: strings.Join(details, "; ")}
	}

	var mapping NameOffsetMapping
	if err := json.Unmarshal(raw, &mapping); err != nil {
		return nil, &MalformedInfoFileError{Path: path, Reason: err.Error()}
	}
	return &mapping, nil
}

// InfoFileNotFoundError is returned when a snapshot's info file is missing.
type InfoFileNotFoundError struct {
	Path string
}

func (e *InfoFileNotFoundError) Error() string {
	return fmt.Sprintf("info file not found: %s", e.Path)
}

// MalformedInfoFileError is returned when a snapshot's info file fails schema
// validation or cannot be decoded.
type MalformedInfoFileError struct {
	Path   string
	Reason string
}

func (e *MalformedInfoFileError) Error() string {
	return fmt.Sprintf("malformed info file %s: %s", e.Path, e.Reason)
}

// absPath normalizes a path for comparison/logging purposes only.
func absPath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return abs
}
