// Package trace decodes recorded monitoring-session event traces and
// replays them through a watchdog session.
//
// A trace is newline-delimited JSON: one record per line, each validated
// against an embedded JSON Schema before replay. Traces are produced by the
// browser-side event glue; this package gives the CLI and tests an
// offline, DOM-free way to drive the engine.
package trace

import (
	"bufio"
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schema.json
var schemaJSON string

// Record is one trace line.
type Record struct {
	// Type is one of "session", "field", "copy", "visibility", "paste",
	// "input".
	Type string `json:"type"`

	// At is the event timestamp.
	At time.Time `json:"at"`

	// User identifies the monitored user (session records).
	User string `json:"user,omitempty"`

	// Field identifies the monitored field (field/paste/input records).
	Field string `json:"field,omitempty"`

	// Kind is the field capability classification (field records).
	Kind string `json:"kind,omitempty"`

	// Text is the copied or pasted plain text (copy/paste records).
	Text string `json:"text,omitempty"`

	// Content is the field's full content after the event (paste/input
	// records).
	Content string `json:"content,omitempty"`

	// Hidden reports whether the tab became hidden (visibility records).
	// No omitempty: the schema requires the key on visibility records, and
	// a show transition carries hidden=false.
	Hidden bool `json:"hidden"`
}

var recordSchema = jsonschema.MustCompileString("trace-record-v1.schema.json", schemaJSON)

// ValidateLine checks one raw trace line against the record schema.
func ValidateLine(line []byte) error {
	var instance any
	if err := json.Unmarshal(line, &instance); err != nil {
		return fmt.Errorf("parse record: %w", err)
	}
	if err := recordSchema.Validate(instance); err != nil {
		return fmt.Errorf("invalid record: %w", err)
	}
	return nil
}

// ParseLine validates and decodes one raw trace line.
func ParseLine(line []byte) (Record, error) {
	if err := ValidateLine(line); err != nil {
		return Record{}, err
	}
	var rec Record
	if err := json.Unmarshal(line, &rec); err != nil {
		return Record{}, fmt.Errorf("decode record: %w", err)
	}
	return rec, nil
}

// ReadAll reads every record from an NDJSON stream. Blank lines are
// skipped; the first invalid line aborts with its line number.
func ReadAll(r io.Reader) ([]Record, error) {
	var records []Record

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		rec, err := ParseLine(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read trace: %w", err)
	}

	return records, nil
}
