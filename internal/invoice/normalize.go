package invoice

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ErrMalformed marks model output that, after fence stripping, still does not
// parse or validate as a Record. Callers branch on it with errors.Is.
var ErrMalformed = errors.New("malformed extraction output")

// StripFences removes fenced code-block wrapping (``` or ```json) that models
// frequently add around structured output. Content without fences passes
// through unchanged; the operation is idempotent.
func StripFences(raw string) string {
	cleaned := strings.TrimSpace(raw)
	if !strings.HasPrefix(cleaned, "```") {
		return cleaned
	}
	cleaned = strings.TrimPrefix(cleaned, "```")
	// Drop a language tag such as "json" on the opening fence line.
	if idx := strings.IndexByte(cleaned, '\n'); idx >= 0 {
		first := strings.TrimSpace(cleaned[:idx])
		if first == "" || !strings.ContainsAny(first, "{[") {
			cleaned = cleaned[idx+1:]
		}
	}
	cleaned = strings.TrimSpace(cleaned)
	cleaned = strings.TrimSuffix(cleaned, "```")
	return strings.TrimSpace(cleaned)
}

// ParseRecord parses the textual response of a generative extraction call
// into a Record, validating it against the record schema first. It never
// returns a partial best-effort value: any parse or validation failure is an
// ErrMalformed-wrapped error. Pure transformation, no side effects.
func ParseRecord(raw string) (*Record, error) {
	cleaned := StripFences(raw)
	if cleaned == "" {
		return nil, fmt.Errorf("%w: empty output", ErrMalformed)
	}

	if err := ValidateAgainstRecordSchema([]byte(cleaned)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	var rec Record
	if err := json.Unmarshal([]byte(cleaned), &rec); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrMalformed, err)
	}
	return &rec, nil
}

// ValidateAgainstRecordSchema validates data against the record JSON Schema.
func ValidateAgainstRecordSchema(data []byte) error {
	schema, err := compiledRecordSchema()
	if err != nil {
		return err
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}

// ValidateRecord re-validates an in-memory record through the same schema,
// used by reconciliation on its merged output.
func ValidateRecord(rec *Record) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	return ValidateAgainstRecordSchema(b)
}

var (
	schemaOnce    sync.Once
	cachedSchema  *jsonschema.Schema
	cachedCompile error
)

// compiledRecordSchema compiles the record schema once per process; the
// compiled schema is immutable and safe for concurrent use.
func compiledRecordSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		b, err := json.Marshal(BuildRecordJSONSchema())
		if err != nil {
			cachedCompile = fmt.Errorf("marshal schema: %w", err)
			return
		}
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("schema.json", bytes.NewReader(b)); err != nil {
			cachedCompile = fmt.Errorf("add schema: %w", err)
			return
		}
		schema, err := compiler.Compile("schema.json")
		if err != nil {
			cachedCompile = fmt.Errorf("compile schema: %w", err)
			return
		}
		cachedSchema = schema
	})
	return cachedSchema, cachedCompile
}
