// Package layout wraps the document layout/OCR collaborator behind a narrow
// capability interface so the extraction and reconciliation stages stay
// provider-agnostic.
package layout

import (
	"context"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

// Provider analyzes raw document bytes into a generic layout payload.
// Exactly one attempt per request; failures propagate to the caller.
type Provider interface {
	Analyze(ctx context.Context, document []byte) (*Payload, error)
}

// Payload is the generic structured representation returned by the layout
// engine: recognized text, tables, and key-value pairs plus counts and the
// model identifier.
type Payload struct {
	ModelID       string            `json:"modelId"`
	Content       string            `json:"content"`
	Pages         []Page            `json:"pages"`
	Tables        []Table           `json:"tables"`
	KeyValuePairs []KeyValuePair    `json:"keyValuePairs"`
	Documents     []json.RawMessage `json:"documents"`
}

type Page struct {
	PageNumber int    `json:"pageNumber"`
	Lines      []Line `json:"lines"`
}

type Line struct {
	Content string `json:"content"`
}

type Table struct {
	RowCount    int         `json:"rowCount"`
	ColumnCount int         `json:"columnCount"`
	Cells       []TableCell `json:"cells"`
}

type TableCell struct {
	RowIndex    int    `json:"rowIndex"`
	ColumnIndex int    `json:"columnIndex"`
	Content     string `json:"content"`
}

type KeyValuePair struct {
	Key   Chunk `json:"key"`
	Value Chunk `json:"value"`
}

type Chunk struct {
	Content string `json:"content"`
}

// Summary is the compact description of an analysis result surfaced in the
// pipeline response.
type Summary struct {
	Documents int    `json:"documents"`
	Pages     int    `json:"pages"`
	ModelID   string `json:"model_id"`
}

// Summarize reduces a payload to document/page counts and the model id.
func Summarize(p *Payload) Summary {
	if p == nil {
		return Summary{}
	}
	return Summary{
		Documents: len(p.Documents),
		Pages:     len(p.Pages),
		ModelID:   p.ModelID,
	}
}

var amountPattern = regexp.MustCompile(`-?\$?\s*\d[\d,]*(?:\.\d+)?`)

// NumericAnchors extracts the numeric key-value pairs recognized by the
// layout engine, keyed by lowercased label. Reconciliation uses them as the
// external anchor when the two extraction passes disagree on an amount.
func (p *Payload) NumericAnchors() map[string]float64 {
	anchors := make(map[string]float64)
	if p == nil {
		return anchors
	}
	for _, kv := range p.KeyValuePairs {
		key := strings.ToLower(strings.TrimSpace(kv.Key.Content))
		if key == "" {
			continue
		}
		if v, ok := ParseAmount(kv.Value.Content); ok {
			anchors[key] = v
		}
	}
	return anchors
}

// ParseAmount parses a currency-ish string ("$1,234.56", "1 234.50-") into a
// float. Returns false when no numeric content is present. Digits glued to an
// identifier ("INV-100", "PO12345") are not amounts and are skipped.
func ParseAmount(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	var match string
	for _, loc := range amountPattern.FindAllStringIndex(s, -1) {
		if loc[0] > 0 && isAlnum(s[loc[0]-1]) {
			continue
		}
		match = s[loc[0]:loc[1]]
		break
	}
	if match == "" {
		return 0, false
	}
	negative := strings.HasPrefix(match, "-") || strings.HasSuffix(s, "-") ||
		(strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")"))
	cleaned := strings.NewReplacer("$", "", ",", "", " ", "", "-", "").Replace(match)
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	if negative {
		v = -v
	}
	return v, true
}

func isAlnum(c byte) bool {
	return c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}
