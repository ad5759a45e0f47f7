package extract

import (
	"encoding/json"
	"strings"

	"github.com/partsdesk/invoice-pipeline/internal/invoice"
)

// BuildLayoutPrompt composes the pass-A instruction: extract from the layout
// engine's JSON (tables + key-values + text) into the record schema, with
// categories restricted to the closed taxonomy.
func BuildLayoutPrompt(categories []string) string {
	parts := []string{
		"You are an expert at auto parts invoice extraction.",
		"Input is document layout-analysis JSON (tables + key-values + text).",
		"Return ONLY JSON that matches this JSON Schema:",
		schemaJSON(),
		"Rules: normalize numbers, dates, currency; leave missing fields null; avoid hallucinating; include only content supported by the input.",
		categoryLine(categories),
	}
	return strings.Join(parts, "\n")
}

// BuildDocumentPrompt composes the pass-B instruction: extract the same
// schema from the raw PDF, conservatively.
func BuildDocumentPrompt(categories []string) string {
	parts := []string{
		"You are an expert at auto parts invoice extraction. Input is the raw PDF.",
		"Return ONLY JSON that matches this JSON Schema:",
		schemaJSON(),
		"Be conservative: if uncertain, return null and note the uncertainty in the top-level \"warnings\" array.",
		categoryLine(categories),
	}
	return strings.Join(parts, "\n")
}

func categoryLine(categories []string) string {
	return "Pick zero or more categories per line item from this list (no free-form): " +
		strings.Join(categories, ", ")
}

func schemaJSON() string {
	b, _ := json.MarshalIndent(invoice.BuildRecordJSONSchema(), "", "  ")
	return string(b)
}
