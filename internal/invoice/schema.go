package invoice

// BuildRecordJSONSchema returns a JSON-Schema (draft 2020-12 subset) for the
// Record shape as a generic map. It is both sent to the model as the output
// contract and used locally to validate model output at the normalizer
// boundary. Category labels are deliberately NOT enum-constrained here:
// out-of-taxonomy labels are dropped during reconciliation, never errored.
func BuildRecordJSONSchema() map[string]any {
	header := map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"vendor_name":      nullableString(),
			"invoice_number":   nullableString(),
			"invoice_date":     nullableString(),
			"po_number":        nullableString(),
			"customer_account": nullableString(),
			"store_branch":     nullableString(),
			"salesperson":      nullableString(),
			"payment_terms":    nullableString(),
			"currency":         nullableString(),
		},
	}

	totals := map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"subtotal":     nullableNumber(),
			"tax":          nullableNumber(),
			"tax_rate":     nullableNumber(),
			"shipping":     nullableNumber(),
			"core_charges": nullableNumber(),
			"discounts":    nullableNumber(),
			"fees":         nullableNumber(),
			"grand_total":  nullableNumber(),
			"amount_paid":  nullableNumber(),
			"balance_due":  nullableNumber(),
		},
	}

	lineItem := map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"line_number":   map[string]any{"type": []string{"integer", "null"}},
			"part_number":   nullableString(),
			"description":   nullableString(),
			"brand":         nullableString(),
			"quantity":      nullableNumber(),
			"unit_price":    nullableNumber(),
			"line_discount": nullableNumber(),
			"core_charge":   nullableNumber(),
			"line_total":    nullableNumber(),
			"taxability":    nullableString(),
			"tax_rate":      nullableNumber(),
			"uom":           nullableString(),
			"categories": map[string]any{
				"type":  []string{"array", "null"},
				"items": map[string]any{"type": "string"},
			},
			"is_core": map[string]any{"type": []string{"boolean", "null"}},
			"embedding": map[string]any{
				"type":  []string{"array", "null"},
				"items": map[string]any{"type": "number"},
			},
		},
	}

	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"header": header,
			"totals": totals,
			"line_items": map[string]any{
				"type":  "array",
				"items": lineItem,
			},
			"warnings": map[string]any{
				"type":  []string{"array", "null"},
				"items": map[string]any{"type": "string"},
			},
		},
		"required": []string{"header", "totals", "line_items"},
	}
}

func nullableString() map[string]any {
	return map[string]any{"type": []string{"string", "null"}}
}

func nullableNumber() map[string]any {
	return map[string]any{"type": []string{"number", "null"}}
}
