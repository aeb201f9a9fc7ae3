package llm

// BuildCaseJSONSchema returns a JSON-Schema (draft 2020-12 subset) as a generic map.
// We pass this to the extraction service as a structured output constraint and
// also use it locally to validate the generate response.
func BuildCaseJSONSchema() map[string]any {
	timelineItem := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"event_id":    map[string]any{"type": "integer", "minimum": 0},
			"name":        map[string]any{"type": "string", "minLength": 1},
			"description": map[string]any{"type": "string", "minLength": 1},
			"date":        map[string]any{"type": "string", "pattern": `^\d{4}-\d{2}-\d{2}$`},
			"page_start":  pageProp(),
			"page_end":    pageProp(),
		},
		"required": []string{"event_id", "name", "description", "date", "page_start", "page_end"},
	}

	evidenceItem := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"evidence_id": map[string]any{"type": "integer", "minimum": 0},
			"name":        map[string]any{"type": "string", "minLength": 1},
			"flaw":        map[string]any{"type": "string"},
			"page_start":  pageProp(),
			"page_end":    pageProp(),
		},
		"required": []string{"evidence_id", "name", "page_start", "page_end"},
	}

	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"summary":  map[string]any{"type": "string", "minLength": 1},
			"timeline": map[string]any{"type": "array", "items": timelineItem},
			"evidence": map[string]any{"type": "array", "items": evidenceItem},
		},
		"required": []string{"summary", "timeline", "evidence"},
	}
}

func pageProp() map[string]any {
	return map[string]any{"type": "integer", "minimum": 1}
}
