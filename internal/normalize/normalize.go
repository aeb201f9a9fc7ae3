// Package normalize coerces the extraction service's raw JSON into the
// canonical record shape and re-validates every invariant. The service is
// instructed to repair page ranges itself; this layer does not repair, it
// fails closed.
package normalize

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"casetrace/internal/common"
	"casetrace/internal/entity"
)

// Dates are checked syntactically only: 2024-13-40 passes. Calendar validity
// is a documented looseness of the extraction contract, not enforced here.
var dateRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// Normalize decodes and validates raw. Entries keep their received order; no
// re-sorting and no de-duplication by id. The first violated field aborts.
func Normalize(raw json.RawMessage) (*entity.CaseExtraction, error) {
	var out entity.CaseExtraction
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, common.NewValidationError("extraction payload is not decodable", err)
	}

	if strings.TrimSpace(out.Summary) == "" {
		return nil, violation("summary", "must not be empty")
	}

	for i, ev := range out.Timeline {
		field := fmt.Sprintf("timeline[%d]", i)
		if ev.EventID < 0 {
			return nil, violation(field+".event_id", "must be non-negative")
		}
		if strings.TrimSpace(ev.Name) == "" {
			return nil, violation(field+".name", "must not be empty")
		}
		if strings.TrimSpace(ev.Description) == "" {
			return nil, violation(field+".description", "must not be empty")
		}
		if !dateRe.MatchString(ev.Date) {
			return nil, violation(field+".date", "must match YYYY-MM-DD")
		}
		if err := checkPages(field, ev.PageStart, ev.PageEnd); err != nil {
			return nil, err
		}
	}

	for i, item := range out.Evidence {
		field := fmt.Sprintf("evidence[%d]", i)
		if item.EvidenceID < 0 {
			return nil, violation(field+".evidence_id", "must be non-negative")
		}
		if strings.TrimSpace(item.Name) == "" {
			return nil, violation(field+".name", "must not be empty")
		}
		if err := checkPages(field, item.PageStart, item.PageEnd); err != nil {
			return nil, err
		}
	}

	return &out, nil
}

func checkPages(field string, start, end int) error {
	if start < 1 {
		return violation(field+".page_start", "must be >= 1")
	}
	if end < 1 {
		return violation(field+".page_end", "must be >= 1")
	}
	if end < start {
		return violation(field+".page_end", "must be >= page_start")
	}
	return nil
}

func violation(field, msg string) error {
	return common.NewValidationError(fmt.Sprintf("field %s %s", field, msg), nil)
}
