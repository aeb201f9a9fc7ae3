package llm

import (
	"context"
	"encoding/json"
)

// StructuredExtractor is the interface the orchestrator depends on. The
// backend is intentionally abstract: anything that can take an uploaded
// document plus an instruction/schema pair and return structured JSON
// satisfies it.
type StructuredExtractor interface {
	Extract(ctx context.Context, documentPath, instruction string, schema map[string]any) (json.RawMessage, error)
}
