// Package core coordinates the idempotent extraction pipeline:
// check-existing, acquire, extract, normalize, persist, cleanup.
package core

import (
	"context"
	"log/slog"
	"os"
	"time"

	"casetrace/internal/common"
	"casetrace/internal/entity"
	"casetrace/internal/fetch"
	"casetrace/internal/llm"
	"casetrace/internal/normalize"
	"casetrace/internal/repository"
)

// Processor runs one case through the pipeline. It performs no retries of its
// own; retry lives inside the extraction client.
type Processor struct {
	logger      *slog.Logger
	fetcher     fetch.Fetcher
	extractor   llm.StructuredExtractor
	repo        repository.CaseRepository
	instruction string
	schema      map[string]any
}

func NewProcessor(
	logger *slog.Logger,
	fetcher fetch.Fetcher,
	extractor llm.StructuredExtractor,
	repo repository.CaseRepository,
) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		logger:      logger,
		fetcher:     fetcher,
		extractor:   extractor,
		repo:        repo,
		instruction: llm.BuildInstruction(),
		schema:      llm.BuildCaseJSONSchema(),
	}
}

// Process extracts and persists the case at most once. A case already in the
// store short-circuits into a pure read; repeated requests return the first
// result unchanged. Extraction work may be duplicated under a concurrent race
// for the same case id, but only one write ever lands.
func (p *Processor) Process(ctx context.Context, caseID string, source fetch.Source) (*entity.ExtractionRecord, error) {
	caseID, err := common.ValidateCaseID(caseID)
	if err != nil {
		return nil, err
	}

	p.logger.Info("pipeline.start", "case_id", caseID)

	existing, err := p.repo.GetByCaseID(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		p.logger.Info("pipeline.hit", "case_id", caseID, "persisted_at", existing.PersistedAt)
		return existing, nil
	}

	docPath, err := p.fetcher.Fetch(ctx, source)
	if err != nil {
		p.logger.Error("pipeline.acquire.failed", "case_id", caseID, "error", err)
		return nil, err
	}
	// Scratch cleanup is unconditional: every exit path below runs it, and a
	// failed delete is logged, never escalated.
	defer p.cleanup(caseID, docPath)

	raw, err := p.extractor.Extract(ctx, docPath, p.instruction, p.schema)
	if err != nil {
		p.logger.Error("pipeline.extract.failed", "case_id", caseID, "error", err)
		return nil, common.NewExtractionError("structured extraction failed", err)
	}

	extraction, err := normalize.Normalize(raw)
	if err != nil {
		p.logger.Error("pipeline.normalize.failed", "case_id", caseID, "error", err)
		return nil, err
	}

	rec := &entity.ExtractionRecord{
		CaseID:      caseID,
		Summary:     extraction.Summary,
		Timeline:    extraction.Timeline,
		Evidence:    extraction.Evidence,
		PersistedAt: time.Now().UTC(),
	}

	outcome, err := p.repo.Put(ctx, rec)
	if err != nil {
		p.logger.Error("pipeline.persist.failed", "case_id", caseID, "error", err)
		return nil, err
	}
	if outcome == repository.AlreadyExists {
		// Lost a write race: the first write wins, so hand back the stored
		// record instead of this run's result.
		p.logger.Info("pipeline.persist.lost_race", "case_id", caseID)
		stored, err := p.repo.GetByCaseID(ctx, caseID)
		if err != nil {
			return nil, err
		}
		if stored != nil {
			return stored, nil
		}
	}

	p.logger.Info("pipeline.ok",
		"case_id", caseID,
		"timeline_events", len(rec.Timeline),
		"evidence_items", len(rec.Evidence),
	)
	return rec, nil
}

func (p *Processor) cleanup(caseID, path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		p.logger.Warn("pipeline.cleanup.failed", "case_id", caseID, "path", path, "error", err)
		return
	}
	p.logger.Debug("pipeline.cleanup.ok", "case_id", caseID, "path", path)
}
