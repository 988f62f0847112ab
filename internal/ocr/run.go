package ocr

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"dococr/internal/logger"
)

// Run processes items one at a time in input order. With continueOnFail a
// failed item yields an error record and the run continues; otherwise the
// first failure is returned along with the results emitted so far.
func (p *Processor) Run(ctx context.Context, items []Item, continueOnFail bool) ([]Result, error) {
	runID := uuid.NewString()
	log := logger.WithRequestID(runID).With().Str("component", "ocr").Logger()

	log.Info().
		Int("items", len(items)).
		Bool("continue_on_fail", continueOnFail).
		Msg("Starting OCR run")

	results := make([]Result, 0, len(items))
	failed := 0

	for i, item := range items {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		start := time.Now()
		if p.recorder != nil {
			p.recorder.StartItem()
		}

		out, err := p.ProcessItem(ctx, i, item)

		if p.recorder != nil {
			operation := string(item.Operation)
			if operation == "" {
				operation = string(OperationBasic)
			}
			p.recorder.FinishItem(operation, time.Since(start), err)
		}

		if err != nil {
			failed++
			if !continueOnFail {
				log.Error().Err(err).Int("item", i).Msg("Item failed, stopping run")
				return results, fmt.Errorf("item %d: %w", i, err)
			}
			log.Warn().Err(err).Int("item", i).Msg("Item failed, continuing")
			results = append(results, ErrorResult(i, err))
			continue
		}

		results = append(results, Result{Index: i, JSON: out})
	}

	log.Info().
		Int("items", len(items)).
		Int("failed", failed).
		Msg("OCR run finished")

	return results, nil
}

// ErrorResult builds the error record emitted for a failed item, tagged
// with the item's position in the run.
func ErrorResult(index int, err error) Result {
	return Result{
		Index: index,
		JSON:  map[string]any{"error": err.Error(), "item": index},
		Err:   err,
	}
}
