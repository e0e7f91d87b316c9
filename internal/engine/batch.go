package engine

import (
	"context"
	"sync"
	"time"

	"github.com/Veraticus/billflow/internal/model"
	"golang.org/x/sync/errgroup"
)

// ActionSkipped labels messages a canceled batch never started.
const ActionSkipped model.Action = "skipped"

// BatchSummary is the result of a batch run.
type BatchSummary struct {
	Counts   map[model.Action]int
	Outcomes []Outcome
	Duration time.Duration
	Failed   int
	Skipped  int
}

// ProgressFunc is called once per message as it finishes. Calls are serialized.
type ProgressFunc func(Outcome)

// RunBatch processes msgs with at most Config.Workers in flight.
//
// A failing message never stops the others. When ctx is canceled, messages
// that have not started are reported as skipped; messages already started
// run to completion so every processed message stays consistent.
func (e *Engine) RunBatch(ctx context.Context, msgs []model.Message, progress ProgressFunc) *BatchSummary {
	start := time.Now()
	outcomes := make([]Outcome, len(msgs))

	var mu sync.Mutex
	report := func(i int, out Outcome) {
		outcomes[i] = out
		if progress == nil {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		progress(out)
	}

	g := new(errgroup.Group)
	g.SetLimit(e.config.Workers)

	for i, msg := range msgs {
		if err := ctx.Err(); err != nil {
			report(i, skipped(msg.ID, err))
			continue
		}

		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				report(i, skipped(msg.ID, err))
				return nil
			}
			out, err := e.Process(context.WithoutCancel(ctx), msg)
			if err != nil {
				e.logger.Error("message failed",
					"message_id", msg.ID,
					"error", err)
			}
			report(i, out)
			return nil
		})
	}
	_ = g.Wait()

	summary := &BatchSummary{
		Outcomes: outcomes,
		Counts:   make(map[model.Action]int),
		Duration: time.Since(start),
	}
	for _, out := range outcomes {
		switch {
		case out.Skipped:
			summary.Skipped++
			summary.Counts[ActionSkipped]++
		case out.Err != nil:
			summary.Failed++
		default:
			summary.Counts[out.Action]++
		}
	}

	e.logger.Info("batch complete",
		"messages", len(msgs),
		"failed", summary.Failed,
		"skipped", summary.Skipped,
		"duration", summary.Duration)

	return summary
}

func skipped(id string, err error) Outcome {
	return Outcome{MessageID: id, Action: ActionSkipped, Skipped: true, Err: err}
}
