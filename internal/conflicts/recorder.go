package conflicts

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ashita-ai/kioku/internal/model"
)

// recordConcurrency bounds how many conflict pairs are written at once.
const recordConcurrency = 4

// Recorder writes the symmetric conflict_detected event pair for each
// conflict.
type Recorder struct {
	logger *slog.Logger
}

// NewRecorder creates a Recorder.
func NewRecorder(logger *slog.Logger) *Recorder {
	return &Recorder{logger: logger}
}

// Record appends one event on each side of every conflict and returns the
// number of successful writes. Failed writes are logged and skipped; both
// writes of a pair are always attempted, in order.
func (r *Recorder) Record(ctx context.Context, appender EventAppender, trigger string, conflicts []model.ConflictResult) int {
	var recorded atomic.Int64
	var g errgroup.Group
	g.SetLimit(recordConcurrency)

	for _, c := range conflicts {
		g.Go(func() error {
			if r.append(ctx, appender, c.ItemID1, c.ItemID2, c.Description, trigger) {
				recorded.Add(1)
			}
			if r.append(ctx, appender, c.ItemID2, c.ItemID1, c.Description, trigger) {
				recorded.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()
	return int(recorded.Load())
}

func (r *Recorder) append(ctx context.Context, appender EventAppender, itemID, otherID uuid.UUID, reason, trigger string) (ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Warn("conflicts: event append panicked", "item_id", itemID, "panic", rec)
			ok = false
		}
	}()
	data := model.ConflictDetectedData{OtherID: otherID, Reason: reason, Trigger: trigger}.Map()
	if err := appender.AppendEvent(ctx, itemID, model.EventConflictDetected, data); err != nil {
		r.logger.Warn("conflicts: failed to record conflict event",
			"item_id", itemID, "other_id", otherID, "trigger", trigger, "error", err)
		return false
	}
	return true
}
