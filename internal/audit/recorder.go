package audit

import (
	"context"
	"log/slog"
	"time"

	"smartattend/internal/logging"
	"smartattend/internal/queue"
)

// MessageType tags audit entries on the queue.
const MessageType = "audit.entry"

const publishTimeout = 2 * time.Second

// Recorder accepts audit entries without failing the caller's operation.
type Recorder interface {
	Record(ctx context.Context, e Entry)
}

// Record logs e synchronously; failures are only logged.
func (s *Service) Record(ctx context.Context, e Entry) {
	if _, err := s.Log(ctx, e); err != nil {
		logging.FromContext(ctx, s.logger).Warn("audit write failed", "action", string(e.Action), "error", err)
	}
}

// QueueRecorder publishes entries for a worker to persist.
type QueueRecorder struct {
	q      queue.Queue
	now    func() time.Time
	logger *slog.Logger
}

// NewQueueRecorder creates a QueueRecorder. A nil now uses time.Now.
func NewQueueRecorder(q queue.Queue, now func() time.Time, logger *slog.Logger) *QueueRecorder {
	if now == nil {
		now = time.Now
	}
	return &QueueRecorder{q: q, now: now, logger: logger}
}

// Record stamps e and publishes it. The publish outlives request
// cancellation but is bounded by a short timeout.
func (r *QueueRecorder) Record(ctx context.Context, e Entry) {
	if e.At.IsZero() {
		e.At = r.now().UTC()
	}
	logger := logging.FromContext(ctx, r.logger)
	msg, err := queue.NewMessage(MessageType, e)
	if err != nil {
		logger.Warn("audit encode failed", "action", string(e.Action), "error", err)
		return
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := r.q.Publish(pctx, msg); err != nil {
		logger.Warn("audit publish failed", "action", string(e.Action), "error", err)
	}
}

// Drain persists audit messages from msgs until the channel closes and
// returns how many entries were written. Other message types are skipped.
func Drain(ctx context.Context, msgs <-chan queue.Message, svc *Service) int {
	logger := logging.FromContext(ctx, svc.logger)
	written := 0
	for msg := range msgs {
		if msg.Type != MessageType {
			logger.Debug("skipping message", "type", msg.Type)
			continue
		}
		var e Entry
		if err := msg.Decode(&e); err != nil {
			logger.Warn("dropping audit message", "error", err)
			continue
		}
		if _, err := svc.Log(ctx, e); err != nil {
			logger.Error("audit write failed", "action", string(e.Action), "error", err)
			continue
		}
		written++
	}
	return written
}
