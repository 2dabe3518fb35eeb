package service

import (
	"context"
	"encoding/json"

	"github.com/richardliu001/ledger-service/internal/model"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// RecomputeWorker turns ledger events into materializer passes.
type RecomputeWorker struct {
	mat *Materializer
	log *zap.SugaredLogger
}

func NewRecomputeWorker(mat *Materializer, logger *zap.SugaredLogger) *RecomputeWorker {
	return &RecomputeWorker{mat: mat, log: logger}
}

// Handle recomputes the apartment named by msg. Malformed payloads and
// events without an apartment are skipped. BalancesAdjusted comes from the
// incremental protocol, which a recompute would overwrite, so it is skipped
// too. A returned error means the offset must not be committed.
func (w *RecomputeWorker) Handle(ctx context.Context, msg kafka.Message) error {
	var evt model.LedgerEvent
	if err := json.Unmarshal(msg.Value, &evt); err != nil {
		w.log.Warnw("skip malformed event", "offset", msg.Offset, "err", err)
		return nil
	}
	if evt.ApartmentID == "" {
		w.log.Warnw("skip event without apartment", "offset", msg.Offset, "event", evt.Event)
		return nil
	}
	switch evt.Event {
	case model.EventDebtCreated, model.EventDebtClosed:
	default:
		w.log.Debugw("ignore event", "event", evt.Event, "apartment_id", evt.ApartmentID)
		return nil
	}
	_, err := w.mat.Recompute(ctx, evt.ApartmentID, "event")
	return err
}

// Run fetches messages until ctx is done, committing each offset after it
// was handled.
func (w *RecomputeWorker) Run(ctx context.Context, r *kafka.Reader) error {
	for {
		msg, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if err := w.Handle(ctx, msg); err != nil {
			w.log.Errorw("recompute failed", "offset", msg.Offset, "err", err)
			continue
		}
		if err := r.CommitMessages(ctx, msg); err != nil {
			w.log.Errorw("commit offset", "offset", msg.Offset, "err", err)
		}
	}
}
