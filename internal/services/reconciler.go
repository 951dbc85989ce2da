package services

import (
	"context"

	"go.uber.org/zap"

	"payment-service/internal/models"
	"payment-service/internal/store"
)

// statusMapping translates the gateway's free-text payment status into our
// closed status set. Anything else ("Invalid", "Reversed", interim states,
// empty) means no transition yet.
var statusMapping = map[string]string{
	"Completed": models.StatusCompleted,
	"Failed":    models.StatusFailed,
	"Cancelled": models.StatusCancelled,
}

// MapStatus returns the canonical status for a gateway description and
// whether the description maps to a terminal outcome at all.
func MapStatus(raw string) (string, bool) {
	s, ok := statusMapping[raw]
	return s, ok
}

// Outcome reports what a reconciliation attempt did. Transitioned is true
// only for the writer whose CAS actually moved the record.
type Outcome struct {
	Transitioned bool
	Status       string
}

// Reconciler drives transactions toward the gateway's authoritative state.
// It never retries and never moves a record out of a terminal status; both
// webhook redeliveries and webhook/sweep races resolve to no-ops here.
type Reconciler struct {
	Store *store.Store
	Sink  EventSink
	Log   *zap.SugaredLogger
}

func NewReconciler(st *store.Store, sink EventSink, log *zap.SugaredLogger) *Reconciler {
	return &Reconciler{Store: st, Sink: sink, Log: log}
}

// Reconcile applies the gateway-reported status to the transaction.
// A CAS miss means a concurrent writer already transitioned the record;
// that writer's outcome is authoritative, so the miss is a no-op, not an
// error. Only the CAS winner into COMPLETED fires the event sink.
func (r *Reconciler) Reconcile(ctx context.Context, t *models.Transaction, rawStatus string) (Outcome, error) {
	next, ok := MapStatus(rawStatus)
	if !ok {
		return Outcome{Transitioned: false, Status: t.Status}, nil
	}
	if models.IsTerminal(t.Status) {
		return Outcome{Transitioned: false, Status: t.Status}, nil
	}

	swapped, err := r.Store.CompareAndSetStatus(ctx, t.OrderID, models.StatusPending, next)
	if err != nil {
		return Outcome{}, err
	}
	if !swapped {
		return Outcome{Transitioned: false, Status: t.Status}, nil
	}

	r.Log.Infow("transaction transitioned", "orderId", t.OrderID, "from", models.StatusPending, "to", next)

	if next == models.StatusCompleted {
		if err := r.Sink.PaymentCompleted(ctx, t.OrderID); err != nil {
			// The enqueue is at-most-once by design; the consumer side
			// dedupes, so a failed enqueue is logged rather than unwound.
			r.Log.Errorw("failed to emit completed event", "orderId", t.OrderID, "error", err)
		}
	}

	return Outcome{Transitioned: true, Status: next}, nil
}
