package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"payment-service/internal/config"
	"payment-service/internal/gateway"
	"payment-service/internal/models"
	"payment-service/internal/store"
)

// ErrValidation marks bad or missing caller input. Never retried.
var ErrValidation = errors.New("validation error")

// GatewayAPI is the slice of the Pesapal client the payment service uses.
type GatewayAPI interface {
	SubmitOrder(ctx context.Context, order gateway.OrderRequest) (*gateway.OrderResponse, error)
	QueryStatus(ctx context.Context, trackingID string) (*gateway.StatusResponse, error)
}

type PaymentService struct {
	Store      *store.Store
	Gateway    GatewayAPI
	Reconciler *Reconciler
	Config     *config.Config
	Log        *zap.SugaredLogger
}

func NewPaymentService(st *store.Store, gw GatewayAPI, rec *Reconciler, cfg *config.Config, log *zap.SugaredLogger) *PaymentService {
	return &PaymentService{
		Store:      st,
		Gateway:    gw,
		Reconciler: rec,
		Config:     cfg,
		Log:        log,
	}
}

type InitiateRequest struct {
	Amount      decimal.Decimal
	Email       string
	PhoneNumber string
	UserID      *int
}

type InitiateResponse struct {
	OrderID         string `json:"order_id"`
	OrderTrackingID string `json:"order_tracking_id"`
	RedirectURL     string `json:"redirect_url"`
}

// Initiate creates a PENDING transaction and submits the order to the
// gateway. On gateway failure the record goes straight to FAILED; it never
// had a tracking id, so no reconciliation path will ever pick it up.
func (s *PaymentService) Initiate(ctx context.Context, req InitiateRequest) (*InitiateResponse, error) {
	if req.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	if req.Email == "" {
		return nil, fmt.Errorf("%w: email is required", ErrValidation)
	}

	orderID := uuid.New().String()
	trx := &models.Transaction{
		OrderID:     orderID,
		Amount:      req.Amount,
		Email:       req.Email,
		PhoneNumber: req.PhoneNumber,
		Status:      models.StatusPending,
		Description: "Payment for goods",
		UserID:      req.UserID,
	}

	if err := s.Store.Create(ctx, trx); err != nil {
		return nil, err
	}

	order := gateway.OrderRequest{
		ID:             orderID,
		Currency:       s.Config.Currency,
		Amount:         req.Amount.StringFixed(2),
		Description:    trx.Description,
		CallbackURL:    s.Config.PesapalCallbackURL,
		NotificationID: s.Config.PesapalNotificationID,
		BillingAddress: gateway.BillingAddress{
			EmailAddress: req.Email,
			PhoneNumber:  req.PhoneNumber,
		},
	}

	resp, err := s.Gateway.SubmitOrder(ctx, order)
	if err != nil {
		s.Log.Errorw("order submission failed", "orderId", orderID, "error", err)
		if ferr := s.Store.MarkFailed(ctx, orderID); ferr != nil {
			s.Log.Errorw("failed to mark transaction failed", "orderId", orderID, "error", ferr)
		}
		return nil, err
	}

	if err := s.Store.SetTrackingID(ctx, orderID, resp.OrderTrackingID); err != nil {
		return nil, err
	}

	s.Log.Infow("payment initiated", "orderId", orderID, "trackingId", resp.OrderTrackingID)
	return &InitiateResponse{
		OrderID:         orderID,
		OrderTrackingID: resp.OrderTrackingID,
		RedirectURL:     resp.RedirectURL,
	}, nil
}

type CallbackResult struct {
	OrderID      string
	Status       string
	Transitioned bool
}

// HandleCallback processes a gateway IPN. The status embedded in the
// webhook is never trusted; the gateway is re-queried for the authoritative
// one and the reconciler does the rest.
func (s *PaymentService) HandleCallback(ctx context.Context, trackingID, merchantRef string) (*CallbackResult, error) {
	if trackingID == "" || merchantRef == "" {
		return nil, fmt.Errorf("%w: OrderTrackingId and OrderMerchantReference are required", ErrValidation)
	}

	trx, err := s.Store.GetByOrderID(ctx, merchantRef)
	if err != nil {
		return nil, err
	}

	status, err := s.Gateway.QueryStatus(ctx, trackingID)
	if err != nil {
		s.logVerification(ctx, trx.OrderID, trackingID, "Callback", nil, "status query failed")
		return nil, fmt.Errorf("reconcile: %w", err)
	}

	outcome, err := s.Reconciler.Reconcile(ctx, trx, status.PaymentStatusDescription)
	if err != nil {
		s.logVerification(ctx, trx.OrderID, trackingID, "Callback", status, "reconcile failed")
		return nil, fmt.Errorf("reconcile: %w", err)
	}

	s.logVerification(ctx, trx.OrderID, trackingID, "Callback", status, outcomeNote(outcome))
	return &CallbackResult{
		OrderID:      trx.OrderID,
		Status:       outcome.Status,
		Transitioned: outcome.Transitioned,
	}, nil
}

type StatusResult struct {
	OrderID         string    `json:"order_id"`
	OrderTrackingID string    `json:"order_tracking_id"`
	Status          string    `json:"status"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// CheckStatus returns the local view of a transaction, refreshing it from
// the gateway first while it is still non-terminal. A gateway error during
// the refresh is logged and the local state returned as-is.
func (s *PaymentService) CheckStatus(ctx context.Context, trackingID string) (*StatusResult, error) {
	trx, err := s.Store.GetByTrackingID(ctx, trackingID)
	if err != nil {
		return nil, err
	}

	if !models.IsTerminal(trx.Status) {
		status, qerr := s.Gateway.QueryStatus(ctx, trackingID)
		if qerr != nil {
			s.Log.Warnw("inline status refresh failed", "trackingId", trackingID, "error", qerr)
		} else {
			outcome, rerr := s.Reconciler.Reconcile(ctx, trx, status.PaymentStatusDescription)
			if rerr != nil {
				return nil, rerr
			}
			trx.Status = outcome.Status
			if outcome.Transitioned {
				trx.UpdatedAt = time.Now()
				s.logVerification(ctx, trx.OrderID, trackingID, "StatusCheck", status, outcomeNote(outcome))
			}
		}
	}

	return &StatusResult{
		OrderID:         trx.OrderID,
		OrderTrackingID: trackingID,
		Status:          trx.Status,
		UpdatedAt:       trx.UpdatedAt,
	}, nil
}

type SweepReport struct {
	Examined     int
	Transitioned int
	Failed       int
}

// VerifyPendingTransactions is the polling fallback for missed webhooks.
// Each candidate is handled independently; one failure never aborts the
// batch. Cancellation is honored between candidates, never mid-candidate.
func (s *PaymentService) VerifyPendingTransactions(ctx context.Context) (SweepReport, error) {
	var report SweepReport

	pending, err := s.Store.ListStalePending(ctx, s.Config.StaleAfter)
	if err != nil {
		return report, err
	}

	s.Log.Infow("sweep started", "candidates", len(pending))

	for i := range pending {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		trx := &pending[i]
		report.Examined++

		if trx.TrackingID == nil {
			continue
		}
		trackingID := *trx.TrackingID

		status, err := s.Gateway.QueryStatus(ctx, trackingID)
		if err != nil {
			s.Log.Errorw("sweep status query failed", "orderId", trx.OrderID, "error", err)
			report.Failed++
			continue
		}

		outcome, err := s.Reconciler.Reconcile(ctx, trx, status.PaymentStatusDescription)
		if err != nil {
			s.Log.Errorw("sweep reconcile failed", "orderId", trx.OrderID, "error", err)
			report.Failed++
			continue
		}
		if outcome.Transitioned {
			report.Transitioned++
			s.logVerification(ctx, trx.OrderID, trackingID, "Sweep", status, outcomeNote(outcome))
		}
	}

	s.Log.Infow("sweep finished",
		"examined", report.Examined,
		"transitioned", report.Transitioned,
		"failed", report.Failed)
	return report, nil
}

// StartScheduler initializes the cron job for the pending-transaction sweep
func (s *PaymentService) StartScheduler() {
	c := cron.New()
	_, err := c.AddFunc(s.Config.SweepCronSpec, func() {
		if _, err := s.VerifyPendingTransactions(context.Background()); err != nil {
			s.Log.Errorw("sweep run failed", "error", err)
		}
	})
	if err != nil {
		s.Log.Errorw("failed to schedule sweep", "error", err)
		return
	}
	c.Start()
	s.Log.Infof("sweep scheduler started (%s)", s.Config.SweepCronSpec)
}

func (s *PaymentService) logVerification(ctx context.Context, orderID, trackingID, requestType string, status *gateway.StatusResponse, outcome string) {
	var response string
	if status != nil {
		if b, err := json.Marshal(status); err == nil {
			response = string(b)
		}
	}
	entry := &models.CallbackLog{
		OrderID:     orderID,
		TrackingID:  trackingID,
		Response:    response,
		Outcome:     outcome,
		RequestType: requestType,
	}
	if err := s.Store.LogCallback(ctx, entry); err != nil {
		s.Log.Warnw("failed to write callback log", "orderId", orderID, "error", err)
	}
}

func outcomeNote(o Outcome) string {
	if o.Transitioned {
		return "transitioned to " + o.Status
	}
	return "no change"
}
