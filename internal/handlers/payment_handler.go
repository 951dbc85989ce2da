package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"payment-service/internal/middleware"
	"payment-service/internal/services"
	"payment-service/internal/store"
	"payment-service/pkg/common"
)

type PaymentHandler struct {
	Service *services.PaymentService
	Log     *zap.SugaredLogger
}

func NewPaymentHandler(svc *services.PaymentService, log *zap.SugaredLogger) *PaymentHandler {
	return &PaymentHandler{Service: svc, Log: log}
}

type InitiatePaymentRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Email       string          `json:"email"`
	PhoneNumber string          `json:"phone_number"`
}

// InitiatePayment starts a payment for the authenticated caller.
func (h *PaymentHandler) InitiatePayment(c *gin.Context) {
	var req InitiatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, common.NewErrorResponse("invalid request body", http.StatusBadRequest))
		return
	}

	svcReq := services.InitiateRequest{
		Amount:      req.Amount,
		Email:       req.Email,
		PhoneNumber: req.PhoneNumber,
	}
	// Identity forwarded by the auth layer wins over anything in the body.
	if email, ok := c.Get(middleware.CtxUserEmail); ok {
		svcReq.Email = email.(string)
	}
	if id, ok := c.Get(middleware.CtxUserID); ok {
		userID := id.(int)
		svcReq.UserID = &userID
	}

	resp, err := h.Service.Initiate(c.Request.Context(), svcReq)
	if err != nil {
		if errors.Is(err, services.ErrValidation) {
			c.JSON(http.StatusBadRequest, common.NewErrorResponse(err.Error(), http.StatusBadRequest))
			return
		}
		h.Log.Errorw("initiate failed", "error", err)
		c.JSON(http.StatusInternalServerError, common.NewErrorResponse("unable to initiate payment", http.StatusInternalServerError))
		return
	}

	c.JSON(http.StatusOK, common.NewSuccessResponse(resp, "Payment initiated"))
}

type callbackParams struct {
	OrderTrackingID   string `form:"OrderTrackingId" json:"OrderTrackingId"`
	OrderMerchantRef  string `form:"OrderMerchantReference" json:"OrderMerchantReference"`
	OrderNotification string `form:"OrderNotificationType" json:"OrderNotificationType"`
}

// Callback handles the gateway IPN, delivered as GET with query params or
// POST with a JSON body. Internal error detail never goes back to the
// caller here; the gateway only needs a status code to decide on redelivery.
func (h *PaymentHandler) Callback(c *gin.Context) {
	var params callbackParams
	if c.Request.Method == http.MethodGet {
		_ = c.ShouldBindQuery(&params)
	} else {
		_ = c.ShouldBindJSON(&params)
	}

	result, err := h.Service.HandleCallback(c.Request.Context(), params.OrderTrackingID, params.OrderMerchantRef)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrValidation):
			c.JSON(http.StatusBadRequest, common.NewErrorResponse("OrderTrackingId and OrderMerchantReference are required", http.StatusBadRequest))
		case errors.Is(err, store.ErrNotFound):
			c.JSON(http.StatusNotFound, common.NewErrorResponse("transaction not found", http.StatusNotFound))
		default:
			h.Log.Errorw("callback reconciliation failed",
				"trackingId", params.OrderTrackingID,
				"merchantRef", params.OrderMerchantRef,
				"error", err)
			c.JSON(http.StatusInternalServerError, common.NewErrorResponse("reconciliation failed", http.StatusInternalServerError))
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":  "Callback processed",
		"order_id": result.OrderID,
		"status":   result.Status,
	})
}

// CheckStatus returns the transaction state for a tracking id, refreshing
// from the gateway first while the local state is non-terminal.
func (h *PaymentHandler) CheckStatus(c *gin.Context) {
	trackingID := c.Param("order_tracking_id")

	result, err := h.Service.CheckStatus(c.Request.Context(), trackingID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, common.NewErrorResponse("transaction not found", http.StatusNotFound))
			return
		}
		h.Log.Errorw("status check failed", "trackingId", trackingID, "error", err)
		c.JSON(http.StatusInternalServerError, common.NewErrorResponse("status check failed", http.StatusInternalServerError))
		return
	}

	c.JSON(http.StatusOK, result)
}
