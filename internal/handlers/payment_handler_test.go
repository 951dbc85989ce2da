package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"payment-service/internal/config"
	"payment-service/internal/gateway"
	"payment-service/internal/middleware"
	"payment-service/internal/models"
	"payment-service/internal/services"
	"payment-service/internal/store"
)

type fakeGateway struct {
	submitFn func(order gateway.OrderRequest) (*gateway.OrderResponse, error)
	queryFn  func(trackingID string) (*gateway.StatusResponse, error)
}

func (f *fakeGateway) SubmitOrder(ctx context.Context, order gateway.OrderRequest) (*gateway.OrderResponse, error) {
	return f.submitFn(order)
}

func (f *fakeGateway) QueryStatus(ctx context.Context, trackingID string) (*gateway.StatusResponse, error) {
	return f.queryFn(trackingID)
}

type noopSink struct{}

func (noopSink) PaymentCompleted(ctx context.Context, orderID string) error { return nil }

func setupRouter(t *testing.T, gw services.GatewayAPI) (*gin.Engine, *store.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&models.Transaction{}, &models.CallbackLog{}, &models.NotificationLog{}))
	t.Cleanup(func() {
		db.Exec("DELETE FROM transactions")
		db.Exec("DELETE FROM callback_logs")
	})

	st := store.NewStore(db)
	log := zap.NewNop().Sugar()
	rec := services.NewReconciler(st, noopSink{}, log)
	cfg := &config.Config{
		Currency:      "KES",
		APIKey:        "test-key",
		SweepCronSpec: "*/5 * * * *",
		StaleAfter:    15 * time.Minute,
	}
	svc := services.NewPaymentService(st, gw, rec, cfg, log)
	h := NewPaymentHandler(svc, log)

	r := gin.New()
	r.GET("/payments/callback", h.Callback)
	r.POST("/payments/callback", h.Callback)
	r.GET("/payments/status/:order_tracking_id", h.CheckStatus)
	authed := r.Group("/payments", middleware.APIKeyAuth(cfg.APIKey))
	authed.POST("/initiate", h.InitiatePayment)

	return r, st
}

func seedPending(t *testing.T, st *store.Store, orderID, trackingID string) {
	t.Helper()
	trx := &models.Transaction{
		OrderID:     orderID,
		Amount:      decimal.NewFromFloat(150.00),
		Email:       "payer@example.com",
		Status:      models.StatusPending,
		Description: "Payment for goods",
	}
	require.NoError(t, st.Create(context.Background(), trx))
	require.NoError(t, st.SetTrackingID(context.Background(), orderID, trackingID))
}

func TestInitiateEndpoint(t *testing.T) {
	gw := &fakeGateway{
		submitFn: func(order gateway.OrderRequest) (*gateway.OrderResponse, error) {
			return &gateway.OrderResponse{OrderTrackingID: "T1", RedirectURL: "https://pay.example/T1"}, nil
		},
	}
	r, _ := setupRouter(t, gw)

	body, _ := json.Marshal(map[string]interface{}{"amount": 150.00, "phone_number": "+254700000000"})
	req := httptest.NewRequest(http.MethodPost, "/payments/initiate", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", "test-key")
	req.Header.Set("X-User-Email", "payer@example.com")
	req.Header.Set("X-User-Id", "42")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Data struct {
			OrderTrackingID string `json:"order_tracking_id"`
			RedirectURL     string `json:"redirect_url"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "T1", resp.Data.OrderTrackingID)
	assert.Equal(t, "https://pay.example/T1", resp.Data.RedirectURL)
}

func TestInitiateEndpoint_MissingAmount(t *testing.T) {
	r, _ := setupRouter(t, &fakeGateway{})

	body, _ := json.Marshal(map[string]interface{}{"phone_number": "+254700000000"})
	req := httptest.NewRequest(http.MethodPost, "/payments/initiate", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", "test-key")
	req.Header.Set("X-User-Email", "payer@example.com")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestInitiateEndpoint_BadAPIKey(t *testing.T) {
	r, _ := setupRouter(t, &fakeGateway{})

	req := httptest.NewRequest(http.MethodPost, "/payments/initiate", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("X-Api-Key", "wrong")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestInitiateEndpoint_GatewayFailure(t *testing.T) {
	gw := &fakeGateway{
		submitFn: func(order gateway.OrderRequest) (*gateway.OrderResponse, error) {
			return nil, &gateway.Error{Op: "submit", Message: "connection refused"}
		},
	}
	r, _ := setupRouter(t, gw)

	body, _ := json.Marshal(map[string]interface{}{"amount": 150.00})
	req := httptest.NewRequest(http.MethodPost, "/payments/initiate", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", "test-key")
	req.Header.Set("X-User-Email", "payer@example.com")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	// The transport detail stays in the logs, not the response.
	assert.NotContains(t, w.Body.String(), "connection refused")
}

func TestCallbackEndpoint_GET(t *testing.T) {
	gw := &fakeGateway{
		queryFn: func(trackingID string) (*gateway.StatusResponse, error) {
			return &gateway.StatusResponse{PaymentStatusDescription: "Completed"}, nil
		},
	}
	r, st := setupRouter(t, gw)
	seedPending(t, st, "order-cb", "T-cb")

	req := httptest.NewRequest(http.MethodGet,
		"/payments/callback?OrderTrackingId=T-cb&OrderMerchantReference=order-cb", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	got, err := st.GetByOrderID(context.Background(), "order-cb")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, got.Status)
}

func TestCallbackEndpoint_MissingFields(t *testing.T) {
	r, _ := setupRouter(t, &fakeGateway{})

	req := httptest.NewRequest(http.MethodGet, "/payments/callback?OrderTrackingId=T-1", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCallbackEndpoint_UnknownOrder(t *testing.T) {
	r, _ := setupRouter(t, &fakeGateway{})

	req := httptest.NewRequest(http.MethodGet,
		"/payments/callback?OrderTrackingId=T-1&OrderMerchantReference=missing", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCallbackEndpoint_GatewayFailure(t *testing.T) {
	gw := &fakeGateway{
		queryFn: func(trackingID string) (*gateway.StatusResponse, error) {
			return nil, &gateway.Error{Op: "status", Status: 500, Message: "internal backend detail"}
		},
	}
	r, st := setupRouter(t, gw)
	seedPending(t, st, "order-ge", "T-ge")

	req := httptest.NewRequest(http.MethodGet,
		"/payments/callback?OrderTrackingId=T-ge&OrderMerchantReference=order-ge", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "internal backend detail")
}

func TestStatusEndpoint(t *testing.T) {
	gw := &fakeGateway{
		queryFn: func(trackingID string) (*gateway.StatusResponse, error) {
			return &gateway.StatusResponse{PaymentStatusDescription: "Completed"}, nil
		},
	}
	r, st := setupRouter(t, gw)
	seedPending(t, st, "order-st", "T-st")

	req := httptest.NewRequest(http.MethodGet, "/payments/status/T-st", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		OrderID         string `json:"order_id"`
		OrderTrackingID string `json:"order_tracking_id"`
		Status          string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "order-st", resp.OrderID)
	assert.Equal(t, "T-st", resp.OrderTrackingID)
	assert.Equal(t, models.StatusCompleted, resp.Status)
}

func TestStatusEndpoint_Unknown(t *testing.T) {
	r, _ := setupRouter(t, &fakeGateway{})

	req := httptest.NewRequest(http.MethodGet, "/payments/status/T-none", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}
