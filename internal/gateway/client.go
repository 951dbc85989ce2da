package gateway

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"payment-service/pkg/common"
)

// Client talks to the Pesapal v3 API. It holds the bearer token between
// calls but re-acquires it whenever the cached one is missing or close to
// expiry, so nothing depends on the cache being warm.
type Client struct {
	BaseURL        string
	ConsumerKey    string
	ConsumerSecret string

	httpClient *http.Client

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

func NewClient(baseURL, consumerKey, consumerSecret string, timeout time.Duration) *Client {
	return &Client{
		BaseURL:        baseURL,
		ConsumerKey:    consumerKey,
		ConsumerSecret: consumerSecret,
		httpClient:     &http.Client{Timeout: timeout},
	}
}

// OrderRequest is the SubmitOrderRequest payload.
type OrderRequest struct {
	ID             string         `json:"id"`
	Currency       string         `json:"currency"`
	Amount         string         `json:"amount"`
	Description    string         `json:"description"`
	CallbackURL    string         `json:"callback_url"`
	NotificationID string         `json:"notification_id"`
	BillingAddress BillingAddress `json:"billing_address"`
}

type BillingAddress struct {
	EmailAddress string `json:"email_address"`
	PhoneNumber  string `json:"phone_number,omitempty"`
	CountryCode  string `json:"country_code,omitempty"`
	FirstName    string `json:"first_name,omitempty"`
	LastName     string `json:"last_name,omitempty"`
}

type OrderResponse struct {
	OrderTrackingID string `json:"order_tracking_id"`
	RedirectURL     string `json:"redirect_url"`
	MerchantRef     string `json:"merchant_reference"`
}

type StatusResponse struct {
	PaymentStatusDescription string `json:"payment_status_description"`
	PaymentMethod            string `json:"payment_method"`
	ConfirmationCode         string `json:"confirmation_code"`
	Amount                   string `json:"amount"`
}

type tokenResponse struct {
	Token      string       `json:"token"`
	ExpiryDate string       `json:"expiryDate"`
	Status     string       `json:"status"`
	Error      *errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// AcquireToken fetches a fresh bearer token from the gateway. Most callers
// want token(), which serves the cached one while it is still valid.
func (c *Client) AcquireToken(ctx context.Context) (string, error) {
	payload := map[string]string{
		"consumer_key":    c.ConsumerKey,
		"consumer_secret": c.ConsumerSecret,
	}

	resp, err := common.PostJSON(ctx, c.httpClient, c.BaseURL+"/Auth/RequestToken", payload, nil)
	if err != nil {
		return "", newError("token", 0, err.Error())
	}
	if resp.StatusCode != http.StatusOK {
		return "", newError("token", resp.StatusCode, "token request rejected")
	}

	var tr tokenResponse
	if err := resp.Decode(&tr); err != nil {
		return "", newError("token", resp.StatusCode, "malformed token response")
	}
	if tr.Error != nil && tr.Error.Message != "" {
		return "", newError("token", resp.StatusCode, tr.Error.Message)
	}
	if tr.Token == "" {
		return "", newError("token", resp.StatusCode, "empty token in response")
	}

	expiry := time.Now().Add(5 * time.Minute)
	if t, err := time.Parse(time.RFC3339, tr.ExpiryDate); err == nil {
		expiry = t
	}

	c.mu.Lock()
	c.token = tr.Token
	c.tokenExpiry = expiry
	c.mu.Unlock()

	return tr.Token, nil
}

func (c *Client) cachedToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && time.Now().Before(c.tokenExpiry.Add(-30*time.Second)) {
		return c.token
	}
	return ""
}

func (c *Client) bearer(ctx context.Context) (string, error) {
	if t := c.cachedToken(); t != "" {
		return t, nil
	}
	return c.AcquireToken(ctx)
}

// SubmitOrder posts a new order to the gateway and returns the tracking id
// and hosted payment page URL.
func (c *Client) SubmitOrder(ctx context.Context, order OrderRequest) (*OrderResponse, error) {
	token, err := c.bearer(ctx)
	if err != nil {
		return nil, err
	}

	headers := map[string]string{"Authorization": "Bearer " + token}
	resp, err := common.PostJSON(ctx, c.httpClient, c.BaseURL+"/Transactions/SubmitOrderRequest", order, headers)
	if err != nil {
		return nil, newError("submit", 0, err.Error())
	}
	if resp.StatusCode != http.StatusOK {
		return nil, newError("submit", resp.StatusCode, "order submission rejected")
	}

	var body struct {
		OrderResponse
		Error *errorDetail `json:"error"`
	}
	if err := resp.Decode(&body); err != nil {
		return nil, newError("submit", resp.StatusCode, "malformed order response")
	}
	if body.Error != nil && body.Error.Message != "" {
		return nil, newError("submit", resp.StatusCode, body.Error.Message)
	}
	if body.OrderTrackingID == "" {
		return nil, newError("submit", resp.StatusCode, "no tracking id in response")
	}

	return &body.OrderResponse, nil
}

// QueryStatus fetches the authoritative payment status for a tracking id.
func (c *Client) QueryStatus(ctx context.Context, trackingID string) (*StatusResponse, error) {
	token, err := c.bearer(ctx)
	if err != nil {
		return nil, err
	}

	u := fmt.Sprintf("%s/Transactions/GetTransactionStatus?orderTrackingId=%s",
		c.BaseURL, url.QueryEscape(trackingID))
	headers := map[string]string{"Authorization": "Bearer " + token}

	resp, err := common.GetJSON(ctx, c.httpClient, u, headers)
	if err != nil {
		return nil, newError("status", 0, err.Error())
	}
	if resp.StatusCode != http.StatusOK {
		return nil, newError("status", resp.StatusCode, "status query rejected")
	}

	var body struct {
		StatusResponse
		Error *errorDetail `json:"error"`
	}
	if err := resp.Decode(&body); err != nil {
		return nil, newError("status", resp.StatusCode, "malformed status response")
	}
	if body.Error != nil && body.Error.Message != "" {
		return nil, newError("status", resp.StatusCode, body.Error.Message)
	}

	return &body.StatusResponse, nil
}

// RegisterIPN registers the callback URL with the gateway and returns the
// notification id to include on submitted orders.
func (c *Client) RegisterIPN(ctx context.Context, ipnURL string) (string, error) {
	token, err := c.bearer(ctx)
	if err != nil {
		return "", err
	}

	payload := map[string]string{
		"url":                   ipnURL,
		"ipn_notification_type": "GET",
	}
	headers := map[string]string{"Authorization": "Bearer " + token}

	resp, err := common.PostJSON(ctx, c.httpClient, c.BaseURL+"/URLSetup/RegisterIPN", payload, headers)
	if err != nil {
		return "", newError("ipn", 0, err.Error())
	}
	if resp.StatusCode != http.StatusOK {
		return "", newError("ipn", resp.StatusCode, "IPN registration rejected")
	}

	var body struct {
		IpnID string       `json:"ipn_id"`
		Error *errorDetail `json:"error"`
	}
	if err := resp.Decode(&body); err != nil {
		return "", newError("ipn", resp.StatusCode, "malformed IPN response")
	}
	if body.Error != nil && body.Error.Message != "" {
		return "", newError("ipn", resp.StatusCode, body.Error.Message)
	}
	if body.IpnID == "" {
		return "", newError("ipn", resp.StatusCode, "no ipn_id in response")
	}

	return body.IpnID, nil
}
