// REST broker gateway client, resty only with internal retry.
package connectors

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	logger "github.com/sirupsen/logrus"
)

const (
	defaultRetryAttempts   = 5
	defaultRetryBaseDelay  = 500 * time.Millisecond
	defaultRetryMaxBackoff = 8 * time.Second
)

// apiResponse is the broker's standard envelope.
type apiResponse struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// RESTBroker is a BrokerGateway implementation over the broker's signed REST
// API. Idempotent submission retries are safe because every request carries a
// client order id generated once per local order.
type RESTBroker struct {
	apiKey          string
	apiSecret       string
	supportsBracket bool
	http            *resty.Client
}

func isRetryableResp(r *resty.Response, err error) bool {
	if err != nil {
		return true
	}
	if r == nil {
		return false
	}

	code := r.StatusCode()
	if code >= 500 && code <= 599 {
		return true
	}
	if code == 429 || code == 408 {
		return true
	}
	return false
}

// NewRESTBroker builds a gateway client for one account's credentials.
func NewRESTBroker(apiKey, apiSecret, baseURL string, supportsBracket bool) *RESTBroker {
	config := GetConfig()
	if baseURL == "" {
		baseURL = config.BrokerBaseURL
		logger.Warnf("No base URL provided, using default: %s", baseURL)
	}

	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(config.BrokerTimeout).
		SetRetryCount(defaultRetryAttempts - 1).
		SetRetryWaitTime(defaultRetryBaseDelay).
		SetRetryMaxWaitTime(defaultRetryMaxBackoff).
		AddRetryCondition(isRetryableResp)

	return &RESTBroker{
		apiKey:          apiKey,
		apiSecret:       apiSecret,
		supportsBracket: supportsBracket,
		http:            httpClient,
	}
}

// NewClientOrderID returns a fresh idempotency key for a submission.
func NewClientOrderID() string {
	return "oe-" + uuid.NewString()
}

func signRequest(path, body string, expiry int64, secret string) string {
	base := path + fmt.Sprintf("%d", expiry) + body
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(base))
	return hex.EncodeToString(mac.Sum(nil))
}

func (b *RESTBroker) doRequest(ctx context.Context, method, path string, body []byte) (*apiResponse, error) {
	expiry := time.Now().Add(1 * time.Minute).Unix()
	sig := signRequest(path, string(body), expiry, b.apiSecret)

	req := b.http.R().
		SetContext(ctx).
		SetHeader("x-api-key", b.apiKey).
		SetHeader("x-request-expiry", fmt.Sprintf("%d", expiry)).
		SetHeader("x-request-signature", sig)

	if body != nil {
		req = req.SetBody(body).SetHeader("Content-Type", "application/json")
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return nil, fmt.Errorf("broker request failed: %w", err)
	}
	if resp.StatusCode()/100 != 2 {
		return nil, fmt.Errorf("broker non-2xx status %d: %s", resp.StatusCode(), resp.String())
	}

	var parsed apiResponse
	if err := json.Unmarshal(resp.Body(), &parsed); err != nil {
		return nil, fmt.Errorf("broker response decode failed: %w", err)
	}
	if parsed.Code != 0 {
		return nil, fmt.Errorf("broker error %d: %s", parsed.Code, parsed.Msg)
	}

	return &parsed, nil
}

// Submit sends the order and returns the broker-assigned identifiers.
func (b *RESTBroker) Submit(ctx context.Context, submitReq SubmitOrderRequest) (*SubmitOrderResult, error) {
	if submitReq.ClientOrderID == "" {
		submitReq.ClientOrderID = NewClientOrderID()
	}

	body, err := json.Marshal(submitReq)
	if err != nil {
		return nil, err
	}

	logger.WithFields(map[string]interface{}{
		"connector":       "RESTBroker",
		"symbol":          submitReq.Symbol,
		"side":            submitReq.Side,
		"order_type":      submitReq.OrderType,
		"client_order_id": submitReq.ClientOrderID,
	}).Info("Submitting order to broker")

	resp, err := b.doRequest(ctx, "POST", "/v1/orders", body)
	if err != nil {
		return nil, err
	}

	var result SubmitOrderResult
	if err := json.Unmarshal(resp.Data, &result); err != nil {
		return nil, fmt.Errorf("broker submit decode failed: %w", err)
	}
	if result.BrokerOrderID == "" {
		return nil, fmt.Errorf("broker returned empty order id")
	}

	return &result, nil
}

// Cancel cancels the broker order. Canceling an already terminal order is
// reported by the broker as code 0, so the call is idempotent.
func (b *RESTBroker) Cancel(ctx context.Context, brokerOrderID string) error {
	logger.WithFields(map[string]interface{}{
		"connector":       "RESTBroker",
		"broker_order_id": brokerOrderID,
	}).Info("Canceling order at broker")

	_, err := b.doRequest(ctx, "DELETE", "/v1/orders/"+brokerOrderID, nil)
	return err
}

// SupportsBracketOrders reports whether this broker accepts a single combined
// take-profit/stop-loss order.
func (b *RESTBroker) SupportsBracketOrders() bool {
	return b.supportsBracket
}
