package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/vendora-market/orders-service/internal/config"
	"github.com/vendora-market/orders-service/internal/errs"
	"github.com/vendora-market/orders-service/internal/models"
)

// VerifiedStatusSuccessful is the provider's authoritative success status.
const VerifiedStatusSuccessful = "successful"

// PaymentGateway is the contract the order flow relies on.
type PaymentGateway interface {
	CreateSession(ctx context.Context, order *models.Order) (string, error)
	Verify(ctx context.Context, transactionID string) (*VerifyResult, error)
}

// VerifyResult is the provider's authoritative view of a transaction.
type VerifyResult struct {
	ProviderTransactionID string
	Status                string
	TxRef                 string
	Amount                int64
	Currency              string
	PayerEmail            string
}

// HTTPPaymentClient talks to the external card-payment provider over HTTPS.
type HTTPPaymentClient struct {
	baseURL     string
	secretKey   string
	redirectURL string
	maxRetries  int
	httpClient  *http.Client
	logger      *zap.Logger
}

// Ensure HTTPPaymentClient implements PaymentGateway.
var _ PaymentGateway = (*HTTPPaymentClient)(nil)

// NewHTTPPaymentClient creates a payment provider client.
func NewHTTPPaymentClient(cfg config.PaymentConfig, logger *zap.Logger) *HTTPPaymentClient {
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	return &HTTPPaymentClient{
		baseURL:     cfg.BaseURL,
		secretKey:   cfg.SecretKey,
		redirectURL: cfg.RedirectURL,
		maxRetries:  maxRetries,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logger,
	}
}

type sessionRequest struct {
	TxRef       string            `json:"tx_ref"`
	Amount      int64             `json:"amount"`
	Currency    string            `json:"currency"`
	RedirectURL string            `json:"redirect_url"`
	Customer    sessionCustomer   `json:"customer"`
	Meta        map[string]string `json:"meta,omitempty"`
}

type sessionCustomer struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

type sessionResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Data    struct {
		Link string `json:"link"`
	} `json:"data"`
}

// CreateSession opens a hosted payment session for the order and returns the
// payment link. The order's transaction reference is the idempotency key, so
// retrying with the same order cannot double-charge. The order itself is
// never mutated here; on failure it stays pending and the session can be
// retried.
func (c *HTTPPaymentClient) CreateSession(ctx context.Context, order *models.Order) (string, error) {
	req := sessionRequest{
		TxRef:       order.TxRef,
		Amount:      order.GrandTotal,
		Currency:    order.Currency,
		RedirectURL: c.redirectURL,
		Customer: sessionCustomer{
			Email: order.BuyerEmail,
			Name:  order.BuyerName,
		},
		Meta: map[string]string{"order_id": order.ID},
	}

	var resp sessionResponse
	if err := c.postWithRetry(ctx, c.baseURL+"/payments", order.TxRef, req, &resp); err != nil {
		return "", &errs.PaymentSessionError{Err: err}
	}

	if resp.Status != "success" || resp.Data.Link == "" {
		return "", &errs.PaymentSessionError{
			Err: fmt.Errorf("provider rejected session: %s", resp.Message),
		}
	}

	c.logger.Info("payment session created",
		zap.String("order_id", order.ID),
		zap.String("tx_ref", order.TxRef),
	)
	return resp.Data.Link, nil
}

type verifyResponse struct {
	Status string `json:"status"`
	Data   struct {
		ID       json.Number `json:"id"`
		TxRef    string      `json:"tx_ref"`
		Status   string      `json:"status"`
		Amount   int64       `json:"amount"`
		Currency string      `json:"currency"`
		Customer struct {
			Email string `json:"email"`
		} `json:"customer"`
	} `json:"data"`
}

// Verify queries the provider's authoritative verification endpoint for a
// transaction. Callback parameters are advisory only; callers must base
// state transitions solely on this result. Network or provider failure is a
// VerificationError, never a failed payment.
func (c *HTTPPaymentClient) Verify(ctx context.Context, transactionID string) (*VerifyResult, error) {
	url := fmt.Sprintf("%s/transactions/%s/verify", c.baseURL, transactionID)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &errs.VerificationError{Err: err}
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.secretKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &errs.VerificationError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &errs.VerificationError{
			Err: fmt.Errorf("verification endpoint returned status %d", resp.StatusCode),
		}
	}

	var body verifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, &errs.VerificationError{Err: err}
	}

	return &VerifyResult{
		ProviderTransactionID: body.Data.ID.String(),
		Status:                body.Data.Status,
		TxRef:                 body.Data.TxRef,
		Amount:                body.Data.Amount,
		Currency:              body.Data.Currency,
		PayerEmail:            body.Data.Customer.Email,
	}, nil
}

// postWithRetry posts a JSON body, retrying on transport errors and 5xx
// responses with linear backoff. 4xx responses are terminal.
func (c *HTTPPaymentClient) postWithRetry(ctx context.Context, url, idempotencyKey string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			c.logger.Debug("retrying provider request",
				zap.String("url", url),
				zap.Int("attempt", attempt+1),
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * 200 * time.Millisecond):
			}
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return err
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Authorization", "Bearer "+c.secretKey)
		httpReq.Header.Set("X-Idempotency-Key", idempotencyKey)

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			lastErr = err
			continue
		}

		if resp.StatusCode >= 500 {
			resp.Body.Close()
			lastErr = fmt.Errorf("provider returned status %d", resp.StatusCode)
			continue
		}

		if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
			resp.Body.Close()
			return fmt.Errorf("provider returned status %d", resp.StatusCode)
		}

		err = json.NewDecoder(resp.Body).Decode(out)
		resp.Body.Close()
		return err
	}

	return fmt.Errorf("provider unreachable after %d attempts: %w", c.maxRetries, lastErr)
}
