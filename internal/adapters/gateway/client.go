package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/event-ticketing/internal/domain"
	"github.com/robertarktes/event-ticketing/internal/ticketing"
)

// Client talks to the external payment provider over HTTP. Sessions are
// created with the payment's transaction ref as the provider-side reference,
// so webhook callbacks can be matched back without storing provider IDs.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

var _ ticketing.Gateway = (*Client)(nil)

type sessionRequest struct {
	Reference  string `json:"reference"`
	Amount     string `json:"amount"`
	Currency   string `json:"currency"`
	Method     string `json:"method"`
	SuccessURL string `json:"success_url"`
	CancelURL  string `json:"cancel_url"`
}

type sessionResponse struct {
	RedirectURL string `json:"redirect_url"`
}

func (c *Client) CreateSession(ctx context.Context, p *domain.Payment, successURL, cancelURL string) (string, error) {
	body, err := json.Marshal(sessionRequest{
		Reference:  p.TransactionRef,
		Amount:     p.Amount.StringFixed(2),
		Currency:   "USD",
		Method:     string(p.Method),
		SuccessURL: successURL,
		CancelURL:  cancelURL,
	})
	if err != nil {
		return "", errors.Wrap(err, "marshal session request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/sessions", bytes.NewReader(body))
	if err != nil {
		return "", errors.Wrap(err, "build session request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "gateway session request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", errors.Newf("gateway session: unexpected status %d", resp.StatusCode)
	}

	var out sessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", errors.Wrap(err, "decode session response")
	}
	if out.RedirectURL == "" {
		return "", fmt.Errorf("gateway session: empty redirect url")
	}
	return out.RedirectURL, nil
}
