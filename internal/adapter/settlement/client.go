package settlement

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	domainErrors "github.com/polkiloo/shiftclose/internal/domain/errors"
	"github.com/polkiloo/shiftclose/internal/domain/model"
)

// TooManyRequestsError represents rate limiting signal from settlement system.
type TooManyRequestsError struct {
	RetryAfter time.Duration
}

func (e TooManyRequestsError) Error() string {
	return fmt.Sprintf("too many requests, retry after %s", e.RetryAfter)
}

// HTTPClient posts settlements to the external settlement system.
type HTTPClient struct {
	baseURL    *url.URL
	httpClient *http.Client
	logger     *slog.Logger
}

type request struct {
	DraftID     string             `json:"draft_id"`
	StoreID     string             `json:"store_id"`
	ScopeID     string             `json:"scope_id"`
	Kind        model.DraftKind    `json:"kind"`
	ClosingCash decimal.Decimal    `json:"closing_cash"`
	Payload     model.DraftPayload `json:"payload"`
}

type response struct {
	SettlementID string `json:"settlement_id"`
}

// NewHTTPClient creates HTTP settlement client with default timeout.
func NewHTTPClient(baseURL string, logger *slog.Logger) (*HTTPClient, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse settlement url: %w", err)
	}
	if !parsed.IsAbs() {
		return nil, fmt.Errorf("settlement url must be absolute")
	}
	return &HTTPClient{
		baseURL: parsed,
		logger:  logger,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}, nil
}

// Submit posts one settlement. The draft id is sent as idempotency key, so a
// resubmission returns the settlement created by the first call.
func (c *HTTPClient) Submit(ctx context.Context, in model.SettlementRequest) (*model.Settlement, error) {
	endpoint := *c.baseURL
	endpoint.Path = path.Join(endpoint.Path, "/api/settlements")

	body, err := json.Marshal(request{
		DraftID:     in.DraftID,
		StoreID:     in.StoreID,
		ScopeID:     in.ScopeID,
		Kind:        in.Kind,
		ClosingCash: in.ClosingCash,
		Payload:     in.Payload,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Idempotency-Key", in.DraftID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusConflict:
		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		var data response
		if err := json.Unmarshal(raw, &data); err != nil {
			return nil, err
		}
		if data.SettlementID == "" {
			return nil, fmt.Errorf("settlement response without id")
		}
		return &model.Settlement{ID: data.SettlementID, DraftID: in.DraftID}, nil
	case http.StatusUnprocessableEntity:
		raw, _ := io.ReadAll(resp.Body)
		return nil, domainErrors.NewValidationError("settlement rejected: " + string(bytes.TrimSpace(raw)))
	case http.StatusTooManyRequests:
		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
		return nil, TooManyRequestsError{RetryAfter: retryAfter}
	default:
		raw, _ := io.ReadAll(resp.Body)
		c.logger.Error("settlement request failed",
			slog.String("draft_id", in.DraftID),
			slog.Int("status", resp.StatusCode),
			slog.String("body", string(raw)),
		)
		return nil, fmt.Errorf("settlement error: %s", resp.Status)
	}
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 5 * time.Second
	}
	if seconds, err := strconv.Atoi(header); err == nil {
		return time.Duration(seconds) * time.Second
	}
	if t, err := http.ParseTime(header); err == nil {
		return time.Until(t)
	}
	return 5 * time.Second
}
