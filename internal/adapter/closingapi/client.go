package closingapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
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
	"github.com/polkiloo/shiftclose/internal/server/http/dto"
)

var ErrUnauthorized = errors.New("unauthorized")

// APIError is a failed response of the closing server.
type APIError struct {
	Status int
	Body   dto.ErrorResponse
}

func (e *APIError) Error() string {
	if e.Body.Message != "" {
		return fmt.Sprintf("closing api %d %s: %s", e.Status, e.Body.Code, e.Body.Message)
	}
	return fmt.Sprintf("closing api %d", e.Status)
}

func (e *APIError) Unwrap() error {
	switch e.Body.Code {
	case dto.CodeNotFound:
		return domainErrors.ErrNotFound
	case dto.CodeConflict:
		return domainErrors.ErrConflict
	case dto.CodeVersionConflict:
		return domainErrors.ErrVersionConflict
	case dto.CodeExpired:
		return domainErrors.ErrExpired
	case dto.CodeForbidden:
		return domainErrors.ErrForbidden
	case dto.CodeValidation, dto.CodeBadRequest:
		return domainErrors.ErrValidation
	}
	if e.Status == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	return nil
}

// Client talks to the shiftclose server on behalf of one signed-in operator.
type Client struct {
	baseURL    *url.URL
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates HTTP client with default timeout.
func NewClient(baseURL, token string, logger *slog.Logger) (*Client, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	if !parsed.IsAbs() {
		return nil, fmt.Errorf("server url must be absolute")
	}
	return &Client{
		baseURL: parsed,
		token:   token,
		logger:  logger,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}, nil
}

func (c *Client) do(ctx context.Context, method, route string, query url.Values, in, out any) (int, error) {
	endpoint := *c.baseURL
	endpoint.Path = path.Join(endpoint.Path, route)
	if query != nil {
		endpoint.RawQuery = query.Encode()
	}

	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return 0, err
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), body)
	if err != nil {
		return 0, err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, err
	}

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{Status: resp.StatusCode}
		if len(raw) > 0 {
			_ = json.Unmarshal(raw, &apiErr.Body)
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			c.logger.Error("closing api request failed",
				slog.String("method", method),
				slog.String("path", route),
				slog.Int("status", resp.StatusCode),
			)
		}
		if apiErr.Body.Code == dto.CodeValidation && len(apiErr.Body.Problems) > 0 {
			return resp.StatusCode, domainErrors.NewValidationError(apiErr.Body.Problems...)
		}
		return resp.StatusCode, apiErr
	}

	if out != nil && resp.StatusCode != http.StatusNoContent && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode %s %s: %w", method, route, err)
		}
	}
	return resp.StatusCode, nil
}

func draftRoute(draftID string, parts ...string) string {
	return path.Join(append([]string{"/api/drafts", url.PathEscape(draftID)}, parts...)...)
}

func dayRoute(dayID int64, action string) string {
	return path.Join("/api/lottery/days", strconv.FormatInt(dayID, 10), action)
}

func (c *Client) draftCall(ctx context.Context, method, route string, in any) (*model.Draft, error) {
	var out dto.DraftResponse
	if _, err := c.do(ctx, method, route, nil, in, &out); err != nil {
		return nil, err
	}
	return out.Model(), nil
}

// GetActive returns nil when the scope has no active draft.
func (c *Client) GetActive(ctx context.Context, scopeID string) (*model.Draft, error) {
	return c.scopeDraft(ctx, "/api/drafts/active", scopeID)
}

// Latest returns the newest draft of the scope in any status, nil when there is none.
func (c *Client) Latest(ctx context.Context, scopeID string) (*model.Draft, error) {
	return c.scopeDraft(ctx, "/api/drafts/latest", scopeID)
}

func (c *Client) scopeDraft(ctx context.Context, route, scopeID string) (*model.Draft, error) {
	var out dto.DraftResponse
	status, err := c.do(ctx, http.MethodGet, route, url.Values{"scope_id": {scopeID}}, nil, &out)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNoContent {
		return nil, nil
	}
	return out.Model(), nil
}

// Create opens the draft of a scope or returns the one already active.
func (c *Client) Create(ctx context.Context, scopeID string, kind model.DraftKind) (*model.Draft, bool, error) {
	var out dto.DraftResponse
	status, err := c.do(ctx, http.MethodPost, "/api/drafts", nil, dto.CreateDraftRequest{ScopeID: scopeID, Kind: string(kind)}, &out)
	if err != nil {
		return nil, false, err
	}
	return out.Model(), status == http.StatusCreated, nil
}

func (c *Client) Get(ctx context.Context, draftID string) (*model.Draft, error) {
	return c.draftCall(ctx, http.MethodGet, draftRoute(draftID), nil)
}

// Update writes a partial payload. A stale version comes back as UpdateResult.Conflict.
func (c *Client) Update(ctx context.Context, draftID string, partial model.DraftPayload, expectedVersion int64) (model.UpdateResult, error) {
	var out dto.DraftResponse
	_, err := c.do(ctx, http.MethodPatch, draftRoute(draftID), nil, dto.UpdateDraftRequest{ExpectedVersion: expectedVersion, Payload: partial}, &out)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Body.Code == dto.CodeVersionConflict {
			return model.UpdateResult{Conflict: &model.VersionConflict{
				CurrentVersion:  apiErr.Body.CurrentVersion,
				ExpectedVersion: apiErr.Body.ExpectedVersion,
			}}, nil
		}
		return model.UpdateResult{}, err
	}
	return model.UpdateResult{Draft: out.Model()}, nil
}

func (c *Client) UpdateStepMarker(ctx context.Context, draftID string, marker model.StepMarker) (*model.Draft, error) {
	return c.draftCall(ctx, http.MethodPut, draftRoute(draftID, "step"), dto.StepMarkerRequest{StepMarker: string(marker)})
}

func (c *Client) MarkFinalizing(ctx context.Context, draftID string) (*model.Draft, error) {
	return c.draftCall(ctx, http.MethodPost, draftRoute(draftID, "finalizing"), nil)
}

func (c *Client) RevertFinalizing(ctx context.Context, draftID string) (*model.Draft, error) {
	return c.draftCall(ctx, http.MethodDelete, draftRoute(draftID, "finalizing"), nil)
}

func (c *Client) Finalize(ctx context.Context, draftID string) (*model.Draft, error) {
	return c.draftCall(ctx, http.MethodPost, draftRoute(draftID, "finalize"), nil)
}

func (c *Client) Expire(ctx context.Context, draftID string) (*model.Draft, error) {
	return c.draftCall(ctx, http.MethodPost, draftRoute(draftID, "expire"), nil)
}

func (c *Client) Settle(ctx context.Context, draftID string, closingCash decimal.Decimal) (*model.Settlement, error) {
	var out dto.SettlementResponse
	if _, err := c.do(ctx, http.MethodPost, draftRoute(draftID, "settlement"), nil, dto.SettleRequest{ClosingCash: closingCash}, &out); err != nil {
		return nil, err
	}
	return &model.Settlement{ID: out.SettlementID, DraftID: out.DraftID}, nil
}

func (c *Client) Prepare(ctx context.Context, lines []model.PrepareLine) (*model.LotteryClosingAttempt, error) {
	var out dto.AttemptResponse
	if _, err := c.do(ctx, http.MethodPost, "/api/lottery/prepare", nil, dto.NewPrepareRequest(lines), &out); err != nil {
		return nil, err
	}
	return out.Model(), nil
}

func (c *Client) Attempt(ctx context.Context, dayID int64) (*model.LotteryClosingAttempt, error) {
	var out dto.AttemptResponse
	if _, err := c.do(ctx, http.MethodGet, dayRoute(dayID, "attempt"), nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Model(), nil
}

func (c *Client) Commit(ctx context.Context, dayID int64, opts model.CommitOptions) (*model.LotteryCommitResult, error) {
	var out dto.CommitResponse
	if _, err := c.do(ctx, http.MethodPost, dayRoute(dayID, "commit"), nil, dto.CommitRequest{DeferredOverride: opts.DeferredOverride}, &out); err != nil {
		return nil, err
	}
	return out.Model(), nil
}

func (c *Client) CancelLottery(ctx context.Context, dayID int64) (*model.LotteryClosingAttempt, error) {
	var out dto.AttemptResponse
	if _, err := c.do(ctx, http.MethodPost, dayRoute(dayID, "cancel"), nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Model(), nil
}
