package router

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/polkiloo/shiftclose/internal/server/http/dto"
	"github.com/polkiloo/shiftclose/internal/server/http/handlers"
	testhelpers "github.com/polkiloo/shiftclose/internal/test"
)

func TestSetupRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	facade := testhelpers.ClosingFacadeStub{TokenParserStub: testhelpers.TokenParserStub{Actor: testhelpers.ManagerActor}}
	engine := Setup(facade, logger)

	req := httptest.NewRequest(http.MethodGet, "/api/drafts/draft-1", nil)
	resp := httptest.NewRecorder()
	engine.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401 without token, got %d", resp.Code)
	}

	cases := []struct {
		method string
		path   string
		body   any
		status int
	}{
		{http.MethodPost, "/api/drafts", dto.CreateDraftRequest{ScopeID: "shift-1", Kind: "SHIFT_CLOSE"}, http.StatusCreated},
		{http.MethodGet, "/api/drafts/active?scope_id=shift-1", nil, http.StatusNoContent},
		{http.MethodGet, "/api/drafts/latest?scope_id=shift-1", nil, http.StatusNoContent},
		{http.MethodGet, "/api/drafts/draft-1", nil, http.StatusOK},
		{http.MethodPatch, "/api/drafts/draft-1", dto.UpdateDraftRequest{ExpectedVersion: 1}, http.StatusOK},
		{http.MethodPut, "/api/drafts/draft-1/step", dto.StepMarkerRequest{StepMarker: "REVIEW"}, http.StatusOK},
		{http.MethodPost, "/api/drafts/draft-1/finalizing", nil, http.StatusOK},
		{http.MethodDelete, "/api/drafts/draft-1/finalizing", nil, http.StatusOK},
		{http.MethodPost, "/api/drafts/draft-1/finalize", nil, http.StatusOK},
		{http.MethodPost, "/api/drafts/draft-1/expire", nil, http.StatusOK},
		{http.MethodPost, "/api/drafts/draft-1/settlement", map[string]string{"closing_cash": "10.00"}, http.StatusOK},
		{http.MethodPost, "/api/lottery/prepare", dto.PrepareRequest{}, http.StatusCreated},
		{http.MethodGet, "/api/lottery/days/1/attempt", nil, http.StatusOK},
		{http.MethodPost, "/api/lottery/days/1/commit", nil, http.StatusOK},
		{http.MethodPost, "/api/lottery/days/1/cancel", nil, http.StatusOK},
	}

	for _, tc := range cases {
		var body io.Reader
		if tc.body != nil {
			raw, _ := json.Marshal(tc.body)
			body = bytes.NewReader(raw)
		}
		req := httptest.NewRequest(tc.method, tc.path, body)
		req.Header.Set("Authorization", "Bearer token")
		req.Header.Set("Content-Type", "application/json")
		resp := httptest.NewRecorder()
		engine.ServeHTTP(resp, req)
		if resp.Code != tc.status {
			t.Fatalf("%s %s: expected status %d, got %d (%s)", tc.method, tc.path, tc.status, resp.Code, resp.Body.String())
		}
	}
}

var _ handlers.ClosingFacade = testhelpers.ClosingFacadeStub{}
