package httpkit

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		Images []string `json:"images"`
	}

	t.Run("valid body", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/", strings.NewReader(`{"images":["a.png"]}`))
		var p payload
		if err := DecodeJSON(req, &p); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(p.Images) != 1 || p.Images[0] != "a.png" {
			t.Errorf("unexpected payload: %+v", p)
		}
	})

	t.Run("unknown field", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/", strings.NewReader(`{"images":[],"colour":"red"}`))
		var p payload
		if err := DecodeJSON(req, &p); err == nil {
			t.Error("expected unknown field to be rejected")
		}
	})

	t.Run("trailing document", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/", strings.NewReader(`{"images":[]}{"images":[]}`))
		var p payload
		if err := DecodeJSON(req, &p); err == nil {
			t.Error("expected trailing data to be rejected")
		}
	})
}

func TestWriteErr(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteErr(rec, http.StatusBadRequest, "VALIDATION_ERROR", "bad", map[string]any{"field": "images"})

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("unexpected content type %q", ct)
	}
	var env ErrorEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Error.Code != "VALIDATION_ERROR" || env.Error.Details["field"] != "images" {
		t.Errorf("unexpected envelope: %+v", env)
	}
}

func TestCORS(t *testing.T) {
	handler := CORS(CORSOptions{AllowedOrigins: ParseOrigins(" https://app.example , ,http://localhost:5173")})(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }),
	)

	t.Run("allowed origin", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/render-video", nil)
		req.Header.Set("Origin", "https://app.example")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example" {
			t.Errorf("expected origin echoed, got %q", got)
		}
		if !strings.Contains(rec.Header().Get("Access-Control-Expose-Headers"), "Content-Disposition") {
			t.Error("expected Content-Disposition to be exposed")
		}
	})

	t.Run("unknown origin", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/render-video", nil)
		req.Header.Set("Origin", "https://evil.example")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
			t.Errorf("expected no CORS headers, got %q", got)
		}
	})

	t.Run("preflight", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/render-video", nil)
		req.Header.Set("Origin", "http://localhost:5173")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusNoContent {
			t.Errorf("expected 204, got %d", rec.Code)
		}
	})
}

func TestIsUndefinedTable(t *testing.T) {
	if !IsUndefinedTable(fmt.Errorf("query: %w", &pgconn.PgError{Code: "42P01"})) {
		t.Error("expected wrapped 42P01 to match")
	}
	if IsUndefinedTable(&pgconn.PgError{Code: "23505"}) {
		t.Error("unique violation should not match")
	}
	if IsUndefinedTable(fmt.Errorf("plain")) {
		t.Error("plain error should not match")
	}
}
