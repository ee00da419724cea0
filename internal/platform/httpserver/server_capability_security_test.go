package httpserver

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	capability "relaycreator/contexts/identity-access/capability-service"
)

func newTestServer() (*Server, capability.Module) {
	module := capability.NewInMemoryModule(slog.Default())
	return New(module, slog.Default(), ":0"), module
}

// newCapabilityRequest builds a request carrying the headers every API route
// requires, so individual tests only add what they exercise.
func newCapabilityRequest(method string, target string, body []byte) *http.Request {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer test-token")
	req.Header.Set("X-Request-Id", "req-test-1")
	return req
}

func TestRoutesRequireAuthorization(t *testing.T) {
	server, _ := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/api/capability/v1/types", nil)
	req.Header.Set("X-Request-Id", "req-test-1")

	rr := httptest.NewRecorder()
	server.mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestRoutesRejectMalformedBearerToken(t *testing.T) {
	server, _ := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/api/capability/v1/types", nil)
	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	req.Header.Set("X-Request-Id", "req-test-1")

	rr := httptest.NewRecorder()
	server.mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestRoutesRequireRequestID(t *testing.T) {
	server, _ := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/api/capability/v1/types", nil)
	req.Header.Set("Authorization", "Bearer test-token")

	rr := httptest.NewRecorder()
	server.mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestSubmitRequestRequiresUserHeader(t *testing.T) {
	server, _ := newTestServer()
	req := newCapabilityRequest(http.MethodPost, "/api/capability/v1/requests", []byte(`{"capability":"relay_ops"}`))
	req.Header.Set("Idempotency-Key", "cap-submit-1")

	rr := httptest.NewRecorder()
	server.mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestSubmitRequestRequiresIdempotencyKey(t *testing.T) {
	server, _ := newTestServer()
	req := newCapabilityRequest(http.MethodPost, "/api/capability/v1/requests", []byte(`{"capability":"relay_ops"}`))
	req.Header.Set("X-User-Id", "user-1")

	rr := httptest.NewRecorder()
	server.mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestSubmitRequestRejectsMalformedJSON(t *testing.T) {
	server, _ := newTestServer()
	req := newCapabilityRequest(http.MethodPost, "/api/capability/v1/requests", []byte(`{"capability":`))
	req.Header.Set("X-User-Id", "user-1")
	req.Header.Set("Idempotency-Key", "cap-submit-2")

	rr := httptest.NewRecorder()
	server.mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestDecideRequestForbiddenForNonAdmin(t *testing.T) {
	server, _ := newTestServer()

	submit := newCapabilityRequest(http.MethodPost, "/api/capability/v1/requests", []byte(`{"capability":"relay_ops"}`))
	submit.Header.Set("X-User-Id", "user-1")
	submit.Header.Set("Idempotency-Key", "cap-submit-3")
	rr := httptest.NewRecorder()
	server.mux.ServeHTTP(rr, submit)
	if rr.Code != http.StatusCreated {
		t.Fatalf("submit setup failed: %d body=%s", rr.Code, rr.Body.String())
	}

	decide := newCapabilityRequest(
		http.MethodPost,
		"/api/capability/v1/requests/some-request/decide",
		[]byte(`{"decision":"approved"}`),
	)
	decide.Header.Set("X-User-Id", "user-1")
	decide.Header.Set("Idempotency-Key", "cap-decide-3")
	rr = httptest.NewRecorder()
	server.mux.ServeHTTP(rr, decide)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestListRequestsForbiddenForNonAdmin(t *testing.T) {
	server, _ := newTestServer()
	req := newCapabilityRequest(http.MethodGet, "/api/capability/v1/requests?status=pending", nil)
	req.Header.Set("X-User-Id", "user-1")

	rr := httptest.NewRecorder()
	server.mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestListRequestsAllowedForAdmin(t *testing.T) {
	server, module := newTestServer()
	module.Store.SeedAdmin("admin-1")

	req := newCapabilityRequest(http.MethodGet, "/api/capability/v1/requests", nil)
	req.Header.Set("X-User-Id", "admin-1")

	rr := httptest.NewRecorder()
	server.mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestCheckRejectsUnknownCapability(t *testing.T) {
	server, _ := newTestServer()
	req := newCapabilityRequest(http.MethodPost, "/api/capability/v1/check", []byte(`{"user_id":"user-1","capability":"launch_rockets"}`))

	rr := httptest.NewRecorder()
	server.mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestCheckResolvesSubjectFromHeader(t *testing.T) {
	server, _ := newTestServer()
	req := newCapabilityRequest(http.MethodPost, "/api/capability/v1/check", []byte(`{"capability":"relay_ops"}`))
	req.Header.Set("X-User-Id", "user-1")

	rr := httptest.NewRecorder()
	server.mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestRevokeGrantForbiddenForNonAdmin(t *testing.T) {
	server, _ := newTestServer()
	req := newCapabilityRequest(
		http.MethodPost,
		"/api/capability/v1/users/user-2/grants/revoke",
		[]byte(`{"capability":"relay_ops"}`),
	)
	req.Header.Set("X-User-Id", "user-1")

	rr := httptest.NewRecorder()
	server.mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d body=%s", rr.Code, rr.Body.String())
	}
}
