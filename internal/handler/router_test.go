package handler

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/vetlink/companion/backend/internal/model/role"
	chatService "github.com/vetlink/companion/backend/internal/service/chat"
	"github.com/vetlink/companion/backend/internal/store"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	roles := role.NewMemoryStore(role.Seed())
	chatSvc := chatService.NewService(roles, chatService.Deps{})
	t.Cleanup(chatSvc.CloseAll)
	return NewRouter(Options{Roles: roles, Chat: chatSvc, Transcripts: store.NewMemory()})
}

func TestRouterServesHealthAndRoles(t *testing.T) {
	r := newTestRouter(t)

	for _, path := range []string{"/healthz", "/api/roles", "/api/admin/flags", "/api/admin/audit"} {
		resp := httptest.NewRecorder()
		r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, path, nil))
		if resp.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, resp.Code)
		}
	}
}

func TestRouterCORSPreflight(t *testing.T) {
	r := newTestRouter(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/session", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Content-Type")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if resp.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatal("expected CORS header")
	}
	if resp.Body.Len() != 0 {
		t.Fatalf("preflight must not reach handlers, got %q", resp.Body.String())
	}
}

func TestRouterCORSOnActualRequest(t *testing.T) {
	r := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/roles", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if resp.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatal("expected CORS header")
	}
}

func TestRouterSessionWithoutGatewayStillReplies(t *testing.T) {
	r := newTestRouter(t)

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/session", bytes.NewBufferString(`{"roleId":"`+role.Family+`"}`)))
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.Code, resp.Body.String())
	}
}
