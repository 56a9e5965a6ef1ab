package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestRequireNotAgent(t *testing.T) {
	if err := RequireNotAgent(Actor{ID: "alice", Kind: ActorKindHuman}, "approve"); err != nil {
		t.Fatalf("human blocked: %v", err)
	}
	if err := RequireNotAgent(Actor{ID: "cron", Kind: ActorKindSystem}, "approve"); err != nil {
		t.Fatalf("system blocked: %v", err)
	}

	err := RequireNotAgent(Actor{ID: "bot-7", Kind: ActorKindAgent}, "approve")
	if err == nil {
		t.Fatal("agent allowed")
	}
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("error is not a StatusError: %v", err)
	}
	if se.Status != http.StatusForbidden || se.Code != "AGENT_FORBIDDEN" {
		t.Fatalf("unexpected status error: %+v", se)
	}
}

func signToken(t *testing.T, secret []byte, claims Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func TestMiddlewareResolvesActorAndTenant(t *testing.T) {
	secret := []byte("test-secret")
	var gotActor Actor
	var gotTenant string

	handler := Middleware(secret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotActor, _ = ActorFromContext(r.Context())
		gotTenant, _ = TenantFromContext(r.Context())
	}))

	token := signToken(t, secret, Claims{
		TenantID:  "tenant-1",
		ActorKind: ActorKindAgent,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "bot-7",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if gotActor.ID != "bot-7" || gotActor.Kind != ActorKindAgent {
		t.Fatalf("actor = %+v", gotActor)
	}
	if gotTenant != "tenant-1" {
		t.Fatalf("tenant = %q", gotTenant)
	}
}

func TestMiddlewareDefaultsKindToHuman(t *testing.T) {
	secret := []byte("test-secret")
	var gotActor Actor
	handler := Middleware(secret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotActor, _ = ActorFromContext(r.Context())
	}))

	token := signToken(t, secret, Claims{
		TenantID: "tenant-1",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "alice",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if gotActor.Kind != ActorKindHuman {
		t.Fatalf("kind = %q, want human", gotActor.Kind)
	}
}

func TestMiddlewareRejectsBadTokens(t *testing.T) {
	secret := []byte("test-secret")
	handler := Middleware(secret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler reached with invalid auth")
	}))

	// No header.
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no header: status = %d", rec.Code)
	}

	// Wrong secret.
	token := signToken(t, []byte("other-secret"), Claims{
		TenantID: "tenant-1",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "alice",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong secret: status = %d", rec.Code)
	}

	// Missing tenant claim.
	token = signToken(t, secret, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "alice",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	req = httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing tenant: status = %d", rec.Code)
	}
}
