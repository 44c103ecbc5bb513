package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	pkgAuth "github.com/bazaarly/bazaarly-backend/pkg/auth"
	"github.com/bazaarly/bazaarly-backend/pkg/config"
	"github.com/bazaarly/bazaarly-backend/pkg/enums"
	"github.com/bazaarly/bazaarly-backend/pkg/logger"
)

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{
		Secret:            "middleware-test-secret",
		Issuer:            "bazaarly-test",
		ExpirationMinutes: 5,
	}
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Level: zerolog.Disabled})
}

func TestAuthSeedsActorContext(t *testing.T) {
	cfg := testJWTConfig()
	vendorID := uuid.New()
	token, err := pkgAuth.MintAccessToken(cfg, time.Now(), pkgAuth.AccessTokenPayload{
		ActorID:   vendorID,
		ActorKind: enums.WalletOwnerKindVendor,
	})
	if err != nil {
		t.Fatalf("MintAccessToken: %v", err)
	}

	var gotID uuid.UUID
	var gotKind enums.WalletOwnerKind
	handler := Auth(cfg, testLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID = ActorIDFromContext(r.Context())
		gotKind = ActorKindFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/wallet", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if gotID != vendorID || gotKind != enums.WalletOwnerKindVendor {
		t.Fatalf("actor not propagated: id=%s kind=%s", gotID, gotKind)
	}
}

func TestAuthRejectsMissingAndInvalidTokens(t *testing.T) {
	cfg := testJWTConfig()
	handler := Auth(cfg, testLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	for name, header := range map[string]string{
		"missing":   "",
		"empty":     "Bearer ",
		"malformed": "Bearer not-a-jwt",
	} {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/wallet", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", name, rec.Code)
		}
	}
}

func TestRequireKindBlocksWrongActor(t *testing.T) {
	handler := RequireKind(enums.WalletOwnerKindVendor, testLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/ads/vendor", nil)
	req = req.WithContext(WithActor(req.Context(), uuid.New(), enums.WalletOwnerKindUser))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/ads/vendor", nil)
	req = req.WithContext(WithActor(req.Context(), uuid.New(), enums.WalletOwnerKindVendor))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
}
