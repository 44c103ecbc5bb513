package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/bazaarly/bazaarly-backend/pkg/config"
	"github.com/bazaarly/bazaarly-backend/pkg/enums"
)

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{
		Secret:            "test-secret",
		Issuer:            "bazaarly-test",
		ExpirationMinutes: 15,
	}
}

func TestMintAndParseRoundTrip(t *testing.T) {
	cfg := testJWTConfig()
	actorID := uuid.New()

	token, err := MintAccessToken(cfg, time.Now(), AccessTokenPayload{
		ActorID:   actorID,
		ActorKind: enums.WalletOwnerKindVendor,
	})
	if err != nil {
		t.Fatalf("MintAccessToken: %v", err)
	}

	claims, err := ParseAccessToken(cfg, token)
	if err != nil {
		t.Fatalf("ParseAccessToken: %v", err)
	}
	if claims.ActorID != actorID {
		t.Fatalf("expected actor %s, got %s", actorID, claims.ActorID)
	}
	if claims.ActorKind != enums.WalletOwnerKindVendor {
		t.Fatalf("expected vendor kind, got %s", claims.ActorKind)
	}
	if claims.ID == "" {
		t.Fatal("expected generated jti")
	}
}

func TestParseRejectsExpiredToken(t *testing.T) {
	cfg := testJWTConfig()
	token, err := MintAccessToken(cfg, time.Now().Add(-time.Hour), AccessTokenPayload{
		ActorID:   uuid.New(),
		ActorKind: enums.WalletOwnerKindUser,
	})
	if err != nil {
		t.Fatalf("MintAccessToken: %v", err)
	}
	if _, err := ParseAccessToken(cfg, token); err == nil {
		t.Fatal("expected expired token to be rejected")
	}
}

func TestParseRejectsWrongSecret(t *testing.T) {
	cfg := testJWTConfig()
	token, err := MintAccessToken(cfg, time.Now(), AccessTokenPayload{
		ActorID:   uuid.New(),
		ActorKind: enums.WalletOwnerKindUser,
	})
	if err != nil {
		t.Fatalf("MintAccessToken: %v", err)
	}

	other := cfg
	other.Secret = "different-secret"
	if _, err := ParseAccessToken(other, token); err == nil {
		t.Fatal("expected signature mismatch to be rejected")
	}
}

func TestMintRejectsInvalidActorKind(t *testing.T) {
	_, err := MintAccessToken(testJWTConfig(), time.Now(), AccessTokenPayload{
		ActorID:   uuid.New(),
		ActorKind: enums.WalletOwnerKind("robot"),
	})
	if err == nil {
		t.Fatal("expected invalid actor kind to be rejected")
	}
}
