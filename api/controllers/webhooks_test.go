package controllers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	gatewaysvc "github.com/bazaarly/bazaarly-backend/internal/webhooks/gateway"
	pkgerrors "github.com/bazaarly/bazaarly-backend/pkg/errors"
	"github.com/bazaarly/bazaarly-backend/pkg/gateway"
	"github.com/bazaarly/bazaarly-backend/pkg/logger"
)

type testGatewayService struct {
	handleFn func(ctx context.Context, payload []byte, signature string) (*gatewaysvc.Result, error)
}

func (s *testGatewayService) HandleEvent(ctx context.Context, payload []byte, signature string) (*gatewaysvc.Result, error) {
	if s.handleFn != nil {
		return s.handleFn(ctx, payload, signature)
	}
	return &gatewaysvc.Result{}, nil
}

func discardLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func TestGatewayWebhookPassesBodyAndSignature(t *testing.T) {
	body := `{"event_id":"evt_1","event_type":"topup.succeeded"}`
	var gotPayload string
	var gotSignature string
	svc := &testGatewayService{
		handleFn: func(ctx context.Context, payload []byte, signature string) (*gatewaysvc.Result, error) {
			gotPayload = string(payload)
			gotSignature = signature
			return &gatewaysvc.Result{EventID: "evt_1", Applied: "topup", AmountCents: 2500}, nil
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/gateway", strings.NewReader(body))
	req.Header.Set(gateway.SignatureHeader, "deadbeef")
	resp := httptest.NewRecorder()
	GatewayWebhook(svc, discardLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.Code)
	}
	if gotPayload != body {
		t.Fatalf("payload not forwarded: %q", gotPayload)
	}
	if gotSignature != "deadbeef" {
		t.Fatalf("signature not forwarded: %q", gotSignature)
	}

	var envelope struct {
		Data gatewaysvc.Result `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.EventID != "evt_1" || envelope.Data.AmountCents != 2500 {
		t.Fatalf("unexpected result %+v", envelope.Data)
	}
}

func TestGatewayWebhookRejectsBadSignature(t *testing.T) {
	svc := &testGatewayService{
		handleFn: func(ctx context.Context, payload []byte, signature string) (*gatewaysvc.Result, error) {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "signature mismatch")
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/gateway", strings.NewReader("{}"))
	resp := httptest.NewRecorder()
	GatewayWebhook(svc, discardLogger())(resp, req)

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}

func TestGatewayWebhookNilService(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/gateway", strings.NewReader("{}"))
	resp := httptest.NewRecorder()
	GatewayWebhook(nil, discardLogger())(resp, req)

	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.Code)
	}
}
