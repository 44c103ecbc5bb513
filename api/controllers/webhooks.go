package controllers

import (
	"io"
	"net/http"

	"github.com/bazaarly/bazaarly-backend/api/responses"
	gatewaysvc "github.com/bazaarly/bazaarly-backend/internal/webhooks/gateway"
	pkgerrors "github.com/bazaarly/bazaarly-backend/pkg/errors"
	"github.com/bazaarly/bazaarly-backend/pkg/gateway"
	"github.com/bazaarly/bazaarly-backend/pkg/logger"
)

const maxWebhookBodyBytes = 1 << 20

// GatewayWebhook ingests payment confirmations from the external
// gateway. Signature verification and replay protection happen inside
// the service, so this handler only moves bytes.
func GatewayWebhook(svc gatewaysvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "gateway service unavailable"))
			return
		}

		payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodyBytes))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		result, err := svc.HandleEvent(ctx, payload, r.Header.Get(gateway.SignatureHeader))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
