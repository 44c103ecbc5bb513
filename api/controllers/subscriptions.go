package controllers

import (
	"net/http"

	"github.com/bazaarly/bazaarly-backend/api/middleware"
	"github.com/bazaarly/bazaarly-backend/api/responses"
	"github.com/bazaarly/bazaarly-backend/api/validators"
	"github.com/bazaarly/bazaarly-backend/internal/subscriptions"
	pkgerrors "github.com/bazaarly/bazaarly-backend/pkg/errors"
	"github.com/bazaarly/bazaarly-backend/pkg/logger"
)

// CreateSubscriptionBox opens a recurring box with prices locked from
// the current catalog.
func CreateSubscriptionBox(svc subscriptions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "subscriptions service unavailable"))
			return
		}

		var input subscriptions.CreateBoxInput
		if err := validators.DecodeJSONBody(r, &input); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		box, err := svc.CreateBox(r.Context(), middleware.ActorIDFromContext(r.Context()), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, box)
	}
}

// ListSubscriptionBoxes returns all of the buyer's boxes.
func ListSubscriptionBoxes(svc subscriptions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "subscriptions service unavailable"))
			return
		}

		boxes, err := svc.ListBoxes(r.Context(), middleware.ActorIDFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, boxes)
	}
}

// GetSubscriptionBox returns one of the buyer's boxes.
func GetSubscriptionBox(svc subscriptions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "subscriptions service unavailable"))
			return
		}

		boxID, err := parsePathUUID(r, "boxId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		box, err := svc.GetBox(r.Context(), middleware.ActorIDFromContext(r.Context()), boxID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, box)
	}
}

// UpdateSubscriptionBox edits name, cadence, payment method, or lines.
func UpdateSubscriptionBox(svc subscriptions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "subscriptions service unavailable"))
			return
		}

		boxID, err := parsePathUUID(r, "boxId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var input subscriptions.UpdateBoxInput
		if err := validators.DecodeJSONBody(r, &input); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		box, err := svc.UpdateBox(r.Context(), middleware.ActorIDFromContext(r.Context()), boxID, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, box)
	}
}

// PauseSubscriptionBox stops the recurring billing run from touching
// the box until it is resumed.
func PauseSubscriptionBox(svc subscriptions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "subscriptions service unavailable"))
			return
		}

		boxID, err := parsePathUUID(r, "boxId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.PauseBox(r.Context(), middleware.ActorIDFromContext(r.Context()), boxID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "paused"})
	}
}

// ResumeSubscriptionBox reactivates a paused box.
func ResumeSubscriptionBox(svc subscriptions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "subscriptions service unavailable"))
			return
		}

		boxID, err := parsePathUUID(r, "boxId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.ResumeBox(r.Context(), middleware.ActorIDFromContext(r.Context()), boxID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "active"})
	}
}
