package controllers

import (
	"net/http"

	"github.com/bazaarly/bazaarly-backend/api/middleware"
	"github.com/bazaarly/bazaarly-backend/api/responses"
	"github.com/bazaarly/bazaarly-backend/api/validators"
	"github.com/bazaarly/bazaarly-backend/internal/wallet"
	pkgerrors "github.com/bazaarly/bazaarly-backend/pkg/errors"
	"github.com/bazaarly/bazaarly-backend/pkg/logger"
)

// GetWallet returns the acting party's wallet, creating it lazily on
// first access.
func GetWallet(svc wallet.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "wallet service unavailable"))
			return
		}

		owner := wallet.OwnerRef{
			ID:   middleware.ActorIDFromContext(r.Context()),
			Kind: middleware.ActorKindFromContext(r.Context()),
		}
		wal, err := svc.GetOrCreate(r.Context(), owner)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, wal)
	}
}

// WithdrawWallet drains the vendor's full balance and records the
// debit. The payout itself is processed asynchronously.
func WithdrawWallet(svc wallet.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "wallet service unavailable"))
			return
		}

		owner := wallet.OwnerRef{
			ID:   middleware.ActorIDFromContext(r.Context()),
			Kind: middleware.ActorKindFromContext(r.Context()),
		}
		txn, err := svc.Withdraw(r.Context(), owner)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, txn)
	}
}

// ListWalletTransactions pages through the acting party's ledger,
// newest first.
func ListWalletTransactions(svc wallet.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "wallet service unavailable"))
			return
		}

		params, err := validators.ParsePagination(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		owner := wallet.OwnerRef{
			ID:   middleware.ActorIDFromContext(r.Context()),
			Kind: middleware.ActorKindFromContext(r.Context()),
		}
		page, err := svc.ListTransactions(r.Context(), owner, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}
