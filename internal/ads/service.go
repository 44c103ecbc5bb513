package ads

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/bazaarly/bazaarly-backend/internal/products"
	"github.com/bazaarly/bazaarly-backend/internal/wallet"
	dbpkg "github.com/bazaarly/bazaarly-backend/pkg/db"
	"github.com/bazaarly/bazaarly-backend/pkg/db/models"
	"github.com/bazaarly/bazaarly-backend/pkg/enums"
	pkgerrors "github.com/bazaarly/bazaarly-backend/pkg/errors"
	"github.com/bazaarly/bazaarly-backend/pkg/logger"
	"github.com/bazaarly/bazaarly-backend/pkg/outbox"
	"github.com/bazaarly/bazaarly-backend/pkg/outbox/payloads"
	"github.com/bazaarly/bazaarly-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// CreateAdInput describes a new pay-per-click promotion.
type CreateAdInput struct {
	ProductID    uuid.UUID `json:"product_id" validate:"required"`
	Title        string    `json:"title" validate:"required"`
	ImageURL     *string   `json:"image_url"`
	CostPerClick int64     `json:"cost_per_click_cents" validate:"required,gt=0"`
	BudgetCents  int64     `json:"budget_cents" validate:"required,gt=0"`
}

// UpdateAdInput adjusts an existing ad. AddBudgetCents tops the budget
// up and reactivates the ad when the new budget covers a click.
type UpdateAdInput struct {
	Title          *string `json:"title"`
	ImageURL       *string `json:"image_url"`
	CostPerClick   *int64  `json:"cost_per_click_cents" validate:"omitempty,gt=0"`
	AddBudgetCents int64   `json:"add_budget_cents" validate:"omitempty,gt=0"`
}

// ClickResult reports the outcome of one billed click.
type ClickResult struct {
	Click           *models.AdClick
	RemainingBudget int64
	AdStatus        enums.AdStatus
	AlreadyBilled   bool
}

// Performance aggregates an ad's lifetime counters.
type Performance struct {
	AdID        uuid.UUID      `json:"ad_id"`
	Clicks      int64          `json:"clicks"`
	Views       int64          `json:"views"`
	SpendCents  int64          `json:"spend_cents"`
	BudgetCents int64          `json:"budget_cents"`
	Status      enums.AdStatus `json:"status"`
}

// BidRange summarizes the current cost-per-click market across active ads.
type BidRange struct {
	MinCents int64  `json:"min_cents"`
	MaxCents int64  `json:"max_cents"`
	AvgCents string `json:"avg_cents"`
}

// Service is the ad billing engine.
type Service interface {
	CreateAd(ctx context.Context, vendorID uuid.UUID, input CreateAdInput) (*models.Ad, error)
	UpdateAd(ctx context.Context, vendorID, adID uuid.UUID, input UpdateAdInput) (*models.Ad, error)
	GetAd(ctx context.Context, adID uuid.UUID) (*models.Ad, error)
	ListVendorAds(ctx context.Context, vendorID uuid.UUID, params pagination.Params) (pagination.Page[models.Ad], error)
	TopAds(ctx context.Context, limit int) ([]models.Ad, error)
	RecordClick(ctx context.Context, clickID, adID uuid.UUID, userID *uuid.UUID) (*ClickResult, error)
	RecordView(ctx context.Context, adID uuid.UUID) error
	AdPerformance(ctx context.Context, vendorID, adID uuid.UUID) (*Performance, error)
	BidRange(ctx context.Context) (*BidRange, error)
}

// ServiceParams wires the ad billing service dependencies.
type ServiceParams struct {
	Repo     Repository
	Products products.Repository
	Wallets  wallet.Service
	Tx       txRunner
	Outbox   *outbox.Service
	Logger   *logger.Logger
}

type service struct {
	repo     Repository
	products products.Repository
	wallets  wallet.Service
	tx       txRunner
	outbox   *outbox.Service
	logg     *logger.Logger
}

// NewService wires the ad billing engine.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("ads repository required")
	}
	if params.Products == nil {
		return nil, fmt.Errorf("products repository required")
	}
	if params.Wallets == nil {
		return nil, fmt.Errorf("wallet service required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:     params.Repo,
		products: params.Products,
		wallets:  params.Wallets,
		tx:       params.Tx,
		outbox:   params.Outbox,
		logg:     params.Logger,
	}, nil
}

func (s *service) CreateAd(ctx context.Context, vendorID uuid.UUID, input CreateAdInput) (*models.Ad, error) {
	if vendorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor id required")
	}
	if input.CostPerClick <= 0 || input.BudgetCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cost per click and budget must be positive")
	}

	var created *models.Ad
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		productRepo := s.products.WithTx(tx)

		product, err := productRepo.GetByID(ctx, input.ProductID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading product")
		}
		if product.VendorID != vendorID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "product belongs to another vendor")
		}

		active, err := repo.HasActiveForProduct(ctx, input.ProductID, uuid.Nil)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "checking active ads")
		}
		if active {
			return pkgerrors.New(pkgerrors.CodeConflict, "product already has an active ad")
		}

		// Soft pre-check only. Spend is billed per click, not reserved.
		balance, err := s.wallets.WithTx(tx).Balance(ctx, wallet.VendorOwner(vendorID))
		if err != nil {
			return err
		}
		if balance < input.BudgetCents {
			return pkgerrors.New(pkgerrors.CodeInsufficientFunds, "wallet balance below requested budget")
		}

		ad := &models.Ad{
			ID:               uuid.New(),
			VendorID:         vendorID,
			ProductID:        input.ProductID,
			Title:            input.Title,
			ImageURL:         input.ImageURL,
			CostPerClick:     input.CostPerClick,
			BudgetCents:      input.BudgetCents,
			TotalBudgetCents: input.BudgetCents,
			Status:           enums.AdStatusActive,
		}
		if err := repo.Create(ctx, ad); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "creating ad")
		}
		if err := productRepo.SetBoosted(ctx, input.ProductID, true); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "boosting product")
		}
		created = ad
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *service) UpdateAd(ctx context.Context, vendorID, adID uuid.UUID, input UpdateAdInput) (*models.Ad, error) {
	var updated *models.Ad
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		ad, err := s.ownedAd(ctx, repo, vendorID, adID)
		if err != nil {
			return err
		}

		if input.Title != nil {
			ad.Title = *input.Title
		}
		if input.ImageURL != nil {
			ad.ImageURL = input.ImageURL
		}
		if input.CostPerClick != nil {
			if *input.CostPerClick <= 0 {
				return pkgerrors.New(pkgerrors.CodeValidation, "cost per click must be positive")
			}
			ad.CostPerClick = *input.CostPerClick
		}
		if err := repo.Save(ctx, ad); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "updating ad")
		}

		if input.AddBudgetCents > 0 {
			budget, err := repo.AddBudget(ctx, ad.ID, input.AddBudgetCents)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "topping up ad budget")
			}
			ad.BudgetCents = budget
			ad.TotalBudgetCents += input.AddBudgetCents

			// A top-up that covers a click brings the ad back online.
			if ad.Status == enums.AdStatusInactive && budget >= ad.CostPerClick {
				if err := repo.SetStatus(ctx, ad.ID, enums.AdStatusActive); err != nil {
					return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reactivating ad")
				}
				if err := s.products.WithTx(tx).SetBoosted(ctx, ad.ProductID, true); err != nil {
					return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "boosting product")
				}
				ad.Status = enums.AdStatusActive
			}
		}
		updated = ad
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *service) GetAd(ctx context.Context, adID uuid.UUID) (*models.Ad, error) {
	ad, err := s.repo.GetByID(ctx, adID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "ad not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading ad")
	}
	return ad, nil
}

func (s *service) ListVendorAds(ctx context.Context, vendorID uuid.UUID, params pagination.Params) (pagination.Page[models.Ad], error) {
	var empty pagination.Page[models.Ad]
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return empty, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.ListByVendor(ctx, vendorID, cursor, pagination.LimitWithBuffer(params.Limit))
	if err != nil {
		return empty, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing ads")
	}
	return pagination.BuildPage(rows, params.Limit, func(a models.Ad) pagination.Cursor {
		return pagination.Cursor{CreatedAt: a.CreatedAt, ID: a.ID}
	}), nil
}

func (s *service) TopAds(ctx context.Context, limit int) ([]models.Ad, error) {
	rows, err := s.repo.ListTop(ctx, pagination.NormalizeLimit(limit))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing top ads")
	}
	return rows, nil
}

// RecordClick bills one click against the ad budget and the vendor
// wallet. The click id comes from the caller so a redelivered report
// collides on the primary key and returns the original outcome
// instead of billing twice.
func (s *service) RecordClick(ctx context.Context, clickID, adID uuid.UUID, userID *uuid.UUID) (*ClickResult, error) {
	if clickID == uuid.Nil || adID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "click id and ad id required")
	}

	var result *ClickResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		ad, err := repo.GetByID(ctx, adID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "ad not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading ad")
		}
		if ad.Status != enums.AdStatusActive {
			return pkgerrors.New(pkgerrors.CodeAdInactive, "ad is not active")
		}
		if ad.BudgetCents < ad.CostPerClick {
			return pkgerrors.New(pkgerrors.CodeBudgetExhausted, "ad budget below cost per click")
		}

		click := &models.AdClick{
			ID:        clickID,
			AdID:      ad.ID,
			UserID:    userID,
			CostCents: ad.CostPerClick,
		}
		if err := repo.CreateClick(ctx, click); err != nil {
			if dbpkg.IsUniqueViolation(err, "") {
				return errDuplicateClick
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "recording click")
		}

		budget, err := repo.DeductBudgetForClick(ctx, ad.ID, ad.CostPerClick)
		if err != nil {
			// Lost a race with a concurrent click: re-read for the right code.
			if errors.Is(err, gorm.ErrRecordNotFound) {
				fresh, readErr := repo.GetByID(ctx, ad.ID)
				if readErr == nil && fresh.Status != enums.AdStatusActive {
					return pkgerrors.New(pkgerrors.CodeAdInactive, "ad is not active")
				}
				return pkgerrors.New(pkgerrors.CodeBudgetExhausted, "ad budget below cost per click")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "metering ad budget")
		}

		// The vendor wallet pays for the click; insufficient funds
		// rolls back the click row and the budget decrement together.
		if _, err := s.wallets.WithTx(tx).Debit(ctx, wallet.MovementInput{
			Owner:       wallet.VendorOwner(ad.VendorID),
			AmountCents: ad.CostPerClick,
			Description: fmt.Sprintf("ad click for product %s", ad.ProductID),
			Reference:   clickID.String(),
		}); err != nil {
			return err
		}

		if err := repo.CreateTransaction(ctx, &models.AdTransaction{
			ID:               uuid.New(),
			AdID:             ad.ID,
			VendorID:         ad.VendorID,
			ClickID:          clickID,
			AmountCents:      ad.CostPerClick,
			BudgetAfterCents: budget,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "recording ad transaction")
		}

		status := enums.AdStatusActive
		if budget < ad.CostPerClick || budget <= 0 {
			if err := repo.SetStatus(ctx, ad.ID, enums.AdStatusInactive); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "deactivating ad")
			}
			if err := s.products.WithTx(tx).SetBoosted(ctx, ad.ProductID, false); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "clearing product boost")
			}
			status = enums.AdStatusInactive
			s.emitBudgetExhausted(ctx, tx, ad, budget)
		}

		result = &ClickResult{Click: click, RemainingBudget: budget, AdStatus: status}
		return nil
	})
	if errors.Is(err, errDuplicateClick) {
		return s.existingClickResult(ctx, clickID, adID)
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

var errDuplicateClick = errors.New("duplicate click")

// existingClickResult serves a redelivered click report from the
// already-billed row.
func (s *service) existingClickResult(ctx context.Context, clickID, adID uuid.UUID) (*ClickResult, error) {
	click, err := s.repo.GetClick(ctx, clickID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading existing click")
	}
	ad, err := s.repo.GetByID(ctx, adID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading ad")
	}
	return &ClickResult{
		Click:           click,
		RemainingBudget: ad.BudgetCents,
		AdStatus:        ad.Status,
		AlreadyBilled:   true,
	}, nil
}

func (s *service) emitBudgetExhausted(ctx context.Context, tx *gorm.DB, ad *models.Ad, budget int64) {
	if s.outbox == nil {
		return
	}
	err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventAdBudgetExhausted,
		AggregateType: enums.AggregateAd,
		AggregateID:   ad.ID.String(),
		Data: payloads.AdBudgetExhausted{
			AdID:            ad.ID,
			VendorID:        ad.VendorID,
			RemainingBudget: budget,
		},
	})
	if err != nil {
		s.logg.Error(ctx, "emitting budget exhausted event", err)
	}
}

func (s *service) RecordView(ctx context.Context, adID uuid.UUID) error {
	if adID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "ad id required")
	}
	if err := s.repo.IncrementViews(ctx, adID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "incrementing views")
	}
	return nil
}

func (s *service) AdPerformance(ctx context.Context, vendorID, adID uuid.UUID) (*Performance, error) {
	ad, err := s.ownedAd(ctx, s.repo, vendorID, adID)
	if err != nil {
		return nil, err
	}
	spend, err := s.repo.SpendCents(ctx, adID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "summing ad spend")
	}
	return &Performance{
		AdID:        ad.ID,
		Clicks:      ad.Clicks,
		Views:       ad.Views,
		SpendCents:  spend,
		BudgetCents: ad.BudgetCents,
		Status:      ad.Status,
	}, nil
}

func (s *service) BidRange(ctx context.Context) (*BidRange, error) {
	stats, err := s.repo.ActiveBidStats(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading bid stats")
	}
	out := &BidRange{MinCents: stats.MinCents, MaxCents: stats.MaxCents, AvgCents: "0"}
	if stats.Count > 0 {
		avg := decimal.NewFromInt(stats.SumCents).
			Div(decimal.NewFromInt(stats.Count)).
			Round(2)
		out.AvgCents = avg.String()
	}
	return out, nil
}

func (s *service) ownedAd(ctx context.Context, repo Repository, vendorID, adID uuid.UUID) (*models.Ad, error) {
	ad, err := repo.GetByID(ctx, adID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "ad not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading ad")
	}
	if ad.VendorID != vendorID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "ad belongs to another vendor")
	}
	return ad, nil
}
