package usecase

import (
	"context"
	"fmt"
	"time"

	"CoinFlow/internal/domain/models"
	"CoinFlow/internal/domain/repository"
)

// AlertService is the user-facing CRUD over price alerts.
type AlertService struct {
	repo           repository.AlertRepository
	referenceQuote string
	now            func() time.Time
}

func NewAlertService(repo repository.AlertRepository, referenceQuote string) *AlertService {
	if referenceQuote == "" {
		referenceQuote = "USD"
	}
	return &AlertService{repo: repo, referenceQuote: referenceQuote, now: time.Now}
}

func (s *AlertService) CreateAlert(ctx context.Context, userID int64, asset string, cond models.Condition, target float64) (*models.Alert, error) {
	pair, err := models.ParseAsset(asset, s.referenceQuote)
	if err != nil {
		return nil, err
	}
	if cond != models.ConditionAbove && cond != models.ConditionBelow {
		return nil, fmt.Errorf("%w: got %q", models.ErrInvalidCondition, cond)
	}
	if !validPrice(target) {
		return nil, fmt.Errorf("%w: target %v", models.ErrInvalidAmount, target)
	}

	a := &models.Alert{
		UserID:      userID,
		AssetSymbol: pair.AssetKey(s.referenceQuote),
		Condition:   cond,
		TargetPrice: target,
		Active:      true,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.repo.CreateAlert(ctx, a); err != nil {
		return nil, fmt.Errorf("create alert: %w", err)
	}
	return a, nil
}

func (s *AlertService) ListAlerts(ctx context.Context, userID int64, activeOnly bool) ([]*models.Alert, error) {
	alerts, err := s.repo.ListAlerts(ctx, userID, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	return alerts, nil
}

// DeleteAlert removes one of the user's alerts; ErrAlertNotFound otherwise.
func (s *AlertService) DeleteAlert(ctx context.Context, id, userID int64) error {
	return s.repo.DeleteAlert(ctx, id, userID)
}
