package deal

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"pipeline-crm/pkg/utils"

	"go.uber.org/zap"
)

// ErrValidation wraps input validation failures; controllers map it to 400.
var ErrValidation = errors.New("validation failed")

// DealInput carries caller-supplied fields. Nil pointers mean "not supplied"
// so updates can merge with the stored deal before validation.
type DealInput struct {
	Client   *string  `json:"client"`
	Status   *string  `json:"status"`
	Amount   *float64 `json:"amount"`
	Sector   *string  `json:"sector"`
	DueDate  *string  `json:"dueDate"`
	Assignee *string  `json:"assignee"`
	Notes    *string  `json:"notes"`
}

type DealService interface {
	ListDeals(ctx context.Context, filters Filters) ([]Deal, error)
	CreateDeal(ctx context.Context, input DealInput) (*Deal, error)
	UpdateDeal(ctx context.Context, id string, input DealInput) (*Deal, error)
	DeleteDeal(ctx context.Context, id string) error
	ClearDeals(ctx context.Context) error
}

type DealServiceImpl struct {
	Repo   DealRepository
	Logger *zap.Logger
}

func NewDealService(repo DealRepository, logger *zap.Logger) DealService {
	return &DealServiceImpl{
		Repo:   repo,
		Logger: logger,
	}
}

func (s *DealServiceImpl) ListDeals(ctx context.Context, filters Filters) ([]Deal, error) {
	return s.Repo.List(ctx, filters)
}

func (s *DealServiceImpl) CreateDeal(ctx context.Context, input DealInput) (*Deal, error) {
	d := &Deal{}
	applyInput(d, input)

	if err := validateDeal(d); err != nil {
		return nil, err
	}

	// Derived fields are always recomputed, never taken from the caller
	d.Probability = Probability(d.Status)
	d.WeightedValue = WeightedValue(d.Amount, d.Probability)

	if err := s.Repo.Insert(ctx, d); err != nil {
		return nil, err
	}

	s.Logger.Info("deal created", zap.String("client", d.Client))
	return d, nil
}

func (s *DealServiceImpl) UpdateDeal(ctx context.Context, id string, input DealInput) (*Deal, error) {
	existing, err := s.Repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	// Merge supplied fields over the stored deal, then validate the whole
	merged := *existing
	applyInput(&merged, input)

	if err := validateDeal(&merged); err != nil {
		return nil, err
	}

	merged.Probability = Probability(merged.Status)
	merged.WeightedValue = WeightedValue(merged.Amount, merged.Probability)

	if err := s.Repo.Update(ctx, id, &merged); err != nil {
		return nil, err
	}

	return &merged, nil
}

func (s *DealServiceImpl) DeleteDeal(ctx context.Context, id string) error {
	return s.Repo.Delete(ctx, id)
}

func (s *DealServiceImpl) ClearDeals(ctx context.Context) error {
	s.Logger.Warn("clearing all deals")
	return s.Repo.Clear(ctx)
}

func applyInput(d *Deal, input DealInput) {
	if input.Client != nil {
		d.Client = strings.TrimSpace(*input.Client)
	}
	if input.Status != nil {
		d.Status = strings.ToLower(strings.TrimSpace(*input.Status))
	}
	if input.Amount != nil {
		d.Amount = *input.Amount
	}
	if input.Sector != nil {
		d.Sector = strings.TrimSpace(*input.Sector)
	}
	if input.DueDate != nil {
		d.DueDate = strings.TrimSpace(*input.DueDate)
	}
	if input.Assignee != nil {
		d.Assignee = strings.TrimSpace(*input.Assignee)
	}
	if input.Notes != nil {
		d.Notes = strings.TrimSpace(*input.Notes)
	}
}

func validateDeal(d *Deal) error {
	var errs []string

	if d.Client == "" {
		errs = append(errs, "client name cannot be empty")
	}
	if !IsValidStatus(d.Status) {
		errs = append(errs, fmt.Sprintf("invalid status, accepted values: %s", strings.Join(ValidStatuses(), ", ")))
	}
	if d.Amount <= 0 {
		errs = append(errs, "amount must be greater than 0")
	}
	if d.DueDate != "" {
		parsed, err := utils.ParseDate(d.DueDate)
		if err != nil {
			errs = append(errs, "invalid due date, accepted formats: YYYY-MM-DD, DD/MM/YYYY")
		} else {
			d.DueDate = parsed
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrValidation, strings.Join(errs, "; "))
	}
	return nil
}
