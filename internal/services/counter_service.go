package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	domain "github.com/StevenEgasJ/HomeworkOrders/internal/domain"
	"github.com/StevenEgasJ/HomeworkOrders/internal/repositories"
)

// OrderCounterName is the sequence that numbers orders.
const OrderCounterName = "order"

var (
	// ErrCounterInvalidInput indicates the caller supplied invalid counter parameters.
	ErrCounterInvalidInput = errors.New("counter: invalid input")
	// ErrCounterUnavailable indicates the sequence store failed or holds corrupt data.
	ErrCounterUnavailable = errors.New("counter: unavailable")
)

// CounterServiceDeps bundles collaborators required to construct a counter service instance.
type CounterServiceDeps struct {
	Repository repositories.CounterRepository
}

type counterService struct {
	repo repositories.CounterRepository
}

// NewCounterService constructs a service that allocates sequence values from the repository.
func NewCounterService(deps CounterServiceDeps) (CounterService, error) {
	if deps.Repository == nil {
		return nil, errors.New("counter service: repository is required")
	}
	return &counterService{repo: deps.Repository}, nil
}

func (s *counterService) NextValue(ctx context.Context, name string) (int64, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, fmt.Errorf("%w: name is required", ErrCounterInvalidInput)
	}

	value, err := s.repo.Next(ctx, name)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return 0, err
		}
		var counterErr *repositories.CounterError
		if errors.As(err, &counterErr) && counterErr.Code == repositories.CounterErrorInvalidInput {
			return 0, fmt.Errorf("%w: %s", ErrCounterInvalidInput, counterErr.Message)
		}
		return 0, fmt.Errorf("%w: %v", ErrCounterUnavailable, err)
	}
	return value, nil
}

func (s *counterService) NextOrderPublicID(ctx context.Context) (string, error) {
	value, err := s.NextValue(ctx, OrderCounterName)
	if err != nil {
		return "", err
	}
	return domain.FormatPublicID(value), nil
}
