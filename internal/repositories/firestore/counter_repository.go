package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	pfirestore "github.com/StevenEgasJ/HomeworkOrders/internal/platform/firestore"
	"github.com/StevenEgasJ/HomeworkOrders/internal/repositories"
)

const (
	countersCollection = "sequences"
	// Every placement contends on one document, so allow more attempts than the default.
	counterTxAttempts  = 10
)

type counterDocument struct {
	Name      string    `firestore:"name"`
	Value     int64     `firestore:"value"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

// CounterRepository implements repositories.CounterRepository backed by Firestore transactions.
type CounterRepository struct {
	provider *pfirestore.Provider
	counters *pfirestore.BaseRepository[counterDocument]
	clock    func() time.Time
}

var _ repositories.CounterRepository = (*CounterRepository)(nil)

// NewCounterRepository constructs a Firestore-backed counter repository.
func NewCounterRepository(provider *pfirestore.Provider) (*CounterRepository, error) {
	if provider == nil {
		return nil, errors.New("counter repository requires firestore provider")
	}
	return &CounterRepository{
		provider: provider,
		counters: pfirestore.NewBaseRepository[counterDocument](provider, countersCollection),
		clock:    time.Now,
	}, nil
}

// Next atomically increments the named counter and returns the new value. The read and the
// write share one transaction, so Firestore retries the whole unit on contention.
func (r *CounterRepository) Next(ctx context.Context, name string) (int64, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, repositories.NewCounterError(name, repositories.CounterErrorInvalidInput, "counter name is required", nil)
	}

	var next int64
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		now := r.clock().UTC()
		current, err := r.counters.GetTx(ctx, tx, name)
		if err != nil {
			var repoErr repositories.RepositoryError
			if !errors.As(err, &repoErr) || !repoErr.IsNotFound() {
				return err
			}
			ref, refErr := r.counters.DocumentRef(ctx, name)
			if refErr != nil {
				return refErr
			}
			next = 1
			return tx.Create(ref, counterDocument{Name: name, Value: next, UpdatedAt: now})
		}

		if current.Data.Value < 0 {
			return repositories.NewCounterError(name, repositories.CounterErrorCorrupt, "stored value is negative", nil)
		}
		next = current.Data.Value + 1
		return tx.Set(current.Ref, counterDocument{Name: name, Value: next, UpdatedAt: now})
	}, pfirestore.WithTxAttempts(counterTxAttempts))
	if err != nil {
		var counterErr *repositories.CounterError
		if errors.As(err, &counterErr) {
			return 0, counterErr
		}
		return 0, pfirestore.WrapError("sequences.next", err)
	}
	return next, nil
}
