package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/StevenEgasJ/HomeworkOrders/internal/domain"
	"github.com/StevenEgasJ/HomeworkOrders/internal/repositories"
)

func TestCounterRepositoryConcurrentNextIsGapFree(t *testing.T) {
	repo := NewCounterRepository()
	ctx := context.Background()

	const workers = 50
	values := make([]int64, workers)
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(idx int) {
			defer wg.Done()
			v, err := repo.Next(ctx, "order")
			if err != nil {
				t.Errorf("next: %v", err)
				return
			}
			values[idx] = v
		}(i)
	}
	wg.Wait()

	sort.Slice(values, func(i, j int) bool { return values[i] < values[j] })
	for i, v := range values {
		if v != int64(i+1) {
			t.Fatalf("expected permutation of 1..%d, got %v", workers, values)
		}
	}

	if _, err := repo.Next(ctx, "  "); err == nil {
		t.Fatalf("expected error for blank counter name")
	}
}

func TestOrderRepositoryTransitionSerialisesWriters(t *testing.T) {
	repo := NewOrderRepository()
	ctx := context.Background()
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	if err := repo.Insert(ctx, domain.Order{ID: "ord_1", PublicID: "000001", Status: domain.OrderStatusPending, CreatedAt: now}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	errNotPending := errors.New("not pending")
	const callers = 20
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
	)
	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func() {
			defer wg.Done()
			_, err := repo.Transition(ctx, "000001", func(current domain.Order) (domain.Order, error) {
				if current.Status != domain.OrderStatusPending {
					return domain.Order{}, errNotPending
				}
				current.Status = domain.OrderStatusPaid
				current.CreatedAt = time.Time{}
				return current, nil
			})
			if err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
			} else if !errors.Is(err, errNotPending) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if accepted != 1 {
		t.Fatalf("expected exactly one accepted transition, got %d", accepted)
	}
	stored, err := repo.FindByPublicID(ctx, "000001")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if !stored.CreatedAt.Equal(now) {
		t.Fatalf("expected createdAt to be preserved, got %v", stored.CreatedAt)
	}
}

func TestOrderRepositoryErrors(t *testing.T) {
	repo := NewOrderRepository()
	ctx := context.Background()

	_, err := repo.FindByPublicID(ctx, "999999")
	var repoErr repositories.RepositoryError
	if !errors.As(err, &repoErr) || !repoErr.IsNotFound() {
		t.Fatalf("expected not found, got %v", err)
	}

	order := domain.Order{ID: "ord_1", PublicID: "000001"}
	if err := repo.Insert(ctx, order); err != nil {
		t.Fatalf("insert: %v", err)
	}
	order.ID = "ord_2"
	err = repo.Insert(ctx, order)
	if !errors.As(err, &repoErr) || !repoErr.IsConflict() {
		t.Fatalf("expected conflict on duplicate public id, got %v", err)
	}
}

func TestOrderRepositoryQueryFilters(t *testing.T) {
	repo := NewOrderRepository()
	ctx := context.Background()
	base := time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)
	for i, total := range []int64{50, 150, 300} {
		err := repo.Insert(ctx, domain.Order{
			ID:        "ord_" + domain.FormatPublicID(int64(i+1)),
			PublicID:  domain.FormatPublicID(int64(i + 1)),
			Status:    domain.OrderStatusPending,
			Summary:   domain.OrderSummary{Total: decimal.NewFromInt(total)},
			CreatedAt: base.AddDate(0, 0, i),
		})
		if err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	min := decimal.NewFromInt(100)
	from := base.AddDate(0, 0, 2)
	got, err := repo.Query(ctx, repositories.OrderQuery{MinTotal: &min})
	if err != nil || len(got) != 2 {
		t.Fatalf("expected two orders above 100, got %d (%v)", len(got), err)
	}
	got, err = repo.Query(ctx, repositories.OrderQuery{CreatedFrom: &from})
	if err != nil || len(got) != 1 || got[0].PublicID != "000003" {
		t.Fatalf("expected only the newest order, got %+v (%v)", got, err)
	}
	got, err = repo.Query(ctx, repositories.OrderQuery{Statuses: []domain.OrderStatus{domain.OrderStatusPaid}})
	if err != nil || len(got) != 0 {
		t.Fatalf("expected no paid orders, got %+v (%v)", got, err)
	}
}

func TestUserRepositoryUpsertByEmailReusesRecord(t *testing.T) {
	repo := NewUserRepository()
	ctx := context.Background()

	first, err := repo.UpsertByEmail(ctx, domain.User{FirstName: "Dev", LastName: "Admin", Email: "Dev+Admin@Example.com"})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	second, err := repo.UpsertByEmail(ctx, domain.User{FirstName: "Dev", LastName: "Ops", Email: "dev+admin@example.com"})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected same id, got %s and %s", first.ID, second.ID)
	}
	found, err := repo.FindMany(ctx, []string{first.ID, "ghost"})
	if err != nil {
		t.Fatalf("find many: %v", err)
	}
	if len(found) != 1 || found[first.ID].DisplayName != "Dev Ops" {
		t.Fatalf("unexpected directory content: %+v", found)
	}
}
