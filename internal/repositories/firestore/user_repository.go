package firestore

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"

	domain "github.com/StevenEgasJ/HomeworkOrders/internal/domain"
	pfirestore "github.com/StevenEgasJ/HomeworkOrders/internal/platform/firestore"
	"github.com/StevenEgasJ/HomeworkOrders/internal/repositories"
)

const userCollection = "users"

// UserRepository reads the user directory stored in Firestore.
type UserRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[userDocument]
	clock    func() time.Time
	newID    func() string
}

var _ repositories.UserRepository = (*UserRepository)(nil)

// NewUserRepository constructs a Firestore-backed user repository.
func NewUserRepository(provider *pfirestore.Provider) (*UserRepository, error) {
	if provider == nil {
		return nil, errors.New("user repository requires firestore provider")
	}
	return &UserRepository{
		provider: provider,
		base:     pfirestore.NewBaseRepository[userDocument](provider, userCollection),
		clock:    time.Now,
		newID:    uuid.NewString,
	}, nil
}

// Exists reports whether a user document with the id is present.
func (r *UserRepository) Exists(ctx context.Context, userID string) (bool, error) {
	if !validDocumentID(userID) {
		return false, nil
	}
	_, err := r.base.Get(ctx, userID)
	if err == nil {
		return true, nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsNotFound() {
		return false, nil
	}
	return false, err
}

// FindMany resolves display fields for ids in a single batched read. Unknown ids are omitted.
func (r *UserRepository) FindMany(ctx context.Context, userIDs []string) (map[string]domain.UserDisplay, error) {
	ids := uniqueIDs(userIDs)
	result := make(map[string]domain.UserDisplay, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	refs := make([]*firestore.DocumentRef, 0, len(ids))
	for _, id := range ids {
		refs = append(refs, client.Collection(userCollection).Doc(id))
	}

	snapshots, err := client.GetAll(ctx, refs)
	if err != nil {
		return nil, pfirestore.WrapError("users.find_many", err)
	}
	for _, snap := range snapshots {
		if snap == nil || !snap.Exists() {
			continue
		}
		var doc userDocument
		if err := snap.DataTo(&doc); err != nil {
			return nil, pfirestore.WrapError("users.find_many", err)
		}
		user := toDomainUser(snap.Ref.ID, doc)
		result[user.ID] = domain.UserDisplay{
			ID:          user.ID,
			DisplayName: user.DisplayName(),
			Email:       user.Email,
		}
	}
	return result, nil
}

// UpsertByEmail creates the user or merges fields into the existing record with the same email.
func (r *UserRepository) UpsertByEmail(ctx context.Context, user domain.User) (domain.User, error) {
	email := strings.ToLower(strings.TrimSpace(user.Email))
	if email == "" {
		return domain.User{}, errors.New("user repository: email is required")
	}

	var saved domain.User
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		now := r.clock().UTC()
		existing, err := r.base.QueryTx(ctx, tx, func(q firestore.Query) firestore.Query {
			return q.Where("email", "==", email).Limit(1)
		})
		if err != nil {
			return err
		}

		doc := userDocument{
			FirstName: strings.TrimSpace(user.FirstName),
			LastName:  strings.TrimSpace(user.LastName),
			Email:     email,
			IsAdmin:   user.IsAdmin,
			CreatedAt: now,
			UpdatedAt: now,
		}

		if len(existing) > 0 {
			doc.CreatedAt = existing[0].Data.CreatedAt
			saved = toDomainUser(existing[0].ID, doc)
			return tx.Set(existing[0].Ref, doc)
		}

		id := strings.TrimSpace(user.ID)
		if id == "" {
			id = r.newID()
		}
		ref, err := r.base.DocumentRef(ctx, id)
		if err != nil {
			return err
		}
		saved = toDomainUser(id, doc)
		return tx.Create(ref, doc)
	})
	if err != nil {
		return domain.User{}, pfirestore.WrapError("users.upsert", err)
	}
	return saved, nil
}

type userDocument struct {
	FirstName string    `firestore:"firstName"`
	LastName  string    `firestore:"lastName"`
	Email     string    `firestore:"email"`
	IsAdmin   bool      `firestore:"isAdmin"`
	CreatedAt time.Time `firestore:"createdAt"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

func toDomainUser(id string, doc userDocument) domain.User {
	return domain.User{
		ID:        id,
		FirstName: doc.FirstName,
		LastName:  doc.LastName,
		Email:     doc.Email,
		IsAdmin:   doc.IsAdmin,
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if !validDocumentID(id) {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Firestore rejects empty ids and ids containing a path separator.
func validDocumentID(id string) bool {
	id = strings.TrimSpace(id)
	return id != "" && !strings.Contains(id, "/")
}
