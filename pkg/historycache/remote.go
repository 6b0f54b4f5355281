package historycache

import (
	"context"

	"github.com/choraleia/opengpt/pkg/history"
	"github.com/choraleia/opengpt/pkg/models"
)

// Remote is the repository as seen by one signed-in user. Implementations
// return history.ErrNotFound for missing chats.
type Remote interface {
	List(ctx context.Context) ([]models.Chat, error)
	Get(ctx context.Context, chatID string) (*models.Chat, error)
	Upsert(ctx context.Context, chatID, title string, messages []models.Message) (*models.Chat, error)
	Delete(ctx context.Context, chatID string) error
}

// RepositoryRemote binds an in-process repository to an owner.
type RepositoryRemote struct {
	repo    *history.Repository
	ownerID string
}

func NewRepositoryRemote(repo *history.Repository, ownerID string) *RepositoryRemote {
	return &RepositoryRemote{repo: repo, ownerID: ownerID}
}

func (r *RepositoryRemote) List(ctx context.Context) ([]models.Chat, error) {
	return r.repo.List(ctx, r.ownerID)
}

func (r *RepositoryRemote) Get(ctx context.Context, chatID string) (*models.Chat, error) {
	return r.repo.Get(ctx, r.ownerID, chatID)
}

func (r *RepositoryRemote) Upsert(ctx context.Context, chatID, title string, messages []models.Message) (*models.Chat, error) {
	return r.repo.Upsert(ctx, r.ownerID, chatID, title, messages)
}

func (r *RepositoryRemote) Delete(ctx context.Context, chatID string) error {
	return r.repo.Delete(ctx, r.ownerID, chatID)
}
