package store

import (
	"context"
	"errors"

	"redvote/internal/model"
)

var (
	ErrNotFound        = errors.New("article not found")
	ErrMalformedKey    = model.ErrMalformedKey
	ErrInvalidPage     = errors.New("page must be 1 or greater")
	ErrInvalidOrder    = errors.New("order must be score: or time:")
	ErrArchiveDisabled = errors.New("snapshot archive is not initialized")
)

// Store is the voting service contract.
type Store interface {
	Vote(ctx context.Context, user, articleKey string) (bool, error)
	Post(ctx context.Context, user, title, link string) (uint64, error)
	Get(ctx context.Context, id uint64) (*model.Article, error)
	List(ctx context.Context, page int, order model.Order) ([]model.Article, error)
	SetGroups(ctx context.Context, id uint64, add, remove []string) (bool, error)
	ListGroup(ctx context.Context, group string, page int, order model.Order) ([]model.Article, error)
}

// Queue hands posted article ids to the snapshot worker.
type Queue interface {
	PopFetch(ctx context.Context) (uint64, error)
}

// Snapshots reads and writes fetched link content.
type Snapshots interface {
	SaveSnapshot(ctx context.Context, snap *model.Snapshot) error
	Snapshot(ctx context.Context, id uint64) (*model.Snapshot, error)
}
