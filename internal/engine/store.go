package engine

import "context"

// Store persists list documents and item singletons. Collections are the
// schema slugs. Implementations return ErrNotFound (wrapped) for missing
// documents and hand back copies the caller may mutate.
type Store interface {
	// Init prepares the backing storage and is called once by Start.
	Init(ctx context.Context) error

	List(ctx context.Context, collection string, page Page) ([]Document, int, error)
	Get(ctx context.Context, collection, id string) (Document, error)
	Create(ctx context.Context, collection string, data map[string]any) (Document, error)
	// Update replaces the data of an existing document.
	Update(ctx context.Context, collection, id string, data map[string]any) (Document, error)
	Delete(ctx context.Context, collection, id string) error

	GetItem(ctx context.Context, name string) (Document, error)
	PutItem(ctx context.Context, name string, data map[string]any) (Document, error)

	Ping(ctx context.Context) error
	Close() error
}
