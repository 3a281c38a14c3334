package engine

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	"github.com/keithlinneman/jangle-cms/internal/xerrors"
)

type documentModel struct {
	bun.BaseModel `bun:"table:jangle_documents,alias:d"`

	ID         string    `bun:"id,pk"`
	Collection string    `bun:"collection,notnull"`
	Data       jsonData  `bun:"data,type:jsonb,notnull"`
	CreatedAt  time.Time `bun:"created_at,notnull"`
	UpdatedAt  time.Time `bun:"updated_at,notnull"`
}

type itemModel struct {
	bun.BaseModel `bun:"table:jangle_items,alias:i"`

	Name      string    `bun:"name,pk"`
	Data      jsonData  `bun:"data,type:jsonb,notnull"`
	CreatedAt time.Time `bun:"created_at,notnull"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
}

// jsonData is a document body column. Numbers decode as json.Number so
// integers past float64 precision read back unchanged.
type jsonData map[string]any

func (d jsonData) Value() (driver.Value, error) {
	b, err := json.Marshal(map[string]any(d))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (d *jsonData) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*d = jsonData{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("scan data column: unsupported type %T", src)
	}
	m, err := decodeData(raw)
	if err != nil {
		return fmt.Errorf("scan data column: %w", err)
	}
	*d = m
	return nil
}

// BunStore persists documents in SQLite or Postgres through bun.
type BunStore struct {
	db  *bun.DB
	now func() time.Time
}

func NewBunStore(db *bun.DB) *BunStore {
	return &BunStore{db: db, now: storedNow}
}

// storedNow is the current time at the precision timestamp columns keep, so
// returned documents match what a later read sees.
func storedNow() time.Time { return time.Now().UTC().Truncate(time.Microsecond) }

// OpenBunStore opens a database for driver ("sqlite3" or "postgres") and
// wraps it with the matching bun dialect. The driver must be registered by
// the caller.
func OpenBunStore(driver, dsn string) (*BunStore, error) {
	sqldb, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	switch strings.ToLower(driver) {
	case "sqlite3", "sqlite":
		// sqlite allows a single writer
		sqldb.SetMaxOpenConns(1)
		return NewBunStore(bun.NewDB(sqldb, sqlitedialect.New())), nil
	case "postgres", "pg":
		return NewBunStore(bun.NewDB(sqldb, pgdialect.New())), nil
	default:
		_ = sqldb.Close()
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

func (s *BunStore) DB() *bun.DB { return s.db }

func (s *BunStore) Init(ctx context.Context) error {
	if s.db == nil {
		return errors.New("bun store requires a database")
	}
	if _, err := s.db.NewCreateTable().Model((*documentModel)(nil)).IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("create documents table: %w", err)
	}
	if _, err := s.db.NewCreateIndex().Model((*documentModel)(nil)).
		Index("jangle_documents_collection_idx").
		Column("collection", "created_at").
		IfNotExists().
		Exec(ctx); err != nil {
		return fmt.Errorf("create documents index: %w", err)
	}
	if _, err := s.db.NewCreateTable().Model((*itemModel)(nil)).IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("create items table: %w", err)
	}
	return nil
}

func (s *BunStore) List(ctx context.Context, collection string, page Page) ([]Document, int, error) {
	page = page.normalize()
	var models []documentModel
	total, err := s.db.NewSelect().
		Model(&models).
		Where("collection = ?", collection).
		Order("created_at ASC", "id ASC").
		Limit(page.Limit).
		Offset(page.Offset).
		ScanAndCount(ctx)
	if err != nil {
		return nil, 0, xerrors.WithStack(err)
	}
	out := make([]Document, len(models))
	for i := range models {
		out[i] = models[i].document()
	}
	return out, total, nil
}

func (s *BunStore) Get(ctx context.Context, collection, id string) (Document, error) {
	var m documentModel
	err := s.db.NewSelect().Model(&m).
		Where("id = ?", id).
		Where("collection = ?", collection).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Document{}, fmt.Errorf("%w: %s/%s", ErrNotFound, collection, id)
		}
		return Document{}, xerrors.WithStack(err)
	}
	return m.document(), nil
}

func (s *BunStore) Create(ctx context.Context, collection string, data map[string]any) (Document, error) {
	norm, err := normalizeData(data)
	if err != nil {
		return Document{}, err
	}
	now := s.now()
	m := documentModel{ID: uuid.NewString(), Collection: collection, Data: norm, CreatedAt: now, UpdatedAt: now}
	if _, err := s.db.NewInsert().Model(&m).Exec(ctx); err != nil {
		return Document{}, xerrors.WithStack(err)
	}
	return m.document(), nil
}

func (s *BunStore) Update(ctx context.Context, collection, id string, data map[string]any) (Document, error) {
	norm, err := normalizeData(data)
	if err != nil {
		return Document{}, err
	}
	existing, err := s.Get(ctx, collection, id)
	if err != nil {
		return Document{}, err
	}
	m := documentModel{
		ID:         id,
		Collection: collection,
		Data:       norm,
		CreatedAt:  existing.CreatedAt,
		UpdatedAt:  s.now(),
	}
	if _, err := s.db.NewUpdate().
		Model(&m).
		Column("data", "updated_at").
		WherePK().
		Exec(ctx); err != nil {
		return Document{}, xerrors.WithStack(err)
	}
	return m.document(), nil
}

func (s *BunStore) Delete(ctx context.Context, collection, id string) error {
	res, err := s.db.NewDelete().
		Model((*documentModel)(nil)).
		Where("id = ?", id).
		Where("collection = ?", collection).
		Exec(ctx)
	if err != nil {
		return xerrors.WithStack(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s/%s", ErrNotFound, collection, id)
	}
	return nil
}

func (s *BunStore) GetItem(ctx context.Context, name string) (Document, error) {
	var m itemModel
	if err := s.db.NewSelect().Model(&m).Where("name = ?", name).Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Document{}, fmt.Errorf("%w: item %s", ErrNotFound, name)
		}
		return Document{}, xerrors.WithStack(err)
	}
	return m.document(), nil
}

func (s *BunStore) PutItem(ctx context.Context, name string, data map[string]any) (Document, error) {
	norm, err := normalizeData(data)
	if err != nil {
		return Document{}, err
	}
	now := s.now()
	m := itemModel{Name: name, Data: norm, CreatedAt: now, UpdatedAt: now}
	if _, err := s.db.NewInsert().
		Model(&m).
		On("CONFLICT (name) DO UPDATE").
		Set("data = EXCLUDED.data").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx); err != nil {
		return Document{}, xerrors.WithStack(err)
	}
	return s.GetItem(ctx, name)
}

func (s *BunStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *BunStore) Close() error { return s.db.Close() }

func (m *documentModel) document() Document {
	return Document{
		ID:         m.ID,
		Collection: m.Collection,
		Data:       cloneData(m.Data),
		CreatedAt:  m.CreatedAt.UTC(),
		UpdatedAt:  m.UpdatedAt.UTC(),
	}
}

func (m *itemModel) document() Document {
	return Document{
		ID:         m.Name,
		Collection: m.Name,
		Data:       cloneData(m.Data),
		CreatedAt:  m.CreatedAt.UTC(),
		UpdatedAt:  m.UpdatedAt.UTC(),
	}
}
