// internal/store/postgres/postgres.go
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github-integration/internal/model"
	"github-integration/internal/store"
)

// Store is a store.Store backed by one Postgres table per collection.
// Each row holds the document as JSONB plus an insertion sequence used as the default order.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
	tables map[string]string
}

var _ store.Store = (*Store)(nil)

// New opens a connection pool and verifies connectivity.
func New(ctx context.Context, dbURL string, logger *slog.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}
	return NewFromPool(pool, logger), nil
}

// NewFromPool wraps an existing pool. Close closes the pool.
func NewFromPool(pool *pgxpool.Pool, logger *slog.Logger) *Store {
	tables := map[string]string{
		model.CollectionIntegration: pgx.Identifier{model.CollectionIntegration}.Sanitize(),
	}
	for _, c := range model.EntityCollections() {
		tables[c] = pgx.Identifier{c}.Sanitize()
	}
	return &Store{pool: pool, logger: logger, tables: tables}
}

func (s *Store) table(collection string) (string, error) {
	t, ok := s.tables[collection]
	if !ok {
		return "", fmt.Errorf("%w: %s", store.ErrUnknownCollection, collection)
	}
	return t, nil
}

func (s *Store) InsertOne(ctx context.Context, collection string, doc model.Document) (string, error) {
	table, err := s.table(collection)
	if err != nil {
		return "", err
	}
	id, raw, err := encodeWithID(doc)
	if err != nil {
		return "", err
	}
	_, err = s.pool.Exec(ctx, "INSERT INTO "+table+" (id, doc) VALUES ($1, $2::jsonb)", id, raw)
	if err != nil {
		return "", fmt.Errorf("insert into %s: %w", collection, err)
	}
	return id.String(), nil
}

func (s *Store) InsertMany(ctx context.Context, collection string, docs []model.Document) (int64, error) {
	if _, err := s.table(collection); err != nil {
		return 0, err
	}
	if len(docs) == 0 {
		return 0, nil
	}
	rows := make([][]any, 0, len(docs))
	for _, d := range docs {
		id, raw, err := encodeWithID(d)
		if err != nil {
			return 0, err
		}
		rows = append(rows, []any{id, raw})
	}
	n, err := s.pool.CopyFrom(ctx, pgx.Identifier{collection}, []string{"id", "doc"}, pgx.CopyFromRows(rows))
	if err != nil {
		return 0, fmt.Errorf("bulk insert into %s: %w", collection, err)
	}
	s.logger.Debug("Inserted documents", "collection", collection, "count", n)
	return n, nil
}

func (s *Store) FindOne(ctx context.Context, collection string, filter *store.Predicate) (model.Document, error) {
	docs, err := s.Find(ctx, collection, filter, store.FindOptions{Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, store.ErrNotFound
	}
	return docs[0], nil
}

func (s *Store) Find(ctx context.Context, collection string, filter *store.Predicate, opts store.FindOptions) ([]model.Document, error) {
	table, err := s.table(collection)
	if err != nil {
		return nil, err
	}
	c := &compiler{}
	where, err := c.where(filter)
	if err != nil {
		return nil, err
	}

	query := "SELECT doc FROM " + table + " WHERE " + where + " ORDER BY "
	if opts.SortBy != "" {
		query += "doc #> " + c.arg(store.SplitPath(opts.SortBy)) + "::text[]"
		if opts.SortOrder == store.Descending {
			query += " DESC"
		}
		// Documents without the field come last in both directions.
		query += " NULLS LAST, "
	}
	query += "seq"
	if opts.Skip > 0 {
		query += " OFFSET " + c.arg(opts.Skip)
	}
	if opts.Limit > 0 {
		query += " LIMIT " + c.arg(opts.Limit)
	}

	rows, err := s.pool.Query(ctx, query, c.args...)
	if err != nil {
		return nil, fmt.Errorf("find in %s: %w", collection, err)
	}
	raws, err := pgx.CollectRows(rows, pgx.RowTo[[]byte])
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", collection, err)
	}

	docs := make([]model.Document, 0, len(raws))
	for _, raw := range raws {
		var doc model.Document
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("decode document from %s: %w", collection, err)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func (s *Store) Count(ctx context.Context, collection string, filter *store.Predicate) (int64, error) {
	table, err := s.table(collection)
	if err != nil {
		return 0, err
	}
	c := &compiler{}
	where, err := c.where(filter)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := s.pool.QueryRow(ctx, "SELECT count(*) FROM "+table+" WHERE "+where, c.args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", collection, err)
	}
	return n, nil
}

func (s *Store) UpdateOne(ctx context.Context, collection string, filter *store.Predicate, set model.Document) (bool, error) {
	table, err := s.table(collection)
	if err != nil {
		return false, err
	}
	patch := make(model.Document, len(set))
	for k, v := range set {
		if k != model.FieldID {
			patch[k] = v
		}
	}
	raw, err := json.Marshal(patch)
	if err != nil {
		return false, fmt.Errorf("encode update: %w", err)
	}

	c := &compiler{}
	patchArg := c.arg(raw)
	where, err := c.where(filter)
	if err != nil {
		return false, err
	}
	query := "UPDATE " + table + " SET doc = doc || " + patchArg + "::jsonb WHERE id = (SELECT id FROM " +
		table + " WHERE " + where + " ORDER BY seq LIMIT 1)"
	tag, err := s.pool.Exec(ctx, query, c.args...)
	if err != nil {
		return false, fmt.Errorf("update %s: %w", collection, err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) DeleteMany(ctx context.Context, collection string, filter *store.Predicate) (int64, error) {
	table, err := s.table(collection)
	if err != nil {
		return 0, err
	}
	c := &compiler{}
	where, err := c.where(filter)
	if err != nil {
		return 0, err
	}
	tag, err := s.pool.Exec(ctx, "DELETE FROM "+table+" WHERE "+where, c.args...)
	if err != nil {
		return 0, fmt.Errorf("delete from %s: %w", collection, err)
	}
	return tag.RowsAffected(), nil
}

// HasTextIndex looks for the <collection>_fts_idx expression index created by the migrations.
func (s *Store) HasTextIndex(ctx context.Context, collection string) (bool, error) {
	if _, err := s.table(collection); err != nil {
		return false, err
	}
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM pg_indexes WHERE schemaname = current_schema() AND tablename = $1 AND indexname = $2)`,
		collection, collection+"_fts_idx",
	).Scan(&exists)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return false, fmt.Errorf("check text index on %s: %w", collection, err)
	}
	return exists, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

func encodeWithID(doc model.Document) (uuid.UUID, []byte, error) {
	id := uuid.New()
	withID := make(model.Document, len(doc)+1)
	for k, v := range doc {
		withID[k] = v
	}
	withID[model.FieldID] = id.String()
	raw, err := json.Marshal(withID)
	if err != nil {
		return uuid.UUID{}, nil, fmt.Errorf("encode document: %w", err)
	}
	return id, raw, nil
}
