package knowledge

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/pgvector/pgvector-go"
)

// UpsertDocumentParams carries one document write.
type UpsertDocumentParams struct {
	ID         string
	Collection string
	Content    string
	Embedding  *pgvector.Vector
	Metadata   []byte
	CreatedAt  pgtype.Timestamptz
}

// SearchDocumentsParams carries one vector search.
type SearchDocumentsParams struct {
	Collection     string
	QueryEmbedding *pgvector.Vector
	ResultLimit    int32
}

// DocumentRow is one row returned by a vector search.
type DocumentRow struct {
	ID         string
	Content    string
	Metadata   []byte
	Embedding  pgvector.Vector
	CreatedAt  pgtype.Timestamptz
	Similarity float32
}

// Querier defines the database operations the Store needs. The interface is
// defined by the consumer so tests can substitute an in-memory fake.
type Querier interface {
	UpsertDocument(ctx context.Context, arg UpsertDocumentParams) error
	SearchDocuments(ctx context.Context, arg SearchDocumentsParams) ([]DocumentRow, error)
	CountDocuments(ctx context.Context, collection string) (int64, error)
	DeleteDocument(ctx context.Context, id string) error
	DeleteCollection(ctx context.Context, collection string) (int64, error)
	Collections(ctx context.Context) ([]string, error)
}

// pgxConn is the slice of pgxpool.Pool the DB querier uses.
type pgxConn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// DB implements Querier against PostgreSQL with the pgvector extension.
// All queries are parameterized.
type DB struct {
	conn pgxConn
}

// NewDB wraps a pgx connection pool as a Querier.
func NewDB(conn pgxConn) *DB {
	return &DB{conn: conn}
}

const upsertDocumentSQL = `
INSERT INTO documents (id, collection, content, embedding, metadata, created_at)
VALUES ($1, $2, $3, $4, $5, COALESCE($6, now()))
ON CONFLICT (id) DO UPDATE SET
    collection = EXCLUDED.collection,
    content    = EXCLUDED.content,
    embedding  = EXCLUDED.embedding,
    metadata   = EXCLUDED.metadata`

func (db *DB) UpsertDocument(ctx context.Context, arg UpsertDocumentParams) error {
	var createdAt any
	if arg.CreatedAt.Valid {
		createdAt = arg.CreatedAt
	}
	_, err := db.conn.Exec(ctx, upsertDocumentSQL,
		arg.ID, arg.Collection, arg.Content, arg.Embedding, arg.Metadata, createdAt)
	if err != nil {
		return fmt.Errorf("upserting document %q: %w", arg.ID, err)
	}
	return nil
}

// searchDocumentsSQL orders by cosine distance; similarity is 1 - distance.
const searchDocumentsSQL = `
SELECT id, content, metadata, embedding, created_at,
       1 - (embedding <=> $1) AS similarity
FROM documents
WHERE collection = $2
ORDER BY embedding <=> $1
LIMIT $3`

func (db *DB) SearchDocuments(ctx context.Context, arg SearchDocumentsParams) ([]DocumentRow, error) {
	rows, err := db.conn.Query(ctx, searchDocumentsSQL,
		arg.QueryEmbedding, arg.Collection, arg.ResultLimit)
	if err != nil {
		return nil, fmt.Errorf("searching collection %q: %w", arg.Collection, err)
	}
	defer rows.Close()

	var out []DocumentRow
	for rows.Next() {
		var row DocumentRow
		if err := rows.Scan(&row.ID, &row.Content, &row.Metadata,
			&row.Embedding, &row.CreatedAt, &row.Similarity); err != nil {
			return nil, fmt.Errorf("scanning search row: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading search rows: %w", err)
	}
	return out, nil
}

func (db *DB) CountDocuments(ctx context.Context, collection string) (int64, error) {
	var count int64
	var err error
	if collection == "" {
		err = db.conn.QueryRow(ctx, `SELECT count(*) FROM documents`).Scan(&count)
	} else {
		err = db.conn.QueryRow(ctx,
			`SELECT count(*) FROM documents WHERE collection = $1`, collection).Scan(&count)
	}
	if err != nil {
		return 0, fmt.Errorf("counting documents: %w", err)
	}
	return count, nil
}

func (db *DB) DeleteDocument(ctx context.Context, id string) error {
	if _, err := db.conn.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id); err != nil {
		return fmt.Errorf("deleting document %q: %w", id, err)
	}
	return nil
}

func (db *DB) DeleteCollection(ctx context.Context, collection string) (int64, error) {
	tag, err := db.conn.Exec(ctx,
		`DELETE FROM documents WHERE collection = $1`, collection)
	if err != nil {
		return 0, fmt.Errorf("deleting collection %q: %w", collection, err)
	}
	return tag.RowsAffected(), nil
}

func (db *DB) Collections(ctx context.Context) ([]string, error) {
	rows, err := db.conn.Query(ctx,
		`SELECT DISTINCT collection FROM documents ORDER BY collection`)
	if err != nil {
		return nil, fmt.Errorf("listing collections: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning collection name: %w", err)
		}
		out = append(out, name)
	}
	return out, rows.Err()
}
