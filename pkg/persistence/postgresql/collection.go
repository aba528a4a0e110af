package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/labflow/pkg/models"
	"github.com/dukex/labflow/pkg/persistence"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

const uniqueViolation = "23505"

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Collection stores documents of one kind as JSONB rows of the documents table.
type Collection[T any, PT interface {
	*T
	models.Document
}] struct {
	db     *sql.DB
	tx     *sql.Tx
	logger *slog.Logger
	name   string
}

func newCollection[T any, PT interface {
	*T
	models.Document
}](db *sql.DB, tx *sql.Tx, logger *slog.Logger, name string) *Collection[T, PT] {
	return &Collection[T, PT]{db: db, tx: tx, logger: logger, name: name}
}

func (c *Collection[T, PT]) querier() querier {
	if c.tx != nil {
		return c.tx
	}

	return c.db
}

func (c *Collection[T, PT]) Insert(ctx context.Context, doc *T) error {
	document := PT(doc)
	if document.DocumentID() == "" {
		document.SetDocumentID(models.StorageID(uuid.New().String()))
	}

	id := string(document.DocumentID())

	body, err := json.Marshal(doc)
	if err != nil {
		return persistence.NewDocumentError("Insert", c.name, id, err)
	}

	query := `
		INSERT INTO documents (collection, id, body, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
	`

	_, err = c.querier().ExecContext(ctx, query, c.name, id, body)
	if err != nil {
		return persistence.NewDocumentError("Insert", c.name, id, mapError(err))
	}

	return nil
}

func (c *Collection[T, PT]) FindByID(ctx context.Context, id models.StorageID) (*T, error) {
	query := `SELECT body FROM documents WHERE collection = $1 AND id = $2`

	var body []byte

	err := c.querier().QueryRowContext(ctx, query, c.name, string(id)).Scan(&body)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewDocumentError("FindByID", c.name, string(id), persistence.ErrDocumentNotFound)
		}

		return nil, persistence.NewDocumentError("FindByID", c.name, string(id), err)
	}

	return c.decode("FindByID", string(id), body)
}

func (c *Collection[T, PT]) FindByIDs(ctx context.Context, ids []models.StorageID) ([]*T, error) {
	if len(ids) == 0 {
		return []*T{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = string(id)
	}

	query := `SELECT body FROM documents WHERE collection = $1 AND id = ANY($2) ORDER BY created_at, id`

	return c.query(ctx, "FindByIDs", query, c.name, pq.Array(keys))
}

func (c *Collection[T, PT]) FindByFilter(ctx context.Context, filter persistence.Filter) ([]*T, error) {
	if filter == nil {
		filter = persistence.Filter{}
	}

	containment, err := json.Marshal(filter)
	if err != nil {
		return nil, persistence.NewDocumentError("FindByFilter", c.name, "", fmt.Errorf("failed to encode filter: %w", err))
	}

	query := `SELECT body FROM documents WHERE collection = $1 AND body @> $2::jsonb ORDER BY created_at, id`

	return c.query(ctx, "FindByFilter", query, c.name, containment)
}

// UpdateByID locks the row for the duration of the mutation.
func (c *Collection[T, PT]) UpdateByID(ctx context.Context, id models.StorageID, mutate func(doc *T) error) (*T, error) {
	var updated *T

	err := c.inTransaction(ctx, func(tx *sql.Tx) error {
		query := `SELECT body FROM documents WHERE collection = $1 AND id = $2 FOR UPDATE`

		var body []byte

		err := tx.QueryRowContext(ctx, query, c.name, string(id)).Scan(&body)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return persistence.NewDocumentError("UpdateByID", c.name, string(id), persistence.ErrDocumentNotFound)
			}

			return persistence.NewDocumentError("UpdateByID", c.name, string(id), err)
		}

		doc, err := c.decode("UpdateByID", string(id), body)
		if err != nil {
			return err
		}

		if err := mutate(doc); err != nil {
			return err
		}

		PT(doc).SetDocumentID(id)

		body, err = json.Marshal(doc)
		if err != nil {
			return persistence.NewDocumentError("UpdateByID", c.name, string(id), err)
		}

		update := `UPDATE documents SET body = $3, updated_at = NOW() WHERE collection = $1 AND id = $2`

		if _, err := tx.ExecContext(ctx, update, c.name, string(id), body); err != nil {
			return persistence.NewDocumentError("UpdateByID", c.name, string(id), mapError(err))
		}

		updated = doc

		return nil
	})
	if err != nil {
		return nil, err
	}

	return updated, nil
}

func (c *Collection[T, PT]) DeleteByID(ctx context.Context, id models.StorageID) error {
	query := `DELETE FROM documents WHERE collection = $1 AND id = $2`

	if _, err := c.querier().ExecContext(ctx, query, c.name, string(id)); err != nil {
		return persistence.NewDocumentError("DeleteByID", c.name, string(id), err)
	}

	return nil
}

func (c *Collection[T, PT]) DeleteByIDs(ctx context.Context, ids []models.StorageID) error {
	if len(ids) == 0 {
		return nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = string(id)
	}

	query := `DELETE FROM documents WHERE collection = $1 AND id = ANY($2)`

	if _, err := c.querier().ExecContext(ctx, query, c.name, pq.Array(keys)); err != nil {
		return persistence.NewDocumentError("DeleteByIDs", c.name, "", err)
	}

	return nil
}

func (c *Collection[T, PT]) DropAll(ctx context.Context) error {
	query := `DELETE FROM documents WHERE collection = $1`

	if _, err := c.querier().ExecContext(ctx, query, c.name); err != nil {
		return persistence.NewDocumentError("DropAll", c.name, "", err)
	}

	return nil
}

func (c *Collection[T, PT]) inTransaction(ctx context.Context, fn func(tx *sql.Tx) error) error {
	if c.tx != nil {
		return fn(c.tx)
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rollbackErr := tx.Rollback(); rollbackErr != nil {
			c.logger.ErrorContext(ctx, "failed to rollback transaction", "error", rollbackErr)
		}

		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func (c *Collection[T, PT]) query(ctx context.Context, op, query string, args ...any) ([]*T, error) {
	rows, err := c.querier().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, persistence.NewDocumentError(op, c.name, "", err)
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			c.logger.ErrorContext(ctx, "failed to close rows", "error", closeErr)
		}
	}()

	docs := make([]*T, 0)

	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, persistence.NewDocumentError(op, c.name, "", fmt.Errorf("failed to scan document: %w", err))
		}

		doc, err := c.decode(op, "", body)
		if err != nil {
			return nil, err
		}

		docs = append(docs, doc)
	}

	if err := rows.Err(); err != nil {
		return nil, persistence.NewDocumentError(op, c.name, "", fmt.Errorf("error iterating documents: %w", err))
	}

	return docs, nil
}

func (c *Collection[T, PT]) decode(op, id string, body []byte) (*T, error) {
	doc := new(T)
	if err := json.Unmarshal(body, doc); err != nil {
		return nil, persistence.NewDocumentError(op, c.name, id, fmt.Errorf("failed to decode document: %w", err))
	}

	return doc, nil
}

func mapError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", persistence.ErrDuplicateDocument, pqErr.Constraint)
	}

	return err
}
