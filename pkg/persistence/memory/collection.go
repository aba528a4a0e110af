package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/dukex/labflow/pkg/models"
	"github.com/dukex/labflow/pkg/persistence"
	"github.com/google/uuid"
)

// Collection keeps JSON encoded documents in a map, so callers never share memory
// with the store.
type Collection[T any, PT interface {
	*T
	models.Document
}] struct {
	name   string
	unique []string

	mu   sync.RWMutex
	docs map[models.StorageID][]byte
}

// NewCollection creates an empty collection. unique lists top-level fields whose
// values must not repeat across documents.
func NewCollection[T any, PT interface {
	*T
	models.Document
}](name string, unique ...string) *Collection[T, PT] {
	return &Collection[T, PT]{
		name:   name,
		unique: unique,
		docs:   make(map[models.StorageID][]byte),
	}
}

func (c *Collection[T, PT]) Insert(_ context.Context, doc *T) error {
	document := PT(doc)
	if document.DocumentID() == "" {
		document.SetDocumentID(models.StorageID(uuid.New().String()))
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return persistence.NewDocumentError("Insert", c.name, string(document.DocumentID()), err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.docs[document.DocumentID()]; exists {
		return persistence.NewDocumentError("Insert", c.name, string(document.DocumentID()), persistence.ErrDuplicateDocument)
	}

	if err := c.checkUnique(document.DocumentID(), data); err != nil {
		return persistence.NewDocumentError("Insert", c.name, string(document.DocumentID()), err)
	}

	c.docs[document.DocumentID()] = data

	return nil
}

func (c *Collection[T, PT]) FindByID(_ context.Context, id models.StorageID) (*T, error) {
	c.mu.RLock()
	data, ok := c.docs[id]
	c.mu.RUnlock()

	if !ok {
		return nil, persistence.NewDocumentError("FindByID", c.name, string(id), persistence.ErrDocumentNotFound)
	}

	return c.decode("FindByID", data)
}

func (c *Collection[T, PT]) FindByIDs(_ context.Context, ids []models.StorageID) ([]*T, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	docs := make([]*T, 0, len(ids))
	seen := make(map[models.StorageID]struct{}, len(ids))

	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}

		seen[id] = struct{}{}

		data, ok := c.docs[id]
		if !ok {
			continue
		}

		doc, err := c.decode("FindByIDs", data)
		if err != nil {
			return nil, err
		}

		docs = append(docs, doc)
	}

	return docs, nil
}

func (c *Collection[T, PT]) FindByFilter(_ context.Context, filter persistence.Filter) ([]*T, error) {
	matcher, err := persistence.NewMatcher(filter)
	if err != nil {
		return nil, persistence.NewDocumentError("FindByFilter", c.name, "", err)
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	docs := make([]*T, 0)

	for _, data := range c.docs {
		ok, err := matcher.Match(data)
		if err != nil {
			return nil, persistence.NewDocumentError("FindByFilter", c.name, "", err)
		}

		if !ok {
			continue
		}

		doc, err := c.decode("FindByFilter", data)
		if err != nil {
			return nil, err
		}

		docs = append(docs, doc)
	}

	return docs, nil
}

func (c *Collection[T, PT]) UpdateByID(_ context.Context, id models.StorageID, mutate func(doc *T) error) (*T, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, ok := c.docs[id]
	if !ok {
		return nil, persistence.NewDocumentError("UpdateByID", c.name, string(id), persistence.ErrDocumentNotFound)
	}

	doc, err := c.decode("UpdateByID", data)
	if err != nil {
		return nil, err
	}

	if err := mutate(doc); err != nil {
		return nil, err
	}

	PT(doc).SetDocumentID(id)

	updated, err := json.Marshal(doc)
	if err != nil {
		return nil, persistence.NewDocumentError("UpdateByID", c.name, string(id), err)
	}

	if err := c.checkUnique(id, updated); err != nil {
		return nil, persistence.NewDocumentError("UpdateByID", c.name, string(id), err)
	}

	c.docs[id] = updated

	return doc, nil
}

func (c *Collection[T, PT]) DeleteByID(_ context.Context, id models.StorageID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.docs, id)

	return nil
}

func (c *Collection[T, PT]) DeleteByIDs(_ context.Context, ids []models.StorageID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, id := range ids {
		delete(c.docs, id)
	}

	return nil
}

func (c *Collection[T, PT]) DropAll(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.docs = make(map[models.StorageID][]byte)

	return nil
}

// Len returns the number of stored documents.
func (c *Collection[T, PT]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.docs)
}

func (c *Collection[T, PT]) decode(op string, data []byte) (*T, error) {
	doc := new(T)
	if err := json.Unmarshal(data, doc); err != nil {
		return nil, persistence.NewDocumentError(op, c.name, "", fmt.Errorf("failed to decode document: %w", err))
	}

	return doc, nil
}

// checkUnique must be called with the write lock held.
func (c *Collection[T, PT]) checkUnique(id models.StorageID, data []byte) error {
	if len(c.unique) == 0 {
		return nil
	}

	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("failed to decode document: %w", err)
	}

	for _, field := range c.unique {
		value, ok := fields[field]
		if !ok || value == nil {
			continue
		}

		matcher, err := persistence.NewMatcher(persistence.Filter{field: value})
		if err != nil {
			return err
		}

		for otherID, other := range c.docs {
			if otherID == id {
				continue
			}

			match, err := matcher.Match(other)
			if err != nil {
				return err
			}

			if match {
				return fmt.Errorf("%w: %s already used", persistence.ErrDuplicateDocument, field)
			}
		}
	}

	return nil
}
