package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dukex/labflow/pkg/models"
	"github.com/dukex/labflow/pkg/persistence"
	"github.com/google/uuid"
)

// Collection stores one document per file. A mutex serializes writers within the
// process; concurrent processes sharing a root are not supported.
type Collection[T any, PT interface {
	*T
	models.Document
}] struct {
	dir    string
	name   string
	unique []string
	mu     sync.Mutex
}

// NewCollection creates a collection rooted at <root>/<name>.
func NewCollection[T any, PT interface {
	*T
	models.Document
}](root, name string, unique ...string) *Collection[T, PT] {
	return &Collection[T, PT]{
		dir:    path.Join(root, name),
		name:   name,
		unique: unique,
	}
}

func (c *Collection[T, PT]) Insert(_ context.Context, doc *T) error {
	document := PT(doc)
	if document.DocumentID() == "" {
		document.SetDocumentID(models.StorageID(uuid.New().String()))
	}

	id := document.DocumentID()

	if err := validID(id); err != nil {
		return persistence.NewDocumentError("Insert", c.name, string(id), err)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return persistence.NewDocumentError("Insert", c.name, string(id), err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := os.Stat(c.filename(id)); err == nil {
		return persistence.NewDocumentError("Insert", c.name, string(id), persistence.ErrDuplicateDocument)
	}

	if err := c.checkUnique(id, data); err != nil {
		return persistence.NewDocumentError("Insert", c.name, string(id), err)
	}

	if err := c.write(id, data); err != nil {
		return persistence.NewDocumentError("Insert", c.name, string(id), err)
	}

	return nil
}

func (c *Collection[T, PT]) FindByID(_ context.Context, id models.StorageID) (*T, error) {
	if validID(id) != nil {
		return nil, persistence.NewDocumentError("FindByID", c.name, string(id), persistence.ErrDocumentNotFound)
	}

	data, err := os.ReadFile(c.filename(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.NewDocumentError("FindByID", c.name, string(id), persistence.ErrDocumentNotFound)
		}

		return nil, persistence.NewDocumentError("FindByID", c.name, string(id), err)
	}

	return c.decode("FindByID", id, data)
}

func (c *Collection[T, PT]) FindByIDs(ctx context.Context, ids []models.StorageID) ([]*T, error) {
	docs := make([]*T, 0, len(ids))
	seen := make(map[models.StorageID]struct{}, len(ids))

	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}

		seen[id] = struct{}{}

		doc, err := c.FindByID(ctx, id)
		if err != nil {
			if persistence.IsNotFound(err) {
				continue
			}

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

	docs := make([]*T, 0)

	err = c.each(func(id models.StorageID, data []byte) error {
		ok, err := matcher.Match(data)
		if err != nil || !ok {
			return err
		}

		doc, err := c.decode("FindByFilter", id, data)
		if err != nil {
			return err
		}

		docs = append(docs, doc)

		return nil
	})
	if err != nil {
		return nil, persistence.NewDocumentError("FindByFilter", c.name, "", err)
	}

	return docs, nil
}

func (c *Collection[T, PT]) UpdateByID(ctx context.Context, id models.StorageID, mutate func(doc *T) error) (*T, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	doc, err := c.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := mutate(doc); err != nil {
		return nil, err
	}

	PT(doc).SetDocumentID(id)

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, persistence.NewDocumentError("UpdateByID", c.name, string(id), err)
	}

	if err := c.checkUnique(id, data); err != nil {
		return nil, persistence.NewDocumentError("UpdateByID", c.name, string(id), err)
	}

	if err := c.write(id, data); err != nil {
		return nil, persistence.NewDocumentError("UpdateByID", c.name, string(id), err)
	}

	return doc, nil
}

func (c *Collection[T, PT]) DeleteByID(_ context.Context, id models.StorageID) error {
	if validID(id) != nil {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	err := os.Remove(c.filename(id))
	if err != nil && !os.IsNotExist(err) {
		return persistence.NewDocumentError("DeleteByID", c.name, string(id), err)
	}

	return nil
}

func (c *Collection[T, PT]) DeleteByIDs(ctx context.Context, ids []models.StorageID) error {
	var errs []error

	for _, id := range ids {
		if err := c.DeleteByID(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (c *Collection[T, PT]) DropAll(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.RemoveAll(c.dir); err != nil {
		return persistence.NewDocumentError("DropAll", c.name, "", err)
	}

	return nil
}

func (c *Collection[T, PT]) filename(id models.StorageID) string {
	return path.Join(c.dir, string(id)+".json")
}

func (c *Collection[T, PT]) write(id models.StorageID, data []byte) error {
	if err := os.MkdirAll(c.dir, 0o750); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(c.dir, "."+string(id)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())

		return fmt.Errorf("failed to write file: %w", err)
	}

	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())

		return fmt.Errorf("failed to close file: %w", err)
	}

	if err := os.Rename(tmp.Name(), c.filename(id)); err != nil {
		_ = os.Remove(tmp.Name())

		return fmt.Errorf("failed to rename file: %w", err)
	}

	return nil
}

func (c *Collection[T, PT]) each(fn func(id models.StorageID, data []byte) error) error {
	root := os.DirFS(c.dir)

	jsonFiles, err := fs.Glob(root, "*.json")
	if err != nil {
		return fmt.Errorf("failed to list %s files: %w", c.name, err)
	}

	for _, name := range jsonFiles {
		data, err := fs.ReadFile(root, name)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}

			return fmt.Errorf("failed to read %s: %w", name, err)
		}

		if err := fn(models.StorageID(strings.TrimSuffix(name, ".json")), data); err != nil {
			return err
		}
	}

	return nil
}

func (c *Collection[T, PT]) decode(op string, id models.StorageID, data []byte) (*T, error) {
	doc := new(T)
	if err := json.Unmarshal(data, doc); err != nil {
		return nil, persistence.NewDocumentError(op, c.name, string(id), fmt.Errorf("failed to decode document: %w", err))
	}

	return doc, nil
}

// checkUnique must be called with the mutex held.
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

		err = c.each(func(otherID models.StorageID, other []byte) error {
			if otherID == id {
				return nil
			}

			match, err := matcher.Match(other)
			if err != nil {
				return err
			}

			if match {
				return fmt.Errorf("%w: %s already used", persistence.ErrDuplicateDocument, field)
			}

			return nil
		})
		if err != nil {
			return err
		}
	}

	return nil
}

// validID rejects ids that would escape the collection directory.
func validID(id models.StorageID) error {
	s := string(id)
	if s == "" || s != filepath.Base(s) || s == "." || s == ".." || strings.ContainsAny(s, `/\`) {
		return fmt.Errorf("invalid document id %q", s)
	}

	return nil
}
