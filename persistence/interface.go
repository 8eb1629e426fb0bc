// persistence/interface.go
package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"
)

// Store is a versioned key-value document store.
type Store interface {
	Load(ctx context.Context, key string) (*Document, error)
	Save(ctx context.Context, doc *Document) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Document is one stored value. Data holds JSON.
type Document struct {
	Key       string          `json:"key"`
	Version   int             `json:"version"`
	Data      json.RawMessage `json:"data"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// 错误定义
var (
	ErrRecordNotFound = fmt.Errorf("record not found")
	ErrNewerVersion   = fmt.Errorf("document written by a newer version")
)

// SaveJSON marshals v and stores it under key with the given version.
func SaveJSON(ctx context.Context, s Store, key string, version int, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "marshal %s", key)
	}
	return s.Save(ctx, &Document{Key: key, Version: version, Data: data, UpdatedAt: time.Now()})
}

// LoadJSON loads key into v. It returns ErrRecordNotFound when nothing is
// stored and ErrNewerVersion when the stored version exceeds version.
func LoadJSON(ctx context.Context, s Store, key string, version int, v interface{}) error {
	doc, err := s.Load(ctx, key)
	if err != nil {
		return err
	}
	if doc.Version > version {
		return errors.Wrapf(ErrNewerVersion, "%s: stored v%d, supported v%d", key, doc.Version, version)
	}
	if err := json.Unmarshal(doc.Data, v); err != nil {
		return errors.Wrapf(err, "unmarshal %s", key)
	}
	return nil
}
