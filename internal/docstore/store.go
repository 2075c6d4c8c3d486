package docstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// maxWriteAttempts bounds retries when two writers insert the same new path.
const maxWriteAttempts = 3

// errInsertRace means another transaction inserted the path first.
var errInsertRace = errors.New("document was inserted concurrently")

// Store is a path-addressed document store. Every committed write is
// published to the configured ChangeSink after the transaction commits.
type Store interface {
	Get(ctx context.Context, path string) (Snapshot, error)
	List(ctx context.Context, collection string) ([]Snapshot, error)
	Set(ctx context.Context, path string, data any) error
	Merge(ctx context.Context, path string, data any) error
	Create(ctx context.Context, path string, data any) error
	Update(ctx context.Context, path string, data any) error
	Delete(ctx context.Context, path string) error
}

// gormStore implements Store on a single documents table.
type gormStore struct {
	db   *gorm.DB
	sink ChangeSink
	now  func() time.Time
}

// NewGormStore creates a GORM-backed document store. sink may be nil, in
// which case writes are not observed by anyone.
func NewGormStore(db *gorm.DB, sink ChangeSink) Store {
	return &gormStore{
		db:   db,
		sink: sink,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Get returns the document at path. A missing document is not an error.
func (s *gormStore) Get(ctx context.Context, path string) (Snapshot, error) {
	if err := validatePath(path); err != nil {
		return Snapshot{}, err
	}
	return fetch(s.db.WithContext(ctx), path)
}

// List returns every document directly inside the collection, ordered by path.
func (s *gormStore) List(ctx context.Context, collection string) ([]Snapshot, error) {
	var docs []Document
	if err := s.db.WithContext(ctx).
		Where("collection = ?", collection).
		Order("path").
		Find(&docs).Error; err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", collection, err)
	}
	snapshots := make([]Snapshot, 0, len(docs))
	for _, d := range docs {
		snapshots = append(snapshots, snapshotOf(d))
	}
	return snapshots, nil
}

// Set replaces the document at path.
func (s *gormStore) Set(ctx context.Context, path string, data any) error {
	body, err := encode(data)
	if err != nil {
		return err
	}
	return s.write(ctx, path, func(before Snapshot) ([]byte, error) {
		return body, nil
	})
}

// Merge deep-merges data into the document at path, creating it if needed.
func (s *gormStore) Merge(ctx context.Context, path string, data any) error {
	patch, err := encode(data)
	if err != nil {
		return err
	}
	return s.write(ctx, path, func(before Snapshot) ([]byte, error) {
		if !before.Exists {
			return patch, nil
		}
		return mergeJSON(before.Data, patch)
	})
}

// Create writes a new document and fails with ErrAlreadyExists if one is
// already at path.
func (s *gormStore) Create(ctx context.Context, path string, data any) error {
	body, err := encode(data)
	if err != nil {
		return err
	}
	return s.write(ctx, path, func(before Snapshot) ([]byte, error) {
		if before.Exists {
			return nil, fmt.Errorf("create %s: %w", path, ErrAlreadyExists)
		}
		return body, nil
	})
}

// Update deep-merges data into an existing document and fails with
// ErrNotFound if there is none at path.
func (s *gormStore) Update(ctx context.Context, path string, data any) error {
	patch, err := encode(data)
	if err != nil {
		return err
	}
	return s.write(ctx, path, func(before Snapshot) ([]byte, error) {
		if !before.Exists {
			return nil, fmt.Errorf("update %s: %w", path, ErrNotFound)
		}
		return mergeJSON(before.Data, patch)
	})
}

// Delete removes the document at path. Deleting a missing document is a no-op
// and publishes nothing.
func (s *gormStore) Delete(ctx context.Context, path string) error {
	if err := validatePath(path); err != nil {
		return err
	}

	var before Snapshot
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		before, err = fetchForUpdate(tx, path)
		if err != nil {
			return err
		}
		if !before.Exists {
			return nil
		}
		if err := tx.Delete(&Document{}, "path = ?", path).Error; err != nil {
			return fmt.Errorf("failed to delete %s: %w", path, err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if before.Exists {
		s.publish(path, before, Snapshot{Path: path})
	}
	return nil
}

// write runs a read-modify-write of one document inside a transaction and
// publishes the change once it has committed.
func (s *gormStore) write(ctx context.Context, path string, build func(before Snapshot) ([]byte, error)) error {
	if err := validatePath(path); err != nil {
		return err
	}

	var before, after Snapshot
	var err error
	for attempt := 1; attempt <= maxWriteAttempts; attempt++ {
		before, after, err = s.writeOnce(ctx, path, build)
		if !errors.Is(err, errInsertRace) {
			break
		}
	}
	if err != nil {
		return err
	}

	s.publish(path, before, after)
	return nil
}

func (s *gormStore) writeOnce(ctx context.Context, path string, build func(before Snapshot) ([]byte, error)) (Snapshot, Snapshot, error) {
	var before, after Snapshot
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		before, err = fetchForUpdate(tx, path)
		if err != nil {
			return err
		}

		body, err := build(before)
		if err != nil {
			return err
		}

		now := s.now()
		doc := Document{
			Path:       path,
			Collection: CollectionOf(path),
			Data:       body,
			CreateTime: now,
			UpdateTime: now,
		}

		if before.Exists {
			doc.CreateTime = before.CreateTime
			if err := tx.Model(&Document{}).
				Where("path = ?", path).
				Updates(map[string]any{"data": doc.Data, "update_time": doc.UpdateTime}).Error; err != nil {
				return fmt.Errorf("failed to update %s: %w", path, err)
			}
		} else {
			result := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&doc)
			if result.Error != nil {
				return fmt.Errorf("failed to insert %s: %w", path, result.Error)
			}
			if result.RowsAffected == 0 {
				return errInsertRace
			}
		}

		after = snapshotOf(doc)
		return nil
	})
	return before, after, err
}

func (s *gormStore) publish(path string, before, after Snapshot) {
	if s.sink == nil {
		return
	}
	if !before.Exists {
		before.Path = path
	}
	s.sink.Publish(Change{
		EventID: uuid.NewString(),
		Path:    path,
		Before:  before,
		After:   after,
		Time:    s.now(),
	})
}

// fetchForUpdate reads a document inside a transaction, holding a row lock
// where the database supports one. SQLite serializes writers on its own.
func fetchForUpdate(tx *gorm.DB, path string) (Snapshot, error) {
	if tx.Dialector.Name() == "postgres" {
		tx = tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return fetch(tx, path)
}

func fetch(db *gorm.DB, path string) (Snapshot, error) {
	var docs []Document
	if err := db.Where("path = ?", path).Limit(1).Find(&docs).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Snapshot{Path: path}, nil
		}
		return Snapshot{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if len(docs) == 0 {
		return Snapshot{Path: path}, nil
	}
	return snapshotOf(docs[0]), nil
}
