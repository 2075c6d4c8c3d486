package docstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
)

// ErrAlreadyExists is returned by Create when the document is already present.
var ErrAlreadyExists = errors.New("document already exists")

// ErrNotFound is returned by Update when there is no document at the path.
var ErrNotFound = errors.New("document not found")

// Document is the persisted row behind every path-addressed document.
type Document struct {
	Path       string         `gorm:"primaryKey;size:512"`
	Collection string         `gorm:"index;size:512;not null"`
	Data       datatypes.JSON `gorm:"not null"`
	CreateTime time.Time      `gorm:"not null"`
	UpdateTime time.Time      `gorm:"not null"`
}

// Snapshot is a point-in-time view of a document. A snapshot of a missing
// document has Exists == false and no data.
type Snapshot struct {
	Path       string
	Exists     bool
	Data       json.RawMessage
	CreateTime time.Time
	UpdateTime time.Time
}

// ID returns the last segment of the document path.
func (s Snapshot) ID() string {
	return lastSegment(s.Path)
}

// DataTo decodes the document body into v.
func (s Snapshot) DataTo(v any) error {
	if !s.Exists {
		return fmt.Errorf("document %s does not exist", s.Path)
	}
	return json.Unmarshal(s.Data, v)
}

func snapshotOf(doc Document) Snapshot {
	return Snapshot{
		Path:       doc.Path,
		Exists:     true,
		Data:       json.RawMessage(doc.Data),
		CreateTime: doc.CreateTime,
		UpdateTime: doc.UpdateTime,
	}
}

// Change describes one committed write. Before is absent on creation and
// After is absent on deletion.
type Change struct {
	EventID string
	Path    string
	Before  Snapshot
	After   Snapshot
	Time    time.Time
}

// ChangeSink receives committed changes.
type ChangeSink interface {
	Publish(change Change)
}

// Join builds a document or collection path from its segments.
func Join(segments ...string) string {
	return strings.Join(segments, "/")
}

// CollectionOf returns the collection path that contains the document path.
func CollectionOf(path string) string {
	i := strings.LastIndex(path, "/")
	if i < 0 {
		return ""
	}
	return path[:i]
}

func lastSegment(path string) string {
	i := strings.LastIndex(path, "/")
	return path[i+1:]
}

func validatePath(path string) error {
	segments := strings.Split(path, "/")
	if len(segments)%2 != 0 {
		return fmt.Errorf("invalid document path %q: expected collection/id pairs", path)
	}
	for _, s := range segments {
		if s == "" {
			return fmt.Errorf("invalid document path %q: empty segment", path)
		}
	}
	return nil
}
