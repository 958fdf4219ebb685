package eventstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rickgao/clubhub/internal/model"
)

// FileStore keeps events in a JSON file with the model.EventsFile layout.
// Only rolledEvents is rewritten; every other section, including ones
// model.EventsFile does not declare, is written back byte for byte.
type FileStore struct {
	path string
	now  func() time.Time

	mu sync.Mutex
}

// document is the events file split into its top-level sections.
type document map[string]json.RawMessage

const rolledEventsKey = "rolledEvents"

// emptySections are written when the file is created.
var emptySections = []string{"rolledEvents", "authRequests", "registeredClubs", "registeredAdmins"}

// NewFileStore creates a store backed by path. The file is created on the
// first Append.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path, now: time.Now}
}

// Path returns the backing file path.
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) Append(ctx context.Context, e model.Event) (model.Event, error) {
	e, err := prepare(e, s.now())
	if err != nil {
		return e, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return e, err
	}

	var events []json.RawMessage
	if err := doc.section(rolledEventsKey, &events); err != nil {
		return e, err
	}

	raw, err := json.Marshal(e)
	if err != nil {
		return e, fmt.Errorf("marshal event %d: %w", e.ID, err)
	}
	if err := doc.set(rolledEventsKey, append(events, raw)); err != nil {
		return e, err
	}

	if err := s.write(doc); err != nil {
		return e, err
	}
	return e, nil
}

func (s *FileStore) List(ctx context.Context) ([]model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return nil, err
	}

	events := []model.Event{}
	if err := doc.section(rolledEventsKey, &events); err != nil {
		return nil, err
	}
	return events, nil
}

// Load decodes the sections model.EventsFile declares.
func (s *FileStore) Load() (*model.EventsFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal events file: %w", err)
	}
	f := &model.EventsFile{}
	if err := json.Unmarshal(data, f); err != nil {
		return nil, fmt.Errorf("parse events file: %w", err)
	}
	return normalize(f), nil
}

// read loads the document. A missing file is a document with empty
// sections.
func (s *FileStore) read() (document, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		doc := make(document, len(emptySections))
		for _, name := range emptySections {
			doc[name] = json.RawMessage("[]")
		}
		return doc, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read events file: %w", err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse events file: %w", err)
	}
	if doc == nil {
		return nil, fmt.Errorf("parse events file: not an object")
	}
	return doc, nil
}

// section decodes the named section into v. A missing or null section
// leaves v untouched.
func (d document) section(name string, v any) error {
	raw, ok := d[name]
	if !ok || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("parse %s: %w", name, err)
	}
	return nil
}

func (d document) set(name string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}
	d[name] = raw
	return nil
}

// write replaces the file atomically with two-space indented JSON.
func (s *FileStore) write(doc document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal events file: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".events-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace events file: %w", err)
	}
	return nil
}

// normalize replaces missing sections with empty slices.
func normalize(doc *model.EventsFile) *model.EventsFile {
	if doc.RolledEvents == nil {
		doc.RolledEvents = []model.Event{}
	}
	if doc.AuthRequests == nil {
		doc.AuthRequests = []model.AuthRequest{}
	}
	if doc.RegisteredClubs == nil {
		doc.RegisteredClubs = []model.Club{}
	}
	if doc.RegisteredAdmins == nil {
		doc.RegisteredAdmins = []model.Admin{}
	}
	return doc
}
