package resume

import (
	"fmt"
	"slices"
	"sync"
)

// Tracker is the single write path for an in-flight download's document.
type Tracker struct {
	mu   sync.Mutex
	path string
	doc  *Document
}

func NewTracker(path string, doc *Document) *Tracker {
	return &Tracker{path: path, doc: doc}
}

func (t *Tracker) Path() string {
	return t.path
}

// Save persists the current document.
func (t *Tracker) Save() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Save(t.path, t.doc)
}

// MarkComplete flags unit index as done, adds its bytes and persists the
// document before returning.
func (t *Tracker) MarkComplete(index int, bytes int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if index < 0 || index >= len(t.doc.Completed) {
		return fmt.Errorf("unit index %d out of range", index)
	}
	if t.doc.Completed[index] {
		return nil
	}
	t.doc.Completed[index] = true
	t.doc.BytesDownloaded += bytes
	return Save(t.path, t.doc)
}

func (t *Tracker) Completed() []bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.doc.Completed)
}

func (t *Tracker) AllComplete() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !slices.Contains(t.doc.Completed, false)
}

func (t *Tracker) BytesDownloaded() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.doc.BytesDownloaded
}

func (t *Tracker) Remove() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Remove(t.path)
}
