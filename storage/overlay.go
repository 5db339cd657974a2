package storage

import (
	"errors"
	"sync"
)

// ErrOverlayClosed is returned when an overlay is used after Commit or
// Discard.
var ErrOverlayClosed = errors.New("storage: overlay closed")

// Overlay buffers writes on top of a parent database. Reads observe the
// buffered writes first. Commit hands the whole buffer to the parent's Apply
// so that either every write lands or none does; Discard drops it.
type Overlay struct {
	mu      sync.Mutex
	parent  Database
	pending map[string][]byte
	closed  bool
}

// NewOverlay starts a write buffer over parent.
func NewOverlay(parent Database) *Overlay {
	return &Overlay{parent: parent, pending: make(map[string][]byte)}
}

func (o *Overlay) Put(key []byte, value []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ErrOverlayClosed
	}
	o.pending[string(key)] = clone(value)
	return nil
}

func (o *Overlay) Get(key []byte) ([]byte, error) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil, ErrOverlayClosed
	}
	value, ok := o.pending[string(key)]
	o.mu.Unlock()
	if ok {
		if value == nil {
			return nil, ErrNotFound
		}
		return clone(value), nil
	}
	return o.parent.Get(key)
}

func (o *Overlay) Delete(key []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ErrOverlayClosed
	}
	o.pending[string(key)] = nil
	return nil
}

// Apply folds changes into the buffer; nested overlays stay atomic because
// nothing reaches the parent until the outermost Commit.
func (o *Overlay) Apply(changes []Change) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ErrOverlayClosed
	}
	for _, c := range changes {
		if c.Value == nil {
			o.pending[string(c.Key)] = nil
			continue
		}
		o.pending[string(c.Key)] = clone(c.Value)
	}
	return nil
}

// Dirty reports the number of buffered keys.
func (o *Overlay) Dirty() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.pending)
}

// Commit flushes the buffer to the parent atomically and closes the overlay.
func (o *Overlay) Commit() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ErrOverlayClosed
	}
	o.closed = true
	if len(o.pending) == 0 {
		return nil
	}
	changes := sortedChanges(o.pending)
	o.pending = nil
	return o.parent.Apply(changes)
}

// Discard drops the buffered writes and closes the overlay.
func (o *Overlay) Discard() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = true
	o.pending = nil
}

// Close discards any uncommitted writes. The parent is left open.
func (o *Overlay) Close() { o.Discard() }

// clone copies b into a non-nil slice so that empty values are not confused
// with deletions.
func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
