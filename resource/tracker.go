package resource

import (
	"sort"
	"sync"
)

// Tracker keeps a registry of owner handles so callers can assert on their
// lifecycle after handing them to a pipeline. Safe for concurrent use.
type Tracker struct {
	mu     sync.Mutex
	images map[string]*Image
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{images: make(map[string]*Image)}
}

// Create allocates a new image (see New) and tracks it.
func (t *Tracker) Create(width, height int, pix []byte) (*Image, error) {
	img, err := New(width, height, pix)
	if err != nil {
		return nil, err
	}
	t.Track(img)
	return img, nil
}

// Track registers an owner handle. Views are ignored: they never own the image.
func (t *Tracker) Track(img *Image) {
	if img == nil || img.Borrowed() {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.images == nil {
		t.images = make(map[string]*Image)
	}
	t.images[img.ID()] = img
}

// Get returns the tracked owner handle for id.
func (t *Tracker) Get(id string) (*Image, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	img, ok := t.images[id]
	return img, ok
}

// Len returns the number of tracked images.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.images)
}

// Live returns how many tracked images are still Live.
func (t *Tracker) Live() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, img := range t.images {
		if img.State() == Live {
			n++
		}
	}
	return n
}

// Snapshot records the current state of every tracked image.
func (t *Tracker) Snapshot() map[string]State {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]State, len(t.images))
	for id, img := range t.images {
		out[id] = img.State()
	}
	return out
}

// Changed returns the sorted IDs of images whose state differs from before.
// Images tracked after the snapshot are not reported.
func (t *Tracker) Changed(before map[string]State) []string {
	now := t.Snapshot()
	var ids []string
	for id, was := range before {
		if st, ok := now[id]; ok && st != was {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}
