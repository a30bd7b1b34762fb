package store

import "sync"

// PendingUpload is an in-flight file transfer, created when a slot is
// requested and destroyed when the transfer completes or is abandoned. The
// id doubles as the correlation id of the slot-request round trip.
type PendingUpload struct {
	ID          string
	Filename    string
	Size        int64
	ContentType string
	Data        []byte
	Destination string // bare jid of the contact or room the link goes to
	Conn        uint64 // connection generation the slot was requested on
}

// UploadTable manages pending uploads keyed by correlation id.
type UploadTable struct {
	mu      sync.RWMutex
	uploads map[string]*PendingUpload
}

// NewUploadTable creates an empty upload table.
func NewUploadTable() *UploadTable {
	return &UploadTable{uploads: make(map[string]*PendingUpload)}
}

// Add registers a pending upload.
func (t *UploadTable) Add(u PendingUpload) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.uploads[u.ID] = &u
}

// Get returns the pending upload for a correlation id.
func (t *UploadTable) Get(id string) (PendingUpload, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	u, ok := t.uploads[id]
	if !ok {
		return PendingUpload{}, false
	}
	return *u, true
}

// Remove drops a pending upload and reports whether it existed.
func (t *UploadTable) Remove(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.uploads[id]; !ok {
		return false
	}
	delete(t.uploads, id)
	return true
}

// Count returns the number of pending uploads.
func (t *UploadTable) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.uploads)
}

// Clear removes all pending uploads.
func (t *UploadTable) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.uploads = make(map[string]*PendingUpload)
}
