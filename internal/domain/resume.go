package domain

import (
	"sort"
	"time"
)

// ResumeEntry records that an asset's file was fully and atomically placed.
type ResumeEntry struct {
	AssetID     string
	FileName    string
	Size        int64
	SHA256      string
	RunID       string
	CompletedAt time.Time
}

// SameContent reports whether two entries describe the same placed file.
// Bookkeeping fields (RunID, CompletedAt) are ignored.
func (e ResumeEntry) SameContent(other ResumeEntry) bool {
	return e.AssetID == other.AssetID &&
		e.FileName == other.FileName &&
		e.Size == other.Size &&
		e.SHA256 == other.SHA256
}

// ResumeRecord is the set of completed assets persisted for one output directory.
type ResumeRecord struct {
	entries map[string]ResumeEntry
}

// NewResumeRecord creates an empty record.
func NewResumeRecord() *ResumeRecord {
	return &ResumeRecord{entries: make(map[string]ResumeEntry)}
}

// Add inserts entry. Adding an entry with the same content as an existing
// one is a no-op; a different value for an existing asset returns
// ErrRecordConflict and leaves the record unchanged.
func (r *ResumeRecord) Add(entry ResumeEntry) error {
	if existing, ok := r.entries[entry.AssetID]; ok {
		if existing.SameContent(entry) {
			return nil
		}
		return ErrRecordConflict
	}
	r.entries[entry.AssetID] = entry
	return nil
}

// Get returns the entry for assetID.
func (r *ResumeRecord) Get(assetID string) (ResumeEntry, bool) {
	e, ok := r.entries[assetID]
	return e, ok
}

// Len returns the number of entries.
func (r *ResumeRecord) Len() int {
	return len(r.entries)
}

// Entries returns all entries ordered by asset ID.
func (r *ResumeRecord) Entries() []ResumeEntry {
	out := make([]ResumeEntry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AssetID < out[j].AssetID })
	return out
}

// CompletedSet is the set of asset IDs with a complete, verified local copy.
type CompletedSet map[string]struct{}

// Has reports whether assetID is complete.
func (s CompletedSet) Has(assetID string) bool {
	_, ok := s[assetID]
	return ok
}

// Add marks assetID as complete.
func (s CompletedSet) Add(assetID string) {
	s[assetID] = struct{}{}
}
