// Package journal records pinned uploads and whether they were anchored on chain.
//
// An upload that succeeded but whose contract write failed stays in the
// journal as orphaned. Nothing is retried; the entry only makes the pinned
// content visible so that it can be anchored later.
package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	ds "github.com/ipfs/go-datastore"
	"github.com/ipfs/go-datastore/query"
	dssync "github.com/ipfs/go-datastore/sync"
	badger3 "github.com/ipfs/go-ds-badger3"

	"github.com/evidence-registry/evreg/pkg/config"
)

// Status of a journaled upload.
type Status string

const (
	StatusPinned   Status = "pinned"
	StatusAnchored Status = "anchored"
	StatusOrphaned Status = "orphaned"
)

const pinPrefix = "/pins"

// ErrNotFound is returned for unknown entry ids.
var ErrNotFound = errors.New("journal entry not found")

// PinEntry is one upload.
type PinEntry struct {
	ID        uuid.UUID `json:"id"`
	CID       string    `json:"cid"`
	FileName  string    `json:"fileName,omitempty"`
	Size      int64     `json:"size"`
	CaseID    string    `json:"caseId"`
	Status    Status    `json:"status"`
	TxHash    string    `json:"txHash,omitempty"`
	Error     string    `json:"error,omitempty"`
	PinnedAt  time.Time `json:"pinnedAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Journal stores PinEntry values in a datastore.
type Journal struct {
	db  ds.Batching
	mu  sync.Mutex
	now func() time.Time
}

// New wraps an existing datastore.
func New(db ds.Batching) *Journal {
	return &Journal{db: db, now: time.Now}
}

// NewInMemory returns a journal that is lost on exit.
func NewInMemory() *Journal {
	return New(dssync.MutexWrap(ds.NewMapDatastore()))
}

// Open returns the journal described by cfg. A disabled journal or an empty
// path keep the journal in memory; otherwise entries persist in badger under
// the configured directory.
func Open(cfg config.Config) (*Journal, error) {
	dir := cfg.JournalDir()
	if !cfg.Journal.Enabled || dir == "" {
		return NewInMemory(), nil
	}
	opts := badger3.DefaultOptions
	db, err := badger3.NewDatastore(filepath.Clean(dir), &opts)
	if err != nil {
		return nil, fmt.Errorf("opening journal at %s: %w", dir, err)
	}
	return New(db), nil
}

// Close releases the underlying datastore.
func (j *Journal) Close() error {
	return j.db.Close()
}

func entryKey(id uuid.UUID) ds.Key {
	return ds.NewKey(pinPrefix).ChildString(id.String())
}

// RecordPinned journals a successful upload.
func (j *Journal) RecordPinned(ctx context.Context, cid, fileName string, size int64, caseID string) (PinEntry, error) {
	now := j.now().UTC()
	e := PinEntry{
		ID:        uuid.New(),
		CID:       cid,
		FileName:  fileName,
		Size:      size,
		CaseID:    caseID,
		Status:    StatusPinned,
		PinnedAt:  now,
		UpdatedAt: now,
	}
	if err := j.put(ctx, e); err != nil {
		return PinEntry{}, err
	}
	return e, nil
}

// MarkAnchored records the transaction that referenced the upload on chain.
func (j *Journal) MarkAnchored(ctx context.Context, id uuid.UUID, txHash string) (PinEntry, error) {
	return j.update(ctx, id, func(e *PinEntry) {
		e.Status = StatusAnchored
		e.TxHash = txHash
		e.Error = ""
	})
}

// MarkOrphaned records that the contract write for the upload failed.
func (j *Journal) MarkOrphaned(ctx context.Context, id uuid.UUID, cause error) (PinEntry, error) {
	return j.update(ctx, id, func(e *PinEntry) {
		e.Status = StatusOrphaned
		if cause != nil {
			e.Error = cause.Error()
		}
	})
}

// Get returns a single entry.
func (j *Journal) Get(ctx context.Context, id uuid.UUID) (PinEntry, error) {
	data, err := j.db.Get(ctx, entryKey(id))
	if errors.Is(err, ds.ErrNotFound) {
		return PinEntry{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return PinEntry{}, fmt.Errorf("reading journal entry: %w", err)
	}
	var e PinEntry
	if err := json.Unmarshal(data, &e); err != nil {
		return PinEntry{}, fmt.Errorf("decoding journal entry %s: %w", id, err)
	}
	return e, nil
}

// FindByCID returns the most recent entry for a content identifier.
func (j *Journal) FindByCID(ctx context.Context, cid string) (PinEntry, bool, error) {
	entries, err := j.List(ctx)
	if err != nil {
		return PinEntry{}, false, err
	}
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].CID == cid {
			return entries[i], true, nil
		}
	}
	return PinEntry{}, false, nil
}

// List returns every entry ordered by pin time.
func (j *Journal) List(ctx context.Context) ([]PinEntry, error) {
	return j.filter(ctx, func(PinEntry) bool { return true })
}

// Orphaned returns the entries whose contract write failed.
func (j *Journal) Orphaned(ctx context.Context) ([]PinEntry, error) {
	return j.filter(ctx, func(e PinEntry) bool { return e.Status == StatusOrphaned })
}

func (j *Journal) filter(ctx context.Context, keep func(PinEntry) bool) ([]PinEntry, error) {
	results, err := j.db.Query(ctx, query.Query{Prefix: pinPrefix})
	if err != nil {
		return nil, fmt.Errorf("querying journal: %w", err)
	}
	defer results.Close()

	var entries []PinEntry
	for r := range results.Next() {
		if r.Error != nil {
			return nil, fmt.Errorf("iterating journal: %w", r.Error)
		}
		var e PinEntry
		if err := json.Unmarshal(r.Value, &e); err != nil {
			return nil, fmt.Errorf("decoding journal entry %s: %w", strings.TrimPrefix(r.Key, pinPrefix+"/"), err)
		}
		if keep(e) {
			entries = append(entries, e)
		}
	}
	sort.SliceStable(entries, func(a, b int) bool {
		return entries[a].PinnedAt.Before(entries[b].PinnedAt)
	})
	return entries, nil
}

func (j *Journal) update(ctx context.Context, id uuid.UUID, mutate func(*PinEntry)) (PinEntry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	e, err := j.Get(ctx, id)
	if err != nil {
		return PinEntry{}, err
	}
	mutate(&e)
	e.UpdatedAt = j.now().UTC()
	if err := j.put(ctx, e); err != nil {
		return PinEntry{}, err
	}
	return e, nil
}

func (j *Journal) put(ctx context.Context, e PinEntry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encoding journal entry: %w", err)
	}
	if err := j.db.Put(ctx, entryKey(e.ID), data); err != nil {
		return fmt.Errorf("writing journal entry: %w", err)
	}
	return nil
}
