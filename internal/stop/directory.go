package stop

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/tripboard/tripboard/internal/transit"
)

// Directory is the in-memory mirror of the saved stop list. Every mutation
// is written through to the Store before it returns. Stored order is kept.
type Directory struct {
	mu      sync.RWMutex
	records []Record
	store   Store
	logger  zerolog.Logger
}

// NewDirectory loads the stop list from store.
func NewDirectory(ctx context.Context, store Store, logger zerolog.Logger) (*Directory, error) {
	d := &Directory{
		store:  store,
		logger: logger.With().Str("component", "stop_directory").Logger(),
	}
	if err := d.Reload(ctx); err != nil {
		return nil, err
	}
	return d, nil
}

// Reload replaces the mirror with the store's current contents. Used when
// another process has changed the list.
func (d *Directory) Reload(ctx context.Context) error {
	records, err := d.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading stop directory: %w", err)
	}

	d.mu.Lock()
	d.records = records
	d.mu.Unlock()

	d.logger.Debug().Int("stops", len(records)).Msg("stop directory loaded")
	return nil
}

// Add appends a record. Adding an ID that already exists does nothing and
// reports false. A failed save is returned as *PersistError; the record stays
// in the mirror.
func (d *Directory) Add(ctx context.Context, r Record) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.indexOf(r.ID) >= 0 {
		return false, nil
	}

	d.records = append(d.records, r)
	return true, d.persist(ctx, "add")
}

// AddUnique is Add that also rejects a record whose upstream stop id is
// already saved, with ErrStopIDInUse. The check and the append happen under
// one lock.
func (d *Directory) AddUnique(ctx context.Context, r Record) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.indexOf(r.ID) >= 0 {
		return false, nil
	}
	if d.stopIDTaken(r.StopID, r.ID) {
		return false, ErrStopIDInUse
	}

	d.records = append(d.records, r)
	return true, d.persist(ctx, "add")
}

// Update replaces the record with the same ID.
func (d *Directory) Update(ctx context.Context, r Record) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	i := d.indexOf(r.ID)
	if i < 0 {
		return ErrStopNotFound
	}

	if r.CreatedAt.IsZero() {
		r.CreatedAt = d.records[i].CreatedAt
	}
	d.records[i] = r
	return d.persist(ctx, "update")
}

// UpdateUnique is Update that rejects a stop id saved by another record
// with ErrStopIDInUse.
func (d *Directory) UpdateUnique(ctx context.Context, r Record) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	i := d.indexOf(r.ID)
	if i < 0 {
		return ErrStopNotFound
	}
	if d.stopIDTaken(r.StopID, r.ID) {
		return ErrStopIDInUse
	}

	if r.CreatedAt.IsZero() {
		r.CreatedAt = d.records[i].CreatedAt
	}
	d.records[i] = r
	return d.persist(ctx, "update")
}

// Remove deletes the record with the given ID.
func (d *Directory) Remove(ctx context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	i := d.indexOf(id)
	if i < 0 {
		return ErrStopNotFound
	}

	d.records = append(d.records[:i:i], d.records[i+1:]...)
	return d.persist(ctx, "remove")
}

// Clear removes every record.
func (d *Directory) Clear(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.records = nil
	return d.persist(ctx, "clear")
}

// Seed adds the given records with a single save, skipping IDs already
// present and upstream stop ids already saved. Returns how many were added.
func (d *Directory) Seed(ctx context.Context, records []Record) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	added := 0
	for _, r := range records {
		if d.indexOf(r.ID) >= 0 || d.stopIDTaken(r.StopID, r.ID) {
			continue
		}
		d.records = append(d.records, r)
		added++
	}

	if added == 0 {
		return 0, nil
	}
	return added, d.persist(ctx, "seed")
}

// Get returns the record with the given ID.
func (d *Directory) Get(id string) (Record, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	i := d.indexOf(id)
	if i < 0 {
		return Record{}, ErrStopNotFound
	}
	return d.records[i], nil
}

// List returns a copy of all records in stored order.
func (d *Directory) List() []Record {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]Record, len(d.records))
	copy(out, d.records)
	return out
}

// ListByMode returns the records of one mode in stored order.
func (d *Directory) ListByMode(mode transit.Mode) []Record {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return filterMode(d.records, mode)
}

// Len returns the number of records.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.records)
}

// stopIDTaken reports whether a record other than excludingID uses stopID,
// ignoring case and surrounding space. A blank stop id never conflicts.
// The lock must be held.
func (d *Directory) stopIDTaken(stopID, excludingID string) bool {
	want := normalizeStopID(stopID)
	if want == "" {
		return false
	}
	for _, r := range d.records {
		if r.ID != excludingID && normalizeStopID(r.StopID) == want {
			return true
		}
	}
	return false
}

func (d *Directory) indexOf(id string) int {
	for i := range d.records {
		if d.records[i].ID == id {
			return i
		}
	}
	return -1
}

// persist must be called with the write lock held.
func (d *Directory) persist(ctx context.Context, op string) error {
	snapshot := make([]Record, len(d.records))
	copy(snapshot, d.records)

	if err := d.store.Save(ctx, snapshot); err != nil {
		d.logger.Error().Err(err).Str("op", op).Int("stops", len(snapshot)).Msg("failed to persist stops")
		return &PersistError{Op: op, Err: err}
	}
	return nil
}

func filterMode(records []Record, mode transit.Mode) []Record {
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if r.Mode == mode {
			out = append(out, r)
		}
	}
	return out
}
