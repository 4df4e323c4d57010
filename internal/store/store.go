// Package store holds the client-side batch records of every tracked unit.
package store

import (
	"sync"

	"github.com/shopspring/decimal"

	"github.com/mamadbah2/mouldtrack/internal/domain/models"
)

// ServerFields are the values the backend confirmed after a save.
type ServerFields struct {
	Values   []models.FieldValue
	Status   string
	Achieved *decimal.Decimal
}

// Store maps unit references to batch records. Grouped and ungrouped units
// share one store; the ref kind keeps them apart.
type Store struct {
	mu      sync.RWMutex
	records map[models.UnitRef]models.BatchRecord
	removed map[models.UnitRef]struct{}
	seq     uint64
}

// New creates an empty store.
func New() *Store {
	return &Store{
		records: make(map[models.UnitRef]models.BatchRecord),
		removed: make(map[models.UnitRef]struct{}),
	}
}

// Get returns the record for ref, or the all-absent record when unknown.
func (s *Store) Get(ref models.UnitRef) models.BatchRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.records[ref]
}

// ApplyLocalPatch writes a user edit immediately, before it is persisted.
// Out-of-sequence edits are rejected and leave the record untouched.
func (s *Store) ApplyLocalPatch(ref models.UnitRef, value models.FieldValue) (models.PendingEdit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, gone := s.removed[ref]; gone {
		return models.PendingEdit{}, models.ErrUnknownUnit
	}

	current := s.records[ref]
	next, err := current.Apply(value)
	if err != nil {
		return models.PendingEdit{}, err
	}

	s.seq++
	edit := models.PendingEdit{
		Ref:      ref,
		Previous: current.Value(value.Field),
		HadLoss:  current.Loss() != nil,
		Next:     next.Value(value.Field),
		Seq:      s.seq,
	}
	s.records[ref] = next
	return edit, nil
}

// Reconcile overwrites fields with the values the backend confirmed.
func (s *Store) Reconcile(ref models.UnitRef, fields ServerFields) models.BatchRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	record := s.records[ref]
	for _, v := range fields.Values {
		record = record.With(v)
	}
	if fields.Status != "" {
		record.Status = fields.Status
	}
	if fields.Achieved != nil {
		achieved := *fields.Achieved
		record.ServerAchieved = &achieved
	}
	if _, gone := s.removed[ref]; !gone {
		s.records[ref] = record
	}
	return record
}

// Rollback restores the value an edit replaced. It is a no-op when the field
// no longer holds the edit's value, so a newer edit is never overwritten.
func (s *Store) Rollback(edit models.PendingEdit) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[edit.Ref]
	if !ok || !record.Value(edit.Next.Field).Equal(edit.Next) {
		return false
	}

	if edit.Next.Field == models.FieldProductionLoss && !edit.HadLoss {
		record = record.WithoutLoss()
	} else {
		record = record.With(edit.Previous)
	}
	s.records[edit.Ref] = record
	return true
}

// Revert replaces the record for ref with a known-good one from the backend.
func (s *Store) Revert(ref models.UnitRef, record models.BatchRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, gone := s.removed[ref]; gone {
		return
	}
	s.records[ref] = record
}

// Hydrate replaces every record of the given kind. Refs missing from records
// are discarded; locally removed refs stay removed.
func (s *Store) Hydrate(kind models.UnitKind, records map[string]models.BatchRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for ref := range s.records {
		if ref.Kind != kind {
			continue
		}
		if _, ok := records[ref.ID]; !ok {
			delete(s.records, ref)
		}
	}

	for id, record := range records {
		ref := models.UnitRef{Kind: kind, ID: id}
		if _, gone := s.removed[ref]; gone {
			continue
		}
		s.records[ref] = record
	}
}

// Remove drops ref from the store. The removal is local only.
func (s *Store) Remove(ref models.UnitRef) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, ref)
	s.removed[ref] = struct{}{}
}

// IsRemoved reports whether ref was removed locally.
func (s *Store) IsRemoved(ref models.UnitRef) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, gone := s.removed[ref]
	return gone
}
