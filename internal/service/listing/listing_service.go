package listing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mamadbah2/mouldtrack/internal/domain/models"
	"github.com/mamadbah2/mouldtrack/internal/store"
	"github.com/mamadbah2/mouldtrack/internal/yield"
	"github.com/mamadbah2/mouldtrack/pkg/clients/production"
)

// Backend is the listing subset of the production API.
type Backend interface {
	FetchGroups(ctx context.Context) ([]production.GroupDTO, error)
	FetchUngrouped(ctx context.Context) ([]production.ItemDTO, error)
}

// CollectionState is the loading state of one collection.
type CollectionState struct {
	Kind      models.UnitKind
	Units     []models.ProductionUnit
	Loading   bool
	Err       error
	FetchedAt time.Time
}

// Summary carries the counts shown above the two tables.
type Summary struct {
	Groups       int `json:"groups"`
	GroupedItems int `json:"groupedItems"`
	Ungrouped    int `json:"ungrouped"`
}

// Service keeps the grouped and ungrouped collections. Each collection loads
// and fails on its own.
type Service struct {
	backend Backend
	store   *store.Store
	logger  *zap.Logger
	now     func() time.Time

	mu          sync.RWMutex
	collections map[models.UnitKind]*CollectionState
}

// NewService wires a listing service that hydrates the given store.
func NewService(backend Backend, records *store.Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		backend: backend,
		store:   records,
		logger:  logger,
		now:     time.Now,
		collections: map[models.UnitKind]*CollectionState{
			models.KindGrouped:   {Kind: models.KindGrouped},
			models.KindUngrouped: {Kind: models.KindUngrouped},
		},
	}
}

// FetchGroups reloads the grouped production lines and re-hydrates their records.
func (s *Service) FetchGroups(ctx context.Context) ([]models.ProductionUnit, error) {
	s.markLoading(models.KindGrouped)

	dtos, err := s.backend.FetchGroups(ctx)
	if err != nil {
		return nil, s.fail(models.KindGrouped, err)
	}

	units := make([]models.ProductionUnit, 0, len(dtos))
	records := make(map[string]models.BatchRecord, len(dtos))
	for _, dto := range dtos {
		unit, record := groupToUnit(dto)
		units = append(units, unit)
		records[dto.ID] = record
	}

	return s.replace(models.KindGrouped, units, records), nil
}

// FetchUngrouped reloads the ungrouped items and re-hydrates their records.
func (s *Service) FetchUngrouped(ctx context.Context) ([]models.ProductionUnit, error) {
	s.markLoading(models.KindUngrouped)

	dtos, err := s.backend.FetchUngrouped(ctx)
	if err != nil {
		return nil, s.fail(models.KindUngrouped, err)
	}

	units := make([]models.ProductionUnit, 0, len(dtos))
	records := make(map[string]models.BatchRecord, len(dtos))
	for _, dto := range dtos {
		unit, record := itemToUnit(dto)
		units = append(units, unit)
		records[dto.ID] = record
	}

	return s.replace(models.KindUngrouped, units, records), nil
}

// Fetch reloads the collection of the given kind.
func (s *Service) Fetch(ctx context.Context, kind models.UnitKind) ([]models.ProductionUnit, error) {
	if kind == models.KindGrouped {
		return s.FetchGroups(ctx)
	}
	return s.FetchUngrouped(ctx)
}

// Refresh reloads both collections concurrently. A failure of one does not
// prevent the other from loading.
func (s *Service) Refresh(ctx context.Context) error {
	var (
		wg       sync.WaitGroup
		groupErr error
		itemErr  error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		_, groupErr = s.FetchGroups(ctx)
	}()
	go func() {
		defer wg.Done()
		_, itemErr = s.FetchUngrouped(ctx)
	}()
	wg.Wait()

	return errors.Join(groupErr, itemErr)
}

// RevertUnit restores one unit's record from a fresh fetch of its collection,
// leaving the other records of that collection untouched.
func (s *Service) RevertUnit(ctx context.Context, ref models.UnitRef) error {
	var (
		unit   models.ProductionUnit
		record models.BatchRecord
		found  bool
	)

	switch ref.Kind {
	case models.KindGrouped:
		dtos, err := s.backend.FetchGroups(ctx)
		if err != nil {
			return &models.ListingError{Kind: ref.Kind, Err: err}
		}
		for _, dto := range dtos {
			if dto.ID == ref.ID {
				unit, record = groupToUnit(dto)
				found = true
				break
			}
		}
	default:
		dtos, err := s.backend.FetchUngrouped(ctx)
		if err != nil {
			return &models.ListingError{Kind: ref.Kind, Err: err}
		}
		for _, dto := range dtos {
			if dto.ID == ref.ID {
				unit, record = itemToUnit(dto)
				found = true
				break
			}
		}
	}

	if !found {
		return fmt.Errorf("revert %s: %w", ref, models.ErrUnknownUnit)
	}

	s.store.Revert(ref, record)

	s.mu.Lock()
	defer s.mu.Unlock()
	state := s.collections[ref.Kind]
	for i := range state.Units {
		if state.Units[i].Ref == ref {
			state.Units[i] = unit
		}
	}
	return nil
}

// Collection returns a copy of the current state of one collection.
func (s *Service) Collection(kind models.UnitKind) CollectionState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.collections[kind]
	if !ok {
		return CollectionState{Kind: kind}
	}
	out := *state
	out.Units = append([]models.ProductionUnit(nil), state.Units...)
	return out
}

// Unit looks up a listed unit.
func (s *Service) Unit(ref models.UnitRef) (models.ProductionUnit, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.collections[ref.Kind]
	if !ok {
		return models.ProductionUnit{}, false
	}
	for _, unit := range state.Units {
		if unit.Ref == ref {
			return unit, true
		}
	}
	return models.ProductionUnit{}, false
}

// ListedUnits returns the units currently shown for one kind.
func (s *Service) ListedUnits(kind models.UnitKind) []models.ProductionUnit {
	return s.Collection(kind).Units
}

// Counts summarizes both collections.
func (s *Service) Counts() Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var summary Summary
	for _, unit := range s.collections[models.KindGrouped].Units {
		summary.Groups++
		summary.GroupedItems += unit.TotalItems
	}
	summary.Ungrouped = len(s.collections[models.KindUngrouped].Units)
	return summary
}

// RemoveUnit hides a unit from its collection and drops its record. Nothing
// is sent to the backend.
func (s *Service) RemoveUnit(ref models.UnitRef) bool {
	s.mu.Lock()
	state, ok := s.collections[ref.Kind]
	removed := false
	if ok {
		kept := state.Units[:0]
		for _, unit := range state.Units {
			if unit.Ref == ref {
				removed = true
				continue
			}
			kept = append(kept, unit)
		}
		state.Units = kept
	}
	s.mu.Unlock()

	if removed {
		s.store.Remove(ref)
		s.logger.Warn("unit removed locally only", zap.Stringer("unit", ref))
	}
	return removed
}

func (s *Service) markLoading(kind models.UnitKind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collections[kind].Loading = true
}

func (s *Service) fail(kind models.UnitKind, err error) error {
	listErr := &models.ListingError{Kind: kind, Err: err}

	s.mu.Lock()
	state := s.collections[kind]
	state.Loading = false
	state.Err = listErr
	s.mu.Unlock()

	s.logger.Error("listing fetch failed", zap.String("kind", string(kind)), zap.Error(err))
	return listErr
}

func (s *Service) replace(kind models.UnitKind, units []models.ProductionUnit, records map[string]models.BatchRecord) []models.ProductionUnit {
	visible := units[:0]
	for _, unit := range units {
		if s.store.IsRemoved(unit.Ref) {
			delete(records, unit.Ref.ID)
			continue
		}
		visible = append(visible, unit)
	}

	s.store.Hydrate(kind, records)

	s.mu.Lock()
	state := s.collections[kind]
	state.Units = visible
	state.Loading = false
	state.Err = nil
	state.FetchedAt = s.now()
	s.mu.Unlock()

	s.logger.Debug("collection refreshed", zap.String("kind", string(kind)), zap.Int("units", len(visible)))
	return append([]models.ProductionUnit(nil), visible...)
}

func groupToUnit(dto production.GroupDTO) (models.ProductionUnit, models.BatchRecord) {
	members := make([]models.MemberItem, 0, len(dto.Items))
	for _, item := range dto.Items {
		members = append(members, models.MemberItem{ID: item.ID, Name: item.ItemName, QtyPerBatch: item.QtyPerBatch})
	}

	total := dto.TotalItems
	if total == 0 {
		total = len(members)
	}

	unit := models.ProductionUnit{
		Ref:                    models.Grouped(dto.ID),
		DisplayName:            dto.GroupName,
		TargetQuantityPerBatch: yield.FirstNonZeroTarget(members),
		MemberItems:            members,
		TotalItems:             total,
	}
	return unit, toRecord(dto.MouldingStartedAt, dto.MouldingEndedAt, dto.ProductionLoss, dto.QtyAchieved, dto.Status)
}

func itemToUnit(dto production.ItemDTO) (models.ProductionUnit, models.BatchRecord) {
	item := models.MemberItem{ID: dto.ID, Name: dto.ItemName, QtyPerBatch: dto.QtyPerBatch}
	unit := models.ProductionUnit{
		Ref:                    models.Ungrouped(dto.ID),
		DisplayName:            dto.ItemName,
		TargetQuantityPerBatch: dto.QtyPerBatch,
		MemberItems:            []models.MemberItem{item},
		TotalItems:             1,
	}
	return unit, toRecord(dto.MouldingStartedAt, dto.MouldingEndedAt, dto.ProductionLoss, dto.QtyAchieved, dto.Status)
}

func toRecord(start, end *time.Time, loss, achieved decimal.NullDecimal, status string) models.BatchRecord {
	var lossPtr *decimal.Decimal
	if loss.Valid {
		lossPtr = &loss.Decimal
	}
	record := models.NewBatchRecord(start, end, lossPtr)
	record.Status = status
	if achieved.Valid {
		a := achieved.Decimal
		record.ServerAchieved = &a
	}
	return record
}
