// Package detail assembles read-only batch detail views.
package detail

import (
	"fmt"

	"github.com/mamadbah2/mouldtrack/internal/domain/models"
	"github.com/mamadbah2/mouldtrack/internal/yield"
)

// Project combines a unit with its record. Neither argument is modified.
func Project(unit models.ProductionUnit, record models.BatchRecord) models.BatchDetail {
	loss := record.Loss()

	d := models.BatchDetail{
		Ref:                    unit.Ref,
		Kind:                   unit.Ref.Kind,
		ID:                     unit.Ref.ID,
		DisplayName:            unit.DisplayName,
		TargetQuantityPerBatch: unit.TargetQuantityPerBatch,
		MouldingStartedAt:      record.StartedAt(),
		MouldingEndedAt:        record.EndedAt(),
		ProductionLoss:         loss,
		LossEditable:           record.LossEditable(),
		AchievedQuantity:       yield.ComputeAchieved(unit.TargetQuantityPerBatch, loss),
		Stage:                  record.State().Stage(),
		Status:                 record.Status,
		TargetSourceIndex:      -1,
	}

	switch unit.Ref.Kind {
	case models.KindGrouped:
		d.MemberItems = append([]models.MemberItem(nil), unit.MemberItems...)
		d.TargetSourceIndex = yield.TargetSourceIndex(unit.MemberItems)
	default:
		if unit.TargetQuantityPerBatch.IsPositive() {
			d.TargetSourceIndex = 0
		}
	}

	return d
}

// RecordSource reads batch records.
type RecordSource interface {
	Get(ref models.UnitRef) models.BatchRecord
}

// Service builds details from the live listing and store.
type Service struct {
	units   Units
	records RecordSource
}

// Units is the listing view the detail service reads from.
type Units interface {
	Unit(ref models.UnitRef) (models.ProductionUnit, bool)
	ListedUnits(kind models.UnitKind) []models.ProductionUnit
}

// NewService constructs a detail service.
func NewService(units Units, records RecordSource) *Service {
	return &Service{units: units, records: records}
}

// Detail projects one listed unit.
func (s *Service) Detail(ref models.UnitRef) (models.BatchDetail, error) {
	unit, ok := s.units.Unit(ref)
	if !ok {
		return models.BatchDetail{}, fmt.Errorf("detail %s: %w", ref, models.ErrUnknownUnit)
	}
	return Project(unit, s.records.Get(ref)), nil
}

// Details projects every listed unit of one kind, in listing order.
func (s *Service) Details(kind models.UnitKind) []models.BatchDetail {
	units := s.units.ListedUnits(kind)
	out := make([]models.BatchDetail, 0, len(units))
	for _, unit := range units {
		out = append(out, Project(unit, s.records.Get(unit.Ref)))
	}
	return out
}
