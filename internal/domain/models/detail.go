package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// BatchDetail is a read-only, denormalized view of one unit and its record.
type BatchDetail struct {
	Ref                    UnitRef          `json:"-"`
	Kind                   UnitKind         `json:"kind"`
	ID                     string           `json:"id"`
	DisplayName            string           `json:"displayName"`
	TargetQuantityPerBatch decimal.Decimal  `json:"targetQuantityPerBatch"`
	MouldingStartedAt      *time.Time       `json:"mouldingStartedAt"`
	MouldingEndedAt        *time.Time       `json:"mouldingEndedAt"`
	ProductionLoss         *decimal.Decimal `json:"productionLoss"`
	LossEditable           bool             `json:"lossEditable"`
	AchievedQuantity       decimal.Decimal  `json:"achievedQuantity"`
	Stage                  Stage            `json:"stage"`
	Status                 string           `json:"status,omitempty"`
	MemberItems            []MemberItem     `json:"memberItems,omitempty"`
	// TargetSourceIndex is the member that supplied the target, -1 when none did.
	TargetSourceIndex int `json:"targetSourceIndex"`
}

// Duration is the elapsed moulding time, zero until the batch has ended.
func (d BatchDetail) Duration() time.Duration {
	if d.MouldingStartedAt == nil || d.MouldingEndedAt == nil {
		return 0
	}
	return d.MouldingEndedAt.Sub(*d.MouldingStartedAt)
}

// BatchSnapshot is the archived form of a BatchDetail.
type BatchSnapshot struct {
	ID                string         `bson:"_id" json:"id"`
	UnitKind          string         `bson:"unit_kind" json:"unit_kind"`
	UnitID            string         `bson:"unit_id" json:"unit_id"`
	DisplayName       string         `bson:"display_name" json:"display_name"`
	Field             string         `bson:"field" json:"field"`
	Target            string         `bson:"target_qty_per_batch" json:"target_qty_per_batch"`
	MouldingStartedAt *time.Time     `bson:"moulding_started_at,omitempty" json:"moulding_started_at,omitempty"`
	MouldingEndedAt   *time.Time     `bson:"moulding_ended_at,omitempty" json:"moulding_ended_at,omitempty"`
	ProductionLoss    *string        `bson:"production_loss,omitempty" json:"production_loss,omitempty"`
	AchievedQuantity  string         `bson:"qty_achieved" json:"qty_achieved"`
	Stage             string         `bson:"stage" json:"stage"`
	Status            string         `bson:"status,omitempty" json:"status,omitempty"`
	Members           []SnapshotItem `bson:"members,omitempty" json:"members,omitempty"`
	SavedAt           time.Time      `bson:"saved_at" json:"saved_at"`
}

// SnapshotItem is an archived member item.
type SnapshotItem struct {
	ID          string `bson:"id" json:"id"`
	Name        string `bson:"name" json:"name"`
	QtyPerBatch string `bson:"qty_per_batch" json:"qty_per_batch"`
}

// NewBatchSnapshot converts a detail into its archived form. Quantities are
// stored as decimal strings so no precision is lost.
func NewBatchSnapshot(id string, detail BatchDetail, field Field, savedAt time.Time) BatchSnapshot {
	snap := BatchSnapshot{
		ID:                id,
		UnitKind:          string(detail.Kind),
		UnitID:            detail.ID,
		DisplayName:       detail.DisplayName,
		Field:             string(field),
		Target:            detail.TargetQuantityPerBatch.String(),
		MouldingStartedAt: detail.MouldingStartedAt,
		MouldingEndedAt:   detail.MouldingEndedAt,
		AchievedQuantity:  detail.AchievedQuantity.String(),
		Stage:             string(detail.Stage),
		Status:            detail.Status,
		SavedAt:           savedAt,
	}
	if detail.ProductionLoss != nil {
		loss := detail.ProductionLoss.String()
		snap.ProductionLoss = &loss
	}
	for _, m := range detail.MemberItems {
		snap.Members = append(snap.Members, SnapshotItem{ID: m.ID, Name: m.Name, QtyPerBatch: m.QtyPerBatch.String()})
	}
	return snap
}
