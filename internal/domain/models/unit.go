package models

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// UnitKind distinguishes grouped production lines from individually tracked items.
type UnitKind string

const (
	KindGrouped   UnitKind = "grouped"
	KindUngrouped UnitKind = "ungrouped"
)

// ParseUnitKind resolves the textual kind used in routes and reports.
func ParseUnitKind(value string) (UnitKind, error) {
	switch UnitKind(strings.ToLower(strings.TrimSpace(value))) {
	case KindGrouped, "groups", "group":
		return KindGrouped, nil
	case KindUngrouped, "items", "item":
		return KindUngrouped, nil
	default:
		return "", &ValidationError{Field: "kind", Reason: fmt.Sprintf("unknown unit kind %q", value)}
	}
}

// UnitRef identifies one tracked unit: Grouped(id) or Ungrouped(id).
type UnitRef struct {
	Kind UnitKind
	ID   string
}

// Grouped builds a reference to a production group.
func Grouped(id string) UnitRef { return UnitRef{Kind: KindGrouped, ID: id} }

// Ungrouped builds a reference to an ungrouped catalog item.
func Ungrouped(id string) UnitRef { return UnitRef{Kind: KindUngrouped, ID: id} }

func (r UnitRef) String() string {
	return string(r.Kind) + ":" + r.ID
}

// MemberItem is a catalog item belonging to a production unit.
type MemberItem struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	QtyPerBatch decimal.Decimal `json:"qtyPerBatch"`
}

// ProductionUnit is either a production group or a single ungrouped item.
type ProductionUnit struct {
	Ref                    UnitRef
	DisplayName            string
	TargetQuantityPerBatch decimal.Decimal
	MemberItems            []MemberItem
	TotalItems             int
}
