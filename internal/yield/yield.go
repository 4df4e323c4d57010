// Package yield derives achieved quantities from batch targets and losses.
package yield

import (
	"github.com/shopspring/decimal"

	"github.com/mamadbah2/mouldtrack/internal/domain/models"
)

// ComputeAchieved returns max(0, target - loss). A nil loss counts as zero.
func ComputeAchieved(target decimal.Decimal, loss *decimal.Decimal) decimal.Decimal {
	achieved := target
	if loss != nil {
		achieved = achieved.Sub(*loss)
	}
	if achieved.IsNegative() {
		return decimal.Zero
	}
	return achieved
}

// FirstNonZeroTarget returns the QtyPerBatch of the first member whose value
// is strictly positive, or zero when no member qualifies.
func FirstNonZeroTarget(members []models.MemberItem) decimal.Decimal {
	if idx := TargetSourceIndex(members); idx >= 0 {
		return members[idx].QtyPerBatch
	}
	return decimal.Zero
}

// TargetSourceIndex is the position of the member FirstNonZeroTarget picks, or -1.
func TargetSourceIndex(members []models.MemberItem) int {
	for i, m := range members {
		if m.QtyPerBatch.IsPositive() {
			return i
		}
	}
	return -1
}
