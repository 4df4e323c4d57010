package yield

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/mamadbah2/mouldtrack/internal/domain/models"
)

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func ptr(d decimal.Decimal) *decimal.Decimal { return &d }

func TestComputeAchieved(t *testing.T) {
	testCases := []struct {
		name     string
		target   decimal.Decimal
		loss     *decimal.Decimal
		expected decimal.Decimal
	}{
		{"no loss recorded", dec(120), nil, dec(120)},
		{"zero loss", dec(120), ptr(dec(0)), dec(120)},
		{"partial loss", dec(200), ptr(dec(15)), dec(185)},
		{"loss above target clamps", dec(50), ptr(dec(70)), dec(0)},
		{"loss equal to target", dec(40), ptr(dec(40)), dec(0)},
		{"fractional loss", decimal.RequireFromString("10.5"), ptr(decimal.RequireFromString("0.25")), decimal.RequireFromString("10.25")},
		{"zero target", dec(0), ptr(dec(3)), dec(0)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := ComputeAchieved(tc.target, tc.loss)
			if !got.Equal(tc.expected) {
				t.Errorf("expected %s, got %s", tc.expected, got)
			}
			if got.IsNegative() {
				t.Errorf("achieved quantity must never be negative, got %s", got)
			}
		})
	}
}

func TestComputeAchievedNeverNegative(t *testing.T) {
	for target := int64(0); target <= 60; target += 5 {
		for loss := int64(0); loss <= 90; loss += 7 {
			got := ComputeAchieved(dec(target), ptr(dec(loss)))
			if got.IsNegative() {
				t.Fatalf("target=%d loss=%d produced %s", target, loss, got)
			}
		}
	}
}

func TestFirstNonZeroTarget(t *testing.T) {
	members := []models.MemberItem{
		{ID: "a", QtyPerBatch: dec(0)},
		{ID: "b", QtyPerBatch: dec(0)},
		{ID: "c", QtyPerBatch: dec(35)},
		{ID: "d", QtyPerBatch: dec(10)},
	}

	if got := FirstNonZeroTarget(members); !got.Equal(dec(35)) {
		t.Errorf("expected 35, got %s", got)
	}
	if idx := TargetSourceIndex(members); idx != 2 {
		t.Errorf("expected source index 2, got %d", idx)
	}
}

func TestFirstNonZeroTargetNoCandidates(t *testing.T) {
	if got := FirstNonZeroTarget(nil); !got.IsZero() {
		t.Errorf("expected 0 for no members, got %s", got)
	}

	members := []models.MemberItem{{QtyPerBatch: dec(0)}, {QtyPerBatch: dec(-4)}}
	if got := FirstNonZeroTarget(members); !got.IsZero() {
		t.Errorf("expected 0 when no member is positive, got %s", got)
	}
	if idx := TargetSourceIndex(members); idx != -1 {
		t.Errorf("expected -1, got %d", idx)
	}
}
