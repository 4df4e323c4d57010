package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ShiftReport aggregates the batch details of both collections at one moment.
type ShiftReport struct {
	GeneratedAt   time.Time       `json:"generated_at"`
	Rows          []BatchDetail   `json:"rows"`
	TotalTarget   decimal.Decimal `json:"total_target"`
	TotalLoss     decimal.Decimal `json:"total_loss"`
	TotalAchieved decimal.Decimal `json:"total_achieved"`
	Completed     int             `json:"completed"`
	InProgress    int             `json:"in_progress"`
}
