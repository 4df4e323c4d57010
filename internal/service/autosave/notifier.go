package autosave

import (
	"context"

	"go.uber.org/zap"

	"github.com/mamadbah2/mouldtrack/internal/domain/models"
)

// Level is the severity of a user-facing notification.
type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

// Notification is the user-visible outcome of one save.
type Notification struct {
	Level   Level
	Ref     models.UnitRef
	Field   models.Field
	Message string
}

// Notifier presents save outcomes to the user.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// LogNotifier reports notifications through the structured logger.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier builds a notifier writing to logger.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, note Notification) {
	fields := []zap.Field{
		zap.Stringer("unit", note.Ref),
		zap.String("field", string(note.Field)),
		zap.String("message", note.Message),
	}
	if note.Level == LevelError {
		n.logger.Warn("save failed", fields...)
		return
	}
	n.logger.Info("save confirmed", fields...)
}
