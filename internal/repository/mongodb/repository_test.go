package mongodb

import (
	"context"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"github.com/mamadbah2/mouldtrack/internal/domain/models"
)

func newMockRepository(mt *mtest.T) *MongoDBRepository {
	return &MongoDBRepository{client: mt.Client, dbName: "mouldtrack", collName: "batch_snapshots"}
}

func TestSaveSnapshot(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("inserted", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		snap := models.BatchSnapshot{ID: "s1", UnitKind: "grouped", UnitID: "g1", Stage: "started", SavedAt: time.Now().UTC()}
		if err := newMockRepository(mt).SaveSnapshot(context.Background(), snap); err != nil {
			t.Fatalf("save snapshot: %v", err)
		}
	})

	mt.Run("duplicate key", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{Index: 0, Code: 11000, Message: "duplicate key"}))

		err := newMockRepository(mt).SaveSnapshot(context.Background(), models.BatchSnapshot{ID: "s1"})
		if !mongo.IsDuplicateKeyError(err) {
			t.Errorf("expected wrapped duplicate key error, got %v", err)
		}
	})
}

func TestHistory(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("decodes snapshots", func(mt *mtest.T) {
		ns := "mouldtrack.batch_snapshots"
		first := mtest.CreateCursorResponse(1, ns, mtest.FirstBatch, bson.D{
			{Key: "_id", Value: "s2"},
			{Key: "unit_kind", Value: "grouped"},
			{Key: "unit_id", Value: "g1"},
			{Key: "field", Value: "productionLoss"},
			{Key: "qty_achieved", Value: "185"},
			{Key: "stage", Value: "loss_recorded"},
		})
		last := mtest.CreateCursorResponse(0, ns, mtest.NextBatch, bson.D{
			{Key: "_id", Value: "s1"},
			{Key: "unit_kind", Value: "grouped"},
			{Key: "unit_id", Value: "g1"},
			{Key: "field", Value: "mouldingStartedAt"},
			{Key: "stage", Value: "started"},
		})
		mt.AddMockResponses(first, last)

		snapshots, err := newMockRepository(mt).History(context.Background(), models.KindGrouped, "g1", 10)
		if err != nil {
			t.Fatalf("history: %v", err)
		}
		if len(snapshots) != 2 {
			t.Fatalf("expected 2 snapshots, got %d", len(snapshots))
		}
		if snapshots[0].ID != "s2" || snapshots[0].AchievedQuantity != "185" || snapshots[1].Field != "mouldingStartedAt" {
			t.Errorf("unexpected snapshots %+v", snapshots)
		}
	})

	mt.Run("query failure", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{Code: 13, Message: "unauthorized"}))

		if _, err := newMockRepository(mt).History(context.Background(), models.KindUngrouped, "i1", 0); err == nil {
			t.Errorf("expected error")
		}
	})
}
