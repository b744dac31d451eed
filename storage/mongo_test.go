package storage

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"workboard-api/analytics"
	"workboard-api/domain"
)

func namespace(mt *mtest.T) string {
	return mt.Coll.Database().Name() + "." + mt.Coll.Name()
}

func TestStoredTaskAcceptsLegacyID(t *testing.T) {
	legacy := primitive.NewObjectID()
	raw, err := bson.Marshal(bson.D{
		{Key: "_id", Value: primitive.NewObjectID()},
		{Key: "userId", Value: "u1"},
		{Key: "title", Value: "Legacy"},
		{Key: "lists", Value: bson.A{
			bson.D{{Key: "id", Value: "todo"}, {Key: "title", Value: "To Do"}, {Key: "tasks", Value: bson.A{
				bson.D{{Key: "_id", Value: legacy}, {Key: "title", Value: "old"}},
				bson.D{{Key: "_id", Value: "string-id"}, {Key: "title", Value: "older"}},
				bson.D{{Key: "id", Value: "new-id"}, {Key: "title", Value: "new"}},
			}}},
			bson.D{{Key: "id", Value: "done"}, {Key: "title", Value: "Done"}, {Key: "tasks", Value: nil}},
		}},
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var doc storedBoard
	if err := bson.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	b := doc.toDomain()
	if len(b.Lists) != 3 {
		t.Fatalf("expected canonical lists, got %d", len(b.Lists))
	}
	todo := b.Lists[0].Tasks
	if len(todo) != 3 {
		t.Fatalf("expected 3 todo tasks, got %d", len(todo))
	}
	if todo[0].ID != legacy.Hex() || todo[1].ID != "string-id" || todo[2].ID != "new-id" {
		t.Fatalf("unexpected task ids: %q %q %q", todo[0].ID, todo[1].ID, todo[2].ID)
	}
	if b.Lists[2].Tasks == nil {
		t.Fatalf("null task arrays must decode as empty")
	}
}

func legacyBoardDocument(userID any, past time.Time) bson.D {
	return bson.D{
		{Key: "_id", Value: primitive.NewObjectID()},
		{Key: "userId", Value: userID},
		{Key: "title", Value: "Legacy"},
		{Key: "lists", Value: bson.A{
			bson.D{{Key: "id", Value: "todo"}, {Key: "tasks", Value: bson.A{bson.D{{Key: "id", Value: "a"}, {Key: "title", Value: "a"}}}}},
			bson.D{{Key: "id", Value: "backlog"}, {Key: "title", Value: "Backlog"}, {Key: "tasks", Value: bson.A{bson.D{{Key: "id", Value: "b"}, {Key: "title", Value: "b"}, {Key: "dueDate", Value: past}}}}},
			bson.D{{Key: "id", Value: "done"}, {Key: "tasks", Value: bson.A{bson.D{{Key: "id", Value: "c"}, {Key: "title", Value: "c"}}}}},
			bson.D{{Key: "id", Value: "done"}, {Key: "tasks", Value: bson.A{bson.D{{Key: "id", Value: "d"}, {Key: "title", Value: "d"}}}}},
		}},
	}
}

func TestStoredExtraListsAreCountedAndKept(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	owner := primitive.NewObjectID()
	raw, err := bson.Marshal(legacyBoardDocument(owner, now.Add(-time.Hour)))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var doc storedBoard
	if err := bson.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	b := doc.toDomain()
	if b.UserID != owner.Hex() {
		t.Fatalf("ObjectID owner must decode as hex, got %q", b.UserID)
	}

	// what the pipeline computes: every stored list, done by list id
	want := domain.Analytics{TotalTasks: 4, CompletedTasks: 2, OverdueTasks: 1}
	if got := domain.Tally([]domain.Board{b}, now); got != want {
		t.Fatalf("Tally() = %#v, want %#v", got, want)
	}

	out, err := bson.Marshal(documentFromBoard(b, doc.ID))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var saved storedBoard
	if err := bson.Unmarshal(out, &saved); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	tasks := 0
	for _, l := range saved.Lists {
		tasks += len(l.Tasks)
	}
	if tasks != 4 {
		t.Fatalf("saving must keep every task, got %d in %#v", tasks, saved.Lists)
	}
	if got := saved.Lists[len(saved.Lists)-1]; got.ID != "backlog" || got.Title != "Backlog" {
		t.Fatalf("extra list not kept: %#v", got)
	}
}

func TestOwnerFilterMatchesObjectIDOwners(t *testing.T) {
	if got := ownerFilter("auth0|abc"); got.Value != "auth0|abc" {
		t.Fatalf("non-hex owners match as strings, got %#v", got)
	}
	owner := primitive.NewObjectID()
	in := ownerFilter(owner.Hex()).Value.(bson.D)[0]
	values := in.Value.(bson.A)
	if in.Key != "$in" || len(values) != 2 || values[0] != owner.Hex() || values[1] != owner {
		t.Fatalf("hex owners must match string and ObjectID, got %#v", in)
	}
}

func TestDocumentFromBoardWritesCanonicalID(t *testing.T) {
	now := time.Now().UTC()
	b := domain.NewBoard("", "u1", "b", now)
	b.Lists[1].Tasks = []domain.Task{{ID: "t1", Title: "x", CreatedAt: now}}
	raw, err := bson.Marshal(documentFromBoard(b, primitive.NewObjectID()))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	task := bson.Raw(raw).Lookup("lists", "1", "tasks", "0").Document()
	if got := task.Lookup("id").StringValue(); got != "t1" {
		t.Fatalf("expected id t1, got %q", got)
	}
	if _, err := task.LookupErr("_id"); err == nil {
		t.Fatalf("tasks must not be written with _id")
	}
	if _, err := task.LookupErr("dueDate"); err == nil {
		t.Fatalf("unset due date must be omitted")
	}
}

func TestAnalyticsPipelineShape(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	p := analyticsPipeline("u1", now)
	stages := []string{"$match", "$unwind", "$project", "$group"}
	if len(p) != len(stages) {
		t.Fatalf("expected %d stages, got %d", len(stages), len(p))
	}
	for i, name := range stages {
		if p[i][0].Key != name {
			t.Fatalf("stage %d: expected %s, got %s", i, name, p[i][0].Key)
		}
	}
	match := p[0][0].Value.(bson.D)
	if match[0].Key != "userId" || match[0].Value != "u1" {
		t.Fatalf("pipeline must be scoped to the user: %#v", match)
	}
}

func TestOwnedFilterRejectsMalformedID(t *testing.T) {
	if _, err := ownedFilter("u1", "not-an-id"); !errors.Is(err, domain.ErrBoardNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMongoStoreWithMockDeployment(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	boardID := primitive.NewObjectID()

	mt.Run("get board scopes by owner", func(mt *mtest.T) {
		store := NewMongoStore(mt.Coll)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, namespace(mt), mtest.FirstBatch, bson.D{
			{Key: "_id", Value: boardID},
			{Key: "userId", Value: "u1"},
			{Key: "title", Value: "Work"},
			{Key: "createdAt", Value: now},
			{Key: "updatedAt", Value: now},
		}))

		b, err := store.GetBoard(context.Background(), "u1", boardID.Hex())
		if err != nil {
			mt.Fatalf("get board: %v", err)
		}
		if b.ID != boardID.Hex() || b.Title != "Work" || len(b.Lists) != 3 {
			mt.Fatalf("unexpected board: %#v", b)
		}
		filter := mt.GetStartedEvent().Command.Lookup("filter").Document()
		if filter.Lookup("userId").StringValue() != "u1" {
			mt.Fatalf("query must filter on owner, got %v", filter)
		}
	})

	mt.Run("get board missing", func(mt *mtest.T) {
		store := NewMongoStore(mt.Coll)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, namespace(mt), mtest.FirstBatch))
		if _, err := store.GetBoard(context.Background(), "u1", boardID.Hex()); !errors.Is(err, domain.ErrBoardNotFound) {
			mt.Fatalf("expected not found, got %v", err)
		}
	})

	mt.Run("save board without match", func(mt *mtest.T) {
		store := NewMongoStore(mt.Coll)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}, bson.E{Key: "nModified", Value: 0}))
		b := domain.NewBoard(boardID.Hex(), "u2", "Work", now)
		if err := store.SaveBoard(context.Background(), b); !errors.Is(err, domain.ErrBoardNotFound) {
			mt.Fatalf("expected not found, got %v", err)
		}
	})

	mt.Run("delete board", func(mt *mtest.T) {
		store := NewMongoStore(mt.Coll)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}))
		if err := store.DeleteBoard(context.Background(), "u1", boardID.Hex()); err != nil {
			mt.Fatalf("delete board: %v", err)
		}
	})

	mt.Run("delete board not owned", func(mt *mtest.T) {
		store := NewMongoStore(mt.Coll)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}))
		if err := store.DeleteBoard(context.Background(), "u2", boardID.Hex()); !errors.Is(err, domain.ErrBoardNotFound) {
			mt.Fatalf("expected not found, got %v", err)
		}
	})

	mt.Run("aggregate analytics", func(mt *mtest.T) {
		store := NewMongoStore(mt.Coll)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, namespace(mt), mtest.FirstBatch, bson.D{
			{Key: "_id", Value: nil},
			{Key: "totalTasks", Value: int32(4)},
			{Key: "completedTasks", Value: int32(1)},
			{Key: "overdueTasks", Value: int32(0)},
		}))
		got, err := store.AggregateAnalytics(context.Background(), "u1", now)
		if err != nil {
			mt.Fatalf("aggregate: %v", err)
		}
		if got != (domain.Analytics{TotalTasks: 4, CompletedTasks: 1}) {
			mt.Fatalf("unexpected analytics: %#v", got)
		}
	})

	mt.Run("aggregate analytics without boards", func(mt *mtest.T) {
		store := NewMongoStore(mt.Coll)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, namespace(mt), mtest.FirstBatch))
		got, err := store.AggregateAnalytics(context.Background(), "nobody", now)
		if err != nil {
			mt.Fatalf("aggregate: %v", err)
		}
		if got != (domain.Analytics{}) {
			mt.Fatalf("expected zero analytics, got %#v", got)
		}
	})

	mt.Run("aggregate analytics error", func(mt *mtest.T) {
		store := NewMongoStore(mt.Coll)
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{Code: 2, Message: "bad pipeline"}))
		if _, err := store.AggregateAnalytics(context.Background(), "u1", now); err == nil {
			mt.Fatalf("expected error")
		}
	})
}

// TestFoldAndPipelineAgree runs both aggregation strategies against a real
// MongoDB. Set MONGO_TEST_URI to enable it.
func TestFoldAndPipelineAgree(t *testing.T) {
	uri := os.Getenv("MONGO_TEST_URI")
	if uri == "" {
		t.Skip("MONGO_TEST_URI not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	collName := "boards_" + primitive.NewObjectID().Hex()
	store, client, err := NewMongo(ctx, uri, "workboard_test", collName)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer func() {
		_ = store.boards.Drop(context.Background())
		_ = client.Disconnect(context.Background())
	}()
	if err := store.EnsureIndexes(ctx); err != nil {
		t.Fatalf("indexes: %v", err)
	}

	now := time.Now().UTC().Truncate(time.Millisecond)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)
	seed := []domain.Board{
		domain.NewBoard("", "u1", "a", now),
		domain.NewBoard("", "u1", "b", now),
		domain.NewBoard("", "u2", "other", now),
	}
	seed[0].Lists[0].Tasks = []domain.Task{{ID: "1", Title: "overdue", DueDate: &past}, {ID: "2", Title: "later", DueDate: &future}}
	seed[0].Lists[2].Tasks = []domain.Task{{ID: "3", Title: "done late", DueDate: &past}}
	seed[1].Lists[1].Tasks = []domain.Task{{ID: "4", Title: "no due"}, {ID: "5", Title: "late", DueDate: &past}}
	seed[2].Lists[0].Tasks = []domain.Task{{ID: "6", Title: "someone else", DueDate: &past}}
	for _, b := range seed {
		if _, err := store.CreateBoard(ctx, b); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	if _, err := store.boards.InsertOne(ctx, legacyBoardDocument("u1", past)); err != nil {
		t.Fatalf("seed legacy: %v", err)
	}

	boards, err := store.LoadBoards(ctx, "u1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	fold := domain.Tally(boards, now)
	pipeline, err := store.AggregateAnalytics(ctx, "u1", now)
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	want := domain.Analytics{TotalTasks: 9, CompletedTasks: 3, OverdueTasks: 3}
	if fold != want || pipeline != want {
		t.Fatalf("fold %#v pipeline %#v, want %#v", fold, pipeline, want)
	}

	agg, err := analytics.New(analytics.StrategyPipeline, store)
	if err != nil {
		t.Fatalf("strategy: %v", err)
	}
	if got, err := agg.Summarize(ctx, "u1"); err != nil || got != want {
		t.Fatalf("summarize: %#v %v", got, err)
	}
}
