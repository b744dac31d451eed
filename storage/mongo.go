package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"workboard-api/domain"
)

// MongoStore keeps one document per board, lists and tasks embedded.
type MongoStore struct {
	boards *mongo.Collection
}

// NewMongo connects to uri and returns a store on database.collection. The
// caller owns the returned client.
func NewMongo(ctx context.Context, uri, database, collection string) (*MongoStore, *mongo.Client, error) {
	opts := options.Client().
		ApplyURI(uri).
		SetRetryWrites(true).
		SetServerSelectionTimeout(10 * time.Second)
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, nil, fmt.Errorf("mongo ping: %w", err)
	}
	return NewMongoStore(client.Database(database).Collection(collection)), client, nil
}

// NewMongoStore wraps an existing collection.
func NewMongoStore(coll *mongo.Collection) *MongoStore {
	return &MongoStore{boards: coll}
}

type boardDocument struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	UserID    string             `bson:"userId"`
	Title     string             `bson:"title"`
	Lists     []listDocument     `bson:"lists"`
	CreatedAt time.Time          `bson:"createdAt"`
	UpdatedAt time.Time          `bson:"updatedAt"`
}

type listDocument struct {
	ID    string         `bson:"id"`
	Title string         `bson:"title"`
	Tasks []taskDocument `bson:"tasks"`
}

type taskDocument struct {
	ID          string     `bson:"id"`
	Title       string     `bson:"title"`
	Description string     `bson:"description,omitempty"`
	DueDate     *time.Time `bson:"dueDate,omitempty"`
	CreatedAt   time.Time  `bson:"createdAt"`
}

// storedBoard is the read side of boardDocument. Older documents keyed tasks
// by _id instead of id, stored userId as an ObjectID (decoded as hex) and may
// hold lists outside the fixed set or repeat a list id; all of these decode
// here without dropping tasks.
type storedBoard struct {
	ID        primitive.ObjectID `bson:"_id"`
	UserID    string             `bson:"userId"`
	Title     string             `bson:"title"`
	Lists     []storedList       `bson:"lists"`
	CreatedAt time.Time          `bson:"createdAt"`
	UpdatedAt time.Time          `bson:"updatedAt"`
}

type storedList struct {
	ID    string       `bson:"id"`
	Title string       `bson:"title"`
	Tasks []storedTask `bson:"tasks"`
}

type storedTask struct {
	ID          string        `bson:"id"`
	LegacyID    bson.RawValue `bson:"_id"`
	Title       string        `bson:"title"`
	Description string        `bson:"description"`
	DueDate     *time.Time    `bson:"dueDate"`
	CreatedAt   time.Time     `bson:"createdAt"`
}

func (t storedTask) identifier() string {
	if t.ID != "" {
		return t.ID
	}
	switch t.LegacyID.Type {
	case bsontype.ObjectID:
		if oid, ok := t.LegacyID.ObjectIDOK(); ok {
			return oid.Hex()
		}
	case bsontype.String:
		if s, ok := t.LegacyID.StringValueOK(); ok {
			return s
		}
	}
	return ""
}

func (d storedBoard) toDomain() domain.Board {
	lists := make([]domain.List, 0, len(d.Lists))
	for _, l := range d.Lists {
		tasks := make([]domain.Task, 0, len(l.Tasks))
		for _, t := range l.Tasks {
			task := domain.Task{
				ID:          t.identifier(),
				Title:       t.Title,
				Description: t.Description,
				CreatedAt:   t.CreatedAt.UTC(),
			}
			if t.DueDate != nil {
				due := t.DueDate.UTC()
				task.DueDate = &due
			}
			tasks = append(tasks, task)
		}
		lists = append(lists, domain.List{ID: domain.ListID(l.ID), Title: l.Title, Tasks: tasks})
	}
	return domain.Board{
		ID:        d.ID.Hex(),
		UserID:    d.UserID,
		Title:     d.Title,
		Lists:     domain.CanonicalLists(lists),
		CreatedAt: d.CreatedAt.UTC(),
		UpdatedAt: d.UpdatedAt.UTC(),
	}
}

func documentFromBoard(b domain.Board, id primitive.ObjectID) boardDocument {
	lists := make([]listDocument, 0, len(b.Lists))
	for _, l := range b.Lists {
		tasks := make([]taskDocument, 0, len(l.Tasks))
		for _, t := range l.Tasks {
			tasks = append(tasks, taskDocument{
				ID:          t.ID,
				Title:       t.Title,
				Description: t.Description,
				DueDate:     t.DueDate,
				CreatedAt:   t.CreatedAt,
			})
		}
		lists = append(lists, listDocument{ID: string(l.ID), Title: l.Title, Tasks: tasks})
	}
	return boardDocument{
		ID:        id,
		UserID:    b.UserID,
		Title:     b.Title,
		Lists:     lists,
		CreatedAt: b.CreatedAt,
		UpdatedAt: b.UpdatedAt,
	}
}

// ownerFilter matches the boards of userID. Older documents store userId as
// an ObjectID, so a hex user id matches both forms. SaveBoard rewrites it as a
// string.
func ownerFilter(userID string) bson.E {
	if oid, err := primitive.ObjectIDFromHex(userID); err == nil {
		return bson.E{Key: "userId", Value: bson.D{{Key: "$in", Value: bson.A{userID, oid}}}}
	}
	return bson.E{Key: "userId", Value: userID}
}

func ownedFilter(userID, boardID string) (bson.D, error) {
	oid, err := primitive.ObjectIDFromHex(boardID)
	if err != nil {
		return nil, domain.ErrBoardNotFound
	}
	return bson.D{{Key: "_id", Value: oid}, ownerFilter(userID)}, nil
}

// EnsureIndexes creates the owner index used by every query.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.boards.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: 1}},
		Options: options.Index().SetName("userId_createdAt"),
	})
	return err
}

// CreateBoard inserts b and returns it with its assigned id.
func (s *MongoStore) CreateBoard(ctx context.Context, b domain.Board) (domain.Board, error) {
	id := primitive.NewObjectID()
	if _, err := s.boards.InsertOne(ctx, documentFromBoard(b, id)); err != nil {
		return domain.Board{}, fmt.Errorf("insert board: %w", err)
	}
	b.ID = id.Hex()
	return b, nil
}

// ListBoards returns the user's boards without their lists.
func (s *MongoStore) ListBoards(ctx context.Context, userID string) ([]domain.BoardSummary, error) {
	opts := options.Find().
		SetProjection(bson.D{{Key: "title", Value: 1}, {Key: "createdAt", Value: 1}, {Key: "updatedAt", Value: 1}}).
		SetSort(bson.D{{Key: "createdAt", Value: 1}})
	cur, err := s.boards.Find(ctx, bson.D{ownerFilter(userID)}, opts)
	if err != nil {
		return nil, fmt.Errorf("find boards: %w", err)
	}
	defer cur.Close(ctx)

	summaries := []domain.BoardSummary{}
	for cur.Next(ctx) {
		var doc storedBoard
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode board: %w", err)
		}
		summaries = append(summaries, domain.BoardSummary{
			ID:        doc.ID.Hex(),
			Title:     doc.Title,
			CreatedAt: doc.CreatedAt.UTC(),
			UpdatedAt: doc.UpdatedAt.UTC(),
		})
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("iterate boards: %w", err)
	}
	return summaries, nil
}

// GetBoard loads one board owned by userID.
func (s *MongoStore) GetBoard(ctx context.Context, userID, boardID string) (domain.Board, error) {
	filter, err := ownedFilter(userID, boardID)
	if err != nil {
		return domain.Board{}, err
	}
	var doc storedBoard
	if err := s.boards.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.Board{}, domain.ErrBoardNotFound
		}
		return domain.Board{}, fmt.Errorf("find board: %w", err)
	}
	return doc.toDomain(), nil
}

// SaveBoard replaces the whole stored document. Concurrent writers are not
// detected; the last one wins.
func (s *MongoStore) SaveBoard(ctx context.Context, b domain.Board) error {
	filter, err := ownedFilter(b.UserID, b.ID)
	if err != nil {
		return err
	}
	oid := filter[0].Value.(primitive.ObjectID)
	res, err := s.boards.ReplaceOne(ctx, filter, documentFromBoard(b, oid))
	if err != nil {
		return fmt.Errorf("replace board: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrBoardNotFound
	}
	return nil
}

// DeleteBoard removes the board together with every task it holds.
func (s *MongoStore) DeleteBoard(ctx context.Context, userID, boardID string) error {
	filter, err := ownedFilter(userID, boardID)
	if err != nil {
		return err
	}
	res, err := s.boards.DeleteOne(ctx, filter)
	if err != nil {
		return fmt.Errorf("delete board: %w", err)
	}
	if res.DeletedCount == 0 {
		return domain.ErrBoardNotFound
	}
	return nil
}

// LoadBoards returns every board of the user with lists and tasks.
func (s *MongoStore) LoadBoards(ctx context.Context, userID string) ([]domain.Board, error) {
	cur, err := s.boards.Find(ctx, bson.D{ownerFilter(userID)})
	if err != nil {
		return nil, fmt.Errorf("find boards: %w", err)
	}
	defer cur.Close(ctx)

	boards := []domain.Board{}
	for cur.Next(ctx) {
		var doc storedBoard
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode board: %w", err)
		}
		boards = append(boards, doc.toDomain())
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("iterate boards: %w", err)
	}
	return boards, nil
}

// analyticsPipeline reduces a user's boards to the three counters. Missing
// or null list and task arrays count as empty; only BSON dates before now
// count as overdue.
func analyticsPipeline(userID string, now time.Time) mongo.Pipeline {
	tasks := bson.D{{Key: "$ifNull", Value: bson.A{"$lists.tasks", bson.A{}}}}
	overdue := bson.D{{Key: "$filter", Value: bson.D{
		{Key: "input", Value: tasks},
		{Key: "as", Value: "t"},
		{Key: "cond", Value: bson.D{{Key: "$and", Value: bson.A{
			bson.D{{Key: "$eq", Value: bson.A{bson.D{{Key: "$type", Value: "$$t.dueDate"}}, "date"}}},
			bson.D{{Key: "$lt", Value: bson.A{"$$t.dueDate", now}}},
		}}}},
	}}}
	isDone := bson.D{{Key: "$eq", Value: bson.A{"$listId", string(domain.ListDone)}}}

	return mongo.Pipeline{
		{{Key: "$match", Value: bson.D{ownerFilter(userID)}}},
		{{Key: "$unwind", Value: bson.D{{Key: "path", Value: "$lists"}}}},
		{{Key: "$project", Value: bson.D{
			{Key: "_id", Value: 0},
			{Key: "listId", Value: "$lists.id"},
			{Key: "total", Value: bson.D{{Key: "$size", Value: tasks}}},
			{Key: "overdue", Value: bson.D{{Key: "$size", Value: overdue}}},
		}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: nil},
			{Key: "totalTasks", Value: bson.D{{Key: "$sum", Value: "$total"}}},
			{Key: "completedTasks", Value: bson.D{{Key: "$sum", Value: bson.D{{Key: "$cond", Value: bson.A{isDone, "$total", 0}}}}}},
			{Key: "overdueTasks", Value: bson.D{{Key: "$sum", Value: bson.D{{Key: "$cond", Value: bson.A{isDone, 0, "$overdue"}}}}}},
		}}},
	}
}

type analyticsResult struct {
	TotalTasks     int `bson:"totalTasks"`
	CompletedTasks int `bson:"completedTasks"`
	OverdueTasks   int `bson:"overdueTasks"`
}

// AggregateAnalytics runs the analytics pipeline inside MongoDB so task
// bodies never leave the database.
func (s *MongoStore) AggregateAnalytics(ctx context.Context, userID string, now time.Time) (domain.Analytics, error) {
	cur, err := s.boards.Aggregate(ctx, analyticsPipeline(userID, now))
	if err != nil {
		return domain.Analytics{}, fmt.Errorf("aggregate analytics: %w", err)
	}
	defer cur.Close(ctx)

	var out domain.Analytics
	if cur.Next(ctx) {
		var res analyticsResult
		if err := cur.Decode(&res); err != nil {
			return domain.Analytics{}, fmt.Errorf("decode analytics: %w", err)
		}
		out = domain.Analytics{TotalTasks: res.TotalTasks, CompletedTasks: res.CompletedTasks, OverdueTasks: res.OverdueTasks}
	}
	if err := cur.Err(); err != nil {
		return domain.Analytics{}, fmt.Errorf("iterate analytics: %w", err)
	}
	return out, nil
}
