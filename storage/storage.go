package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"workboard-api/domain"
)

const (
	EdmInt64 = "Edm.Int64"

	// Lists is serialized into a single string property, which Azure caps
	// at 64 KiB.
	maxListsPropertySize = 64 * 1024
)

var errBoardTooLarge = errors.New("board exceeds table property size limit")

// TableStore keeps boards in Azure Table storage: one entity per board,
// partitioned by owner.
type TableStore struct {
	boardTable *aztables.Client
}

// NewTableStore creates a TableStore from the given connection string.
func NewTableStore(connStr, boardsTable string) (*TableStore, error) {
	tablesClientOptions := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &tablesClientOptions)
	if err != nil {
		return nil, err
	}
	return &TableStore{boardTable: svc.NewClient(boardsTable)}, nil
}

// Entity carries the table keys. aztables.Entity is not used for writes
// because its zero Timestamp would be sent along.
type Entity struct {
	PartitionKey string `json:"PartitionKey"`
	RowKey       string `json:"RowKey"`
}

type boardEntity struct {
	Entity
	Title         string `json:"Title"`
	Lists         string `json:"Lists,omitempty"`
	CreatedAt     int64  `json:"CreatedAt,string"`
	CreatedAtType string `json:"CreatedAt@odata.type"`
	UpdatedAt     int64  `json:"UpdatedAt,string"`
	UpdatedAtType string `json:"UpdatedAt@odata.type"`
}

func encodeBoardEntity(b domain.Board) ([]byte, error) {
	lists, err := json.Marshal(b.Lists)
	if err != nil {
		return nil, err
	}
	if len(lists) > maxListsPropertySize {
		return nil, errBoardTooLarge
	}
	ent := boardEntity{
		Entity:        Entity{PartitionKey: b.UserID, RowKey: b.ID},
		Title:         b.Title,
		Lists:         string(lists),
		CreatedAt:     b.CreatedAt.UnixMilli(),
		CreatedAtType: EdmInt64,
		UpdatedAt:     b.UpdatedAt.UnixMilli(),
		UpdatedAtType: EdmInt64,
	}
	return json.Marshal(ent)
}

func decodeBoardEntity(data []byte) (domain.Board, error) {
	var ent boardEntity
	if err := json.Unmarshal(data, &ent); err != nil {
		return domain.Board{}, err
	}
	var lists []domain.List
	if ent.Lists != "" {
		if err := json.Unmarshal([]byte(ent.Lists), &lists); err != nil {
			return domain.Board{}, fmt.Errorf("decode lists of board %s: %w", ent.RowKey, err)
		}
	}
	return domain.Board{
		ID:        ent.RowKey,
		UserID:    ent.PartitionKey,
		Title:     ent.Title,
		Lists:     domain.CanonicalLists(lists),
		CreatedAt: time.UnixMilli(ent.CreatedAt).UTC(),
		UpdatedAt: time.UnixMilli(ent.UpdatedAt).UTC(),
	}, nil
}

func partitionFilter(userID string) string {
	return "PartitionKey eq '" + strings.ReplaceAll(userID, "'", "''") + "'"
}

func isStatus(err error, code int) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == code
}

// CreateBoard inserts b under a freshly generated id.
func (s *TableStore) CreateBoard(ctx context.Context, b domain.Board) (domain.Board, error) {
	b.ID = primitive.NewObjectID().Hex()
	payload, err := encodeBoardEntity(b)
	if err != nil {
		return domain.Board{}, err
	}
	if _, err := s.boardTable.AddEntity(ctx, payload, nil); err != nil {
		return domain.Board{}, fmt.Errorf("add board entity: %w", err)
	}
	return b, nil
}

// ListBoards returns the user's boards without their lists.
func (s *TableStore) ListBoards(ctx context.Context, userID string) ([]domain.BoardSummary, error) {
	filter := partitionFilter(userID)
	sel := "PartitionKey,RowKey,Title,CreatedAt,UpdatedAt"
	pager := s.boardTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter, Select: &sel})
	summaries := []domain.BoardSummary{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list board entities: %w", err)
		}
		for _, e := range resp.Entities {
			b, err := decodeBoardEntity(e)
			if err != nil {
				return nil, err
			}
			summaries = append(summaries, b.Summary())
		}
	}
	return summaries, nil
}

// GetBoard loads one board owned by userID.
func (s *TableStore) GetBoard(ctx context.Context, userID, boardID string) (domain.Board, error) {
	if !domain.ValidBoardID(boardID) {
		return domain.Board{}, domain.ErrBoardNotFound
	}
	ent, err := s.boardTable.GetEntity(ctx, userID, boardID, nil)
	if err != nil {
		if isStatus(err, 404) {
			return domain.Board{}, domain.ErrBoardNotFound
		}
		return domain.Board{}, fmt.Errorf("get board entity: %w", err)
	}
	return decodeBoardEntity(ent.Value)
}

// SaveBoard replaces the stored entity unconditionally (ETag "*"), so the last
// writer wins. A board deleted in the meantime is not recreated.
func (s *TableStore) SaveBoard(ctx context.Context, b domain.Board) error {
	if !domain.ValidBoardID(b.ID) {
		return domain.ErrBoardNotFound
	}
	payload, err := encodeBoardEntity(b)
	if err != nil {
		return err
	}
	et := azcore.ETagAny
	_, err = s.boardTable.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{IfMatch: &et, UpdateMode: aztables.UpdateModeReplace})
	if err != nil {
		if isStatus(err, 404) {
			return domain.ErrBoardNotFound
		}
		return fmt.Errorf("update board entity: %w", err)
	}
	return nil
}

// DeleteBoard removes the board entity and the tasks embedded in it.
func (s *TableStore) DeleteBoard(ctx context.Context, userID, boardID string) error {
	if !domain.ValidBoardID(boardID) {
		return domain.ErrBoardNotFound
	}
	if _, err := s.boardTable.DeleteEntity(ctx, userID, boardID, nil); err != nil {
		if isStatus(err, 404) {
			return domain.ErrBoardNotFound
		}
		return fmt.Errorf("delete board entity: %w", err)
	}
	return nil
}

// LoadBoards returns every board of the user with lists and tasks.
func (s *TableStore) LoadBoards(ctx context.Context, userID string) ([]domain.Board, error) {
	filter := partitionFilter(userID)
	pager := s.boardTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	boards := []domain.Board{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list board entities: %w", err)
		}
		for _, e := range resp.Entities {
			b, err := decodeBoardEntity(e)
			if err != nil {
				return nil, err
			}
			boards = append(boards, b)
		}
	}
	return boards, nil
}
