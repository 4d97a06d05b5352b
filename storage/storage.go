package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"

	"workboard/domain"
)

// Tables names the tables backing a Storage.
type Tables struct {
	Tasks    string
	Members  string
	Projects string
}

// Storage implements the document store on Azure Table storage.
type Storage struct {
	taskTable    *aztables.Client
	memberTable  *aztables.Client
	projectTable *aztables.Client
}

var retryStatusCodes = []int{408, 429, 500, 502, 503, 504}

// New creates a Storage instance from the given connection string.
func New(connStr string, tables Tables) (*Storage, error) {
	tablesClientOptions := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   retryStatusCodes,
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &tablesClientOptions)
	if err != nil {
		return nil, err
	}
	return newStorage(svc, tables), nil
}

func newStorage(svc *aztables.ServiceClient, tables Tables) *Storage {
	return &Storage{
		taskTable:    svc.NewClient(tables.Tasks),
		memberTable:  svc.NewClient(tables.Members),
		projectTable: svc.NewClient(tables.Projects),
	}
}

// Ping reads at most one row key from every table. A missing table or an
// unreachable account fails the ping.
func (s *Storage) Ping(ctx context.Context) error {
	top, sel := int32(1), "RowKey"
	for _, client := range []*aztables.Client{s.taskTable, s.memberTable, s.projectTable} {
		pager := client.NewListEntitiesPager(&aztables.ListEntitiesOptions{Top: &top, Select: &sel})
		if _, err := pager.NextPage(ctx); err != nil {
			return err
		}
	}
	return nil
}

func isStatus(err error, code int) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == code
}

// query runs filter against client and decodes every entity. A positive
// limit stops paging once that many entities were read.
func query[T any](ctx context.Context, client *aztables.Client, opts aztables.ListEntitiesOptions, limit int, decode func([]byte) (T, error)) ([]T, error) {
	pager := client.NewListEntitiesPager(&opts)
	out := []T{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, raw := range resp.Entities {
			v, err := decode(raw)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
			if limit > 0 && len(out) >= limit {
				return out, nil
			}
		}
	}
	return out, nil
}

func first[T any](ctx context.Context, client *aztables.Client, filter string, decode func([]byte) (T, error)) (*T, error) {
	top := int32(1)
	found, err := query(ctx, client, aztables.ListEntitiesOptions{Filter: &filter, Top: &top}, 1, decode)
	if err != nil || len(found) == 0 {
		return nil, err
	}
	return &found[0], nil
}

func (s *Storage) CreateTask(ctx context.Context, t domain.Task) error {
	payload, err := encodeTask(t)
	if err != nil {
		return err
	}
	_, err = s.taskTable.AddEntity(ctx, payload, nil)
	return err
}

// GetTask looks a task up by id across all workspaces.
func (s *Storage) GetTask(ctx context.Context, id string) (*domain.Task, error) {
	return first(ctx, s.taskTable, eq("RowKey", id), decodeTask)
}

func (s *Storage) ListTasks(ctx context.Context, f domain.TaskFilter) ([]domain.Task, error) {
	filter := taskFilter(f)
	return query(ctx, s.taskTable, aztables.ListEntitiesOptions{Filter: &filter}, 0, decodeTask)
}

// MaxPosition scans the column's positions. Table storage has no server side
// aggregates.
func (s *Storage) MaxPosition(ctx context.Context, workspaceID string, status domain.TaskStatus) (int, bool, error) {
	filter := and(eq("PartitionKey", workspaceID), eq("Status", string(status)))
	sel := "Position"
	positions, err := query(ctx, s.taskTable, aztables.ListEntitiesOptions{Filter: &filter, Select: &sel}, 0, func(raw []byte) (int, error) {
		t, err := decodeTask(raw)
		return t.Position, err
	})
	if err != nil {
		return 0, false, err
	}
	highest, found := 0, false
	for _, p := range positions {
		if !found || p > highest {
			highest, found = p, true
		}
	}
	return highest, found, nil
}

// UpdateTask merges upd into the stored row and reads it back.
func (s *Storage) UpdateTask(ctx context.Context, upd domain.TaskUpdate) (domain.Task, error) {
	payload, err := encodeTaskMerge(upd)
	if err != nil {
		return domain.Task{}, err
	}
	et := azcore.ETagAny
	if _, err := s.taskTable.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{IfMatch: &et, UpdateMode: aztables.UpdateModeMerge}); err != nil {
		if isStatus(err, http.StatusNotFound) {
			return domain.Task{}, fmt.Errorf("%w: task %s", domain.ErrNotFound, upd.ID)
		}
		return domain.Task{}, err
	}
	ent, err := s.taskTable.GetEntity(ctx, upd.WorkspaceID, upd.ID, nil)
	if err != nil {
		return domain.Task{}, err
	}
	return decodeTask(ent.Value)
}

func (s *Storage) DeleteTask(ctx context.Context, workspaceID, id string) error {
	_, err := s.taskTable.DeleteEntity(ctx, workspaceID, id, nil)
	if isStatus(err, http.StatusNotFound) {
		return nil
	}
	return err
}

// GetMember returns the membership of userID in workspaceID, or nil.
func (s *Storage) GetMember(ctx context.Context, workspaceID, userID string) (*domain.Member, error) {
	return first(ctx, s.memberTable, and(eq("PartitionKey", workspaceID), eq("UserId", userID)), decodeMember)
}

func (s *Storage) ListMembers(ctx context.Context, workspaceID string) ([]domain.Member, error) {
	filter := eq("PartitionKey", workspaceID)
	return query(ctx, s.memberTable, aztables.ListEntitiesOptions{Filter: &filter}, 0, decodeMember)
}

// UpsertMember adds or replaces a membership row.
func (s *Storage) UpsertMember(ctx context.Context, m domain.Member) error {
	payload, err := encodeMember(m)
	if err != nil {
		return err
	}
	_, err = s.memberTable.UpsertEntity(ctx, payload, nil)
	return err
}

// GetMemberByID looks a membership up by id across all workspaces.
func (s *Storage) GetMemberByID(ctx context.Context, id string) (*domain.Member, error) {
	return first(ctx, s.memberTable, eq("RowKey", id), decodeMember)
}

func (s *Storage) DeleteMember(ctx context.Context, m domain.Member) error {
	_, err := s.memberTable.DeleteEntity(ctx, m.WorkspaceID, m.ID, nil)
	if isStatus(err, http.StatusNotFound) {
		return nil
	}
	return err
}

func (s *Storage) CreateProject(ctx context.Context, p domain.Project) error {
	payload, err := encodeProject(p)
	if err != nil {
		return err
	}
	_, err = s.projectTable.AddEntity(ctx, payload, nil)
	return err
}

func (s *Storage) GetProject(ctx context.Context, id string) (*domain.Project, error) {
	return first(ctx, s.projectTable, eq("RowKey", id), decodeProject)
}

func (s *Storage) ListProjects(ctx context.Context, workspaceID string) ([]domain.Project, error) {
	filter := eq("PartitionKey", workspaceID)
	return query(ctx, s.projectTable, aztables.ListEntitiesOptions{Filter: &filter}, 0, decodeProject)
}

// UpdateProject replaces the stored project row.
func (s *Storage) UpdateProject(ctx context.Context, p domain.Project) error {
	payload, err := encodeProject(p)
	if err != nil {
		return err
	}
	et := azcore.ETagAny
	_, err = s.projectTable.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{IfMatch: &et, UpdateMode: aztables.UpdateModeReplace})
	if isStatus(err, http.StatusNotFound) {
		return fmt.Errorf("%w: project %s", domain.ErrNotFound, p.ID)
	}
	return err
}

func (s *Storage) DeleteProject(ctx context.Context, workspaceID, id string) error {
	_, err := s.projectTable.DeleteEntity(ctx, workspaceID, id, nil)
	if isStatus(err, http.StatusNotFound) {
		return nil
	}
	return err
}
