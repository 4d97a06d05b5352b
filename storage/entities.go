package storage

import (
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"workboard/domain"
)

const edmInt64 = "Edm.Int64"

type entity struct {
	PartitionKey string `json:"PartitionKey"`
	RowKey       string `json:"RowKey"`
}

// taskEntity is a task row: PartitionKey is the workspace, RowKey the task id.
// Times are stored as Unix milliseconds in Int64 columns.
type taskEntity struct {
	entity
	Name          string `json:"Name"`
	Status        string `json:"Status"`
	Position      int    `json:"Position"`
	ProjectID     string `json:"ProjectId"`
	AssigneeID    string `json:"AssigneeId"`
	Description   string `json:"Description,omitempty"`
	DueDate       int64  `json:"DueDate,string"`
	DueDateType   string `json:"DueDate@odata.type"`
	CreatedAt     int64  `json:"CreatedAt,string"`
	CreatedAtType string `json:"CreatedAt@odata.type"`
}

type taskMerge struct {
	entity
	Name        *string `json:"Name,omitempty"`
	Status      *string `json:"Status,omitempty"`
	Position    *int    `json:"Position,omitempty"`
	ProjectID   *string `json:"ProjectId,omitempty"`
	AssigneeID  *string `json:"AssigneeId,omitempty"`
	Description *string `json:"Description,omitempty"`
	DueDate     *int64  `json:"DueDate,omitempty,string"`
	DueDateType *string `json:"DueDate@odata.type,omitempty"`
}

type memberEntity struct {
	entity
	UserID string `json:"UserId"`
	Role   string `json:"Role"`
}

type projectEntity struct {
	entity
	Name          string `json:"Name"`
	ImageURL      string `json:"ImageUrl,omitempty"`
	CreatedAt     int64  `json:"CreatedAt,string"`
	CreatedAtType string `json:"CreatedAt@odata.type"`
}

func toMillis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

func encodeTask(t domain.Task) ([]byte, error) {
	return sonic.ConfigStd.Marshal(taskEntity{
		entity:        entity{PartitionKey: t.WorkspaceID, RowKey: t.ID},
		Name:          t.Name,
		Status:        string(t.Status),
		Position:      t.Position,
		ProjectID:     t.ProjectID,
		AssigneeID:    t.AssigneeID,
		Description:   t.Description,
		DueDate:       toMillis(t.DueDate),
		DueDateType:   edmInt64,
		CreatedAt:     toMillis(t.CreatedAt),
		CreatedAtType: edmInt64,
	})
}

func decodeTask(data []byte) (domain.Task, error) {
	var ent taskEntity
	if err := sonic.ConfigStd.Unmarshal(data, &ent); err != nil {
		return domain.Task{}, err
	}
	return domain.Task{
		ID:          ent.RowKey,
		Name:        ent.Name,
		Status:      domain.TaskStatus(ent.Status),
		Position:    ent.Position,
		WorkspaceID: ent.PartitionKey,
		ProjectID:   ent.ProjectID,
		AssigneeID:  ent.AssigneeID,
		Description: ent.Description,
		DueDate:     fromMillis(ent.DueDate),
		CreatedAt:   fromMillis(ent.CreatedAt),
	}, nil
}

func encodeTaskMerge(upd domain.TaskUpdate) ([]byte, error) {
	m := taskMerge{
		entity:      entity{PartitionKey: upd.WorkspaceID, RowKey: upd.ID},
		Name:        upd.Name,
		Position:    upd.Position,
		ProjectID:   upd.ProjectID,
		AssigneeID:  upd.AssigneeID,
		Description: upd.Description,
	}
	if upd.Status != nil {
		s := string(*upd.Status)
		m.Status = &s
	}
	if upd.DueDate != nil {
		ms, typ := toMillis(*upd.DueDate), edmInt64
		m.DueDate, m.DueDateType = &ms, &typ
	}
	return sonic.ConfigStd.Marshal(m)
}

func decodeMember(data []byte) (domain.Member, error) {
	var ent memberEntity
	if err := sonic.ConfigStd.Unmarshal(data, &ent); err != nil {
		return domain.Member{}, err
	}
	return domain.Member{
		ID:          ent.RowKey,
		WorkspaceID: ent.PartitionKey,
		UserID:      ent.UserID,
		Role:        domain.MemberRole(ent.Role),
	}, nil
}

func encodeMember(m domain.Member) ([]byte, error) {
	return sonic.ConfigStd.Marshal(memberEntity{
		entity: entity{PartitionKey: m.WorkspaceID, RowKey: m.ID},
		UserID: m.UserID,
		Role:   string(m.Role),
	})
}

func encodeProject(p domain.Project) ([]byte, error) {
	return sonic.ConfigStd.Marshal(projectEntity{
		entity:        entity{PartitionKey: p.WorkspaceID, RowKey: p.ID},
		Name:          p.Name,
		ImageURL:      p.ImageURL,
		CreatedAt:     toMillis(p.CreatedAt),
		CreatedAtType: edmInt64,
	})
}

func decodeProject(data []byte) (domain.Project, error) {
	var ent projectEntity
	if err := sonic.ConfigStd.Unmarshal(data, &ent); err != nil {
		return domain.Project{}, err
	}
	return domain.Project{
		ID:          ent.RowKey,
		Name:        ent.Name,
		WorkspaceID: ent.PartitionKey,
		ImageURL:    ent.ImageURL,
		CreatedAt:   fromMillis(ent.CreatedAt),
	}, nil
}

// quote renders s as an OData string literal.
func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func eq(field, value string) string {
	return field + " eq " + quote(value)
}

func and(clauses ...string) string {
	return strings.Join(clauses, " and ")
}

// taskFilter translates f into an OData filter over the tasks table.
func taskFilter(f domain.TaskFilter) string {
	clauses := []string{eq("PartitionKey", f.WorkspaceID)}
	if f.ProjectID != "" {
		clauses = append(clauses, eq("ProjectId", f.ProjectID))
	}
	if f.AssigneeID != "" {
		clauses = append(clauses, eq("AssigneeId", f.AssigneeID))
	}
	if f.Status != "" {
		clauses = append(clauses, eq("Status", string(f.Status)))
	}
	if f.DueDate != nil {
		clauses = append(clauses, "DueDate eq "+strconv.FormatInt(toMillis(*f.DueDate), 10)+"L")
	}
	if f.Search != "" {
		clauses = append(clauses, eq("Name", f.Search))
	}
	return and(clauses...)
}
