package work

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"leadflow/domain/fields"

	"github.com/fundwit/go-commons/types"
)

type ItemStatus string

const (
	ItemStatusPending    = ItemStatus("pending")
	ItemStatusInProgress = ItemStatus("in_progress")
	ItemStatusCompleted  = ItemStatus("completed")
	ItemStatusBlocked    = ItemStatus("blocked")
)

type TaskStatus string

const (
	TaskStatusPending    = TaskStatus("pending")
	TaskStatusInProgress = TaskStatus("in_progress")
	TaskStatusCompleted  = TaskStatus("completed")
	TaskStatusSkipped    = TaskStatus("skipped")
	TaskStatusBlocked    = TaskStatus("blocked")
)

const (
	ActivityTypeCreated           = "CREATED"
	ActivityTypeStageChange       = "STAGE_CHANGE"
	ActivityTypeTaskCompleted     = "TASK_COMPLETED"
	ActivityTypeTaskSkipped       = "TASK_SKIPPED"
	ActivityTypeFieldUpdated      = "FIELD_UPDATED"
	ActivityTypeAssignmentChanged = "ASSIGNMENT_CHANGED"
	ActivityTypeNote              = "NOTE"
	ActivityTypeDeleted           = "DELETED"
)

// HistorySpan records one occupancy of a stage. A nil ExitedAt marks the
// span of the stage the item currently occupies.
type HistorySpan struct {
	Stage     string           `json:"stage"`
	EnteredAt types.Timestamp  `json:"enteredAt"`
	ExitedAt  *types.Timestamp `json:"exitedAt,omitempty"`
}

type HistorySpans []HistorySpan

// OpenSpan returns the index of the span without an exit timestamp, -1 when
// none is open.
func (spans HistorySpans) OpenSpan() int {
	for i := range spans {
		if spans[i].ExitedAt == nil {
			return i
		}
	}
	return -1
}

func (t HistorySpans) Value() (driver.Value, error) {
	jsonBytes, err := json.Marshal(&t)
	if err != nil {
		return nil, err
	}
	return string(jsonBytes), nil
}

func (c *HistorySpans) Scan(v interface{}) error {
	jsonString, ok := v.(string)
	if !ok {
		jsonByte, ok := v.([]byte)
		if !ok {
			return fmt.Errorf("type is neither string nor []byte: %T %v", v, v)
		}
		jsonString = string(jsonByte)
	}
	return json.Unmarshal([]byte(jsonString), c)
}

// TaskInstance is the per-item occurrence of a stage's task template.
type TaskInstance struct {
	UID        string `json:"uid"`
	TemplateID string `json:"templateId"`
	Stage      string `json:"stage"`

	Name        string `json:"name"`
	Description string `json:"description,omitempty"`

	Status   TaskStatus `json:"status"`
	Required bool       `json:"required"`
	Order    int        `json:"order"`
	IsActive bool       `json:"isActive"`

	TaskFields  fields.FieldDefinitions `json:"taskFields,omitempty"`
	FieldValues fields.FieldValues      `json:"fieldValues,omitempty"`

	Notes       string           `json:"notes,omitempty"`
	CompletedAt *types.Timestamp `json:"completedAt,omitempty"`
	CompletedBy string           `json:"completedBy,omitempty"`
}

type TaskInstances []TaskInstance

func (tasks TaskInstances) Find(uid string) int {
	for i := range tasks {
		if tasks[i].UID == uid {
			return i
		}
	}
	return -1
}

// HasInstanceOf reports whether an instance of the template already exists
// for the stage, so a re-entered stage is not reseeded twice.
func (tasks TaskInstances) HasInstanceOf(templateID, stage string) bool {
	for i := range tasks {
		if tasks[i].TemplateID == templateID && tasks[i].Stage == stage {
			return true
		}
	}
	return false
}

func (t TaskInstances) Value() (driver.Value, error) {
	jsonBytes, err := json.Marshal(&t)
	if err != nil {
		return nil, err
	}
	return string(jsonBytes), nil
}

func (c *TaskInstances) Scan(v interface{}) error {
	jsonString, ok := v.(string)
	if !ok {
		jsonByte, ok := v.([]byte)
		if !ok {
			return fmt.Errorf("type is neither string nor []byte: %T %v", v, v)
		}
		jsonString = string(jsonByte)
	}
	return json.Unmarshal([]byte(jsonString), c)
}

// Activity is one immutable audit entry; entries are only ever appended and
// read back in insertion order.
type Activity struct {
	Type        string `json:"type"`
	Subject     string `json:"subject"`
	Description string `json:"description,omitempty"`

	PerformedBy string          `json:"performedBy,omitempty"`
	CreatedAt   types.Timestamp `json:"createdAt"`

	Data map[string]interface{} `json:"data,omitempty"`
}

type Activities []Activity

func (t Activities) Value() (driver.Value, error) {
	jsonBytes, err := json.Marshal(&t)
	if err != nil {
		return nil, err
	}
	return string(jsonBytes), nil
}

func (c *Activities) Scan(v interface{}) error {
	jsonString, ok := v.(string)
	if !ok {
		jsonByte, ok := v.([]byte)
		if !ok {
			return fmt.Errorf("type is neither string nor []byte: %T %v", v, v)
		}
		jsonString = string(jsonByte)
	}
	return json.Unmarshal([]byte(jsonString), c)
}

type Assignees []string

func (t Assignees) Value() (driver.Value, error) {
	jsonBytes, err := json.Marshal(&t)
	if err != nil {
		return nil, err
	}
	return string(jsonBytes), nil
}

func (c *Assignees) Scan(v interface{}) error {
	jsonString, ok := v.(string)
	if !ok {
		jsonByte, ok := v.([]byte)
		if !ok {
			return fmt.Errorf("type is neither string nor []byte: %T %v", v, v)
		}
		jsonString = string(jsonByte)
	}
	return json.Unmarshal([]byte(jsonString), c)
}

// WorkItem is the aggregate root: history, tasks and activities are owned
// child sequences persisted with the item and mutated only through one
// conditional update keyed by Version.
type WorkItem struct {
	ID  types.ID `json:"id" gorm:"primary_key"`
	UID string   `json:"uid" gorm:"unique_index:uni_item_uid"`

	ItemID    string `json:"itemId" gorm:"unique_index:uni_item_id"`
	ConfigUID string `json:"config" gorm:"index:idx_config_stage"`

	Name         string     `json:"name"`
	CurrentStage string     `json:"currentStage" gorm:"index:idx_config_stage"`
	Status       ItemStatus `json:"status"`

	FieldValues fields.FieldValues `json:"fieldValues" sql:"type:TEXT"`
	Assignees   Assignees          `json:"assignees" sql:"type:TEXT"`

	History    HistorySpans  `json:"history" sql:"type:MEDIUMTEXT"`
	Tasks      TaskInstances `json:"tasks" sql:"type:MEDIUMTEXT"`
	Activities Activities    `json:"activities" sql:"type:MEDIUMTEXT"`

	Version uint64 `json:"version"`

	CreateTime  types.Timestamp `json:"createTime" sql:"type:DATETIME(6) NOT NULL"`
	UpdateTime  types.Timestamp `json:"updateTime" sql:"type:DATETIME(6) NOT NULL"`
	ArchiveTime types.Timestamp `json:"archiveTime" sql:"type:DATETIME(6)"`

	CreatorID   types.ID `json:"creatorId"`
	CreatorName string   `json:"creatorName"`
}

func (r *WorkItem) TableName() string {
	return "work_items"
}

type WorkItemCreation struct {
	ConfigUID string `json:"config" binding:"required"`
	Name      string `json:"name" binding:"required"`

	InitialStage string                 `json:"initialStage"`
	FieldValues  map[string]interface{} `json:"fieldValues"`
	Assignees    Assignees              `json:"assignees"`
}

type WorkItemQuery struct {
	ConfigUID string `json:"config" form:"config" binding:"required"`

	Stage    string     `json:"stage" form:"stage"`
	Status   ItemStatus `json:"status" form:"status"`
	Assignee string     `json:"assignee" form:"assignee"`
	Name     string     `json:"name" form:"name"`

	Archived bool `json:"archived" form:"archived"`

	Page int `json:"page" form:"page"`
	Size int `json:"size" form:"size"`
}

type FieldValuesUpdating struct {
	FieldValues map[string]interface{} `json:"fieldValues" binding:"required"`
}

type AssigneesUpdating struct {
	Assignees Assignees `json:"assignees" binding:"required"`
}

type TaskCompletion struct {
	FieldValues map[string]interface{} `json:"fieldValues"`
	Notes       string                 `json:"notes"`
}

type NoteCreation struct {
	Subject     string `json:"subject" binding:"required"`
	Description string `json:"description"`
}
