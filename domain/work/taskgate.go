package work

import (
	"sort"

	"leadflow/bizerror"
	"leadflow/domain/fields"
	"leadflow/event"
	"leadflow/persistence"
	"leadflow/session"

	"github.com/fundwit/go-commons/types"
	"github.com/jinzhu/gorm"
)

var (
	CompleteTaskFunc = CompleteTask
	SkipTaskFunc     = SkipTask
)

// PendingRequiredTasks returns the ids of the stage's active required tasks
// that are neither completed nor skipped, ordered by (order, uid). Inactive
// and optional tasks never block.
func PendingRequiredTasks(item *WorkItem, stage string) []string {
	blocking := []TaskInstance{}
	for _, task := range item.Tasks {
		if task.Stage != stage || !task.IsActive || !task.Required {
			continue
		}
		if task.Status == TaskStatusCompleted || task.Status == TaskStatusSkipped {
			continue
		}
		blocking = append(blocking, task)
	}
	sort.SliceStable(blocking, func(i, j int) bool {
		if blocking[i].Order != blocking[j].Order {
			return blocking[i].Order < blocking[j].Order
		}
		return blocking[i].UID < blocking[j].UID
	})

	ids := make([]string, 0, len(blocking))
	for _, task := range blocking {
		ids = append(ids, task.UID)
	}
	return ids
}

// StageExitAllowed reports whether the item may leave the stage.
func StageExitAllowed(item *WorkItem, stage string) bool {
	return len(PendingRequiredTasks(item, stage)) == 0
}

// CompleteTask marks one task instance completed. When the task carries its
// own field definitions the given values are validated against them; a
// completed task is never completed twice.
func CompleteTask(identifier, taskUID string, c *TaskCompletion, s *session.Session) (*WorkItem, error) {
	return finishTask(identifier, taskUID, c, TaskStatusCompleted, s)
}

// SkipTask marks one task instance skipped. Skipping satisfies the gate the
// same way completion does, but the audit trail keeps them distinct.
func SkipTask(identifier, taskUID string, c *TaskCompletion, s *session.Session) (*WorkItem, error) {
	return finishTask(identifier, taskUID, c, TaskStatusSkipped, s)
}

func finishTask(identifier, taskUID string, c *TaskCompletion, status TaskStatus, s *session.Session) (*WorkItem, error) {
	var item *WorkItem
	var ev *event.EventRecord

	db := persistence.ActiveDataSourceManager.GormDB(s.Context)
	err1 := db.Transaction(func(tx *gorm.DB) error {
		var err error
		item, err = findWorkItem(tx, identifier)
		if err != nil {
			return err
		}
		if !item.ArchiveTime.Time().IsZero() {
			return bizerror.ErrArchiveStatusInvalid
		}

		idx := item.Tasks.Find(taskUID)
		if idx < 0 {
			return bizerror.ErrNotFound
		}
		task := &item.Tasks[idx]
		if task.Status == TaskStatusCompleted || task.Status == TaskStatusSkipped {
			return bizerror.ErrTaskAlreadyCompleted
		}

		if status == TaskStatusCompleted && len(task.TaskFields) > 0 {
			values, err := fields.ValidateValues(task.TaskFields, c.FieldValues)
			if err != nil {
				return err
			}
			task.FieldValues = values
		}

		now := types.CurrentTimestamp()
		task.Status = status
		task.Notes = c.Notes
		task.CompletedAt = &now
		task.CompletedBy = s.Identity.Name

		activityType := ActivityTypeTaskCompleted
		category := event.EventCategory(event.EventCategoryTaskCompleted)
		subject := "Task " + task.Name + " completed"
		if status == TaskStatusSkipped {
			activityType = ActivityTypeTaskSkipped
			category = event.EventCategoryTaskSkipped
			subject = "Task " + task.Name + " skipped"
		}
		item.Activities = append(item.Activities, Activity{
			Type: activityType, Subject: subject, Description: c.Notes,
			PerformedBy: s.Identity.Name, CreatedAt: now,
			Data: map[string]interface{}{"taskUid": task.UID, "stage": task.Stage},
		})

		if err := updateWorkItemChecked(tx, item); err != nil {
			return err
		}

		ev, err = event.CreateEvent(EventSourceTypeWorkItem, item.ID, item.ItemID, category,
			[]event.UpdatedProperty{{
				PropertyName: "Task", PropertyDesc: task.Name,
				OldValue: string(TaskStatusPending), OldValueDesc: string(TaskStatusPending),
				NewValue: string(status), NewValueDesc: string(status),
			}}, &s.Identity, now, tx)
		return err
	})
	if err1 != nil {
		return nil, err1
	}

	if event.InvokeHandlersFunc != nil {
		event.InvokeHandlersFunc(ev)
	}

	return item, nil
}
