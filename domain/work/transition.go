package work

import (
	"leadflow/bizerror"
	"leadflow/domain/flow"
	"leadflow/event"
	"leadflow/persistence"
	"leadflow/session"

	"github.com/fundwit/go-commons/types"
	"github.com/jinzhu/gorm"
)

var TransitionWorkItemFunc = TransitionWorkItem

type StageTransition struct {
	TargetStage string `json:"targetStage" binding:"required"`
	Comment     string `json:"comment"`
}

// TransitionWorkItem moves an item along one edge of its config's stage
// graph. The edge must exist, the target stage must be active and every
// required task of the current stage must be completed or skipped. All
// effects of an accepted transition land in a single conditional update, so
// readers never observe a half-moved item.
func TransitionWorkItem(identifier string, t *StageTransition, s *session.Session) (*WorkItem, error) {
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

		graph, err := flow.LoadStageGraphFunc(item.ConfigUID, tx)
		if err != nil {
			return err
		}
		target, found := graph.FindStage(t.TargetStage)
		if !found {
			return bizerror.ErrUnknownStage
		}
		if !target.IsActive {
			return bizerror.ErrStageInactive
		}
		if !graph.TransitionAllowed(item.CurrentStage, target.UID) {
			return &bizerror.TransitionError{FromStage: item.CurrentStage, ToStage: target.UID,
				Reason: bizerror.TransitionRejectEdgeNotAllowed}
		}
		if pending := PendingRequiredTasks(item, item.CurrentStage); len(pending) > 0 {
			return &bizerror.TransitionError{FromStage: item.CurrentStage, ToStage: target.UID,
				Reason: bizerror.TransitionRejectTasksPending, PendingTaskIds: pending}
		}

		now := types.CurrentTimestamp()
		origin := item.CurrentStage

		if open := item.History.OpenSpan(); open >= 0 {
			item.History[open].ExitedAt = &now
		}
		item.History = append(item.History, HistorySpan{Stage: target.UID, EnteredAt: now})

		item.CurrentStage = target.UID
		if graph.IsTerminal(target.UID) {
			item.Status = ItemStatusCompleted
		} else {
			item.Status = ItemStatusInProgress
		}

		// a re-entered stage keeps its existing task instances
		item.Tasks = seedStageTasks(item.Tasks, target)

		item.Activities = append(item.Activities, Activity{
			Type: ActivityTypeStageChange, Subject: "Stage changed from " + origin + " to " + target.UID,
			Description: t.Comment,
			PerformedBy: s.Identity.Name, CreatedAt: now,
			Data: map[string]interface{}{"fromStage": origin, "toStage": target.UID},
		})

		if err := updateWorkItemChecked(tx, item); err != nil {
			return err
		}

		ev, err = event.CreateEvent(EventSourceTypeWorkItem, item.ID, item.ItemID, event.EventCategoryStageChanged,
			[]event.UpdatedProperty{{
				PropertyName: "CurrentStage", PropertyDesc: "CurrentStage",
				OldValue: origin, OldValueDesc: origin,
				NewValue: target.UID, NewValueDesc: target.UID,
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
