package work

import (
	"errors"

	"leadflow/bizerror"
	"leadflow/domain/fields"
	"leadflow/domain/flow"
	"leadflow/event"
	"leadflow/idgen"
	"leadflow/persistence"
	"leadflow/session"

	"github.com/fundwit/go-commons/types"
	"github.com/google/uuid"
	"github.com/jinzhu/gorm"
	"github.com/sony/sonyflake"
)

var (
	workItemIdWorker = sonyflake.NewSonyflake(sonyflake.Settings{})

	CreateWorkItemFunc       = CreateWorkItem
	DetailWorkItemFunc       = DetailWorkItem
	QueryWorkItemsFunc       = QueryWorkItems
	UpdateWorkItemFieldsFunc = UpdateWorkItemFields
	UpdateAssigneesFunc      = UpdateAssignees
	ArchiveWorkItemFunc      = ArchiveWorkItem
	AddNoteFunc              = AddNote
	LoadWorkItemsFunc        = LoadWorkItems
)

const EventSourceTypeWorkItem = "WORK_ITEM"

// CreateWorkItem creates the aggregate in one transaction: field validation,
// sequence id allocation, initial stage resolution, task seeding, the first
// open history span and the CREATED activity. A sequence id burned by a
// failing later step is never reused.
func CreateWorkItem(c *WorkItemCreation, s *session.Session) (*WorkItem, error) {
	config, err := flow.DetailConfigFunc(c.ConfigUID, s)
	if err != nil {
		return nil, err
	}
	if !config.IsActive {
		return nil, bizerror.ErrConfigInactive
	}

	values, err := fields.ValidateValues(config.Variables, c.FieldValues)
	if err != nil {
		return nil, err
	}

	var item *WorkItem
	var ev *event.EventRecord

	db := persistence.ActiveDataSourceManager.GormDB(s.Context)
	err1 := db.Transaction(func(tx *gorm.DB) error {
		graph, err := flow.LoadStageGraphFunc(c.ConfigUID, tx)
		if err != nil {
			return err
		}
		initialStage, err := graph.InitialStage(c.InitialStage)
		if err != nil {
			return err
		}

		now := types.CurrentTimestamp()
		itemId, err := NextItemIDFunc(c.ConfigUID, config.ItemPrefix, SequencePeriod(now.Time()), tx)
		if err != nil {
			return err
		}

		assignees := c.Assignees
		if assignees == nil {
			assignees = Assignees{}
		}
		item = &WorkItem{
			ID:  idgen.NextID(workItemIdWorker),
			UID: uuid.New().String(),

			ItemID:    itemId,
			ConfigUID: c.ConfigUID,

			Name:         c.Name,
			CurrentStage: initialStage.UID,
			Status:       ItemStatusPending,

			FieldValues: values,
			Assignees:   assignees,

			History: HistorySpans{{Stage: initialStage.UID, EnteredAt: now}},
			Tasks:   seedStageTasks(TaskInstances{}, initialStage),
			Activities: Activities{{
				Type: ActivityTypeCreated, Subject: "Work item created",
				PerformedBy: s.Identity.Name, CreatedAt: now,
			}},

			Version: 1,

			CreateTime: now, UpdateTime: now,
			CreatorID: s.Identity.ID, CreatorName: s.Identity.Name,
		}

		if err := tx.Create(item).Error; err != nil {
			return err
		}

		ev, err = event.CreateEvent(EventSourceTypeWorkItem, item.ID, item.ItemID, event.EventCategoryCreated,
			nil, &s.Identity, now, tx)
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

func seedStageTasks(tasks TaskInstances, stage flow.Stage) TaskInstances {
	for _, tpl := range stage.StageTasks {
		if !tpl.IsActive {
			continue
		}
		if tasks.HasInstanceOf(tpl.UID, stage.UID) {
			continue
		}
		tasks = append(tasks, TaskInstance{
			UID: uuid.New().String(), TemplateID: tpl.UID, Stage: stage.UID,
			Name: tpl.Name, Description: tpl.Description,
			Status: TaskStatusPending, Required: tpl.Required, Order: tpl.Order, IsActive: true,
			TaskFields: tpl.TaskFields, FieldValues: fields.FieldValues{},
		})
	}
	return tasks
}

func DetailWorkItem(identifier string, s *session.Session) (*WorkItem, error) {
	item := WorkItem{}
	db := persistence.ActiveDataSourceManager.GormDB(s.Context)
	if err := db.Where("uid = ? OR item_id = ?", identifier, identifier).First(&item).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, bizerror.ErrNotFound
		}
		return nil, err
	}
	return &item, nil
}

func QueryWorkItems(query *WorkItemQuery, s *session.Session) ([]WorkItem, uint64, error) {
	db := persistence.ActiveDataSourceManager.GormDB(s.Context)

	q := db.Model(&WorkItem{}).Where(&WorkItem{ConfigUID: query.ConfigUID})
	if query.Stage != "" {
		q = q.Where("current_stage = ?", query.Stage)
	}
	if query.Status != "" {
		q = q.Where("status = ?", query.Status)
	}
	if query.Assignee != "" {
		q = q.Where("assignees LIKE ?", `%"`+query.Assignee+`"%`)
	}
	if query.Name != "" {
		q = q.Where("name LIKE ?", "%"+query.Name+"%")
	}
	if query.Archived {
		q = q.Where("archive_time != ?", types.Timestamp{})
	} else {
		q = q.Where("archive_time = ?", types.Timestamp{})
	}

	var total uint64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	size := query.Size
	if size <= 0 {
		size = 50
	}
	offset := (query.Page - 1) * size
	if offset < 0 {
		offset = 0
	}

	var items []WorkItem
	if err := q.Order("create_time DESC, id DESC").Offset(offset).Limit(size).Find(&items).Error; err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// UpdateWorkItemFields validates every assigned key against the config's
// field definitions and records one FIELD_UPDATED activity per changed key.
// Nothing is written when any key fails validation.
func UpdateWorkItemFields(identifier string, u *FieldValuesUpdating, s *session.Session) (*WorkItem, error) {
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

		config, err := flow.DetailConfigFunc(item.ConfigUID, s)
		if err != nil {
			return err
		}
		validated, err := fields.ValidateAssigned(config.Variables, u.FieldValues)
		if err != nil {
			return err
		}

		now := types.CurrentTimestamp()
		updatedProperties := []event.UpdatedProperty{}
		for _, value := range validated {
			origin, _ := item.FieldValues.Find(value.Key)
			if origin.Raw == value.Raw {
				continue
			}
			item.Activities = append(item.Activities, Activity{
				Type: ActivityTypeFieldUpdated, Subject: "Field " + value.Key + " updated",
				PerformedBy: s.Identity.Name, CreatedAt: now,
				Data: map[string]interface{}{"fieldKey": value.Key, "oldValue": origin.Raw, "newValue": value.Raw},
			})
			updatedProperties = append(updatedProperties, event.UpdatedProperty{
				PropertyName: value.Key, PropertyDesc: value.Key,
				OldValue: origin.Raw, OldValueDesc: origin.Raw,
				NewValue: value.Raw, NewValueDesc: value.Raw,
			})
		}
		if len(updatedProperties) == 0 {
			return nil
		}

		item.FieldValues = item.FieldValues.Merge(validated)
		if err := updateWorkItemChecked(tx, item); err != nil {
			return err
		}

		ev, err = event.CreateEvent(EventSourceTypeWorkItem, item.ID, item.ItemID, event.EventCategoryPropertyUpdated,
			updatedProperties, &s.Identity, now, tx)
		return err
	})
	if err1 != nil {
		return nil, err1
	}

	if event.InvokeHandlersFunc != nil && ev != nil {
		event.InvokeHandlersFunc(ev)
	}

	return item, nil
}

func UpdateAssignees(identifier string, u *AssigneesUpdating, s *session.Session) (*WorkItem, error) {
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

		now := types.CurrentTimestamp()
		origin := item.Assignees
		item.Assignees = u.Assignees
		item.Activities = append(item.Activities, Activity{
			Type: ActivityTypeAssignmentChanged, Subject: "Assignees updated",
			PerformedBy: s.Identity.Name, CreatedAt: now,
			Data: map[string]interface{}{"oldAssignees": origin, "newAssignees": u.Assignees},
		})
		if err := updateWorkItemChecked(tx, item); err != nil {
			return err
		}

		originValue, _ := origin.Value()
		newValue, _ := u.Assignees.Value()
		ev, err = event.CreateEvent(EventSourceTypeWorkItem, item.ID, item.ItemID, event.EventCategoryAssignmentUpdated,
			[]event.UpdatedProperty{{
				PropertyName: "Assignees", PropertyDesc: "Assignees",
				OldValue: toString(originValue), OldValueDesc: toString(originValue),
				NewValue: toString(newValue), NewValueDesc: toString(newValue),
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

// ArchiveWorkItem is the terminal, audited removal: the record is kept with
// its history and activities intact.
func ArchiveWorkItem(identifier string, s *session.Session) error {
	var ev *event.EventRecord

	db := persistence.ActiveDataSourceManager.GormDB(s.Context)
	err1 := db.Transaction(func(tx *gorm.DB) error {
		item, err := findWorkItem(tx, identifier)
		if err != nil {
			return err
		}
		if !item.ArchiveTime.Time().IsZero() {
			return nil
		}

		now := types.CurrentTimestamp()
		item.ArchiveTime = now
		item.Activities = append(item.Activities, Activity{
			Type: ActivityTypeDeleted, Subject: "Work item archived",
			PerformedBy: s.Identity.Name, CreatedAt: now,
		})
		if err := updateWorkItemChecked(tx, item); err != nil {
			return err
		}

		ev, err = event.CreateEvent(EventSourceTypeWorkItem, item.ID, item.ItemID, event.EventCategoryDeleted,
			nil, &s.Identity, now, tx)
		return err
	})
	if err1 != nil {
		return err1
	}

	if event.InvokeHandlersFunc != nil && ev != nil {
		event.InvokeHandlersFunc(ev)
	}

	return nil
}

func AddNote(identifier string, n *NoteCreation, s *session.Session) (*WorkItem, error) {
	var item *WorkItem

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

		item.Activities = append(item.Activities, Activity{
			Type: ActivityTypeNote, Subject: n.Subject, Description: n.Description,
			PerformedBy: s.Identity.Name, CreatedAt: types.CurrentTimestamp(),
		})
		return updateWorkItemChecked(tx, item)
	})
	if err1 != nil {
		return nil, err1
	}
	return item, nil
}

// IsFieldDefinitionReferenced guards config variable removal; wired into the
// flow package on bootstrap.
func IsFieldDefinitionReferenced(configUID, fieldKey string, tx *gorm.DB) error {
	item := WorkItem{}
	err := tx.Where("config_uid = ? AND field_values LIKE ?", configUID, `%"key":"`+fieldKey+`"%`).
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	} else if err != nil {
		return err
	}
	return bizerror.ErrFieldDefinitionIsReferenced
}

func LoadWorkItems(page, size int) ([]WorkItem, error) {
	items := []WorkItem{}
	db := persistence.ActiveDataSourceManager.GormDB(nil)
	offset := (page - 1) * size
	if offset < 0 {
		offset = 0
	}
	if err := db.Order("id ASC").Offset(offset).Limit(size).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func findWorkItem(tx *gorm.DB, identifier string) (*WorkItem, error) {
	item := WorkItem{}
	if err := tx.Where("uid = ? OR item_id = ?", identifier, identifier).First(&item).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, bizerror.ErrNotFound
		}
		return nil, err
	}
	return &item, nil
}

// updateWorkItemChecked writes the whole aggregate back as one conditional
// update keyed by the version the caller loaded; a stale version means a
// concurrent writer won and the caller must retry with fresh state.
func updateWorkItemChecked(tx *gorm.DB, item *WorkItem) error {
	originVersion := item.Version
	item.Version = originVersion + 1
	item.UpdateTime = types.CurrentTimestamp()

	ret := tx.Model(&WorkItem{}).Where("id = ? AND version = ?", item.ID, originVersion).
		Update(map[string]interface{}{
			"name":          item.Name,
			"current_stage": item.CurrentStage,
			"status":        item.Status,
			"field_values":  item.FieldValues,
			"assignees":     item.Assignees,
			"history":       item.History,
			"tasks":         item.Tasks,
			"activities":    item.Activities,
			"version":       item.Version,
			"update_time":   item.UpdateTime,
			"archive_time":  item.ArchiveTime,
		})
	if ret.Error != nil {
		return ret.Error
	}
	if ret.RowsAffected != 1 {
		return bizerror.ErrConflict
	}
	return nil
}

func toString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
