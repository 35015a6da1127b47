package work_test

import (
	"context"
	"testing"

	"leadflow/bizerror"
	"leadflow/domain/fields"
	"leadflow/domain/flow"
	"leadflow/domain/work"
	"leadflow/event"
	"leadflow/persistence"
	"leadflow/testinfra"

	. "github.com/onsi/gomega"
	"github.com/stretchr/testify/assert"
)

func setup(t *testing.T, testDatabase **testinfra.TestDatabase) {
	db := testinfra.StartMysqlTestDatabase("leadflow")
	assert.Nil(t, db.DS.GormDB(context.Background()).AutoMigrate(
		&flow.WorkflowConfig{}, &flow.Stage{},
		&work.WorkItem{}, &work.SequenceCounter{}, &event.EventRecord{}).Error)
	persistence.ActiveDataSourceManager = db.DS
	flow.CheckFieldDefinitionReferencedFunc = work.IsFieldDefinitionReferenced
	*testDatabase = db
}

func teardown(t *testing.T, testDatabase *testinfra.TestDatabase) {
	if testDatabase != nil {
		testinfra.StopMysqlTestDatabase(testDatabase)
	}
}

// preparePipeline builds a three stage lead pipeline: new -> contacted ->
// qualified, with a required Qualification Call task on contacted.
func preparePipeline(t *testing.T, configUID string) *flow.WorkflowConfig {
	s := testinfra.BuildSession(100, "ann")

	config, err := flow.GetOrCreateConfig(configUID, s)
	Expect(err).To(BeNil())

	_, err = flow.UpdateConfigVariables(config.UID, &flow.ConfigUpdating{
		Variables: fields.FieldDefinitions{
			{Key: "company", Type: fields.FieldTypeString, Required: true, IsActive: true},
			{Key: "budget", Type: fields.FieldTypeInteger, IsActive: true},
			{Key: "source", Type: fields.FieldTypeEnum, Options: []string{"Web", "Referral"}, IsActive: true},
		},
	}, s)
	Expect(err).To(BeNil())

	_, err = flow.CreateStage(&flow.StageCreation{ConfigUID: config.UID, UID: "new", Name: "New", Order: 1,
		AllowedNextStages: flow.StageUIDs{"contacted"}}, s)
	Expect(err).To(BeNil())
	_, err = flow.CreateStage(&flow.StageCreation{ConfigUID: config.UID, UID: "contacted", Name: "Contacted", Order: 2,
		AllowedNextStages: flow.StageUIDs{"new", "qualified"},
		StageTasks: flow.StageTasks{{UID: "qual-call", Name: "Qualification Call", Required: true, Order: 1, IsActive: true,
			TaskFields: fields.FieldDefinitions{
				{Key: "outcome", Type: fields.FieldTypeEnum, Options: []string{"Positive", "Negative"}, Required: true, IsActive: true},
			}}}}, s)
	Expect(err).To(BeNil())
	_, err = flow.CreateStage(&flow.StageCreation{ConfigUID: config.UID, UID: "qualified", Name: "Qualified", Order: 3}, s)
	Expect(err).To(BeNil())

	updated, err := flow.DetailConfig(config.UID, s)
	Expect(err).To(BeNil())
	return updated
}

func TestCreateWorkItem(t *testing.T) {
	RegisterTestingT(t)
	var testDatabase *testinfra.TestDatabase

	t.Run("should create the whole aggregate in one shot", func(t *testing.T) {
		defer teardown(t, testDatabase)
		setup(t, &testDatabase)

		config := preparePipeline(t, "items-create")
		s := testinfra.BuildSession(100, "ann")

		item, err := work.CreateWorkItem(&work.WorkItemCreation{
			ConfigUID: config.UID, Name: "ACME deal",
			FieldValues: map[string]interface{}{"company": "ACME", "source": "web"},
			Assignees:   work.Assignees{"ann"},
		}, s)
		Expect(err).To(BeNil())

		Expect(item.ItemID).To(HavePrefix("LEAD-"))
		Expect(item.CurrentStage).To(Equal("new"))
		Expect(item.Status).To(Equal(work.ItemStatusPending))
		Expect(item.Version).To(Equal(uint64(1)))

		// one open history span, equal to the current stage
		Expect(len(item.History)).To(Equal(1))
		Expect(item.History[0].Stage).To(Equal("new"))
		Expect(item.History[0].ExitedAt).To(BeNil())

		// stage "new" has no task templates, so nothing is seeded
		Expect(item.Tasks).To(Equal(work.TaskInstances{}))

		Expect(len(item.Activities)).To(Equal(1))
		Expect(item.Activities[0].Type).To(Equal(work.ActivityTypeCreated))
		Expect(item.Activities[0].PerformedBy).To(Equal("ann"))

		source, _ := item.FieldValues.Find("source")
		Expect(source.Value).To(Equal("Web"))

		reread, err := work.DetailWorkItem(item.UID, s)
		Expect(err).To(BeNil())
		Expect(reread.ItemID).To(Equal(item.ItemID))

		byItemID, err := work.DetailWorkItem(item.ItemID, s)
		Expect(err).To(BeNil())
		Expect(byItemID.UID).To(Equal(item.UID))
	})

	t.Run("should honor an explicit initial stage and seed its tasks", func(t *testing.T) {
		defer teardown(t, testDatabase)
		setup(t, &testDatabase)

		config := preparePipeline(t, "items-create-explicit")
		s := testinfra.BuildSession(100, "ann")

		item, err := work.CreateWorkItem(&work.WorkItemCreation{
			ConfigUID: config.UID, Name: "ACME deal", InitialStage: "contacted",
			FieldValues: map[string]interface{}{"company": "ACME"},
		}, s)
		Expect(err).To(BeNil())
		Expect(item.CurrentStage).To(Equal("contacted"))
		Expect(len(item.Tasks)).To(Equal(1))
		Expect(item.Tasks[0].TemplateID).To(Equal("qual-call"))
		Expect(item.Tasks[0].Status).To(Equal(work.TaskStatusPending))
	})

	t.Run("should write nothing when field validation fails", func(t *testing.T) {
		defer teardown(t, testDatabase)
		setup(t, &testDatabase)

		config := preparePipeline(t, "items-create-invalid")
		s := testinfra.BuildSession(100, "ann")

		_, err := work.CreateWorkItem(&work.WorkItemCreation{
			ConfigUID: config.UID, Name: "no company",
			FieldValues: map[string]interface{}{"budget": "not-a-number"},
		}, s)
		Expect(err).ToNot(BeNil())
		_, ok := err.(*bizerror.ValidationError)
		Expect(ok).To(BeTrue())

		var count uint64
		Expect(testDatabase.DS.GormDB(context.Background()).Model(&work.WorkItem{}).Count(&count).Error).To(BeNil())
		Expect(count).To(Equal(uint64(0)))
	})

	t.Run("should reject unknown initial stage", func(t *testing.T) {
		defer teardown(t, testDatabase)
		setup(t, &testDatabase)

		config := preparePipeline(t, "items-create-badstage")
		s := testinfra.BuildSession(100, "ann")

		_, err := work.CreateWorkItem(&work.WorkItemCreation{
			ConfigUID: config.UID, Name: "deal", InitialStage: "nosuch",
			FieldValues: map[string]interface{}{"company": "ACME"},
		}, s)
		Expect(err).To(Equal(bizerror.ErrUnknownStage))
	})
}

func TestQueryWorkItems(t *testing.T) {
	RegisterTestingT(t)
	var testDatabase *testinfra.TestDatabase

	t.Run("should filter by stage, assignee and archive state", func(t *testing.T) {
		defer teardown(t, testDatabase)
		setup(t, &testDatabase)

		config := preparePipeline(t, "items-query")
		s := testinfra.BuildSession(100, "ann")

		first, err := work.CreateWorkItem(&work.WorkItemCreation{
			ConfigUID: config.UID, Name: "first deal",
			FieldValues: map[string]interface{}{"company": "ACME"}, Assignees: work.Assignees{"ann"},
		}, s)
		Expect(err).To(BeNil())
		second, err := work.CreateWorkItem(&work.WorkItemCreation{
			ConfigUID: config.UID, Name: "second deal", InitialStage: "contacted",
			FieldValues: map[string]interface{}{"company": "Globex"}, Assignees: work.Assignees{"bob"},
		}, s)
		Expect(err).To(BeNil())

		items, total, err := work.QueryWorkItems(&work.WorkItemQuery{ConfigUID: config.UID}, s)
		Expect(err).To(BeNil())
		Expect(total).To(Equal(uint64(2)))
		Expect(len(items)).To(Equal(2))

		items, total, err = work.QueryWorkItems(&work.WorkItemQuery{ConfigUID: config.UID, Stage: "contacted"}, s)
		Expect(err).To(BeNil())
		Expect(total).To(Equal(uint64(1)))
		Expect(items[0].UID).To(Equal(second.UID))

		items, total, err = work.QueryWorkItems(&work.WorkItemQuery{ConfigUID: config.UID, Assignee: "ann"}, s)
		Expect(err).To(BeNil())
		Expect(total).To(Equal(uint64(1)))
		Expect(items[0].UID).To(Equal(first.UID))

		Expect(work.ArchiveWorkItem(first.UID, s)).To(BeNil())

		_, total, err = work.QueryWorkItems(&work.WorkItemQuery{ConfigUID: config.UID}, s)
		Expect(err).To(BeNil())
		Expect(total).To(Equal(uint64(1)))

		items, total, err = work.QueryWorkItems(&work.WorkItemQuery{ConfigUID: config.UID, Archived: true}, s)
		Expect(err).To(BeNil())
		Expect(total).To(Equal(uint64(1)))
		Expect(items[0].UID).To(Equal(first.UID))
	})
}

func TestUpdateWorkItemFields(t *testing.T) {
	RegisterTestingT(t)
	var testDatabase *testinfra.TestDatabase

	t.Run("should record one FIELD_UPDATED activity per changed key", func(t *testing.T) {
		defer teardown(t, testDatabase)
		setup(t, &testDatabase)

		config := preparePipeline(t, "items-fields")
		s := testinfra.BuildSession(100, "ann")

		item, err := work.CreateWorkItem(&work.WorkItemCreation{
			ConfigUID: config.UID, Name: "deal",
			FieldValues: map[string]interface{}{"company": "ACME"},
		}, s)
		Expect(err).To(BeNil())

		updated, err := work.UpdateWorkItemFields(item.UID, &work.FieldValuesUpdating{
			FieldValues: map[string]interface{}{"company": "ACME Corp", "budget": 500},
		}, s)
		Expect(err).To(BeNil())
		Expect(updated.Version).To(Equal(uint64(2)))

		company, _ := updated.FieldValues.Find("company")
		Expect(company.Value).To(Equal("ACME Corp"))
		budget, _ := updated.FieldValues.Find("budget")
		Expect(budget.Value).To(Equal(int64(500)))

		fieldActivities := work.Activities{}
		for _, a := range updated.Activities {
			if a.Type == work.ActivityTypeFieldUpdated {
				fieldActivities = append(fieldActivities, a)
			}
		}
		Expect(len(fieldActivities)).To(Equal(2))
		Expect(fieldActivities[0].Data["fieldKey"]).To(Equal("company"))
		Expect(fieldActivities[0].Data["oldValue"]).To(Equal("ACME"))
		Expect(fieldActivities[0].Data["newValue"]).To(Equal("ACME Corp"))
	})

	t.Run("should not bump version or write activities when nothing changed", func(t *testing.T) {
		defer teardown(t, testDatabase)
		setup(t, &testDatabase)

		config := preparePipeline(t, "items-fields-nochange")
		s := testinfra.BuildSession(100, "ann")

		item, err := work.CreateWorkItem(&work.WorkItemCreation{
			ConfigUID: config.UID, Name: "deal",
			FieldValues: map[string]interface{}{"company": "ACME"},
		}, s)
		Expect(err).To(BeNil())

		updated, err := work.UpdateWorkItemFields(item.UID, &work.FieldValuesUpdating{
			FieldValues: map[string]interface{}{"company": "ACME"},
		}, s)
		Expect(err).To(BeNil())
		Expect(updated.Version).To(Equal(item.Version))
		Expect(len(updated.Activities)).To(Equal(len(item.Activities)))
	})

	t.Run("should write nothing when any key fails validation", func(t *testing.T) {
		defer teardown(t, testDatabase)
		setup(t, &testDatabase)

		config := preparePipeline(t, "items-fields-invalid")
		s := testinfra.BuildSession(100, "ann")

		item, err := work.CreateWorkItem(&work.WorkItemCreation{
			ConfigUID: config.UID, Name: "deal",
			FieldValues: map[string]interface{}{"company": "ACME"},
		}, s)
		Expect(err).To(BeNil())

		_, err = work.UpdateWorkItemFields(item.UID, &work.FieldValuesUpdating{
			FieldValues: map[string]interface{}{"company": "Initech", "budget": "many"},
		}, s)
		Expect(err).ToNot(BeNil())

		reread, err := work.DetailWorkItem(item.UID, s)
		Expect(err).To(BeNil())
		company, _ := reread.FieldValues.Find("company")
		Expect(company.Value).To(Equal("ACME"))
		Expect(reread.Version).To(Equal(item.Version))
	})
}

func TestUpdateAssignees(t *testing.T) {
	RegisterTestingT(t)
	var testDatabase *testinfra.TestDatabase

	t.Run("should replace assignees and record the change", func(t *testing.T) {
		defer teardown(t, testDatabase)
		setup(t, &testDatabase)

		config := preparePipeline(t, "items-assignees")
		s := testinfra.BuildSession(100, "ann")

		item, err := work.CreateWorkItem(&work.WorkItemCreation{
			ConfigUID: config.UID, Name: "deal",
			FieldValues: map[string]interface{}{"company": "ACME"}, Assignees: work.Assignees{"ann"},
		}, s)
		Expect(err).To(BeNil())

		updated, err := work.UpdateAssignees(item.UID, &work.AssigneesUpdating{Assignees: work.Assignees{"bob", "carol"}}, s)
		Expect(err).To(BeNil())
		Expect(updated.Assignees).To(Equal(work.Assignees{"bob", "carol"}))

		last := updated.Activities[len(updated.Activities)-1]
		Expect(last.Type).To(Equal(work.ActivityTypeAssignmentChanged))
	})
}

func TestArchiveWorkItem(t *testing.T) {
	RegisterTestingT(t)
	var testDatabase *testinfra.TestDatabase

	t.Run("should keep the record with history and activities intact", func(t *testing.T) {
		defer teardown(t, testDatabase)
		setup(t, &testDatabase)

		config := preparePipeline(t, "items-archive")
		s := testinfra.BuildSession(100, "ann")

		item, err := work.CreateWorkItem(&work.WorkItemCreation{
			ConfigUID: config.UID, Name: "deal",
			FieldValues: map[string]interface{}{"company": "ACME"},
		}, s)
		Expect(err).To(BeNil())

		Expect(work.ArchiveWorkItem(item.UID, s)).To(BeNil())

		archived, err := work.DetailWorkItem(item.UID, s)
		Expect(err).To(BeNil())
		Expect(archived.ArchiveTime.Time().IsZero()).To(BeFalse())
		Expect(len(archived.History)).To(Equal(1))
		last := archived.Activities[len(archived.Activities)-1]
		Expect(last.Type).To(Equal(work.ActivityTypeDeleted))

		// archiving twice is a no-op
		Expect(work.ArchiveWorkItem(item.UID, s)).To(BeNil())

		// an archived item accepts no further mutation
		_, err = work.UpdateWorkItemFields(item.UID, &work.FieldValuesUpdating{
			FieldValues: map[string]interface{}{"budget": 1},
		}, s)
		Expect(err).To(Equal(bizerror.ErrArchiveStatusInvalid))
	})
}

func TestAddNote(t *testing.T) {
	RegisterTestingT(t)
	var testDatabase *testinfra.TestDatabase

	t.Run("should append a NOTE activity", func(t *testing.T) {
		defer teardown(t, testDatabase)
		setup(t, &testDatabase)

		config := preparePipeline(t, "items-note")
		s := testinfra.BuildSession(100, "ann")

		item, err := work.CreateWorkItem(&work.WorkItemCreation{
			ConfigUID: config.UID, Name: "deal",
			FieldValues: map[string]interface{}{"company": "ACME"},
		}, s)
		Expect(err).To(BeNil())

		updated, err := work.AddNote(item.UID, &work.NoteCreation{Subject: "call back", Description: "next monday"}, s)
		Expect(err).To(BeNil())
		last := updated.Activities[len(updated.Activities)-1]
		Expect(last.Type).To(Equal(work.ActivityTypeNote))
		Expect(last.Subject).To(Equal("call back"))
		Expect(last.Description).To(Equal("next monday"))
		Expect(last.PerformedBy).To(Equal("ann"))
	})
}
