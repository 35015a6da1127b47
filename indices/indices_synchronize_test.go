package indices_test

import (
	"errors"
	"testing"
	"time"

	"leadflow/client/es"
	"leadflow/domain/work"
	"leadflow/event"
	"leadflow/indices"
	"leadflow/session"
	"leadflow/testinfra"

	"github.com/fundwit/go-commons/types"
	. "github.com/onsi/gomega"
)

func TestScheduleNewSyncRun(t *testing.T) {
	RegisterTestingT(t)

	t.Run("at most one sync run is in flight", func(t *testing.T) {
		indices.IndicesFullSyncFunc = func() error {
			time.Sleep(100 * time.Millisecond)
			return nil
		}

		s := testinfra.BuildSession(100, "ann")
		success, err := indices.ScheduleNewSyncRun(s)
		Expect(err).To(BeNil())
		Expect(success).To(BeTrue())

		success, err = indices.ScheduleNewSyncRun(s)
		Expect(err).To(BeNil())
		Expect(success).To(BeFalse())

		time.Sleep(200 * time.Millisecond)

		success, err = indices.ScheduleNewSyncRun(s)
		Expect(err).To(BeNil())
		Expect(success).To(BeTrue())
		time.Sleep(200 * time.Millisecond)
	})
}

func TestIndicesFullSync(t *testing.T) {
	RegisterTestingT(t)

	t.Run("should page through items until the store is drained", func(t *testing.T) {
		indexed := []types.ID{}
		es.IndexFunc = func(index string, id types.ID, doc interface{}, s *session.Session) error {
			Expect(index).To(Equal(indices.ItemIndexName))
			indexed = append(indexed, id)
			return nil
		}

		pages := map[int][]work.WorkItem{
			1: {{ID: 1}, {ID: 2}},
			2: {{ID: 3}},
		}
		work.LoadWorkItemsFunc = func(page, size int) ([]work.WorkItem, error) {
			Expect(size).To(Equal(indices.SyncBatchSize))
			return pages[page], nil
		}

		Expect(indices.IndicesFullSync()).To(BeNil())
		Expect(indexed).To(Equal([]types.ID{1, 2, 3}))
	})
}

func TestIndexItemEventHandle(t *testing.T) {
	RegisterTestingT(t)

	t.Run("should only accept work item events", func(t *testing.T) {
		ev := event.EventRecord{Event: event.Event{SourceType: "NOT_WORK_ITEM"}}
		Expect(indices.IndexItemEventHandle(&ev)).To(BeNil())
	})

	t.Run("should reindex the item on every category, archive included", func(t *testing.T) {
		es.IndexFunc = func(index string, id types.ID, doc interface{}, s *session.Session) error {
			return nil
		}
		work.DetailWorkItemFunc = func(identifier string, s *session.Session) (*work.WorkItem, error) {
			Expect(identifier).To(Equal("LEAD-202403-00001"))
			return &work.WorkItem{ID: 100, ItemID: identifier}, nil
		}

		expected := event.EventHandleResult{Success: true, HandlerIdentifier: indices.ItemIndexEventHandlerName}
		for _, category := range []event.EventCategory{
			event.EventCategoryCreated, event.EventCategoryPropertyUpdated, event.EventCategoryDeleted,
		} {
			ev := event.EventRecord{Event: event.Event{SourceType: work.EventSourceTypeWorkItem,
				SourceId: 100, SourceDesc: "LEAD-202403-00001", EventCategory: category}}
			Expect(*indices.IndexItemEventHandle(&ev)).To(Equal(expected))
		}
	})

	t.Run("should report a detail failure", func(t *testing.T) {
		work.DetailWorkItemFunc = func(identifier string, s *session.Session) (*work.WorkItem, error) {
			return nil, errors.New("error on detail item")
		}

		ev := event.EventRecord{Event: event.Event{SourceType: work.EventSourceTypeWorkItem,
			SourceId: 100, SourceDesc: "LEAD-202403-00001", EventCategory: event.EventCategoryCreated}}
		result := indices.IndexItemEventHandle(&ev)
		Expect(result.Success).To(BeFalse())
		Expect(result.HandlerIdentifier).To(Equal(indices.ItemIndexEventHandlerName))
		Expect(result.Message).To(Equal("detail item when index item 100, error on detail item"))
	})

	t.Run("should report an index failure", func(t *testing.T) {
		es.IndexFunc = func(index string, id types.ID, doc interface{}, s *session.Session) error {
			return errors.New("error on index document")
		}
		work.DetailWorkItemFunc = func(identifier string, s *session.Session) (*work.WorkItem, error) {
			return &work.WorkItem{ID: 100, ItemID: identifier}, nil
		}

		ev := event.EventRecord{Event: event.Event{SourceType: work.EventSourceTypeWorkItem,
			SourceId: 100, SourceDesc: "LEAD-202403-00001", EventCategory: event.EventCategoryCreated}}
		result := indices.IndexItemEventHandle(&ev)
		Expect(result.Success).To(BeFalse())
		Expect(result.HandlerIdentifier).To(Equal(indices.ItemIndexEventHandlerName))
	})
}
