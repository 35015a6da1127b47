package indices

import (
	"context"
	"fmt"
	"sync"

	"leadflow/client/es"
	"leadflow/domain/work"
	"leadflow/event"
	"leadflow/session"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

var (
	ItemIndexEventHandlerName = "itemIndexer"
	indexRobot                = &session.Session{
		Identity: session.Identity{ID: 10, Name: "index-robot"},
		Context:  context.Background(),
	}

	lock    sync.Mutex
	running bool

	IndicesFullSyncFunc    = IndicesFullSync
	ScheduleNewSyncRunFunc = ScheduleNewSyncRun
)

// ScheduleNewSyncRun starts a full sync in the background. At most one run
// is in flight; a second request while one is running is a no-op.
func ScheduleNewSyncRun(s *session.Session) (bool, error) {
	lock.Lock()
	if running {
		lock.Unlock()
		return false, nil
	}
	running = true
	lock.Unlock()

	waitRunning := sync.WaitGroup{}
	waitRunning.Add(1)
	go func() {
		waitRunning.Done()
		defer func() {
			lock.Lock()
			running = false
			lock.Unlock()
		}()
		IndicesFullSyncFunc()
	}()
	waitRunning.Wait()
	return true, nil
}

var (
	SyncBatchSize = 500

	// one batch per second keeps a full sync from starving foreground writes
	syncRateLimiter = rate.NewLimiter(rate.Limit(1), 1)
)

func IndicesFullSync() (err error) {
	defer func() {
		if ret := recover(); ret != nil {
			e, ok := ret.(error)
			if ok {
				err = e
			} else {
				err = fmt.Errorf("error on indices full sync: %v", ret)
			}
		}
	}()

	page := 1
	for {
		if err := syncRateLimiter.Wait(indexRobot.Context); err != nil {
			return err
		}

		items, err := work.LoadWorkItemsFunc(page, SyncBatchSize)
		if err != nil {
			logrus.Warnf("indices fully sync: error on retrieve items(page = %d, pageSize = %d): %v", page, SyncBatchSize, err)
			page++
			continue
		}

		if len(items) == 0 {
			logrus.Infof("indices fully sync: there are no more item to index")
			return nil // loop exit
		}

		if err := IndexItems(items, indexRobot); err != nil {
			logrus.Warnf("indices fully sync: error on index items(page = %d, pageSize = %d): %v", page, SyncBatchSize, err)
		}
		page++
	}
}

func IndexItemEventHandle(e *event.EventRecord) *event.EventHandleResult {
	if e.SourceType != work.EventSourceTypeWorkItem {
		return nil
	}

	item, err := work.DetailWorkItemFunc(e.Event.SourceDesc, indexRobot)
	if err != nil {
		return &event.EventHandleResult{
			Message:           fmt.Sprintf("detail item when index item %d, %v", e.Event.SourceId, err),
			HandlerIdentifier: ItemIndexEventHandlerName,
		}
	}
	// archived items stay searchable, so DELETED also reindexes
	if err := IndexItems([]work.WorkItem{*item}, indexRobot); err != nil {
		return &event.EventHandleResult{
			Message:           fmt.Sprintf("index item %d, %v", e.Event.SourceId, err),
			HandlerIdentifier: ItemIndexEventHandlerName,
		}
	}
	return &event.EventHandleResult{Success: true, HandlerIdentifier: ItemIndexEventHandlerName}
}

// DropItemIndex is only used from test helpers and manual operations.
func DropItemIndex(s *session.Session) error {
	return es.DropIndexFunc(ItemIndexName, s)
}
