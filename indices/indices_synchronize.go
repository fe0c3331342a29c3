package indices

import (
	"context"
	"fmt"
	"sync"
	"time"

	"foodsafe/bizerror"
	"foodsafe/domain"
	"foodsafe/domain/capa"
	"foodsafe/event"
	"foodsafe/session"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

var (
	CapaIndexEventHandlerName = "capaIndexer"
	indexRobot                = &session.Session{
		Identity: session.Identity{ID: 10, Name: "index-robot"},
		Perms:    session.Permissions{session.SystemAdminRole},
		Context:  context.Background(),
	}

	lock    sync.Mutex
	running bool

	// one full sync schedule per ten seconds at most
	indexSyncLimiter = rate.NewLimiter(rate.Every(10*time.Second), 1)

	IndicesFullSyncFunc    = IndicesFullSync
	ScheduleNewSyncRunFunc = ScheduleNewSyncRun
)

// ScheduleNewSyncRun starts a full index sync in the background. The bool
// reports whether a run was actually scheduled: a run already in flight or a
// hit on the rate limiter yields false without error.
func ScheduleNewSyncRun(s *session.Session) (bool, error) {
	if s == nil || !s.Perms.HasRole(session.SystemAdminRole) {
		return false, bizerror.ErrForbidden
	}
	if !indexSyncLimiter.Allow() {
		return false, nil
	}

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
		capas, err := capa.LoadCapasFunc(page, SyncBatchSize)
		if err != nil {
			logrus.Warnf("indices full sync: error on retrieve capas(page = %d, pageSize = %d): %v", page, SyncBatchSize, err)
			page++
			continue
		}

		if len(capas) == 0 {
			logrus.Infof("indices full sync: there are no more capas to index")
			return nil // loop exit
		}

		if err := IndexCapas(capas, indexRobot); err != nil {
			logrus.Warnf("indices full sync: error on index capas(page = %d, pageSize = %d): %v", page, SyncBatchSize, err)
		}
		page++
	}
}

// CapaIndexEventHandle keeps the index in step with every committed change.
func CapaIndexEventHandle(e *event.EventRecord) *event.EventHandleResult {
	if e.SourceType != event.SourceTypeCapa {
		return nil
	}

	record, err := capa.DetailCapaFunc(e.SourceId, indexRobot)
	if err != nil {
		return &event.EventHandleResult{
			Message:           fmt.Sprintf("detail capa when index capa %d, %v", e.SourceId, err),
			HandlerIdentifier: CapaIndexEventHandlerName,
		}
	}
	if err := IndexCapas([]domain.Capa{*record}, indexRobot); err != nil {
		return &event.EventHandleResult{
			Message:           fmt.Sprintf("index capa %d, %v", e.SourceId, err),
			HandlerIdentifier: CapaIndexEventHandlerName,
		}
	}
	return &event.EventHandleResult{Success: true, HandlerIdentifier: CapaIndexEventHandlerName}
}
