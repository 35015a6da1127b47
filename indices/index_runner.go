package indices

import (
	cron "github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// StartCron schedules a nightly full reindex as the safety net behind the
// event driven incremental indexing.
func StartCron() {
	crontab := cron.New(cron.WithSeconds())
	crontab.AddFunc("0 0 23 * * ?", func() {
		if err := IndicesFullSync(); err != nil {
			logrus.Errorf("scheduled indices full sync failed: %v", err)
		}
	})
	crontab.Start()
}
