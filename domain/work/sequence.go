package work

import (
	"fmt"
	"time"

	"leadflow/bizerror"

	"github.com/cenkalti/backoff/v4"
	"github.com/jinzhu/gorm"
	"github.com/sirupsen/logrus"
)

// SequenceCounter holds the last issued number of one (config, period)
// bucket. Increments go through a locking read plus a conditional update so
// concurrent issuers never observe the same value.
type SequenceCounter struct {
	ConfigUID string `json:"config" gorm:"primary_key"`
	Period    string `json:"period" gorm:"primary_key"`

	Counter int64 `json:"counter"`
}

func (r *SequenceCounter) TableName() string {
	return "sequence_counters"
}

var (
	NextItemIDFunc = NextItemID

	sequenceMaxRetries uint64 = 8
)

const sequencePeriodLayout = "200601"

func SequencePeriod(t time.Time) string {
	return t.Format(sequencePeriodLayout)
}

// NextItemID issues the next item id of the period bucket, formatted as
// PREFIX-PERIOD-NNNNN. An id is consumed even when the caller's transaction
// later fails; uniqueness matters more than density.
func NextItemID(configUID, prefix, period string, tx *gorm.DB) (string, error) {
	var issued int64

	op := func() error {
		counter := SequenceCounter{}
		query := tx.Set("gorm:query_option", "FOR UPDATE").
			Where(&SequenceCounter{ConfigUID: configUID, Period: period}).First(&counter)
		if err := query.Error; err == gorm.ErrRecordNotFound {
			// tolerate the duplicate-key of a lost creation race, the next
			// attempt picks the winner's row up
			if err := tx.Create(&SequenceCounter{ConfigUID: configUID, Period: period, Counter: 0}).Error; err != nil {
				logrus.Warnf("sequence counter init for %s/%s: %v", configUID, period, err)
			}
			return fmt.Errorf("sequence counter of %s/%s is not ready", configUID, period)
		} else if err != nil {
			return err
		}

		ret := tx.Model(&SequenceCounter{}).
			Where(&SequenceCounter{ConfigUID: configUID, Period: period}).
			Where("counter = ?", counter.Counter).
			Update("counter", counter.Counter+1)
		if ret.Error != nil {
			return ret.Error
		}
		if ret.RowsAffected != 1 {
			return fmt.Errorf("sequence counter of %s/%s was concurrently modified", configUID, period)
		}

		issued = counter.Counter + 1
		return nil
	}

	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), sequenceMaxRetries)
	if err := backoff.Retry(op, policy); err != nil {
		logrus.Errorf("sequence generation for %s/%s exhausted retries: %v", configUID, period, err)
		return "", fmt.Errorf("%w: %v", bizerror.ErrStoreUnavailable, err)
	}

	return fmt.Sprintf("%s-%s-%05d", prefix, period, issued), nil
}
