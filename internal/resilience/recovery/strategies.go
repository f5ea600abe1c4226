package recovery

import (
	"time"

	"github.com/vietddude/faultkeeper/internal/core/domain"
)

// CategoryResetter clears tracking for one category.
type CategoryResetter interface {
	Reset(category domain.Category)
}

// CategoryReset recovers a component by clearing the tracking of the category
// it reports under, so the category stops being suppressed.
type CategoryReset struct {
	Tracker  CategoryResetter
	Category domain.Category
}

// AttemptRecovery implements Recoverable.
func (r CategoryReset) AttemptRecovery() bool {
	if r.Tracker == nil {
		return false
	}
	r.Tracker.Reset(r.Category)
	return true
}

// WithTimeout bounds how long r may run. A strategy that does not finish in
// time counts as failed; it keeps running in the background.
func WithTimeout(r Recoverable, d time.Duration) Recoverable {
	return RecoverableFunc(func() bool {
		done := make(chan bool, 1)
		go func() {
			ok := false
			defer func() {
				_ = recover()
				done <- ok
			}()
			ok = r.AttemptRecovery()
		}()

		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case ok := <-done:
			return ok
		case <-timer.C:
			return false
		}
	})
}
