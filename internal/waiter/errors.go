package waiter

import (
	"fmt"
	"time"

	"github.com/sells-group/analysis-engine/internal/model"
)

// TaskFailedError indicates the remote task reported a terminal failure.
type TaskFailedError struct {
	Handle model.TaskHandle
	Detail string
}

func (e *TaskFailedError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("waiter: task %s failed: %s", e.Handle.ID, e.Detail)
	}
	return fmt.Sprintf("waiter: task %s failed", e.Handle.ID)
}

// TimeoutError indicates the task did not reach a terminal state within
// the wait budget.
type TimeoutError struct {
	Handle  model.TaskHandle
	Elapsed time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("waiter: task %s did not finish within %s (kind %s)", e.Handle.ID, e.Elapsed, e.Handle.Kind)
}
