package worker

import (
	"github.com/gammazero/workerpool"
)

// TaskRunner offloads the long-running operations (model loading, batch
// detection) onto a bounded pool so the command loop's goroutine never does
// the heavy lifting itself. Callers block until their task finishes.
type TaskRunner struct {
	wp *workerpool.WorkerPool
}

func NewTaskRunner(maxWorkers int) *TaskRunner {
	if maxWorkers <= 0 {
		maxWorkers = 1
	}

	return &TaskRunner{
		wp: workerpool.New(maxWorkers),
	}
}

// RunWait submits the task and blocks until it has run.
func (r *TaskRunner) RunWait(task func()) {
	if task == nil {
		return
	}
	r.wp.SubmitWait(task)
}

// Run submits the task without waiting.
func (r *TaskRunner) Run(task func()) {
	if task == nil {
		return
	}
	r.wp.Submit(task)
}

func (r *TaskRunner) Stop() {
	r.wp.Stop()
}
