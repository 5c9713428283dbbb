// Package runner drives a coordinator from a loop. Jobs reach the loop
// through a mailbox and are handed to the coordinator one at a time, so
// other goroutines never touch the coordinator directly.
package runner

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"time"

	"github.com/sarchlab/i2cm/coordinator"
	"github.com/sarchlab/i2cm/timing"
	"github.com/sarchlab/i2cm/twowire"
)

// Coordinator is the part of a coordinator that the runner uses.
type Coordinator interface {
	timing.Ticker

	Name() string
	State() coordinator.State
	IsReady() bool
	HasReply() bool
	SubmitRequest(addr twowire.Address, msg []byte) (int, error)
	FetchResponse() (coordinator.Response, error)
}

// A Job is one request to run.
type Job struct {
	Address twowire.Address
	Message []byte

	// Done receives the outcome. It is called from the loop goroutine and
	// must not block. A nil Done discards the outcome.
	Done func(rsp coordinator.Response, err error)
}

// Snapshot describes the runner at the end of its last step.
type Snapshot struct {
	Name      string                `json:"name"`
	State     string                `json:"state"`
	Address   string                `json:"address,omitempty"`
	Queued    int                   `json:"queued"`
	Submitted uint64                `json:"submitted"`
	Completed uint64                `json:"completed"`
	Expired   uint64                `json:"expired"`
	Failed    uint64                `json:"failed"`
	Last      *coordinator.Response `json:"last,omitempty"`
}

// Runner feeds jobs into a coordinator and polls it.
type Runner struct {
	coord    Coordinator
	interval time.Duration
	mailbox  chan Job
	current  *Job

	lock     sync.Mutex
	snapshot Snapshot
}

// Enqueue puts a job into the mailbox. It blocks while the mailbox is full.
func (r *Runner) Enqueue(ctx context.Context, job Job) error {
	select {
	case r.mailbox <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Do runs one request and waits for its outcome. Another goroutine has to
// drive the runner meanwhile.
func (r *Runner) Do(
	ctx context.Context,
	addr twowire.Address,
	msg []byte,
) (coordinator.Response, error) {
	type outcome struct {
		rsp coordinator.Response
		err error
	}

	done := make(chan outcome, 1)
	job := Job{
		Address: addr,
		Message: msg,
		Done: func(rsp coordinator.Response, err error) {
			done <- outcome{rsp, err}
		},
	}

	err := r.Enqueue(ctx, job)
	if err != nil {
		return coordinator.Response{}, err
	}

	select {
	case o := <-done:
		return o.rsp, o.err
	case <-ctx.Done():
		return coordinator.Response{}, ctx.Err()
	}
}

// Idle reports whether no job is queued or running.
func (r *Runner) Idle() bool {
	return r.current == nil && len(r.mailbox) == 0
}

// Step runs one iteration of the loop and reports whether anything
// happened. It submits the next job if the coordinator is ready, polls the
// coordinator and delivers an outcome if there is one.
func (r *Runner) Step() bool {
	progress := false

	if r.current == nil && r.coord.IsReady() {
		select {
		case job := <-r.mailbox:
			r.submit(job)
			progress = true
		default:
		}
	}

	if r.coord.Tick() {
		progress = true
	}

	if r.current != nil && r.coord.HasReply() {
		r.deliver()
		progress = true
	}

	r.refresh()

	return progress
}

func (r *Runner) submit(job Job) {
	_, err := r.coord.SubmitRequest(job.Address, job.Message)
	if err != nil {
		r.lock.Lock()
		r.snapshot.Failed++
		r.lock.Unlock()

		finish(job, coordinator.Response{Address: job.Address}, err)

		return
	}

	r.current = &job

	r.lock.Lock()
	r.snapshot.Submitted++
	r.lock.Unlock()
}

func (r *Runner) deliver() {
	job := r.current
	r.current = nil

	rsp, err := r.coord.FetchResponse()

	r.lock.Lock()
	switch {
	case err == nil:
		r.snapshot.Completed++
	case errors.Is(err, coordinator.ErrTimedOut):
		r.snapshot.Expired++
	default:
		r.snapshot.Failed++
	}
	r.snapshot.Last = &rsp
	r.lock.Unlock()

	finish(*job, rsp, err)
}

func finish(job Job, rsp coordinator.Response, err error) {
	if job.Done != nil {
		job.Done(rsp, err)
	}
}

func (r *Runner) refresh() {
	r.lock.Lock()
	defer r.lock.Unlock()

	r.snapshot.Name = r.coord.Name()
	r.snapshot.State = r.coord.State().String()
	r.snapshot.Queued = len(r.mailbox)
	r.snapshot.Address = ""

	if r.current != nil {
		r.snapshot.Address = r.current.Address.String()
	}
}

// Snapshot returns a copy of the state at the end of the last step. It can
// be called from any goroutine.
func (r *Runner) Snapshot() Snapshot {
	r.lock.Lock()
	defer r.lock.Unlock()

	s := r.snapshot
	if s.Last != nil {
		last := *s.Last
		s.Last = &last
	}

	return s
}

// Run steps the runner until ctx is done and returns ctx.Err().
func (r *Runner) Run(ctx context.Context) error {
	if r.interval == 0 {
		return r.spin(ctx)
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.Step()
		}
	}
}

func (r *Runner) spin(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if !r.Step() {
			runtime.Gosched()
		}
	}
}
