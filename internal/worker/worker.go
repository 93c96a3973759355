package worker

import (
	"context"
	"errors"
	"log"

	"iq-scope/internal/engine"
	"iq-scope/internal/model"
)

// ErrStopped is returned by Do and Submit once the worker has exited.
var ErrStopped = errors.New("worker: stopped")

type request struct {
	cmd   engine.Command
	reply chan error // nil for fire-and-forget
}

// Worker is the single goroutine that owns the sample path: before each
// batch is fed to the engine, every queued configuration command is
// applied.
type Worker struct {
	eng     *engine.Engine
	batches <-chan model.Batch
	cmds    chan request
	done    chan struct{}
}

// New creates a worker feeding eng from batches. queue is the command queue
// capacity.
func New(eng *engine.Engine, batches <-chan model.Batch, queue int) *Worker {
	return &Worker{
		eng:     eng,
		batches: batches,
		cmds:    make(chan request, queue),
		done:    make(chan struct{}),
	}
}

// Submit queues a command without waiting for it to be applied.
func (w *Worker) Submit(ctx context.Context, cmd engine.Command) error {
	select {
	case w.cmds <- request{cmd: cmd}:
		return nil
	case <-w.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Do queues a command and waits for its result.
func (w *Worker) Do(ctx context.Context, cmd engine.Command) error {
	reply := make(chan error, 1)
	select {
	case w.cmds <- request{cmd: cmd, reply: reply}:
	case <-w.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-reply:
		return err
	case <-w.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run processes commands and batches until ctx is done or the batch channel
// is closed.
func (w *Worker) Run(ctx context.Context) {
	defer close(w.done)
	log.Println("[Worker] started")
	for {
		select {
		case <-ctx.Done():
			log.Println("[Worker] stopped")
			return
		case r := <-w.cmds:
			w.apply(r)
			w.drain()
		case b, ok := <-w.batches:
			if !ok {
				log.Println("[Worker] sample source closed")
				return
			}
			w.drain()
			w.eng.Feed(b.Source, b.Samples)
		}
	}
}

// Done is closed when Run returns.
func (w *Worker) Done() <-chan struct{} { return w.done }

func (w *Worker) drain() {
	for {
		select {
		case r := <-w.cmds:
			w.apply(r)
		default:
			return
		}
	}
}

func (w *Worker) apply(r request) {
	err := r.cmd.Apply(w.eng)
	if err != nil {
		log.Printf("[Worker] %T: %v", r.cmd, err)
	}
	if r.reply != nil {
		r.reply <- err
	}
}
