package auth

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// mailJob is a queued code delivery. The plaintext code lives only here
// and in the sender; it is never persisted or logged.
type mailJob struct {
	Email   string
	Purpose CodePurpose
	Code    string
}

const mailSendTimeout = 10 * time.Second

// mailDispatcher decouples code delivery from request handling. Flows
// enqueue and return immediately; a single worker goroutine drives the
// configured CodeSender. Delivery failures are counted and audited but
// never surfaced to the requester, so a slow or broken mail provider
// cannot fail a sign-up or reset request.
type mailDispatcher struct {
	cfg       MailConfig
	sender    CodeSender
	onFailure func(job mailJob, err error)
	ch        chan mailJob
	done      chan struct{}
	wg        sync.WaitGroup
	dropped   atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once
}

func newMailDispatcher(cfg MailConfig, sender CodeSender, onFailure func(mailJob, error)) *mailDispatcher {
	if sender == nil {
		return nil
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1
	}

	d := &mailDispatcher{
		cfg:       cfg,
		sender:    sender,
		onFailure: onFailure,
		ch:        make(chan mailJob, cfg.QueueSize),
		done:      make(chan struct{}),
	}

	d.wg.Add(1)
	go d.run()

	return d
}

func (d *mailDispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case job := <-d.ch:
			d.deliver(job)
		case <-d.done:
			// Drain whatever already made it into the queue.
			for {
				select {
				case job := <-d.ch:
					d.deliver(job)
				default:
					return
				}
			}
		}
	}
}

func (d *mailDispatcher) deliver(job mailJob) {
	ctx, cancel := context.WithTimeout(context.Background(), mailSendTimeout)
	defer cancel()

	if err := d.sender.SendCode(ctx, job.Email, job.Purpose, job.Code); err != nil {
		if d.onFailure != nil {
			d.onFailure(job, err)
		}
	}
}

// Enqueue queues a delivery and reports whether the job was accepted.
// With DropIfFull set the job is discarded when the queue is full;
// otherwise Enqueue blocks until there is room.
func (d *mailDispatcher) Enqueue(job mailJob) bool {
	if d == nil || d.closed.Load() {
		return false
	}

	if d.cfg.DropIfFull {
		select {
		case d.ch <- job:
			return true
		case <-d.done:
			return false
		default:
			d.dropped.Add(1)
			return false
		}
	}

	select {
	case d.ch <- job:
		return true
	case <-d.done:
		return false
	}
}

// Close stops the worker after draining queued jobs. Safe to call more
// than once.
func (d *mailDispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.done)
		d.wg.Wait()
	})
}

func (d *mailDispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
