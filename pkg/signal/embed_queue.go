package signal

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/inquest-app/inquest/pkg/embed"
)

// VectorSink receives a computed embedding for a persisted signal.
type VectorSink func(ctx context.Context, signalID string, vec []float32) error

// EmbedQueue schedules embedding generation for newly persisted signals.
// Submission is fire-and-forget: the turn never waits on embedding work,
// and a full queue drops the job with a log line rather than blocking.
type EmbedQueue struct {
	embedder embed.Embedder
	sink     VectorSink
	log      *slog.Logger
	timeout  time.Duration

	jobs chan embedJob
	wg   sync.WaitGroup

	closeOnce sync.Once
}

type embedJob struct {
	id   string
	text string
}

// NewEmbedQueue starts a queue with a single worker. size bounds the number
// of pending jobs.
func NewEmbedQueue(e embed.Embedder, sink VectorSink, size int, log *slog.Logger) *EmbedQueue {
	if log == nil {
		log = slog.Default()
	}
	q := &EmbedQueue{
		embedder: e,
		sink:     sink,
		log:      log,
		timeout:  30 * time.Second,
		jobs:     make(chan embedJob, size),
	}
	q.wg.Add(1)
	go q.run()
	return q
}

// Submit enqueues an embedding job. Never blocks.
func (q *EmbedQueue) Submit(signalID, text string) {
	select {
	case q.jobs <- embedJob{id: signalID, text: text}:
	default:
		q.log.Warn("embed queue full, dropping job", "signal", signalID)
	}
}

// Close stops accepting jobs and waits for in-flight work to finish.
func (q *EmbedQueue) Close() {
	q.closeOnce.Do(func() { close(q.jobs) })
	q.wg.Wait()
}

func (q *EmbedQueue) run() {
	defer q.wg.Done()
	for job := range q.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
		vec, err := q.embedder.Embed(ctx, job.text)
		if err != nil {
			q.log.Warn("signal embedding failed", "signal", job.id, "error", err)
			cancel()
			continue
		}
		if err := q.sink(ctx, job.id, vec); err != nil {
			q.log.Warn("signal embedding store failed", "signal", job.id, "error", err)
		}
		cancel()
	}
}
