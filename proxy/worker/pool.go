// Package worker provides an asynchronous worker pool for persisting
// finished chat answers using the provided storage.Driver and announcing
// them on the provided eventstream.Publisher.
//
// The pool decouples storage operations from the relay's streaming hot path
// so the client sees the agent's bytes without waiting on the database.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/hedge/pkg/agentstream"
	"github.com/papercomputeco/hedge/pkg/eventstream"
	"github.com/papercomputeco/hedge/pkg/logger"
	"github.com/papercomputeco/hedge/pkg/storage"
	"github.com/papercomputeco/hedge/pkg/utils"
)

var (
	defaultNumWorkers   uint = 3
	defaultJobQueueSize uint = 256
)

// titleLength bounds conversation titles derived from the first prompt.
const titleLength = 80

var (
	// ErrQueueFull is returned when a job is dropped because the queue is full.
	ErrQueueFull = errors.New("persistence queue full, job dropped")

	// ErrPoolClosed is returned for jobs submitted after Close.
	ErrPoolClosed = errors.New("persistence pool closed")

	// ErrNilCompletion is returned for a job without a completion.
	ErrNilCompletion = errors.New("nil completion")
)

// Job is a unit of work for the worker pool to execute against.
type Job struct {
	// Prompt is the user message that started the stream. It is stored
	// ahead of the answer when set.
	Prompt string

	// AskedAt is when the prompt was sent.
	AskedAt time.Time

	Completion *agentstream.Completion
}

// Config is the configuration options for the worker pool.
type Config struct {
	// Driver is the storage backend for persisting messages.
	Driver storage.Driver

	// Publisher announces persisted answers. Optional.
	Publisher eventstream.Publisher

	// Agent names the upstream agent in published events.
	Agent string

	// NumWorkers is the number of background workers in the pool.
	NumWorkers uint

	// QueueSize is the capacity of the buffered job channel (defaults to 256).
	QueueSize uint

	// Logger is the provided slog logger
	Logger *slog.Logger
}

// Pool processes storage jobs asynchronously via a worker pool.
type Pool struct {
	config *Config
	queue  chan Job
	wg     sync.WaitGroup
	logger *slog.Logger

	// mu guards closed so Enqueue never sends on a closed queue
	mu     sync.RWMutex
	closed bool
}

// NewPool creates a new Pool and starts its worker goroutines.
func NewPool(c *Config) (*Pool, error) {
	if c.Driver == nil {
		return nil, errors.New("storage driver is required")
	}

	if c.NumWorkers == 0 {
		c.NumWorkers = defaultNumWorkers
	}

	if c.QueueSize == 0 {
		c.QueueSize = defaultJobQueueSize
	}

	if c.NumWorkers > uint(math.MaxInt) {
		return nil, fmt.Errorf("NumWorkers %d exceeds max int", c.NumWorkers)
	}

	if c.Logger == nil {
		c.Logger = logger.Nop()
	}

	wp := &Pool{
		config: c,
		queue:  make(chan Job, c.QueueSize),
		logger: c.Logger,
	}

	wp.wg.Add(int(c.NumWorkers))
	for i := range c.NumWorkers {
		go wp.worker(i)
	}

	return wp, nil
}

// Enqueue submits a job for processing by the worker pool. It never
// blocks: a full queue drops the job and returns ErrQueueFull.
func (p *Pool) Enqueue(job Job) error {
	if job.Completion == nil {
		return ErrNilCompletion
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPoolClosed
	}

	select {
	case p.queue <- job:
		p.logger.Debug("job queued",
			"conversation_id", job.Completion.ConversationID,
			"reason", string(job.Completion.Reason),
		)
		return nil
	default:
		p.logger.Error("job not queued, queue full, job dropped",
			"conversation_id", job.Completion.ConversationID,
			"reason", string(job.Completion.Reason),
		)
		return ErrQueueFull
	}
}

// Persist implements agentstream.Sink for answers without a stored prompt.
func (p *Pool) Persist(_ context.Context, c agentstream.Completion) error {
	return p.Enqueue(Job{Completion: &c})
}

// Sink returns an agentstream.Sink that stores prompt ahead of the answer.
func (p *Pool) Sink(prompt string, askedAt time.Time) agentstream.Sink {
	return agentstream.SinkFunc(func(_ context.Context, c agentstream.Completion) error {
		return p.Enqueue(Job{
			Prompt:     prompt,
			AskedAt:    askedAt,
			Completion: &c,
		})
	})
}

// Close signals workers to stop and waits for in-flight jobs to drain.
// Call this during graceful shutdown after the relay HTTP server has stopped.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	p.wg.Wait()
}

// worker is the inner worker thread that continuously pulls jobs off the jobs queue
func (p *Pool) worker(id uint) {
	defer p.wg.Done()
	p.logger.Debug("worker started", "worker_id", id)

	for job := range p.queue {
		p.processJob(job)
	}

	p.logger.Debug("storage worker stopped", "worker_id", id)
}

// processJob stores the prompt and answer, then publishes the event.
func (p *Pool) processJob(job Job) {
	ctx := context.Background()

	msg, err := p.storeAnswer(ctx, job)
	if err != nil {
		p.logger.Error("async answer storage failed",
			"conversation_id", job.Completion.ConversationID,
			"error", err,
		)
		return
	}

	p.logger.Info("answer stored",
		"conversation_id", msg.ConversationID,
		"message_id", msg.ID,
		"status", msg.Status,
		"phases", len(msg.Thoughts),
	)

	if p.config.Publisher == nil {
		return
	}

	c := job.Completion
	event := eventstream.NewMessagePersistedEvent(
		eventstream.EventSource{
			Agent:                  p.config.Agent,
			ProviderConversationID: c.ProviderConversationID,
		},
		eventstream.MessageMeta{
			ConversationID: msg.ConversationID,
			MessageID:      msg.ID,
			Status:         msg.Status,
			Reason:         string(c.Reason),
			ContentLength:  len(msg.Content),
			PhaseCount:     len(msg.Thoughts),
			Tools:          msg.Tools,
			Error:          msg.Error,
			CompletedAt:    c.CompletedAt,
		},
	)
	if err := p.config.Publisher.PublishMessage(ctx, event); err != nil {
		p.logger.Warn("failed to publish message event",
			"conversation_id", msg.ConversationID,
			"event_id", event.EventID,
			"error", err,
		)
	}
}

// storeAnswer ensures the conversation exists and appends the prompt and
// the assistant answer in one write. Returns the stored answer.
func (p *Pool) storeAnswer(ctx context.Context, job Job) (*storage.Message, error) {
	c := job.Completion

	conversationID := c.ConversationID
	if conversationID == "" {
		conversationID = uuid.NewString()
		p.logger.Debug("assigned conversation id", "conversation_id", conversationID)
	}

	title := utils.Truncate(job.Prompt, titleLength)
	if title == "" {
		title = utils.Truncate(c.FinalText, titleLength)
	}

	if _, err := p.config.Driver.EnsureConversation(ctx, conversationID, title); err != nil {
		return nil, fmt.Errorf("ensuring conversation: %w", err)
	}

	var msgs []*storage.Message
	if job.Prompt != "" {
		askedAt := job.AskedAt
		if askedAt.IsZero() {
			askedAt = c.CompletedAt
		}
		msgs = append(msgs, &storage.Message{
			ID:             uuid.NewString(),
			ConversationID: conversationID,
			Role:           storage.RoleUser,
			Content:        job.Prompt,
			Status:         storage.StatusComplete,
			CreatedAt:      askedAt,
		})
	}

	// The prompt is only kept together with its answer.
	answer := AnswerMessage(conversationID, c)
	msgs = append(msgs, answer)
	if err := p.config.Driver.AppendMessages(ctx, msgs...); err != nil {
		return nil, fmt.Errorf("storing answer: %w", err)
	}

	return answer, nil
}

// AnswerMessage converts a completion into the assistant message stored
// for it.
func AnswerMessage(conversationID string, c *agentstream.Completion) *storage.Message {
	status := storage.StatusComplete
	errMsg := c.Error
	switch c.Reason {
	case agentstream.ReasonEOF:
		status = storage.StatusIncomplete
	case agentstream.ReasonTransportError:
		status = storage.StatusError
		if errMsg == "" {
			errMsg = c.TransportError
		}
	}

	return &storage.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Role:           storage.RoleAssistant,
		Content:        c.FinalText,
		Thoughts:       c.Phases,
		Tools:          c.Tools,
		Error:          errMsg,
		Status:         status,
		CreatedAt:      c.CompletedAt,
	}
}
