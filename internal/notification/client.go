package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
)

const (
	ChannelEmail = "email"
	ChannelSMS   = "sms"
)

var ErrQueueFull = errors.New("notification queue full")

type Message struct {
	Channel string `json:"-"`
	From    string `json:"from,omitempty"`
	To      string `json:"to"`
	Subject string `json:"subject,omitempty"`
	Body    string `json:"body"`
}

type Worker struct {
	ID         int
	WorkerPool chan chan Message
	JobChannel chan Message
	Logger     *slog.Logger
}

func NewWorker(id int, workerPool chan chan Message, logger *slog.Logger) *Worker {
	return &Worker{
		ID:         id,
		WorkerPool: workerPool,
		JobChannel: make(chan Message),
		Logger:     logger,
	}
}

func (w *Worker) Start(ctx context.Context, wg *sync.WaitGroup, processFunc func(Message)) {
	wg.Add(1)
	go func() {
		defer wg.Done()

		for {
			select {
			case w.WorkerPool <- w.JobChannel:
			case <-ctx.Done():
				w.Logger.Debug("notification worker shutting down", "worker_id", w.ID)
				return
			}

			select {
			case msg := <-w.JobChannel:
				w.Logger.Debug("worker delivering notification", "worker_id", w.ID, "channel", msg.Channel)
				processFunc(msg)
			case <-ctx.Done():
				w.Logger.Debug("notification worker shutting down", "worker_id", w.ID)
				return
			}
		}
	}()
}

type Config struct {
	EmailAPIURL  string
	SMSAPIURL    string
	APIKey       string
	FromAddress  string
	Timeout      time.Duration
	MaxWorkers   int
	JobQueueSize int
	// MaxRetries bounds redelivery of a message after a network error or 5xx.
	MaxRetries uint64
	RetryDelay time.Duration
}

// Client posts email and SMS messages to HTTP provider APIs from a pool of
// background workers. Sending never blocks the caller.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger

	jobQueue   chan Message
	workerPool chan chan Message
	maxWorkers int
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	pending    sync.WaitGroup
	once       sync.Once
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())

	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 4
	}
	if cfg.JobQueueSize <= 0 {
		cfg.JobQueueSize = 100
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 500 * time.Millisecond
	}

	client := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
		maxWorkers: cfg.MaxWorkers,
		jobQueue:   make(chan Message, cfg.JobQueueSize),
		workerPool: make(chan chan Message, cfg.MaxWorkers),
		ctx:        ctx,
		cancel:     cancel,
	}

	client.startWorkerPool()

	return client
}

func (c *Client) startWorkerPool() {
	c.once.Do(func() {
		for i := 0; i < c.maxWorkers; i++ {
			worker := NewWorker(i, c.workerPool, c.logger)
			worker.Start(c.ctx, &c.wg, c.deliver)
		}

		c.wg.Add(1)
		go c.dispatch()

		c.logger.Info("notification worker pool started",
			"max_workers", c.maxWorkers,
			"queue_size", cap(c.jobQueue))
	})
}

func (c *Client) dispatch() {
	defer c.wg.Done()

	for {
		select {
		case msg := <-c.jobQueue:
			select {
			case jobChannel := <-c.workerPool:
				select {
				case jobChannel <- msg:
				case <-c.ctx.Done():
					c.logger.Info("notification dispatcher shutting down")
					return
				}
			case <-c.ctx.Done():
				c.logger.Info("notification dispatcher shutting down")
				return
			}
		case <-c.ctx.Done():
			c.logger.Info("notification dispatcher shutting down")
			return
		}
	}
}

// Drain waits until every queued message has been attempted or ctx ends.
func (c *Client) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops the workers. Messages still queued are dropped.
func (c *Client) Shutdown() {
	c.logger.Info("shutting down notification client", "pending", len(c.jobQueue))
	c.cancel()
	c.wg.Wait()
	c.logger.Info("notification client shutdown complete")
}

func (c *Client) SendEmail(to, subject, body string) error {
	if c.cfg.EmailAPIURL == "" {
		c.logger.Debug("email api not configured, skipping", "to", to)
		return nil
	}
	return c.enqueue(Message{Channel: ChannelEmail, From: c.cfg.FromAddress, To: to, Subject: subject, Body: body})
}

func (c *Client) SendSMS(to, body string) error {
	if c.cfg.SMSAPIURL == "" {
		c.logger.Debug("sms api not configured, skipping", "to", to)
		return nil
	}
	return c.enqueue(Message{Channel: ChannelSMS, To: to, Body: body})
}

func (c *Client) enqueue(msg Message) error {
	if msg.To == "" {
		return fmt.Errorf("%s notification has no recipient", msg.Channel)
	}
	c.pending.Add(1)
	select {
	case c.jobQueue <- msg:
		c.logger.Debug("notification queued", "channel", msg.Channel, "queue_length", len(c.jobQueue))
		return nil
	default:
		c.pending.Done()
		c.logger.Warn("notification queue full, dropping message",
			"channel", msg.Channel,
			"queue_capacity", cap(c.jobQueue))
		return ErrQueueFull
	}
}

func (c *Client) deliver(msg Message) {
	defer c.pending.Done()

	url := c.cfg.EmailAPIURL
	if msg.Channel == ChannelSMS {
		url = c.cfg.SMSAPIURL
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		c.logger.Error("failed to marshal notification", "error", err, "channel", msg.Channel)
		return
	}

	backoff := retry.WithMaxRetries(c.cfg.MaxRetries, retry.NewConstant(c.cfg.RetryDelay))
	err = retry.Do(c.ctx, backoff, func(ctx context.Context) error {
		return c.post(ctx, url, payload)
	})
	if err != nil {
		c.logger.Error("notification delivery failed", "error", err, "channel", msg.Channel, "to", msg.To)
		return
	}

	c.logger.Info("notification delivered", "channel", msg.Channel, "to", msg.To)
}

func (c *Client) post(ctx context.Context, url string, payload []byte) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("X-API-Key", c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return retry.RetryableError(fmt.Errorf("request failed: %w", err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= http.StatusInternalServerError:
		return retry.RetryableError(fmt.Errorf("provider returned status %d", resp.StatusCode))
	case resp.StatusCode >= http.StatusBadRequest:
		return fmt.Errorf("provider returned status %d", resp.StatusCode)
	}
	return nil
}
