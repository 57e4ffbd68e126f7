package storage

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// ObjectDeleter removes a stored object by the URL Save returned for it.
type ObjectDeleter interface {
	Delete(ctx context.Context, location string) error
}

// CleanerConfig controls the concurrency characteristics of the cleaner.
type CleanerConfig struct {
	QueueSize int
	Workers   int
}

// Cleaner deletes replaced or orphaned media blobs in the background so
// request handlers never wait on object-store round trips.
type Cleaner struct {
	deleter ObjectDeleter
	logger  *slog.Logger

	jobs   chan string
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

var (
	errCleanerClosed = errors.New("blob cleaner closed")
	errCleanerFull   = errors.New("blob cleaner queue full")
)

const cleanerJobTimeout = 30 * time.Second

// NewCleaner constructs a background worker pool that deletes blobs.
func NewCleaner(deleter ObjectDeleter, cfg CleanerConfig, logger *slog.Logger) *Cleaner {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 16
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	c := &Cleaner{
		deleter: deleter,
		logger:  logger,
		jobs:    make(chan string, cfg.QueueSize),
		ctx:     ctx,
		cancel:  cancel,
	}

	c.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go c.worker()
	}

	return c
}

// Enqueue schedules deletion of the blob at the given location. It never
// blocks: when the queue is full the job is dropped and an error returned so
// the caller can log the leaked blob.
func (c *Cleaner) Enqueue(ctx context.Context, location string) error {
	if strings.TrimSpace(location) == "" {
		return nil
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.ctx.Done():
		return errCleanerClosed
	default:
	}

	select {
	case c.jobs <- location:
		return nil
	default:
		return errCleanerFull
	}
}

// Shutdown waits for the worker pool to drain outstanding jobs.
func (c *Cleaner) Shutdown(ctx context.Context) error {
	c.once.Do(func() {
		c.cancel()
		close(c.jobs)
	})

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

func (c *Cleaner) worker() {
	defer c.wg.Done()

	for location := range c.jobs {
		c.handleJob(location)
	}
}

func (c *Cleaner) handleJob(location string) {
	if c.deleter == nil {
		c.logger.Error("blob cleaner missing deleter", "location", location)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), cleanerJobTimeout)
	defer cancel()

	if err := c.deleter.Delete(ctx, location); err != nil {
		c.logger.Error("delete blob", "location", location, "error", err)
		return
	}

	c.logger.Debug("blob deleted", "location", location)
}
