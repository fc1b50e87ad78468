// Package keepalive runs a periodic liveness probe against a pgconn.Client,
// adapted from the teacher's internal/health.Checker: the same
// interval/ticker loop, consecutive-failure threshold, and status tracking,
// narrowed from "poll every tenant in a router" to "poll one connection".
package keepalive

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hexdbio/pgconn"
	"github.com/hexdbio/pgconn/metrics"
)

// Status is the liveness state of the watched connection.
type Status int

const (
	StatusUnknown Status = iota
	StatusHealthy
	StatusUnhealthy
)

func (s Status) String() string {
	switch s {
	case StatusHealthy:
		return "healthy"
	case StatusUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

// ConnHealth is the current liveness snapshot.
type ConnHealth struct {
	Status              Status
	LastCheck           time.Time
	ConsecutiveFailures int
	LastError           string
}

// Checker periodically runs "SELECT 1" against a Client and tracks
// consecutive failures, flipping to StatusUnhealthy once a threshold is
// crossed (mirroring the teacher's failureThreshold semantics exactly).
type Checker struct {
	client *pgconn.Client
	host   string
	log    *slog.Logger
	met    *metrics.Collector

	interval         time.Duration
	failureThreshold int
	queryTimeout     time.Duration

	mu     sync.RWMutex
	health ConnHealth

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewChecker builds a Checker for client. host labels the optional metrics
// collector met (nil disables metrics). log defaults to slog.Default.
func NewChecker(client *pgconn.Client, host string, interval time.Duration, failureThreshold int, queryTimeout time.Duration, met *metrics.Collector, log *slog.Logger) *Checker {
	if log == nil {
		log = slog.Default()
	}
	return &Checker{
		client:           client,
		host:             host,
		log:              log,
		met:              met,
		interval:         interval,
		failureThreshold: failureThreshold,
		queryTimeout:     queryTimeout,
		health:           ConnHealth{Status: StatusUnknown},
		stopCh:           make(chan struct{}),
	}
}

// Start begins periodic probing in a background goroutine.
func (c *Checker) Start() {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.run()
	}()
	c.log.Info("keepalive checker started", "host", c.host, "interval", c.interval, "threshold", c.failureThreshold)
}

// Stop stops the checker. Safe to call multiple times.
func (c *Checker) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
	})
	c.wg.Wait()
	c.log.Info("keepalive checker stopped", "host", c.host)
}

func (c *Checker) run() {
	c.checkOnce()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.checkOnce()
		case <-c.stopCh:
			return
		}
	}
}

func (c *Checker) checkOnce() {
	if c.client.Closed() {
		c.updateStatus(false, "connection closed")
		return
	}

	if c.met != nil {
		c.met.RequestStarted(c.host)
	}
	start := time.Now()
	err := c.ping()
	elapsed := time.Since(start)

	if c.met != nil {
		c.met.RequestFinished(c.host, "keepalive", elapsed)
	}
	if err != nil {
		c.updateStatus(false, err.Error())
		return
	}
	c.updateStatus(true, "")
}

// ping runs SELECT 1 via simple_query and drains it to completion.
func (c *Checker) ping() error {
	ctx, cancel := context.WithTimeout(context.Background(), c.queryTimeout)
	defer cancel()

	rows := c.client.SimpleQuery(ctx, "SELECT 1")
	for rows.NextResultSet() {
		for rows.NextRow() {
		}
	}
	return rows.Err()
}

func (c *Checker) updateStatus(healthy bool, errMsg string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.health.LastCheck = time.Now()

	if healthy {
		if c.health.ConsecutiveFailures > 0 {
			c.log.Info("connection recovered", "host", c.host, "failures", c.health.ConsecutiveFailures)
		}
		c.health.Status = StatusHealthy
		c.health.ConsecutiveFailures = 0
		c.health.LastError = ""
	} else {
		c.health.ConsecutiveFailures++
		c.health.LastError = errMsg
		if c.health.ConsecutiveFailures >= c.failureThreshold && c.health.Status != StatusUnhealthy {
			c.log.Warn("connection marked unhealthy", "host", c.host, "failures", c.health.ConsecutiveFailures, "error", errMsg)
			c.health.Status = StatusUnhealthy
		}
	}
}

// IsHealthy reports whether the connection is considered healthy (unknown
// status is treated as healthy, matching the teacher's "allow through"
// default for a connection not yet probed).
func (c *Checker) IsHealthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.health.Status != StatusUnhealthy
}

// GetStatus returns a snapshot of the current liveness state.
func (c *Checker) GetStatus() ConnHealth {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.health
}
