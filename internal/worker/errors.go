// Package worker provides the asynchronous execution facility that runs
// reconciliation units independently of the webhook request cycle.
package worker

import "errors"

var (
	ErrPoolAlreadyRunning = errors.New("worker pool is already running")
	ErrPoolNotRunning     = errors.New("worker pool is not running")
	ErrQueueFull          = errors.New("worker pool queue is full")
)
