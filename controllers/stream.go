package controllers

import (
	"context"
	"net/http"

	"whybuy-dashboard/poller"

	"github.com/gin-gonic/gin"
)

// latest is a one-slot mailbox that keeps only the newest value.
type latest[T any] struct {
	ch chan T
}

func newLatest[T any]() latest[T] {
	return latest[T]{ch: make(chan T, 1)}
}

// offer replaces any value the reader has not taken yet. Single producer.
func (l latest[T]) offer(v T) {
	for {
		select {
		case l.ch <- v:
			return
		default:
		}
		select {
		case <-l.ch:
		default:
		}
	}
}

// stream runs poll under key for as long as the client stays connected and
// writes each value it produces as an SSE event. A newer stream for the same
// key ends this one.
func stream[T any](c *gin.Context, polls *poller.Scheduler, key poller.Key, d Deps, event string, poll func(ctx context.Context) (T, bool)) {
	box := newLatest[T]()
	task := polls.Start(c.Request.Context(), key, d.interval(), func(ctx context.Context) {
		if v, ok := poll(ctx); ok {
			box.offer(v)
		}
	})

	h := c.Writer.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	for {
		select {
		case <-task.Done():
			return
		case v := <-box.ch:
			c.SSEvent(event, v)
			c.Writer.Flush()
		}
	}
}
