package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"audiobook-forge/backend/internal/jobs"
	"audiobook-forge/backend/internal/pipeline"
)

func isTerminalEvent(ev jobs.Event) bool {
	switch ev.Type {
	case jobs.EventTypeResult, jobs.EventTypeError:
		return true
	case jobs.EventTypeStatus:
		return ev.Stage == pipeline.StageCancelled
	}
	return false
}

// StreamJobEvents replays buffered events for one job and then streams new
// ones as SSE. Disconnecting a stream never cancels the job; the client
// reconnects with Last-Event-ID (or ?since=) and catches up from the buffer.
func (s *Server) StreamJobEvents(c *gin.Context) {
	jobID := c.Param("jobID")
	job, ok := s.manager.Get(jobID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown job"})
		return
	}

	var last int64
	if v := c.GetHeader("Last-Event-ID"); v != "" {
		last, _ = strconv.ParseInt(v, 10, 64)
	} else if v := c.Query("since"); v != "" {
		last, _ = strconv.ParseInt(v, 10, 64)
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Flush()

	subID, wake := s.bus.Subscribe()
	defer s.bus.Unsubscribe(subID)

	send := func() (terminal bool) {
		for _, ev := range s.bus.Since(last) {
			last = ev.Seq
			if ev.JobID != jobID {
				continue
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			fmt.Fprintf(c.Writer, "id: %d\nevent: %s\ndata: %s\n\n", ev.Seq, ev.Type, payload)
			if isTerminalEvent(ev) {
				terminal = true
			}
		}
		c.Writer.Flush()
		return terminal
	}

	if send() {
		return
	}
	if job.Terminal() {
		return
	}

	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case <-wake:
			if send() {
				return
			}
		case <-heartbeat.C:
			fmt.Fprint(c.Writer, ": keep-alive\n\n")
			c.Writer.Flush()
		}
	}
}
