package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"edutrack/internal/attendance"
	"edutrack/internal/dashboard"
	"edutrack/internal/model"
)

const sseHeartbeat = 15 * time.Second

type dashboardView struct {
	dashboard.Snapshot
	CheckIns attendance.Page[model.SessionStudent] `json:"checkIns"`
}

func newDashboardView(snap dashboard.Snapshot, page int) dashboardView {
	var rows []model.SessionStudent
	if snap.Session != nil {
		rows = snap.Session.Students
	}
	return dashboardView{Snapshot: snap, CheckIns: attendance.Paginate(rows, page, attendance.PageSize)}
}

// Dashboard returns the live snapshot with one page of the check-in table.
func (h *Handler) Dashboard(c *gin.Context) {
	snap := h.dash.Snapshot()
	if !h.dash.Ready() {
		var err error
		if snap, err = h.dash.Refresh(c.Request.Context()); err != nil {
			h.fail(c, err, nil)
			return
		}
	}
	c.JSON(http.StatusOK, newDashboardView(snap, pageParam(c)))
}

// DashboardStream pushes every new snapshot as a server-sent event.
func (h *Handler) DashboardStream(c *gin.Context) {
	ch, cancel := h.dash.Subscribe()
	defer cancel()

	page := pageParam(c)
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	heartbeat := time.NewTicker(sseHeartbeat)
	defer heartbeat.Stop()
	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			c.SSEvent("ping", time.Now().Unix())
		case snap := <-ch:
			c.SSEvent("snapshot", newDashboardView(snap, page))
		}
		c.Writer.Flush()
	}
}

// Health reports the state of each backing dependency.
func Health(checks map[string]func(c *gin.Context) bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := http.StatusOK
		body := gin.H{"status": "ok"}
		for name, check := range checks {
			ok := check(c)
			body[name] = ok
			if !ok {
				status = http.StatusServiceUnavailable
				body["status"] = "degraded"
			}
		}
		c.JSON(status, body)
	}
}
