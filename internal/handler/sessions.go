package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"edutrack/internal/attendance"
	"edutrack/internal/share"
)

type createSessionRequest struct {
	attendance.CreateSessionInput
	Latitude  *float64 `json:"latitude" binding:"omitempty,min=-90,max=90"`
	Longitude *float64 `json:"longitude" binding:"omitempty,min=-180,max=180"`
}

// CreateSession stores a new active session and returns its share link.
func (h *Handler) CreateSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	var pos *attendance.Point
	if req.Latitude != nil && req.Longitude != nil {
		pos = &attendance.Point{Latitude: *req.Latitude, Longitude: *req.Longitude}
	}

	sess, err := h.att.CreateSession(c.Request.Context(), req.CreateSessionInput, pos)
	if err != nil {
		h.fail(c, err, nil)
		return
	}
	link, err := share.Link(h.publicBaseURL, sess.ID)
	if err != nil {
		h.fail(c, err, nil)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"session": sess,
		"link":    link,
		"qr":      "/v1/sessions/" + sess.ID + "/qr.png",
	})
}

// ListSessions returns the session history, newest first.
func (h *Handler) ListSessions(c *gin.Context) {
	sessions, err := h.att.History(c.Request.Context())
	if err != nil {
		h.fail(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

func (h *Handler) GetSession(c *gin.Context) {
	sess, err := h.att.Session(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, sess)
}

// EndSession ends a session on instructor request.
func (h *Handler) EndSession(c *gin.Context) {
	sess, err := h.att.End(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, sess)
}

// SessionQR renders the attendance link as a PNG.
func (h *Handler) SessionQR(c *gin.Context) {
	sess, err := h.att.Session(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err, nil)
		return
	}
	png, err := share.QR(h.publicBaseURL, sess.ID, share.DefaultQRSize)
	if err != nil {
		h.fail(c, err, nil)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/png", png)
}
