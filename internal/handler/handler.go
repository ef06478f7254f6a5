// Package handler exposes the attendance service over HTTP.
package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"

	"edutrack/internal/attendance"
	"edutrack/internal/auth"
	"edutrack/internal/biometric"
	"edutrack/internal/dashboard"
	"edutrack/internal/storeclient"
	"edutrack/internal/wizard"
)

type Handler struct {
	att           *attendance.Service
	wiz           *wizard.Service
	enroll        *biometric.Enroller
	dash          *dashboard.Poller
	publicBaseURL string
	log           *log.Logger
}

func New(att *attendance.Service, wiz *wizard.Service, enroll *biometric.Enroller, dash *dashboard.Poller, publicBaseURL string, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Handler{att: att, wiz: wiz, enroll: enroll, dash: dash, publicBaseURL: publicBaseURL, log: logger}
}

// User-facing messages for business-rule failures.
const (
	msgSessionNotFound = "Session not found. Check the code and try again."
	msgSessionEnded    = "This session has already ended."
	msgSessionExpired  = "This session has expired."
	msgInvalidCode     = "Please enter a session code."
)

// fail maps service errors onto HTTP responses. extra fields are merged into
// the body so clients can re-render state alongside the error.
func (h *Handler) fail(c *gin.Context, err error, extra gin.H) {
	status, msg := classify(err)
	if status >= http.StatusInternalServerError {
		h.log.Error("request failed", "method", c.Request.Method, "path", c.FullPath(), "err", err)
	}
	body := gin.H{"error": msg}
	var verr *attendance.ValidationError
	if errors.As(err, &verr) {
		body["fields"] = verr.Fields
	}
	for k, v := range extra {
		body[k] = v
	}
	c.AbortWithStatusJSON(status, body)
}

func classify(err error) (int, string) {
	var verr *attendance.ValidationError
	var serr *storeclient.StatusError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, "invalid input"
	case errors.Is(err, attendance.ErrInvalidCode):
		return http.StatusBadRequest, msgInvalidCode
	case errors.Is(err, attendance.ErrSessionNotFound):
		return http.StatusNotFound, msgSessionNotFound
	case errors.Is(err, attendance.ErrStudentNotFound):
		return http.StatusNotFound, "Student not found."
	case errors.Is(err, wizard.ErrNotFound):
		return http.StatusNotFound, "Check-in not found or expired. Please start again."
	case errors.Is(err, storeclient.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, attendance.ErrSessionExpired):
		return http.StatusGone, msgSessionExpired
	case errors.Is(err, attendance.ErrSessionEnded):
		return http.StatusGone, msgSessionEnded
	case errors.Is(err, wizard.ErrDigitsMismatch):
		return http.StatusUnprocessableEntity, wizard.DigitsMismatchMessage
	case errors.Is(err, wizard.ErrVerification):
		return http.StatusUnprocessableEntity, wizard.VerificationMessage
	case errors.Is(err, wizard.ErrInvalidTransition):
		return http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, biometric.ErrNotEnrolled):
		return http.StatusUnprocessableEntity, "No enrolled face for this student. Use the manual verification instead."
	case errors.Is(err, biometric.ErrEmptyDescriptor), errors.Is(err, biometric.ErrDescriptorMismatch):
		return http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrIssuerMismatch):
		return http.StatusUnprocessableEntity, "invalid proof signature"
	case errors.Is(err, wizard.ErrSubmitInProgress):
		return http.StatusConflict, "Submission already in progress."
	case errors.Is(err, wizard.ErrTooFar):
		return http.StatusForbidden, "You are too far from the class location to check in."
	case errors.Is(err, biometric.ErrUploadUnavailable):
		return http.StatusServiceUnavailable, "image storage not configured"
	case errors.As(err, &serr), errors.Is(err, storeclient.ErrUnavailable):
		return http.StatusBadGateway, "attendance store unavailable"
	}
	return http.StatusInternalServerError, "internal error"
}

// badRequest reports a malformed request body.
func badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

func pageParam(c *gin.Context) int {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		return 1
	}
	return page
}
