package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"edutrack/internal/attendance"
	"edutrack/internal/auth"
	"edutrack/internal/biometric"
)

type joinRequest struct {
	Code string `json:"code"`
}

// Join resolves a typed session code.
func (h *Handler) Join(c *gin.Context) {
	var req joinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	target, err := h.att.ResolveCode(c.Request.Context(), req.Code)
	if err != nil {
		h.fail(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, target)
}

type scanRequest struct {
	Payload string `json:"payload"`
}

// JoinScan resolves a scanned QR payload. An empty body stands in for the
// placeholder scanner.
func (h *Handler) JoinScan(c *gin.Context) {
	var req scanRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, err)
		return
	}
	target, err := h.att.ResolveScan(c.Request.Context(), req.Payload)
	if err != nil {
		h.fail(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, target)
}

// Attend loads the session page: session, roster and countdown.
func (h *Handler) Attend(c *gin.Context) {
	view, err := h.att.Load(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"session":          view.Session,
		"roster":           view.Roster,
		"deadline":         view.Deadline,
		"remainingSeconds": view.RemainingSeconds,
		"countdown":        attendance.FormatCountdown(view.RemainingSeconds),
	})
}

type positionRequest struct {
	Latitude  *float64 `json:"latitude" binding:"omitempty,min=-90,max=90"`
	Longitude *float64 `json:"longitude" binding:"omitempty,min=-180,max=180"`
}

func (r positionRequest) point() *attendance.Point {
	if r.Latitude == nil || r.Longitude == nil {
		return nil
	}
	return &attendance.Point{Latitude: *r.Latitude, Longitude: *r.Longitude}
}

// StartWizard opens a check-in for the session, optionally with the device
// position for the proximity check.
func (h *Handler) StartWizard(c *gin.Context) {
	var req positionRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, err)
		return
	}
	w, err := h.wiz.Start(c.Request.Context(), c.Param("id"), req.point())
	if err != nil {
		h.fail(c, err, nil)
		return
	}
	c.JSON(http.StatusCreated, w)
}

func (h *Handler) GetWizard(c *gin.Context) {
	w, err := h.wiz.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, w)
}

type selectRequest struct {
	StudentID string `json:"studentId" binding:"required"`
}

func (h *Handler) SelectStudent(c *gin.Context) {
	var req selectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	w, err := h.wiz.Select(c.Request.Context(), c.Param("id"), req.StudentID)
	h.wizardReply(c, w, err)
}

type verifyRequest struct {
	Digits string `json:"digits" binding:"required"`
}

func (h *Handler) VerifyDigits(c *gin.Context) {
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	w, err := h.wiz.Verify(c.Request.Context(), c.Param("id"), req.Digits)
	h.wizardReply(c, w, err)
}

func (h *Handler) Back(c *gin.Context) {
	w, err := h.wiz.Back(c.Request.Context(), c.Param("id"))
	h.wizardReply(c, w, err)
}

// UpdateLocation is the location watch: each new position re-runs the
// proximity check.
func (h *Handler) UpdateLocation(c *gin.Context) {
	var req attendance.Point
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	w, err := h.wiz.Locate(c.Request.Context(), c.Param("id"), req)
	h.wizardReply(c, w, err)
}

// BiometricSample feeds one live detection to the matcher.
func (h *Handler) BiometricSample(c *gin.Context) {
	var req biometric.Sample
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	w, res, err := h.wiz.Sample(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		h.fail(c, err, gin.H{"wizard": w})
		return
	}
	c.JSON(http.StatusOK, gin.H{"wizard": w, "match": res})
}

type simulateRequest struct {
	Success *bool `json:"success" binding:"required"`
}

// BiometricSimulate is the fallback when no camera or enrollment exists.
func (h *Handler) BiometricSimulate(c *gin.Context) {
	var req simulateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	w, err := h.wiz.Simulate(c.Request.Context(), c.Param("id"), *req.Success)
	h.wizardReply(c, w, err)
}

// Proof downloads the signed attendance receipt.
func (h *Handler) Proof(c *gin.Context) {
	p, err := h.wiz.Proof(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err, nil)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+p.FileName()+`"`)
	c.JSON(http.StatusOK, p)
}

type verifyProofRequest struct {
	Signature string `json:"signature" binding:"required"`
}

// VerifyProof checks a receipt signature.
func (h *Handler) VerifyProof(c *gin.Context) {
	var req verifyProofRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	claims, err := h.wiz.VerifyProof(req.Signature)
	if err != nil {
		h.fail(c, err, gin.H{"valid": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": true, "claims": proofView(claims)})
}

func proofView(cl auth.ProofClaims) gin.H {
	out := gin.H{"sessionId": cl.SessionID, "studentId": cl.StudentID, "sessionCode": cl.SessionCode}
	if cl.IssuedAt != nil {
		out["time"] = cl.IssuedAt.Time
	}
	return out
}

func (h *Handler) wizardReply(c *gin.Context, w any, err error) {
	if err != nil {
		h.fail(c, err, gin.H{"wizard": w})
		return
	}
	c.JSON(http.StatusOK, w)
}
