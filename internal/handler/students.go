package handler

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const maxPhotoBytes = 5 << 20

// ListStudents is the records page: search by name, matric or department,
// five rows per page.
func (h *Handler) ListStudents(c *gin.Context) {
	page, err := h.att.Students(c.Request.Context(), c.Query("q"), pageParam(c))
	if err != nil {
		h.fail(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, page)
}

type enrollDescriptorRequest struct {
	Descriptor []float32 `json:"descriptor" binding:"required,min=1"`
}

// Enroll stores a reference face for a student, either from an uploaded
// photo (multipart field "photo") or from a client-computed descriptor.
func (h *Handler) Enroll(c *gin.Context) {
	ctx := c.Request.Context()
	st, err := h.att.Student(ctx, c.Param("id"))
	if err != nil {
		h.fail(c, err, nil)
		return
	}

	if strings.HasPrefix(c.ContentType(), "multipart/") {
		file, header, err := c.Request.FormFile("photo")
		if err != nil {
			badRequest(c, errors.New("photo file is required"))
			return
		}
		defer file.Close()
		data, err := io.ReadAll(io.LimitReader(file, maxPhotoBytes+1))
		if err != nil {
			h.fail(c, err, nil)
			return
		}
		if len(data) > maxPhotoBytes {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{"error": "photo too large"})
			return
		}
		tpl, err := h.enroll.EnrollImage(ctx, st.ID, data, header.Filename)
		if err != nil {
			h.fail(c, err, nil)
			return
		}
		c.JSON(http.StatusCreated, tpl)
		return
	}

	var req enrollDescriptorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	tpl, err := h.enroll.EnrollDescriptor(ctx, st.ID, req.Descriptor)
	if err != nil {
		h.fail(c, err, nil)
		return
	}
	c.JSON(http.StatusCreated, tpl)
}

// Enrollments lists a student's reference faces.
func (h *Handler) Enrollments(c *gin.Context) {
	ctx := c.Request.Context()
	st, err := h.att.Student(ctx, c.Param("id"))
	if err != nil {
		h.fail(c, err, nil)
		return
	}
	templates, err := h.enroll.Templates(ctx, st.ID)
	if err != nil {
		h.fail(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"studentId": st.ID, "templates": templates})
}

// ResetEnrollments drops every reference face of a student.
func (h *Handler) ResetEnrollments(c *gin.Context) {
	ctx := c.Request.Context()
	st, err := h.att.Student(ctx, c.Param("id"))
	if err != nil {
		h.fail(c, err, nil)
		return
	}
	if err := h.enroll.Reset(ctx, st.ID); err != nil {
		h.fail(c, err, nil)
		return
	}
	c.Status(http.StatusNoContent)
}
