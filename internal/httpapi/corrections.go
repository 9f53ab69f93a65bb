package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"smartattend/internal/attendance"
	"smartattend/internal/audit"
	"smartattend/internal/auth"
)

var errClassRequired = errors.New("class_id is required")

type correctionRequest struct {
	ClassID string `json:"class_id" binding:"required"`
	Day     string `json:"day" binding:"required"`
	Reason  string `json:"reason" binding:"max=500"`
}

func (h *handler) requestCorrection(c *gin.Context) {
	var req correctionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	claims, _ := auth.ClaimsFrom(c)
	ctx := c.Request.Context()
	if _, err := h.Classes.Enrolled(ctx, req.ClassID, claims.Department, claims.Year); err != nil {
		writeError(c, err)
		return
	}
	corr, err := h.Corrections.Request(ctx, claims.Subject, req.ClassID, req.Day, req.Reason)
	if err != nil {
		writeError(c, err)
		return
	}
	h.record(c, audit.ActionCorrectionRequested, corr.ID)
	c.JSON(http.StatusCreated, corr)
}

func (h *handler) pendingCorrections(c *gin.Context) {
	claims, _ := auth.ClaimsFrom(c)
	list, err := h.Corrections.Pending(c.Request.Context(), claims.Subject)
	if err != nil {
		writeError(c, err)
		return
	}
	if list == nil {
		list = []attendance.Correction{}
	}
	c.JSON(http.StatusOK, gin.H{"corrections": list})
}

func (h *handler) approveCorrection(c *gin.Context) {
	h.reviewCorrection(c, h.Corrections.Approve, audit.ActionCorrectionApproved)
}

func (h *handler) rejectCorrection(c *gin.Context) {
	h.reviewCorrection(c, h.Corrections.Reject, audit.ActionCorrectionRejected)
}

type reviewFunc func(ctx context.Context, teacherID, id string) (attendance.Correction, error)

func (h *handler) reviewCorrection(c *gin.Context, review reviewFunc, action audit.Action) {
	claims, _ := auth.ClaimsFrom(c)
	corr, err := review(c.Request.Context(), claims.Subject, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	h.record(c, action, corr.ID)
	c.JSON(http.StatusOK, corr)
}
