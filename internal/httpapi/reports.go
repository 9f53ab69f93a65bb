package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"smartattend/internal/audit"
	"smartattend/internal/auth"
)

func (h *handler) standing(c *gin.Context) {
	claims, _ := auth.ClaimsFrom(c)
	s, err := h.Standing.Standing(c.Request.Context(), claims.Subject, claims.Department, claims.Year)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

// recentAudit shows teachers the whole log and students their own lines.
func (h *handler) recentAudit(c *gin.Context) {
	claims, _ := auth.ClaimsFrom(c)
	userID := claims.Subject
	if claims.Role == auth.RoleTeacher {
		userID = c.Query("user_id")
	}
	entries, err := h.Audit.Recent(c.Request.Context(), userID, queryInt(c, "limit", 10))
	if err != nil {
		writeError(c, err)
		return
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

func (h *handler) auditSummary(c *gin.Context) {
	summary, err := h.Audit.Summary(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"actions": summary})
}
