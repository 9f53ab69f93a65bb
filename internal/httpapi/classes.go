package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"smartattend/internal/attendance"
	"smartattend/internal/audit"
	"smartattend/internal/auth"
	"smartattend/internal/qr"
)

func (h *handler) listClasses(c *gin.Context) {
	claims, _ := auth.ClaimsFrom(c)
	ctx := c.Request.Context()
	var (
		classes []attendance.Class
		err     error
	)
	if claims.Role == auth.RoleTeacher {
		classes, err = h.Classes.ForTeacher(ctx, claims.Subject)
	} else {
		classes, err = h.Classes.ForStudent(ctx, claims.Department, claims.Year)
	}
	if err != nil {
		writeError(c, err)
		return
	}
	if classes == nil {
		classes = []attendance.Class{}
	}
	c.JSON(http.StatusOK, gin.H{"classes": classes})
}

type renameRequest struct {
	Name string `json:"name" binding:"required"`
}

func (h *handler) renameClass(c *gin.Context) {
	var req renameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	claims, _ := auth.ClaimsFrom(c)
	class, err := h.Classes.Rename(c.Request.Context(), claims.Subject, c.Param("id"), req.Name)
	if err != nil {
		writeError(c, err)
		return
	}
	h.record(c, audit.ActionClassUpdated, class.ID)
	c.JSON(http.StatusOK, class)
}

func (h *handler) issueToken(c *gin.Context) {
	claims, _ := auth.ClaimsFrom(c)
	ctx := c.Request.Context()
	class, err := h.Classes.Owned(ctx, claims.Subject, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	tok, err := h.Tokens.Create(ctx, class.ID, claims.Subject)
	if err != nil {
		writeError(c, err)
		return
	}
	if h.Metrics != nil {
		h.Metrics.TokensIssued.Inc()
	}
	h.record(c, audit.ActionQRGenerated, class.ID)
	c.JSON(http.StatusCreated, gin.H{
		"token":  tok,
		"qr_url": "/v1/classes/" + class.ID + "/tokens/qr",
	})
}

func (h *handler) revokeToken(c *gin.Context) {
	claims, _ := auth.ClaimsFrom(c)
	ctx := c.Request.Context()
	class, err := h.Classes.Owned(ctx, claims.Subject, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	revoked, err := h.Tokens.Revoke(ctx, class.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	if revoked {
		if h.Metrics != nil {
			h.Metrics.TokensRevoked.Inc()
		}
		h.record(c, audit.ActionTokenRevoked, class.ID)
	}
	c.JSON(http.StatusOK, gin.H{"revoked": revoked})
}

func (h *handler) tokenQR(c *gin.Context) {
	claims, _ := auth.ClaimsFrom(c)
	ctx := c.Request.Context()
	class, err := h.Classes.Owned(ctx, claims.Subject, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	tok, err := h.Tokens.Active(ctx, class.ID)
	if errors.Is(err, attendance.ErrInvalidToken) {
		c.AbortWithStatusJSON(http.StatusNotFound, errorResponse{Error: "no active attendance code", Code: "not_found"})
		return
	}
	if err != nil {
		writeError(c, err)
		return
	}
	png, err := qr.Encode(qr.CheckinPayload(class.ID, tok.Secret), h.QRSize)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Header("X-Token-Expires-At", tok.ExpiresAt.UTC().Format(http.TimeFormat))
	c.Data(http.StatusOK, "image/png", png)
}
