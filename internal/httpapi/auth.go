package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"smartattend/internal/audit"
	"smartattend/internal/auth"
)

type loginRequest struct {
	Email    string    `json:"email" binding:"required,email"`
	Password string    `json:"password" binding:"required"`
	Role     auth.Role `json:"role" binding:"omitempty,oneof=teacher student"`
}

func (h *handler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	sess, err := h.Auth.SignIn(c.Request.Context(), req.Email, req.Password, req.Role)
	if err != nil {
		writeError(c, err)
		return
	}
	if h.Recorder != nil {
		h.Recorder.Record(c.Request.Context(), audit.Entry{
			UserID: sess.Identity.UserID,
			Role:   string(sess.Identity.Role),
			Action: audit.ActionLoggedIn,
		})
	}
	c.JSON(http.StatusOK, sess)
}

type logoutRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

func (h *handler) logout(c *gin.Context) {
	var req logoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	id, err := h.Auth.SignOut(c.Request.Context(), req.RefreshToken)
	if err != nil {
		writeError(c, err)
		return
	}
	if h.Recorder != nil {
		h.Recorder.Record(c.Request.Context(), audit.Entry{
			UserID: id.UserID,
			Role:   string(id.Role),
			Action: audit.ActionLoggedOut,
		})
	}
	c.Status(http.StatusNoContent)
}
