package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"smartattend/internal/attendance"
	"smartattend/internal/auth"
	"smartattend/internal/logging"
)

// errorResponse is the JSON body of every failed request.
type errorResponse struct {
	Error          string            `json:"error"`
	Code           string            `json:"code"`
	Fields         map[string]string `json:"fields,omitempty"`
	DistanceMeters *float64          `json:"distance_meters,omitempty"`
	RadiusMeters   *float64          `json:"radius_meters,omitempty"`
}

func statusFor(err error) (int, errorResponse) {
	resp := errorResponse{Code: attendance.ErrorKind(err)}

	var outside *attendance.OutsideGeofenceError
	var verr *attendance.ValidationError
	var cfgErr *attendance.ConfigurationError
	var storage *attendance.StorageError
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		resp.Code, resp.Error = "invalid_credentials", "invalid email or password"
		return http.StatusUnauthorized, resp
	case errors.Is(err, auth.ErrRoleMismatch):
		resp.Code, resp.Error = "role_mismatch", "account does not have the requested role"
		return http.StatusForbidden, resp
	case errors.Is(err, auth.ErrSessionRevoked):
		resp.Code, resp.Error = "session_revoked", "session already ended"
		return http.StatusUnauthorized, resp
	case errors.Is(err, attendance.ErrInvalidToken):
		resp.Error = "attendance code is invalid or expired"
		return http.StatusUnauthorized, resp
	case errors.Is(err, attendance.ErrAlreadyMarked):
		resp.Error = "attendance already marked for today"
		return http.StatusConflict, resp
	case errors.Is(err, attendance.ErrLocationUnavailable):
		resp.Error = "device location is required"
		return http.StatusUnprocessableEntity, resp
	case errors.As(err, &outside):
		resp.Error = "you are outside the class area"
		resp.DistanceMeters, resp.RadiusMeters = &outside.Distance, &outside.Radius
		return http.StatusForbidden, resp
	case errors.As(err, &verr):
		resp.Error, resp.Fields = "validation failed", verr.FieldErrors
		return http.StatusBadRequest, resp
	case errors.Is(err, attendance.ErrForbidden):
		resp.Error = "forbidden"
		return http.StatusForbidden, resp
	case errors.Is(err, attendance.ErrNotFound):
		resp.Error = "not found"
		return http.StatusNotFound, resp
	case errors.Is(err, attendance.ErrNotPending):
		resp.Error = "correction already reviewed"
		return http.StatusConflict, resp
	case errors.As(err, &cfgErr):
		resp.Error = "attendance is not configured for this class"
		return http.StatusInternalServerError, resp
	case errors.As(err, &storage):
		resp.Error = "storage unavailable, try again"
		return http.StatusServiceUnavailable, resp
	}
	resp.Error = "internal error"
	return http.StatusInternalServerError, resp
}

func writeError(c *gin.Context, err error) {
	status, resp := statusFor(err)
	logger := logging.FromContext(c.Request.Context(), nil)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "status", status, "code", resp.Code, "error", err)
	} else {
		logger.Debug("request rejected", "status", status, "code", resp.Code, "error", err)
	}
	c.AbortWithStatusJSON(status, resp)
}

func badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{Error: err.Error(), Code: "validation"})
}
