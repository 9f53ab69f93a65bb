package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"smartattend/internal/attendance"
	"smartattend/internal/audit"
	"smartattend/internal/auth"
	"smartattend/internal/geo"
)

// checkinRequest carries the secret and the device position. A missing
// coordinate means the device could not or would not share its location.
type checkinRequest struct {
	Secret    string   `json:"secret" binding:"required"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

func (r checkinRequest) position() *geo.Position {
	if r.Latitude == nil || r.Longitude == nil {
		return nil
	}
	return &geo.Position{Latitude: *r.Latitude, Longitude: *r.Longitude}
}

func (h *handler) checkin(c *gin.Context) {
	var req checkinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	claims, _ := auth.ClaimsFrom(c)
	rec, err := h.Verifier.SubmitFrom(c.Request.Context(), req.Secret, claims.Subject, "", geo.Fixed(req.position()))
	h.Metrics.Checkin(attendance.ErrorKind(err), rec.Distance)
	if err != nil {
		writeError(c, err)
		return
	}
	h.record(c, audit.ActionAttendanceMarked, rec.ClassID)
	c.JSON(http.StatusCreated, rec)
}

func (h *handler) listRecords(c *gin.Context) {
	claims, _ := auth.ClaimsFrom(c)
	ctx := c.Request.Context()
	f := attendance.RecordFilter{
		ClassID: c.Query("class_id"),
		Day:     c.Query("day"),
		Limit:   queryInt(c, "limit", 50),
		Offset:  queryInt(c, "offset", 0),
	}
	if claims.Role == auth.RoleTeacher {
		if f.ClassID == "" {
			badRequest(c, errClassRequired)
			return
		}
		if _, err := h.Classes.Owned(ctx, claims.Subject, f.ClassID); err != nil {
			writeError(c, err)
			return
		}
		f.StudentID = c.Query("student_id")
	} else {
		f.StudentID = claims.Subject
	}
	records, err := h.Records.ListRecords(ctx, f)
	if err != nil {
		writeError(c, &attendance.StorageError{Op: "list records", Err: err})
		return
	}
	if records == nil {
		records = []attendance.Record{}
	}
	c.JSON(http.StatusOK, gin.H{"records": records})
}

func queryInt(c *gin.Context, key string, fallback int) int {
	if v := c.Query(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
