package attendance

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassService(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	svc := NewClassService(f.store)

	mine, err := svc.ForTeacher(ctx, "T1")
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, "Compilers", mine[0].Name)

	cohort, err := svc.ForStudent(ctx, "CSE", "3")
	require.NoError(t, err)
	assert.Len(t, cohort, 3)

	_, err = svc.Owned(ctx, "T1", "C3")
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = svc.Owned(ctx, "T1", "nope")
	assert.ErrorIs(t, err, ErrNotFound)

	c, err := svc.Rename(ctx, "T1", "C1", "  Computer Networks ")
	require.NoError(t, err)
	assert.Equal(t, "Computer Networks", c.Name)
	stored, err := f.store.Class(ctx, "C1")
	require.NoError(t, err)
	assert.Equal(t, "Computer Networks", stored.Name)

	_, err = svc.Enrolled(ctx, "C3", "CSE", "3")
	assert.NoError(t, err)
	_, err = svc.Enrolled(ctx, "C3", "ECE", "3")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.Rename(ctx, "T1", "C1", "")
	assert.Equal(t, "validation", ErrorKind(err))
	_, err = svc.Rename(ctx, "T2", "C1", "Stolen")
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestCorrectionService(t *testing.T) {
	ctx := context.Background()

	setup := func() (*fixture, *CorrectionService) {
		f := newFixture()
		return f, NewCorrectionService(f.store, NewClassService(f.store), f.store, f.clock.Now)
	}

	t.Run("approve files a corrected record", func(t *testing.T) {
		f, svc := setup()
		c, err := svc.Request(ctx, "S1", "C1", "2026-03-01", " phone died ")
		require.NoError(t, err)
		assert.Equal(t, CorrectionPending, c.Status)
		assert.Equal(t, "phone died", c.Reason)

		pending, err := svc.Pending(ctx, "T1")
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, c.ID, pending[0].ID)

		f.clock.Advance(time.Hour)
		approved, err := svc.Approve(ctx, "T1", c.ID)
		require.NoError(t, err)
		assert.Equal(t, CorrectionApproved, approved.Status)
		assert.Equal(t, "T1", approved.ReviewedBy)
		require.NotNil(t, approved.ReviewedAt)
		assert.Equal(t, t0.Add(time.Hour), *approved.ReviewedAt)

		rec, err := f.store.FindRecord(ctx, RecordKey{ClassID: "C1", Day: "2026-03-01", StudentID: "S1"})
		require.NoError(t, err)
		assert.Equal(t, StatusCorrected, rec.Status)

		pending, err = svc.Pending(ctx, "T1")
		require.NoError(t, err)
		assert.Empty(t, pending)
	})

	t.Run("approving an existing record marks it corrected", func(t *testing.T) {
		f, svc := setup()
		tok, err := f.tokens.Create(ctx, "C1", "T1")
		require.NoError(t, err)
		orig, err := f.verifier.Submit(ctx, SubmitRequest{Secret: tok.Secret, StudentID: "S1", Position: campus})
		require.NoError(t, err)

		c, err := svc.Request(ctx, "S1", "C1", orig.Day, "")
		require.NoError(t, err)
		_, err = svc.Approve(ctx, "T1", c.ID)
		require.NoError(t, err)

		rec, err := f.store.FindRecord(ctx, orig.Key())
		require.NoError(t, err)
		assert.Equal(t, orig.ID, rec.ID)
		assert.Equal(t, StatusCorrected, rec.Status)
	})

	t.Run("reviews happen once", func(t *testing.T) {
		_, svc := setup()
		c, err := svc.Request(ctx, "S1", "C1", "2026-03-01", "")
		require.NoError(t, err)

		rejected, err := svc.Reject(ctx, "T1", c.ID)
		require.NoError(t, err)
		assert.Equal(t, CorrectionRejected, rejected.Status)

		_, err = svc.Approve(ctx, "T1", c.ID)
		assert.ErrorIs(t, err, ErrNotPending)
	})

	t.Run("only the class owner reviews", func(t *testing.T) {
		_, svc := setup()
		c, err := svc.Request(ctx, "S1", "C1", "2026-03-01", "")
		require.NoError(t, err)

		_, err = svc.Approve(ctx, "T2", c.ID)
		assert.ErrorIs(t, err, ErrForbidden)
		_, err = svc.Reject(ctx, "T1", "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("requests are validated", func(t *testing.T) {
		_, svc := setup()
		_, err := svc.Request(ctx, "", "", "yesterday", "")
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Len(t, verr.FieldErrors, 3)
	})
}

func TestMemoryStore_ListRecords(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	for i, student := range []string{"S1", "S2", "S3", "S4"} {
		_, err := s.InsertRecord(ctx, Record{
			ID: student, ClassID: "C1", Day: "2026-03-02", StudentID: student,
			MarkedAt: t0.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}
	_, err := s.InsertRecord(ctx, Record{ID: "x", ClassID: "C2", Day: "2026-03-02", StudentID: "S1", MarkedAt: t0})
	require.NoError(t, err)

	got, err := s.ListRecords(ctx, RecordFilter{ClassID: "C1", Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "S3", got[0].StudentID)
	assert.Equal(t, "S2", got[1].StudentID)

	got, err = s.ListRecords(ctx, RecordFilter{StudentID: "S1"})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = s.ListRecords(ctx, RecordFilter{ClassID: "C1", Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestErrorKind(t *testing.T) {
	assert.Equal(t, "ok", ErrorKind(nil))
	assert.Equal(t, "outside_geofence", ErrorKind(&OutsideGeofenceError{Distance: 500, Radius: 100}))
	assert.Equal(t, "storage", ErrorKind(storageErr("op", assert.AnError)))
	assert.Equal(t, "unexpected", ErrorKind(assert.AnError))
	assert.Nil(t, storageErr("op", nil))

	wrapped := storageErr("outer", storageErr("inner", assert.AnError))
	var se *StorageError
	require.ErrorAs(t, wrapped, &se)
	assert.Equal(t, "inner", se.Op)
}
