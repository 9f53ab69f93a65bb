package attendance

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyStanding(t *testing.T) {
	tests := []struct {
		name     string
		attended int
		held     int
		pct      float64
		band     Band
	}{
		{"nothing held", 0, 0, 100, BandGood},
		{"perfect", 10, 10, 100, BandGood},
		{"good boundary", 3, 4, 75, BandGood},
		{"just below good", 74, 100, 74, BandWarning},
		{"warning boundary", 3, 5, 60, BandWarning},
		{"at risk", 1, 2, 50, BandAtRisk},
		{"rounded", 2, 3, 66.67, BandWarning},
		{"none attended", 0, 7, 0, BandAtRisk},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := ClassifyStanding(tt.attended, tt.held)
			assert.Equal(t, tt.pct, s.Percentage)
			assert.Equal(t, tt.band, s.Band)
			assert.Equal(t, tt.attended, s.Attended)
			assert.Equal(t, tt.held, s.Held)
		})
	}
}

func TestStandingService(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	svc := NewStandingService(f.store, f.store)

	// Two sessions of C1 on different days, one of C2.
	tok, err := f.tokens.Create(ctx, "C1", "T1")
	require.NoError(t, err)
	_, err = f.verifier.Submit(ctx, SubmitRequest{Secret: tok.Secret, StudentID: "S1", Position: campus})
	require.NoError(t, err)

	f.clock.Advance(24 * time.Hour)
	_, err = f.tokens.Create(ctx, "C1", "T1")
	require.NoError(t, err)
	_, err = f.tokens.Create(ctx, "C1", "T1") // same day, same session
	require.NoError(t, err)
	_, err = f.tokens.Create(ctx, "C2", "T1")
	require.NoError(t, err)

	s, err := svc.Standing(ctx, "S1", "CSE", "3")
	require.NoError(t, err)
	assert.Equal(t, 1, s.Attended)
	assert.Equal(t, 3, s.Held)
	assert.Equal(t, 33.33, s.Percentage)
	assert.Equal(t, BandAtRisk, s.Band)

	s, err = svc.Standing(ctx, "S1", "ECE", "1")
	require.NoError(t, err)
	assert.Equal(t, ClassifyStanding(0, 0), s)
}

func TestStandingService_CorrectionsWithoutSessions(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	_, err := f.store.MarkCorrected(ctx, Record{ID: "r1", ClassID: "C1", Day: "2026-03-01", StudentID: "S1"})
	require.NoError(t, err)

	s, err := NewStandingService(f.store, f.store).Standing(ctx, "S1", "CSE", "3")
	require.NoError(t, err)
	assert.Equal(t, 1, s.Held)
	assert.Equal(t, 100.0, s.Percentage)
}

func TestSplitReports(t *testing.T) {
	ctx := context.Background()
	held := NewMemoryStore()
	attended := NewMemoryStore()
	require.NoError(t, held.Issue(ctx, Token{ID: "k", ClassID: "C1", Secret: "AAAAAAAA", IssuedAt: t0, ExpiresAt: t0, Active: true}, t0))
	_, err := attended.InsertRecord(ctx, Record{ClassID: "C1", Day: "2026-03-02", StudentID: "S1"})
	require.NoError(t, err)

	r := SplitReports{Held: held, Attended: attended}
	n, err := r.SessionsHeld(ctx, []string{"C1"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = r.SessionsAttended(ctx, "S1", []string{"C1"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestStandingService_SessionDaysFollowTimeZone(t *testing.T) {
	ctx := context.Background()
	ist := time.FixedZone("IST", 5*3600+1800)
	f := newFixture(func(c *VerifierConfig) { c.Location = ist })

	// 05:00 and 06:00 IST on 2026-03-03 straddle midnight UTC.
	f.clock.Advance(14*time.Hour + 30*time.Minute)
	first, err := f.tokens.Create(ctx, "C1", "T1")
	require.NoError(t, err)
	assert.Equal(t, "2026-03-03", first.Day)
	_, err = f.verifier.Submit(ctx, SubmitRequest{Secret: first.Secret, StudentID: "S1", Position: campus})
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	second, err := f.tokens.Create(ctx, "C1", "T1")
	require.NoError(t, err)
	assert.Equal(t, "2026-03-03", second.Day)
	_, err = f.verifier.Submit(ctx, SubmitRequest{Secret: second.Secret, StudentID: "S1", Position: campus})
	require.ErrorIs(t, err, ErrAlreadyMarked)

	s, err := NewStandingService(f.store, f.store).Standing(ctx, "S1", "CSE", "3")
	require.NoError(t, err)
	assert.Equal(t, Standing{Attended: 1, Held: 1, Percentage: 100, Band: BandGood}, s)
}

func TestToken_SessionDay(t *testing.T) {
	assert.Equal(t, "2026-03-03", Token{Day: "2026-03-03", IssuedAt: t0}.SessionDay())
	assert.Equal(t, "2026-03-02", Token{IssuedAt: t0}.SessionDay())
}
