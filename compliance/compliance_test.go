package compliance_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/majani/coop-engine/compliance"
	"github.com/majani/coop-engine/generic"
)

func checklist(passed int) []compliance.ChecklistItem {
	items := compliance.RainforestCriteria()
	for i := 0; i < passed; i++ {
		items[i].Passed = true
	}
	return items
}

func TestScoreTiers(t *testing.T) {
	cases := []struct {
		passed int
		score  string
		status compliance.Status
	}{
		{8, "100", compliance.StatusCompliant},
		{7, "87.5", compliance.StatusConditional},
		{5, "62.5", compliance.StatusNonCompliant},
		{0, "0", compliance.StatusNonCompliant},
	}
	for _, tc := range cases {
		score := compliance.Score(checklist(tc.passed))
		assert.Equal(t, tc.score, score.String(), "%d passed", tc.passed)
		assert.Equal(t, tc.status, compliance.StatusFor(score), "%d passed", tc.passed)
	}
}

func TestStatusFor_Boundaries(t *testing.T) {
	assert.Equal(t, compliance.StatusConditional, compliance.StatusFor(decimal.NewFromInt(80)))
	assert.Equal(t, compliance.StatusNonCompliant, compliance.StatusFor(decimal.NewFromFloat(79.99)))
	assert.Equal(t, compliance.StatusConditional, compliance.StatusFor(decimal.NewFromFloat(99.9)))
}

func TestNewInspection(t *testing.T) {
	at := time.Date(2025, time.October, 3, 10, 0, 0, 0, time.UTC)
	items := checklist(7)

	in, err := compliance.NewInspection("F003", "officer", "Chemical shed unlocked", items, at)
	require.NoError(t, err)

	assert.Contains(t, in.ID, "INS-")
	assert.Equal(t, compliance.StatusConditional, in.Status)
	assert.Len(t, in.Checklist, 8)

	// The record keeps its own copy of the checklist.
	items[7].Passed = true
	assert.False(t, in.Checklist[7].Passed)

	_, err = compliance.NewInspection("", "officer", "", items, at)
	assert.ErrorIs(t, err, generic.ErrValidation)
	_, err = compliance.NewInspection("F003", "officer", "", nil, at)
	assert.ErrorIs(t, err, generic.ErrValidation)
}

func TestSummarizeAndLatest(t *testing.T) {
	at := time.Date(2025, time.October, 3, 10, 0, 0, 0, time.UTC)
	a, _ := compliance.NewInspection("F001", "officer", "", checklist(8), at)
	b, _ := compliance.NewInspection("F003", "officer", "", checklist(7), at)
	c, _ := compliance.NewInspection("F003", "officer", "", checklist(5), at.AddDate(0, 0, 7))

	tally := compliance.Summarize([]compliance.Inspection{a, b, c})
	assert.Equal(t, compliance.Tally{
		Total: 3, Compliant: 1, Conditional: 1, NonCompliant: 1,
		AverageScore: tally.AverageScore,
	}, tally)
	assert.Equal(t, "83.3", tally.AverageScore.String())

	latest := compliance.Latest([]compliance.Inspection{a, b, c})
	assert.Equal(t, c.ID, latest["F003"].ID)
	assert.Len(t, latest, 2)
}
