package phrase

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatus_Valid(t *testing.T) {
	for _, s := range []Status{StatusProcessing, StatusPendingReview, StatusApproved, StatusExported, StatusFailed} {
		assert.True(t, s.Valid(), "expected %q to be valid", s)
	}
	assert.False(t, Status("").Valid())
	assert.False(t, Status("archived").Valid())
}

func TestStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusProcessing, StatusPendingReview, true},
		{StatusProcessing, StatusFailed, true},
		{StatusProcessing, StatusApproved, false},
		{StatusProcessing, StatusExported, false},
		{StatusPendingReview, StatusApproved, true},
		{StatusPendingReview, StatusProcessing, true}, // retry
		{StatusPendingReview, StatusExported, false},
		{StatusApproved, StatusExported, true},
		{StatusApproved, StatusProcessing, true}, // regeneration
		{StatusApproved, StatusPendingReview, false},
		{StatusExported, StatusExported, true}, // re-export is a no-op
		{StatusExported, StatusProcessing, true},
		{StatusExported, StatusApproved, false},
		{StatusFailed, StatusProcessing, true}, // retry
		{StatusFailed, StatusApproved, false},
		{StatusFailed, StatusPendingReview, false},
		{Status("unknown"), StatusProcessing, false},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, tc.from.CanTransitionTo(tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestStep_Ordering(t *testing.T) {
	assert.True(t, StepAnalyzing.After(StepExtracting))
	assert.True(t, StepGeneratingAudio.After(StepAnalyzing))
	assert.True(t, StepGeneratingAudio.After(StepExtracting))

	// Never backward, never equal.
	assert.False(t, StepExtracting.After(StepAnalyzing))
	assert.False(t, StepAnalyzing.After(StepAnalyzing))

	// Any valid step is after "nothing recorded yet".
	assert.True(t, StepExtracting.After(Step("")))
}

func TestStep_Valid(t *testing.T) {
	assert.True(t, StepExtracting.Valid())
	assert.True(t, StepAnalyzing.Valid())
	assert.True(t, StepGeneratingAudio.Valid())
	assert.False(t, Step("").Valid())
	assert.False(t, Step("uploading").Valid())
}

func TestSourceKind_Valid(t *testing.T) {
	assert.True(t, SourceText.Valid())
	assert.True(t, SourceImage.Valid())
	assert.True(t, SourceAudio.Valid())
	assert.False(t, SourceKind("video").Valid())
}

func TestPhrase_JobInFlight(t *testing.T) {
	var p Phrase
	assert.False(t, p.JobInFlight())

	empty := ""
	p.CurrentJobID = &empty
	assert.False(t, p.JobInFlight())

	job := "job-1"
	p.CurrentJobID = &job
	assert.True(t, p.JobInFlight())
}

func TestPhrase_OwnedBy(t *testing.T) {
	var p Phrase
	assert.False(t, p.OwnedBy("u1"), "legacy phrases belong to nobody")

	owner := "u1"
	p.OwnerID = &owner
	assert.True(t, p.OwnedBy("u1"))
	assert.False(t, p.OwnedBy("u2"))
	assert.False(t, p.OwnedBy(""))
}
