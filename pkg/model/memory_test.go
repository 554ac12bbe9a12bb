package model_test

import (
	"math"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/lethe/pkg/model"
)

func validMemory() *model.Memory {
	return &model.Memory{
		ID:         model.NewMemoryID(),
		Content:    "prefer the async export for reports over 10k rows",
		Collection: "learnings",
		Source:     model.SourceAgent,
		Confidence: 1,
		CreatedAt:  time.Now(),
	}
}

func TestMemoryValidate(t *testing.T) {
	gt.NoError(t, validMemory().Validate())

	empty := validMemory()
	empty.Content = ""
	err := empty.Validate()
	gt.Error(t, err)
	gt.True(t, model.IsValidation(err))

	noCollection := validMemory()
	noCollection.Collection = ""
	gt.Error(t, noCollection.Validate())

	badSource := validMemory()
	badSource.Source = "robot"
	gt.Error(t, badSource.Validate())

	badConfidence := validMemory()
	badConfidence.Confidence = 1.5
	gt.Error(t, badConfidence.Validate())
}

func TestRecordOutcomeRunningMean(t *testing.T) {
	var v model.VoteStats

	v.RecordOutcome(model.OutcomeSuccess)
	gt.Equal(t, v.SuccessRate, 1.0)
	gt.Equal(t, v.OutcomeCount, 1)

	v.RecordOutcome(model.OutcomeFailure)
	gt.Equal(t, v.SuccessRate, 0.5)
	gt.Equal(t, v.OutcomeCount, 2)

	v.RecordOutcome(model.OutcomeSuccess)
	if math.Abs(v.SuccessRate-2.0/3.0) > 1e-9 {
		t.Errorf("success rate = %v, want 2/3", v.SuccessRate)
	}
	gt.Equal(t, v.OutcomeCount, 3)
}

func TestOutcomeValue(t *testing.T) {
	gt.Equal(t, model.OutcomeSuccess.Value(), 1.0)
	gt.Equal(t, model.OutcomeFailure.Value(), 0.0)

	gt.NoError(t, model.OutcomeSuccess.Validate())
	gt.Error(t, model.Outcome("maybe").Validate())
}

func TestVoteKindValidate(t *testing.T) {
	gt.NoError(t, model.VoteUp.Validate())
	gt.NoError(t, model.VoteDown.Validate())
	gt.Error(t, model.VoteKind("sideways").Validate())
}

func TestMemoryEffectiveSince(t *testing.T) {
	m := validMemory()
	gt.Equal(t, m.EffectiveSince(), m.CreatedAt)

	validatedAt := m.CreatedAt.Add(24 * time.Hour)
	m.LastValidatedAt = &validatedAt
	gt.Equal(t, m.EffectiveSince(), validatedAt)
}

func TestMemoryClone(t *testing.T) {
	m := validMemory()
	m.Tags = []string{"billing", "export"}
	m.Embedding = []float32{0.1, 0.2, 0.3}
	validatedAt := m.CreatedAt.Add(time.Hour)
	m.LastValidatedAt = &validatedAt

	c := m.Clone()
	c.Tags[0] = "changed"
	c.Embedding[0] = 9
	*c.LastValidatedAt = c.LastValidatedAt.Add(time.Hour)

	gt.Equal(t, m.Tags[0], "billing")
	gt.Equal(t, m.Embedding[0], float32(0.1))
	gt.Equal(t, *m.LastValidatedAt, validatedAt)
}

func TestTrustScoreDefaults(t *testing.T) {
	row := model.NewTrustScore("billing", "refund")
	gt.Equal(t, row.Score, 0.5)
	gt.Equal(t, row.SampleCount, 0)
	gt.Equal(t, row.HalfLifeDays, float64(model.DefaultTrustHalfLifeDays))
	gt.Equal(t, row.Key(), "billing:refund")
	gt.NoError(t, row.Validate())

	gt.Error(t, model.NewTrustScore("", "refund").Validate())
	gt.Error(t, model.NewTrustScore("billing", "").Validate())
}
