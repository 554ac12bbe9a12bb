package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
)

type MemoryID string

// NewMemoryID generates a new unique MemoryID
func NewMemoryID() MemoryID {
	return MemoryID(uuid.New().String())
}

// Source identifies who authored a memory.
type Source string

const (
	SourceAgent  Source = "agent"
	SourceHuman  Source = "human"
	SourceSystem Source = "system"
)

// Validate checks if the source is valid
func (s Source) Validate() error {
	switch s {
	case SourceAgent, SourceHuman, SourceSystem:
		return nil
	default:
		return goerr.New("invalid source", goerr.V("source", s), goerr.T(TagValidation))
	}
}

type VoteKind string

const (
	VoteUp   VoteKind = "upvote"
	VoteDown VoteKind = "downvote"
)

// Validate checks if the vote kind is valid
func (k VoteKind) Validate() error {
	switch k {
	case VoteUp, VoteDown:
		return nil
	default:
		return goerr.New("invalid vote kind", goerr.V("kind", k), goerr.T(TagValidation))
	}
}

// Outcome is a post-hoc success/failure signal tied to prior citations.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// Validate checks if the outcome is valid
func (o Outcome) Validate() error {
	switch o {
	case OutcomeSuccess, OutcomeFailure:
		return nil
	default:
		return goerr.New("invalid outcome", goerr.V("outcome", o), goerr.T(TagValidation))
	}
}

// Value returns 1 for success and 0 for failure.
func (o Outcome) Value() float64 {
	if o == OutcomeSuccess {
		return 1
	}
	return 0
}

// VoteStats holds accumulated feedback counters for a memory. All fields are
// mutated only by the feedback use case. SuccessRate is the running mean over
// recorded outcomes and stays 0 until OutcomeCount > 0.
type VoteStats struct {
	Upvotes      int     `json:"upvotes"`
	Downvotes    int     `json:"downvotes"`
	Citations    int     `json:"citations"`
	SuccessRate  float64 `json:"success_rate"`
	OutcomeCount int     `json:"outcome_count"`
}

// RecordOutcome folds one outcome into the running success rate.
func (v *VoteStats) RecordOutcome(o Outcome) {
	n := float64(v.OutcomeCount)
	v.SuccessRate = (v.SuccessRate*n + o.Value()) / (n + 1)
	v.OutcomeCount++
}

// Memory represents a stored unit of retrievable knowledge. Content,
// Collection, Source and CreatedAt are immutable after creation; content
// edits create a new memory instead.
type Memory struct {
	ID        MemoryID
	Content   string
	Embedding []float32

	Collection string
	Source     Source
	Tags       []string
	Confidence float64 // author-asserted prior, not the decayed value
	AppSlug    string

	CreatedAt       time.Time
	LastValidatedAt *time.Time
	Votes           VoteStats

	// Revision guards read-modify-write updates of the vote counters.
	// Incremented by the index on every successful write.
	Revision int64
}

// Validate checks the invariants a memory must hold before it is stored.
func (m *Memory) Validate() error {
	if m.Content == "" {
		return goerr.New("memory content is empty", goerr.T(TagValidation))
	}
	if m.Collection == "" {
		return goerr.New("memory collection is empty", goerr.T(TagValidation))
	}
	if err := m.Source.Validate(); err != nil {
		return err
	}
	if m.Confidence < 0 || m.Confidence > 1 {
		return goerr.New("confidence out of range", goerr.V("confidence", m.Confidence), goerr.T(TagValidation))
	}
	return nil
}

// EffectiveSince returns the timestamp decay ages from: the last explicit
// validation when present, otherwise the creation time.
func (m *Memory) EffectiveSince() time.Time {
	if m.LastValidatedAt != nil {
		return *m.LastValidatedAt
	}
	return m.CreatedAt
}

// Clone returns a deep copy so in-memory indexes can hand out records
// without aliasing their internal state.
func (m *Memory) Clone() *Memory {
	c := *m
	if m.Embedding != nil {
		c.Embedding = append([]float32(nil), m.Embedding...)
	}
	if m.Tags != nil {
		c.Tags = append([]string(nil), m.Tags...)
	}
	if m.LastValidatedAt != nil {
		t := *m.LastValidatedAt
		c.LastValidatedAt = &t
	}
	return &c
}
