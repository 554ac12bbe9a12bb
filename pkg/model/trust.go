package model

import (
	"time"

	"github.com/m-mizutani/goerr/v2"
)

// DefaultTrustHalfLifeDays is the decay half-life applied to trust scores
// that have not been reinforced.
const DefaultTrustHalfLifeDays = 30

// TrustScore is one row per (app, category) pair. It is created lazily on
// the first recorded outcome and never deleted; between updates it only
// decays toward the neutral prior of 0.5.
type TrustScore struct {
	App      string
	Category string

	Score        float64
	SampleCount  int
	HalfLifeDays float64

	LastUpdatedAt time.Time

	// Revision guards concurrent updates of the same row.
	Revision int64
}

// NewTrustScore returns a fresh row at the neutral prior.
func NewTrustScore(app, category string) *TrustScore {
	return &TrustScore{
		App:          app,
		Category:     category,
		Score:        0.5,
		HalfLifeDays: DefaultTrustHalfLifeDays,
	}
}

// Validate checks the row key is usable.
func (t *TrustScore) Validate() error {
	if t.App == "" {
		return goerr.New("trust score app is empty", goerr.T(TagValidation))
	}
	if t.Category == "" {
		return goerr.New("trust score category is empty", goerr.T(TagValidation))
	}
	return nil
}

// Key returns the unique store key for the (app, category) pair.
func (t *TrustScore) Key() string {
	return t.App + ":" + t.Category
}

// Clone returns a copy of the row.
func (t *TrustScore) Clone() *TrustScore {
	c := *t
	return &c
}
