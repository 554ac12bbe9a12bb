package trust

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/lethe/pkg/decay"
	"github.com/m-mizutani/lethe/pkg/model"
	"github.com/m-mizutani/lethe/pkg/utils/logging"
)

// Evaluation is a trust score read through the decay engine. Decayed is the
// score pulled toward the neutral 0.5 by the staleness since the last
// reinforcement; Row holds the raw stored state.
type Evaluation struct {
	Row           *model.TrustScore
	Decayed       float64
	StalenessDays float64
}

// Get returns the decayed trust evaluation for an (app, category) pair.
// A pair that has never been observed evaluates as the neutral prior with
// zero samples rather than an error.
func (u *UseCase) Get(ctx context.Context, app, category string) (*Evaluation, error) {
	if app == "" {
		return nil, goerr.New("app is empty", goerr.T(model.TagValidation))
	}
	if category == "" {
		return nil, goerr.New("category is empty", goerr.T(model.TagValidation))
	}

	row, err := u.store.Get(ctx, app, category)
	if err != nil {
		if !model.IsNotFound(err) {
			return nil, err
		}
		row = model.NewTrustScore(app, category)
		if u.halfLifeDays > 0 {
			row.HalfLifeDays = u.halfLifeDays
		}
		return &Evaluation{Row: row, Decayed: row.Score}, nil
	}

	staleness := u.now().Sub(row.LastUpdatedAt).Hours() / 24
	if staleness < 0 {
		staleness = 0
	}

	return &Evaluation{
		Row:           row,
		Decayed:       decay.DecayTowardNeutral(row.Score, staleness, row.HalfLifeDays),
		StalenessDays: staleness,
	}, nil
}

// Allow reports whether an action for the (app, category) pair may proceed
// without human approval. The decayed score is evaluated by the approval
// policy; cold-start pairs never auto-approve because they carry zero
// samples.
func (u *UseCase) Allow(ctx context.Context, app, category string) (bool, error) {
	eval, err := u.Get(ctx, app, category)
	if err != nil {
		return false, err
	}

	input := &GateInput{
		App:        app,
		Category:   category,
		Score:      eval.Decayed,
		Samples:    eval.Row.SampleCount,
		Threshold:  u.cfg.Threshold,
		MinSamples: u.cfg.MinSamples,
	}

	var allowed bool
	if u.gate != nil {
		allowed, err = u.gate.Evaluate(ctx, input)
		if err != nil {
			return false, err
		}
	} else {
		allowed = input.Score >= input.Threshold && input.Samples >= input.MinSamples
	}

	logging.From(ctx).Info("evaluated approval gate",
		"app", app,
		"category", category,
		"score", eval.Decayed,
		"samples", eval.Row.SampleCount,
		"allowed", allowed,
	)

	return allowed, nil
}
