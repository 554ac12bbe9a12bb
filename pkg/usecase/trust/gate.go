package trust

import (
	"context"
	_ "embed"
	"os"
	"path/filepath"

	"github.com/m-mizutani/goerr/v2"
	"github.com/open-policy-agent/opa/v1/rego"
)

//go:embed policy/approval.rego
var defaultPolicyRaw string

// GateInput is the document handed to the approval policy.
type GateInput struct {
	App        string  `json:"app"`
	Category   string  `json:"category"`
	Score      float64 `json:"score"`
	Samples    int     `json:"samples"`
	Threshold  float64 `json:"threshold"`
	MinSamples int     `json:"min_samples"`
}

// Gate evaluates the Rego approval policy `data.approval.allow`. Operators
// can replace the embedded default by pointing NewGate at a directory of
// .rego files.
type Gate struct {
	query rego.PreparedEvalQuery
}

// NewGate prepares the approval policy. An empty policyDir loads the
// embedded default policy.
func NewGate(ctx context.Context, policyDir string) (*Gate, error) {
	modules, err := loadPolicyModules(policyDir)
	if err != nil {
		return nil, err
	}

	options := make([]func(*rego.Rego), 0, len(modules)+1)
	options = append(options, rego.Query("data.approval.allow"))
	options = append(options, modules...)

	query, err := rego.New(options...).PrepareForEval(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to prepare approval policy")
	}

	return &Gate{query: query}, nil
}

// loadPolicyModules reads all .rego files from policyDir, falling back to
// the embedded default when the directory is empty or unset.
func loadPolicyModules(policyDir string) ([]func(*rego.Rego), error) {
	if policyDir == "" {
		return []func(*rego.Rego){rego.Module("approval.rego", defaultPolicyRaw)}, nil
	}

	files, err := filepath.Glob(filepath.Join(policyDir, "*.rego"))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to glob policy files")
	}
	if len(files) == 0 {
		return []func(*rego.Rego){rego.Module("approval.rego", defaultPolicyRaw)}, nil
	}

	modules := make([]func(*rego.Rego), 0, len(files))
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to read policy file", goerr.V("path", file))
		}
		modules = append(modules, rego.Module(file, string(data)))
	}

	return modules, nil
}

// Evaluate runs the policy over one gate input.
func (g *Gate) Evaluate(ctx context.Context, input *GateInput) (bool, error) {
	rs, err := g.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return false, goerr.Wrap(err, "failed to evaluate approval policy")
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return false, nil
	}

	allowed, ok := rs[0].Expressions[0].Value.(bool)
	if !ok {
		return false, goerr.New("approval policy returned non-boolean",
			goerr.V("value", rs[0].Expressions[0].Value))
	}

	return allowed, nil
}
