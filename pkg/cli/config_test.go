package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/m-mizutani/gt"
)

func TestGlobalFlags(t *testing.T) {
	var cfg config
	flags := globalFlags(&cfg)

	flagNames := make(map[string]bool)
	for _, f := range flags {
		for _, name := range f.Names() {
			flagNames[name] = true
		}
	}

	gt.True(t, flagNames["project"])
	gt.True(t, flagNames["database"])
	gt.True(t, flagNames["local"])
	gt.True(t, flagNames["gemini-location"])
	gt.True(t, flagNames["bigquery-dataset"])
	gt.True(t, flagNames["archive-bucket"])
	gt.True(t, flagNames["approval-policy-dir"])
	gt.True(t, flagNames["policy-file"])
	gt.True(t, flagNames["timeout"])
	gt.True(t, flagNames["log-level"])
}

func TestLoadPolicyFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yml")
	raw := `decay:
  half_life_days: 14
  citation_saturation: 3
prune:
  min_confidence: 0.2
  min_age_days: 45
  max_downvotes: 4
trust:
  threshold: 0.9
  min_samples: 10
  half_life_days: 7
`
	gt.NoError(t, os.WriteFile(path, []byte(raw), 0600))

	cfg := config{policyFile: path}
	gt.NoError(t, cfg.load())

	gt.Equal(t, cfg.policy.Decay.HalfLifeDays, 14.0)
	gt.Equal(t, cfg.policy.Decay.CitationSaturation, 3)
	gt.Equal(t, *cfg.policy.Prune.MinConfidence, 0.2)
	gt.Equal(t, *cfg.policy.Prune.MinAgeDays, 45.0)
	gt.Equal(t, *cfg.policy.Prune.MaxDownvotes, 4)
	gt.Equal(t, cfg.policy.Trust.Threshold, 0.9)
	gt.Equal(t, cfg.policy.Trust.MinSamples, 10)
	gt.Equal(t, cfg.policy.Trust.HalfLifeDays, 7.0)

	params := cfg.decayParams()
	gt.Equal(t, params.HalfLifeDays, 14.0)
	gt.Equal(t, params.CitationSaturation, 3)
}

func TestLoadPolicyFileMissing(t *testing.T) {
	cfg := config{policyFile: "/nonexistent/policy.yml"}
	gt.Error(t, cfg.load())

	// No file configured is fine
	empty := config{}
	gt.NoError(t, empty.load())
}
