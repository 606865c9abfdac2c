package config

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRequirements(t *testing.T) {
	reqs, err := ParseRequirements("Forensics:certificate=10, forensics:diploma = 30 ,cyber:pg_diploma=60.5")
	require.NoError(t, err)
	require.Len(t, reqs, 3)
	assert.True(t, reqs[RequirementKey("forensics", "certificate")].Equal(decimal.NewFromInt(10)))
	assert.True(t, reqs[RequirementKey("FORENSICS", "Diploma")].Equal(decimal.NewFromInt(30)))
	assert.True(t, reqs["cyber:pg_diploma"].Equal(decimal.RequireFromString("60.5")))
}

func TestParseRequirementsRejectsMalformed(t *testing.T) {
	for _, raw := range []string{"forensics=10", "forensics:certificate", ":certificate=1", "a:b=-3", "a:b=x"} {
		_, err := ParseRequirements(raw)
		assert.Error(t, err, raw)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("QUALIFICATION_REQUIREMENTS", "law:certificate=12")
	t.Setenv("LOCK_WAIT_TIMEOUT", "750ms")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, int32(2), cfg.Credits.Precision)
	assert.Equal(t, "750ms", cfg.Locks.WaitTimeout.String())
	assert.True(t, cfg.Credits.Requirements["law:certificate"].Equal(decimal.NewFromInt(12)))
	assert.True(t, cfg.Credits.TheoryRate.Equal(decimal.RequireFromString("0.0667")))
}

func TestLoadClampsCreditPrecision(t *testing.T) {
	for raw, want := range map[string]int32{"8": 4, "-1": 0, "3": 3} {
		t.Setenv("CREDIT_PRECISION", raw)
		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, want, cfg.Credits.Precision, raw)
	}
}
