package core

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_MatchesSpecDefaults(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 40.0, cfg.SLA.Express.WarningMin)
	assert.Equal(t, 60.0, cfg.SLA.Express.BreachMin)
	assert.Equal(t, 240.0, cfg.SLA.Standard.BreachMin)
	assert.Equal(t, 5, cfg.Capacity.Bike.Barq)
	assert.Equal(t, 25, cfg.Capacity.Van.Bullet)
	assert.Equal(t, 300_000, cfg.RouteCache.TTLMs)
	assert.Equal(t, 32, cfg.Orchestrator.Parallelism)
	assert.Equal(t, 256, cfg.Orchestrator.InflightMax)
}

func TestNewConfig_EnvOverridesDefaultsButOptionsWin(t *testing.T) {
	os.Setenv("ORCHESTRATOR_PARALLELISM", "64")
	defer os.Unsetenv("ORCHESTRATOR_PARALLELISM")

	cfg, err := NewConfig(WithOrchestratorInflightMax(10))
	require.NoError(t, err)
	assert.Equal(t, 64, cfg.Orchestrator.Parallelism)
	assert.Equal(t, 10, cfg.Orchestrator.InflightMax)
}

func TestValidate_RejectsNonMonotonicThresholds(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SLA.Express.WarningMin = 60
	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestCapacityFor(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, CapacityEntry{Barq: 8, Bullet: 15}, cfg.CapacityFor("CAR"))
	assert.Equal(t, CapacityEntry{Barq: 5, Bullet: 8}, cfg.CapacityFor("UNKNOWN"))
}
