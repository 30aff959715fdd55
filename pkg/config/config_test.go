package config

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type backendConfig struct {
	Port       int           `env:"PORT" envDefault:"8080"`
	Backend    string        `env:"BACKEND" envDefault:"opensearch"`
	TieBreaker float64       `env:"TIE_BREAKER" envDefault:"0.3"`
	Timeout    time.Duration `env:"TIMEOUT" envDefault:"2s"`
	Enabled    bool          `env:"ENABLED" envDefault:"false"`
	Brokers    []string      `env:"BROKERS" envDefault:"localhost:9092" envSeparator:","`
}

func (c *backendConfig) Validate() error {
	if c.Backend != "opensearch" && c.Backend != "elasticsearch" {
		return errors.New("unknown backend " + c.Backend)
	}
	return nil
}

func TestLoad_Defaults(t *testing.T) {
	var cfg backendConfig
	require.NoError(t, Load(&cfg, FromMap(map[string]string{})))

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "opensearch", cfg.Backend)
	assert.InDelta(t, 0.3, cfg.TieBreaker, 1e-9)
	assert.Equal(t, 2*time.Second, cfg.Timeout)
	assert.False(t, cfg.Enabled)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Brokers)
}

func TestLoad_FromMap(t *testing.T) {
	var cfg backendConfig
	err := Load(&cfg, FromMap(map[string]string{
		"PORT":        "9090",
		"BACKEND":     "elasticsearch",
		"TIE_BREAKER": "0.7",
		"TIMEOUT":     "750ms",
		"ENABLED":     "true",
		"BROKERS":     "k1:9092,k2:9092",
	}))

	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "elasticsearch", cfg.Backend)
	assert.Equal(t, 750*time.Millisecond, cfg.Timeout)
	assert.True(t, cfg.Enabled)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Brokers)
}

func TestLoad_ProcessEnvironmentWithPrefix(t *testing.T) {
	t.Setenv("GW_TEST_TIMEOUT", "5s")
	t.Setenv("TIMEOUT", "1s")

	var cfg backendConfig
	require.NoError(t, Load(&cfg, WithPrefix("GW_TEST_")))
	assert.Equal(t, 5*time.Second, cfg.Timeout)
}

func TestLoad_RunsValidate(t *testing.T) {
	var cfg backendConfig
	err := Load(&cfg, FromMap(map[string]string{"BACKEND": "solr"}))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "validate config: unknown backend solr")
}

type requiredConfig struct {
	Index string `env:"INDEX,required"`
}

func TestLoad_ParseErrors(t *testing.T) {
	var required requiredConfig
	err := Load(&required, FromMap(map[string]string{}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")

	var cfg backendConfig
	err = Load(&cfg, FromMap(map[string]string{"TIMEOUT": "soon"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}
