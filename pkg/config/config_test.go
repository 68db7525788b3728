package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleConfig struct {
	Port     int           `env:"SAMPLE_PORT" envDefault:"8080"`
	Origins  []string      `env:"SAMPLE_ORIGINS" envDefault:"http://localhost:5173" envSeparator:","`
	Timeout  time.Duration `env:"SAMPLE_TIMEOUT" envDefault:"5s"`
	Redis    bool          `env:"SAMPLE_REDIS" envDefault:"false"`
	APIToken string        `env:"SAMPLE_API_TOKEN"`
}

func TestLoad_Defaults(t *testing.T) {
	var cfg sampleConfig
	require.NoError(t, Load(&cfg))

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, []string{"http://localhost:5173"}, cfg.Origins)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.False(t, cfg.Redis)
	assert.Empty(t, cfg.APIToken)
}

func TestLoad_FromEnvVars(t *testing.T) {
	t.Setenv("SAMPLE_PORT", "9090")
	t.Setenv("SAMPLE_ORIGINS", "https://sartree.com,https://www.sartree.com")
	t.Setenv("SAMPLE_TIMEOUT", "250ms")
	t.Setenv("SAMPLE_REDIS", "true")

	var cfg sampleConfig
	require.NoError(t, Load(&cfg))

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, []string{"https://sartree.com", "https://www.sartree.com"}, cfg.Origins)
	assert.Equal(t, 250*time.Millisecond, cfg.Timeout)
	assert.True(t, cfg.Redis)
}

type requiredConfig struct {
	Secret string `env:"SAMPLE_SECRET,required"`
}

func TestLoad_RequiredFieldMissing(t *testing.T) {
	var cfg requiredConfig
	err := Load(&cfg)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}

func TestLoad_InvalidType(t *testing.T) {
	t.Setenv("SAMPLE_PORT", "not-a-number")

	var cfg sampleConfig
	err := Load(&cfg)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}
