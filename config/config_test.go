package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testYAML = `
app:
  token_issuer: elearning-auth
server:
  port: 9090
cache:
  resources:
    courses:
      ttl: 1m
    badges:
      ttl: 2h
      max_entries: 50
queue:
  driver: memory
  retry_attempts: 4
upload:
  provider: local
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func setSecrets(t *testing.T) {
	t.Helper()
	t.Setenv("ACCESS_TOKEN_SECRET", "access-secret")
	t.Setenv("SERVICE_TOKEN_SECRET", "service-secret")
}

func TestReadAppliesDefaultsAndOverrides(t *testing.T) {
	setSecrets(t)
	t.Setenv("COURSE_SERVICE_ADDR", "courses:7000")

	cfg, err := read(writeConfig(t, testYAML))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server().Port())
	assert.Equal(t, 10*time.Second, cfg.Server().ShutdownTimeout())
	assert.Equal(t, "courses:7000", cfg.Upstreams().CourseServiceAddr())
	assert.Equal(t, "localhost:50052", cfg.Upstreams().UserServiceAddr())

	assert.Equal(t, 5, cfg.Breaker().FailureThreshold())
	assert.Equal(t, 30*time.Second, cfg.Breaker().ResetTimeout())
	assert.Equal(t, 2, cfg.Breaker().HalfOpenSuccess())

	assert.Equal(t, 3, cfg.Retry().Attempts())
	assert.Equal(t, 200*time.Millisecond, cfg.Retry().InitialDelay())
	assert.Equal(t, 2*time.Second, cfg.Retry().MaxDelay())

	assert.Equal(t, QueueDriverMemory, cfg.Queue().Driver())
	assert.Equal(t, 4, cfg.Queue().RetryAttempts())
	assert.Equal(t, "notifications", cfg.Queue().PrimaryName())
	assert.Equal(t, "notifications:dead", cfg.Queue().DeadLetterName())
	assert.Equal(t, 5*time.Second, cfg.Queue().RetryDelay())
}

func TestCachePoliciesMergeOverBuiltIns(t *testing.T) {
	setSecrets(t)

	cfg, err := read(writeConfig(t, testYAML))
	require.NoError(t, err)

	policies := cfg.Cache().Policies()
	assert.Equal(t, ResourcePolicy{TTL: 15 * time.Minute, MaxEntries: 1000}, policies["packages"])
	assert.Equal(t, ResourcePolicy{TTL: 30 * time.Minute, MaxEntries: 1000}, policies["users"])
	assert.Equal(t, ResourcePolicy{TTL: time.Minute, MaxEntries: 1000}, policies["courses"])
	assert.Equal(t, ResourcePolicy{TTL: 2 * time.Hour, MaxEntries: 50}, policies["badges"])
	assert.Contains(t, policies, "enrollments")
}

func TestValidate(t *testing.T) {
	setSecrets(t)

	path := writeConfig(t, testYAML)

	t.Run("defaults are valid", func(t *testing.T) {
		cfg, err := read(path)
		require.NoError(t, err)
		cfg.UploadCfg.LocalDirStr = t.TempDir()
		assert.NoError(t, Validate(cfg))
	})

	cases := []struct {
		name   string
		mutate func(c *config)
		want   string
	}{
		{
			name:   "shared token secret",
			mutate: func(c *config) { c.AppCfg.ServiceTokenSecretStr = c.AppCfg.AccessTokenSecretStr },
			want:   "must differ",
		},
		{
			name:   "same queue names",
			mutate: func(c *config) { c.QueueCfg.DeadLetterNameStr = c.QueueCfg.PrimaryNameStr },
			want:   "dead_letter_name",
		},
		{
			name:   "unknown rate policy",
			mutate: func(c *config) { c.RateLimitCfg.OutboundPolicyStr = "drop" },
			want:   "outbound_policy",
		},
		{
			name:   "max delay below initial delay",
			mutate: func(c *config) { c.RetryCfg.MaxDelayStr = "10ms" },
			want:   "max_delay",
		},
		{
			name:   "zero breaker threshold",
			mutate: func(c *config) { c.BreakerCfg.FailureThresholdInt = 0 },
			want:   "failure_threshold",
		},
		{
			name: "resource without capacity",
			mutate: func(c *config) {
				c.CacheCfg.ResourcesMap["quizzes"] = resourcePolicyConfig{TTLStr: "1m"}
			},
			want: "quizzes",
		},
		{
			name:   "sendgrid without key",
			mutate: func(c *config) { c.EmailCfg.ProviderStr = "sendgrid" },
			want:   "EMAIL_SENDGRID_API_KEY",
		},
		{
			name:   "bad upstream address",
			mutate: func(c *config) { c.UpstreamsCfg.UserServiceAddrStr = "users" },
			want:   "user_service_addr",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := read(path)
			require.NoError(t, err)
			cfg.UploadCfg.LocalDirStr = t.TempDir()
			tc.mutate(cfg)

			err = Validate(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestLoadIsMemoized(t *testing.T) {
	setSecrets(t)
	Reset()
	t.Cleanup(Reset)

	first, err := Load(writeConfig(t, testYAML))
	require.NoError(t, err)

	second, err := Load(writeConfig(t, "server:\n  port: 1\n"))
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, first, MustGet())
}

func TestMustGetPanicsBeforeLoad(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	assert.Panics(t, func() { MustGet() })
}
