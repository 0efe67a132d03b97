package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aponysus/callscope/controlplane"
	"github.com/aponysus/callscope/observe"
	"github.com/aponysus/callscope/policy"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "callscope.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

const sampleYAML = `
application: orders
environment: prod
metric_prefix: shop
max_text_length: 512
classify:
  bool_expr: "$.ok"
  components:
    http_client:
      code_expr: "+$.body.code"
    cache:
      enabled: false
policy:
  default:
    digest: onFail
    detail: on_exception
  log_points:
    sql:
      slow_threshold: 250ms
      slow_mode: only_log
  exclude:
    services: ["health*"]
    actions: ["*.ping"]
`

func TestLoadFromFile(t *testing.T) {
	cfg, err := Load(WithFile(writeFile(t, sampleYAML)), WithoutEnv())
	require.NoError(t, err)

	assert.Equal(t, "orders", cfg.Application)
	assert.Equal(t, "prod", cfg.Environment)
	assert.Equal(t, "shop", cfg.MetricPrefix)
	assert.Equal(t, 512, cfg.MaxTextLength)
	assert.Equal(t, controlplane.DefaultMaxMetricIDs, cfg.MaxMetricIDs)
	assert.Equal(t, "$.ok", cfg.Classify.BoolExpr)
	require.NotNil(t, cfg.Classify.Components["cache"].Enabled)
	assert.False(t, *cfg.Classify.Components["cache"].Enabled)
	assert.Nil(t, cfg.Classify.Components["http_client"].Enabled)
	assert.Equal(t, 250*time.Millisecond, cfg.Policy.LogPoints["sql"].SlowThreshold)
	assert.Equal(t, []string{"health*"}, cfg.Policy.Exclude.Services)
}

func TestSnapshotConversion(t *testing.T) {
	cfg, err := Load(WithFile(writeFile(t, sampleYAML)), WithoutEnv())
	require.NoError(t, err)

	snap, err := cfg.Snapshot()
	require.NoError(t, err)

	assert.True(t, snap.IsProduction())
	assert.True(t, snap.Enabled(observe.LogPointHTTPClient))
	assert.False(t, snap.Enabled(observe.LogPointCache))
	assert.Equal(t, "$.ok", snap.DefaultsFor(observe.LogPointSQL).BoolExpr)
	assert.Equal(t, "$.body.code,$.code,$.errorCode,$.status", snap.DefaultsFor(observe.LogPointHTTPClient).CodeExpr)

	def := snap.Policy(observe.LogPointHTTPServer)
	assert.Equal(t, policy.OutputOnFail, def.Digest)
	assert.Equal(t, policy.OutputOnException, def.Detail)

	sql := snap.Policy(observe.LogPointSQL)
	assert.Equal(t, policy.OutputOnFail, sql.Digest)
	assert.Equal(t, policy.SlowOnlyLog, sql.SlowMode)
	assert.True(t, sql.IsSlow(time.Second))
	assert.True(t, sql.Exclude.Match(observe.LogPointSQL, policy.Key{Service: "healthcheck", Action: "x"}))
	assert.True(t, sql.Exclude.Match(observe.LogPointSQL, policy.Key{Service: "db", Action: "ping"}))
	assert.False(t, sql.Exclude.Match(observe.LogPointSQL, policy.Key{Service: "db", Action: "query"}))
}

func TestLoadZeroSlowThresholdDisablesLogPoint(t *testing.T) {
	const doc = `
policy:
  default:
    slow_threshold: 1ms
  log_points:
    job:
      slow_threshold: 0
    sql:
      digest: always
`
	cfg, err := Load(WithFile(writeFile(t, doc)), WithoutEnv())
	require.NoError(t, err)
	assert.Equal(t, policy.SlowDisabled, cfg.Policy.LogPoints["job"].SlowThreshold)
	assert.Zero(t, cfg.Policy.LogPoints["sql"].SlowThreshold)

	snap, err := cfg.Snapshot()
	require.NoError(t, err)
	assert.False(t, snap.Policy(observe.LogPointJob).IsSlow(time.Hour))
	assert.True(t, snap.Policy(observe.LogPointSQL).IsSlow(time.Second), "unset threshold inherits the default")
	assert.True(t, snap.Policy(observe.LogPointCache).IsSlow(time.Second))
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(WithFile(filepath.Join(t.TempDir(), "absent.yaml")), WithoutEnv())
	require.NoError(t, err)
	assert.Equal(t, controlplane.DefaultMaxTextLength, cfg.MaxTextLength)
	assert.Equal(t, controlplane.DefaultMetricPrefix, cfg.MetricPrefix)

	snap, err := cfg.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, controlplane.DefaultApplication, snap.Application)
	assert.Equal(t, controlplane.DefaultEnvironment, snap.Environment)
	assert.Equal(t, policy.OutputAlways, snap.Policy(observe.LogPointJob).Digest)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("CALLSCOPE_APPLICATION", "billing")
	t.Setenv("CALLSCOPE_MAX_TEXT_LENGTH", "64")
	t.Setenv("CALLSCOPE_POLICY__DEFAULT__DETAIL", "none")
	t.Setenv("CALLSCOPE_CLASSIFY__COMPONENTS__JOB__ENABLED", "false")

	cfg, err := Load(WithFile(writeFile(t, sampleYAML)))
	require.NoError(t, err)

	assert.Equal(t, "billing", cfg.Application)
	assert.Equal(t, 64, cfg.MaxTextLength)
	assert.Equal(t, "none", cfg.Policy.Default.Detail)
	require.NotNil(t, cfg.Classify.Components["job"].Enabled)
	assert.False(t, *cfg.Classify.Components["job"].Enabled)
}

func TestLoadCustomEnvPrefix(t *testing.T) {
	t.Setenv("SCOPE_ENVIRONMENT", "staging")

	cfg, err := Load(WithEnvPrefix("SCOPE_"))
	require.NoError(t, err)
	assert.Equal(t, "staging", cfg.Environment)
}

func TestLoadRejectsInvalidDocuments(t *testing.T) {
	cases := map[string]string{
		"unknown level":      "policy:\n  default:\n    digest: sometimes\n",
		"unknown policy key": "policy:\n  defaults: {}\n",
		"unknown log point":  "policy:\n  log_points:\n    ftp: {}\n",
		"bad metric prefix":  "metric_prefix: \"9-bad\"\n",
		"bad duration":       "policy:\n  default:\n    slow_threshold: soon\n",
		"negative count":     "max_text_length: -1\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(WithFile(writeFile(t, doc)), WithoutEnv())
			if !errors.Is(err, ErrInvalid) {
				t.Fatalf("err=%v, want ErrInvalid", err)
			}
		})
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	_, err := Load(WithFile(writeFile(t, "application: [unterminated\n")), WithoutEnv())
	require.Error(t, err)
}

func TestValidateJSON(t *testing.T) {
	require.NoError(t, ValidateJSON([]byte(`{"application":"a","policy":{"default":{"digest":"always"}}}`)))

	err := ValidateJSON([]byte(`{"classify":{"components":{"sql":{"enabled":"maybe"}}}}`))
	require.ErrorIs(t, err, ErrInvalid)

	err = ValidateJSON([]byte(`{not json`))
	require.ErrorIs(t, err, ErrSchemaSystem)
}

func TestSnapshotLoaderWithFileProvider(t *testing.T) {
	path := writeFile(t, sampleYAML)

	p, err := controlplane.NewFileProvider(path, SnapshotLoader(WithoutEnv()))
	require.NoError(t, err)

	snap, err := p.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "orders", snap.Application)
	assert.Equal(t, policy.PolicySourceFile, snap.Source)
}

func TestNilConfigSnapshot(t *testing.T) {
	var cfg *Config
	snap, err := cfg.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, controlplane.DefaultMetricPrefix, snap.MetricPrefix)
	assert.Equal(t, "<nil>", cfg.String())
}
