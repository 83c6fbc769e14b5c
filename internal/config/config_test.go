package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`news_query: "label:newsletters"`))
	require.NoError(t, err)

	assert.Equal(t, "label:newsletters", cfg.NewsQuery)
	assert.Equal(t, DefaultLookbackDays, cfg.LookbackDays)
	assert.Equal(t, DefaultWindowDays, cfg.WindowDays)
	assert.Equal(t, DefaultTimezone, cfg.Timezone)
	assert.Equal(t, DefaultTwoStageThreshold, cfg.TwoStageThreshold)
	assert.Equal(t, DefaultDeepLimit, cfg.DeepLimit)
	assert.Equal(t, DefaultSummaryLimit, cfg.SummaryLimit)
	assert.Equal(t, DefaultModel, cfg.Model)
	assert.Equal(t, DefaultRankMaxTokens, cfg.RankMaxTokens)
	assert.Equal(t, DefaultAnalyzeMaxTokens, cfg.AnalyzeMaxTokens)
	require.NotNil(t, cfg.AnalyzeTemperature)
	assert.InDelta(t, DefaultAnalyzeTemperature, *cfg.AnalyzeTemperature, 1e-9)
	assert.Equal(t, DefaultSchedule, cfg.Schedule)
	assert.Equal(t, DefaultMeetingsLimit, cfg.Team.MeetingsLimit)
	assert.Equal(t, DefaultOutputDir, cfg.Output.Dir)
	assert.Equal(t, DefaultSlackChannel, cfg.Slack.Channel)
	assert.Equal(t, DefaultCredentialsFile, cfg.Google.CredentialsFile)
	assert.Equal(t, DefaultTokenFile, cfg.Google.TokenFile)
}

func TestParseExplicitZeroTemperature(t *testing.T) {
	cfg, err := Parse([]byte("news_query: x\nanalyze_temperature: 0\n"))
	require.NoError(t, err)
	require.NotNil(t, cfg.AnalyzeTemperature)
	assert.Equal(t, 0.0, *cfg.AnalyzeTemperature)
}

func TestParseKeepsExplicitZeroLimits(t *testing.T) {
	cfg, err := Parse([]byte("news_query: x\nsummary_limit: 0\ndeep_limit: 3\n"))
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.SummaryLimit)
	assert.Equal(t, 3, cfg.DeepLimit)
	assert.Equal(t, DefaultTwoStageThreshold, cfg.TwoStageThreshold)
	assert.EqualError(t, cfg.Validate(), "summary_limit must be positive, got 0")
}

func TestParseInvalidYAML(t *testing.T) {
	_, err := Parse([]byte("news_query: [unterminated"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr bool
	}{
		{"valid", "news_query: x", false},
		{"missing query", "timezone: UTC", true},
		{"blank query", "news_query: '   '", true},
		{"negative deep limit", "news_query: x\ndeep_limit: -1", true},
		{"zero deep limit", "news_query: x\ndeep_limit: 0", true},
		{"zero summary limit", "news_query: x\nsummary_limit: 0", true},
		{"zero two stage threshold", "news_query: x\ntwo_stage_threshold: 0", true},
		{"explicit limits", "news_query: x\ndeep_limit: 2\nsummary_limit: 1\ntwo_stage_threshold: 5", false},
		{"lookback shorter than window", "news_query: x\nlookback_days: 3\nwindow_days: 7", true},
		{"bad timezone", "news_query: x\ntimezone: Mars/Olympus", true},
		{"temperature too high", "news_query: x\nanalyze_temperature: 1.5", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Parse([]byte(tt.yaml))
			require.NoError(t, err)
			err = cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateMissingQuerySentinel(t *testing.T) {
	cfg, err := Parse([]byte("timezone: UTC"))
	require.NoError(t, err)
	assert.ErrorIs(t, cfg.Validate(), ErrMissingQuery)
}

func TestLocation(t *testing.T) {
	cfg, err := Parse([]byte("news_query: x\ntimezone: Europe/Berlin"))
	require.NoError(t, err)
	assert.Equal(t, "UTC", cfg.Location().String(), "location defaults to UTC before validation")
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "Europe/Berlin", cfg.Location().String())
}

func TestLoadResolvesPathsAndEnv(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ".env", "ANTHROPIC_API_KEY=sk-test\nSLACK_BOT_TOKEN=xoxb-test\nSLACK_CHANNEL=#from-env\n")
	path := writeFile(t, dir, "config.yaml", `
news_query: "label:ai"
team:
  overview_file: context/team.md
  meetings_dir: /abs/meet
output:
  dir: out
  mirror_dirs: [mirror]
`)

	for _, k := range []string{EnvAnthropicAPIKey, EnvSlackBotToken, EnvSlackChannel} {
		k := k
		old, had := os.LookupEnv(k)
		require.NoError(t, os.Unsetenv(k))
		t.Cleanup(func() {
			if had {
				os.Setenv(k, old)
			} else {
				os.Unsetenv(k)
			}
		})
	}

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.Dir)
	assert.Equal(t, filepath.Join(dir, "context/team.md"), cfg.Team.OverviewFile)
	assert.Equal(t, "/abs/meet", cfg.Team.MeetingsDir)
	assert.Equal(t, filepath.Join(dir, "out"), cfg.Output.Dir)
	assert.Equal(t, []string{filepath.Join(dir, "mirror")}, cfg.Output.MirrorDirs)
	assert.Equal(t, filepath.Join(dir, DefaultCredentialsFile), cfg.Google.CredentialsFile)
	assert.Equal(t, filepath.Join(dir, DefaultTokenFile), cfg.Google.TokenFile)
	assert.Empty(t, cfg.History.Path)

	assert.Equal(t, "sk-test", cfg.AnthropicAPIKey)
	assert.Equal(t, "xoxb-test", cfg.SlackBotToken)
	assert.Equal(t, "#from-env", cfg.Slack.Channel)
	assert.True(t, cfg.SlackEnabled())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, "notes"), ExpandHome("~/notes"))
	assert.Equal(t, home, ExpandHome("~"))
	assert.Equal(t, "/tmp/x", ExpandHome("/tmp/x"))
	assert.Equal(t, "~other/x", ExpandHome("~other/x"))
}
