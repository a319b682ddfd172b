package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"liquefier/internal/rate"
)

func TestDefaultConfigIsValid(t *testing.T) {
	conf := DefaultConfig()
	require.NoError(t, conf.Validate())

	chs, err := conf.Channels()
	require.NoError(t, err)
	require.Len(t, chs.Levels, 3)
	require.Len(t, chs.Flows, 2)
	assert.Equal(t, 745.0, chs.FlowDivisor)

	fm207, ok := chs.Lookup("ucn2_he4_fm207_rdflow_measured")
	require.True(t, ok)
	assert.Equal(t, "Return Flow (fm207) - corrected", fm207.Label)
	assert.InDelta(t, 100/0.75532+3.57196, fm207.Correction.Apply(100), 1e-9)

	specs := chs.LevelSpecs()
	require.Len(t, specs, 2)
	assert.Equal(t, "ucn2epicsothers_measured", specs[0].Table)
	assert.Equal(t, []string{"ucn2_he4_lvl204_rdlvl_measured", "ucn2_he4_lvl203_rdlvl_measured"}, specs[0].Columns)
}

func TestInitConfigOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
addr: 0.0.0.0:9000
timezone: UTC
history:
  driver: influxdb
pipeline:
  lookback: 24h
  defaultKernel: gaussian
flows:
  - table: others
    column: fm1
    label: Flow 1
    correction:
      kind: affine
      divisor: 2
      offset: 1
`), 0o644))

	conf, err := InitConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9000", conf.Addr)
	assert.Equal(t, HistoryDriverInflux, conf.History.Driver)
	assert.Equal(t, 24*time.Hour, conf.Pipeline.Lookback)
	assert.Equal(t, 745.0, conf.Pipeline.FlowDivisor)
	require.Len(t, conf.Levels, 3)
	require.Len(t, conf.Flows, 1)

	loc, err := conf.Location()
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)

	chs, err := conf.Channels()
	require.NoError(t, err)
	assert.Equal(t, 4.0, chs.Flows[0].Correction.Apply(6))
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(c *Config){
		"driver":     func(c *Config) { c.History.Driver = "csv" },
		"timezone":   func(c *Config) { c.Timezone = "Mars/Olympus" },
		"kernel":     func(c *Config) { c.Pipeline.DefaultKernel = "sinc" },
		"chart path": func(c *Config) { c.Output.ChartPath = "" },
		"nsq":        func(c *Config) { c.NSQ.Enabled = true; c.NSQ.NSQDAddrs = nil },
		"duplicate": func(c *Config) {
			c.Flows = append(c.Flows, c.Flows[0])
		},
		"duplicate label": func(c *Config) {
			c.Flows[1].Label = c.Levels[0].Label
		},
		"label is a column": func(c *Config) {
			c.Levels[1].Label = c.Flows[1].Column
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			conf := DefaultConfig()
			mutate(conf)
			require.Error(t, conf.Validate())
		})
	}
}

func TestChannelsRejectsUnknownCorrection(t *testing.T) {
	conf := DefaultConfig()
	conf.Flows[1].Correction = &CorrectionConfig{Kind: "polynomial"}
	_, err := conf.Channels()
	require.ErrorIs(t, err, ErrInvalidChannel)
}

func TestChannelsWrapsValidationError(t *testing.T) {
	conf := DefaultConfig()
	conf.Levels[0].Factor = 0
	_, err := conf.Channels()
	require.ErrorIs(t, err, ErrInvalidChannel)
	assert.NotErrorIs(t, err, rate.ErrInsufficientSamples)
}
