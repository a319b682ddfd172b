package config

import (
	"errors"
	"fmt"
	"time"

	"liquefier/internal/history"
	"liquefier/internal/model"
	"liquefier/internal/rate"
)

const (
	HistoryDriverMySQL  = "mysql"
	HistoryDriverInflux = "influxdb"
	HistoryDriverMemory = "memory"
)

var ErrInvalidChannel = errors.New("invalid channel")

type HistoryConfig struct {
	Driver     string               `yaml:"driver"`
	TimeColumn string               `yaml:"timeColumn"`
	DB         model.DBConfig       `yaml:"db"`
	InfluxDB   history.InfluxConfig `yaml:"influxdb"`
}

type PipelineConfig struct {
	FlowDivisor float64 `yaml:"flowDivisor"`
	MaxRows     int     `yaml:"maxRows"`
	// Lookback is the range used when a request has no start.
	Lookback time.Duration `yaml:"lookback"`
	// DefaultWidth is the smoothing window in minutes for requests without one.
	DefaultWidth  float64 `yaml:"defaultWidth"`
	DefaultKernel string  `yaml:"defaultKernel"`
	// Sigma is the gaussian standard deviation, in grid steps, of the render command.
	Sigma float64 `yaml:"sigma"`
}

type OutputConfig struct {
	ChartPath string `yaml:"chartPath"`
	Width     int    `yaml:"width"`
	Height    int    `yaml:"height"`
}

type S3Config struct {
	Enabled         bool   `yaml:"enabled"`
	Bucket          string `yaml:"bucket"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"accessKeyID"`
	SecretAccessKey string `yaml:"secretAccessKey"`
	UseSSL          bool   `yaml:"useSSL"`
	Region          string `yaml:"region"`
	ObjectPath      string `yaml:"objectPath"`
}

type NSQConfig struct {
	Enabled      bool          `yaml:"enabled"`
	NSQDAddrs    []string      `yaml:"nsqdAddrs"`
	LookupdAddrs []string      `yaml:"lookupdAddrs"`
	PollInterval time.Duration `yaml:"pollInterval"`
	Topic        string        `yaml:"topic"`
	Channel      string        `yaml:"channel"`
	ReplyTopic   string        `yaml:"replyTopic"`
	ProducerAddr string        `yaml:"producerAddr"`
}

type StatusConfig struct {
	// Dir keeps the run registry on disk. Empty keeps it in memory.
	Dir string        `yaml:"dir"`
	TTL time.Duration `yaml:"ttl"`
}

type CalibrationConfig struct {
	// Start and End bound the reference period, local time as YYYY-MM-DD HH:MM.
	Start     string        `yaml:"start"`
	End       string        `yaml:"end"`
	Window    time.Duration `yaml:"window"`
	Reference string        `yaml:"reference"`
	Levels    []string      `yaml:"levels"`
	Correct   bool          `yaml:"correct"`
	Output    string        `yaml:"output"`
}

type CorrectionConfig struct {
	Kind    string  `yaml:"kind"`
	Divisor float64 `yaml:"divisor"`
	Offset  float64 `yaml:"offset"`
}

type ChannelConfig struct {
	Table      string            `yaml:"table"`
	Column     string            `yaml:"column"`
	Label      string            `yaml:"label"`
	Factor     float64           `yaml:"factor"`
	Correction *CorrectionConfig `yaml:"correction,omitempty"`
}

type Config struct {
	Addr        string            `yaml:"addr"`
	SSLCert     string            `yaml:"sslCert"`
	SSLKey      string            `yaml:"sslKey"`
	JwtSecret   string            `yaml:"jwtSecret"`
	Timezone    string            `yaml:"timezone"`
	History     HistoryConfig     `yaml:"history"`
	Pipeline    PipelineConfig    `yaml:"pipeline"`
	Output      OutputConfig      `yaml:"output"`
	S3          S3Config          `yaml:"s3"`
	NSQ         NSQConfig         `yaml:"nsq"`
	Status      StatusConfig      `yaml:"status"`
	Calibration CalibrationConfig `yaml:"calibration"`
	Levels      []ChannelConfig   `yaml:"levels"`
	Flows       []ChannelConfig   `yaml:"flows"`
}

func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %s: %w", c.Timezone, err)
	}
	return loc, nil
}

// Channels builds the channel set the loader and the rate pipeline run on.
func (c *Config) Channels() (rate.ChannelSet, error) {
	set := rate.ChannelSet{FlowDivisor: c.Pipeline.FlowDivisor}
	for _, cc := range c.Levels {
		ch, err := cc.channel()
		if err != nil {
			return rate.ChannelSet{}, err
		}
		set.Levels = append(set.Levels, ch)
	}
	for _, cc := range c.Flows {
		ch, err := cc.channel()
		if err != nil {
			return rate.ChannelSet{}, err
		}
		set.Flows = append(set.Flows, ch)
	}
	if err := set.Validate(); err != nil {
		return rate.ChannelSet{}, fmt.Errorf("%w: %v", ErrInvalidChannel, err)
	}
	return set, nil
}

func (cc ChannelConfig) channel() (rate.Channel, error) {
	ch := rate.Channel{
		Table:      cc.Table,
		Column:     cc.Column,
		Label:      cc.Label,
		Factor:     cc.Factor,
		Correction: rate.Identity(),
	}
	if cc.Correction != nil {
		switch rate.CorrectionKind(cc.Correction.Kind) {
		case rate.CorrectionAffine, "":
			ch.Correction = rate.Affine(cc.Correction.Divisor, cc.Correction.Offset)
		case rate.CorrectionIdentity:
		default:
			return rate.Channel{}, fmt.Errorf("%w: %s: unknown correction kind %q", ErrInvalidChannel, cc.Column, cc.Correction.Kind)
		}
	}
	return ch, nil
}

func (c *Config) Validate() error {
	switch c.History.Driver {
	case HistoryDriverMySQL, HistoryDriverInflux, HistoryDriverMemory:
	default:
		return fmt.Errorf("unknown history driver %q", c.History.Driver)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if _, err := c.Channels(); err != nil {
		return err
	}
	if _, err := rate.ParseKernel(c.Pipeline.DefaultKernel); err != nil {
		return err
	}
	if c.Pipeline.MaxRows < 0 {
		return fmt.Errorf("pipeline.maxRows must not be negative")
	}
	if c.Output.ChartPath == "" {
		return fmt.Errorf("output.chartPath is required")
	}
	if c.NSQ.Enabled && len(c.NSQ.NSQDAddrs) == 0 && len(c.NSQ.LookupdAddrs) == 0 {
		return fmt.Errorf("nsq enabled without nsqd or lookupd addresses")
	}
	return nil
}

func DefaultConfig() *Config {
	return &Config{
		Addr:     "127.0.0.1:8081",
		Timezone: "America/Vancouver",
		History: HistoryConfig{
			Driver:     HistoryDriverMySQL,
			TimeColumn: history.DefaultTimeColumn,
			DB:         *model.DefaultDBConfig(),
			InfluxDB: history.InfluxConfig{
				URL:    "http://127.0.0.1:8086",
				Org:    "ucn",
				Bucket: "ucnhistory",
			},
		},
		Pipeline: PipelineConfig{
			FlowDivisor:   rate.DefaultFlowDivisor,
			MaxRows:       rate.DefaultMaxRows,
			Lookback:      7 * 24 * time.Hour,
			DefaultWidth:  30,
			DefaultKernel: string(rate.KernelBoxcar),
			Sigma:         30,
		},
		Output: OutputConfig{
			ChartPath: "/home/ucn/online/ucn-web-control/liquid_production/liquid_prod_rate_fig.html",
			Width:     900,
			Height:    600,
		},
		S3: S3Config{
			Bucket:     "liquefier",
			Endpoint:   "127.0.0.1:9000",
			Region:     "us-east-1",
			ObjectPath: "liquid_production/liquid_prod_rate_fig.html",
		},
		NSQ: NSQConfig{
			NSQDAddrs:    []string{"127.0.0.1:4150"},
			PollInterval: 5 * time.Second,
			Topic:        "liquefier_commands",
			Channel:      "liquefier",
			ReplyTopic:   "liquefier_replies",
			ProducerAddr: "127.0.0.1:4150",
		},
		Status: StatusConfig{
			TTL: 7 * 24 * time.Hour,
		},
		Calibration: CalibrationConfig{
			Start:     "2024-10-11 01:50",
			End:       "2024-10-11 07:00",
			Window:    30 * time.Minute,
			Reference: "ucn2_he4_fm207_rdflow_measured",
			Levels:    []string{"ucn2_he4_lvl203_rdlvl_measured", "ucn2_he4_lvl201_rdlvl_measured"},
			Output:    "calibration_fm207.png",
		},
		Levels: []ChannelConfig{
			{Table: "ucn2epicsothers_measured", Column: "ucn2_he4_lvl204_rdlvl_measured", Label: "MD Level (lvl204)", Factor: 12.6},
			{Table: "ucn2epicsothers_measured", Column: "ucn2_he4_lvl203_rdlvl_measured", Label: "4K Pot Level (lvl203)", Factor: 2.5834},
			{Table: "ucn2epicsphase2b_measured", Column: "ucn2_he4_lvl201_rdlvl_measured", Label: "1K Pot Level (lvl201)", Factor: 0.4519},
		},
		Flows: []ChannelConfig{
			{
				Table:      "ucn2epicsothers_measured",
				Column:     "ucn2_he4_fm207_rdflow_measured",
				Label:      "Return Flow (fm207) - corrected",
				Correction: &CorrectionConfig{Kind: string(rate.CorrectionAffine), Divisor: 0.75532, Offset: 3.57196},
			},
			{Table: "ucn2epicsothers_measured", Column: "ucn2_he4_fm206_rdflow_measured", Label: "TL Return Flow (fm206)"},
		},
	}
}
