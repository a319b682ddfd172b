package cmd

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"liquefier/internal/command"
	"liquefier/internal/config"
	"liquefier/internal/history"
	"liquefier/internal/loader"
	"liquefier/internal/model"
	"liquefier/internal/rate"
	"liquefier/internal/render"
	"liquefier/pkg/log"
)

// app holds what every command builds from the config file.
type app struct {
	conf     *config.Config
	loc      *time.Location
	channels rate.ChannelSet
	store    history.Store
	closers  []func()
	logger   *logrus.Entry
}

func newApp(configPath string) (*app, error) {
	conf, err := config.InitConfig(configPath)
	if err != nil {
		return nil, err
	}
	loc, err := conf.Location()
	if err != nil {
		return nil, err
	}
	chs, err := conf.Channels()
	if err != nil {
		return nil, err
	}
	a := &app{
		conf:     conf,
		loc:      loc,
		channels: chs,
		logger:   log.Component("app"),
	}

	switch conf.History.Driver {
	case config.HistoryDriverMySQL:
		db, err := model.InitDB(conf.History.DB)
		if err != nil {
			return nil, fmt.Errorf("failed to init database: %w", err)
		}
		a.closers = append(a.closers, func() { model.CloseDB(db) })
		a.store = history.NewSQLStore(db, conf.History.TimeColumn)
	case config.HistoryDriverInflux:
		influx := history.NewInfluxStore(conf.History.InfluxDB)
		a.closers = append(a.closers, influx.Close)
		a.store = influx
	default:
		a.logger.Warn("memory history store in use, it starts empty")
		a.store = history.NewMemStore()
	}
	a.logger.Infof("history driver %s, %d level and %d flow channels", conf.History.Driver, len(chs.Levels), len(chs.Flows))
	return a, nil
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func (a *app) loader() *loader.Loader {
	return loader.New(a.store)
}

func (a *app) pipeline() *rate.Pipeline {
	return rate.NewPipeline(a.channels, a.loader(), a.conf.Pipeline.MaxRows)
}

func (a *app) renderer() (*render.Renderer, error) {
	opts := []render.Option{
		render.WithSize(a.conf.Output.Width, a.conf.Output.Height),
		render.WithLocation(a.loc),
	}
	if a.conf.S3.Enabled {
		pub, err := render.NewS3Publisher(a.conf.S3)
		if err != nil {
			return nil, err
		}
		opts = append(opts, render.WithPublisher(pub))
	}
	return render.New(a.conf.Output.ChartPath, opts...), nil
}

func (a *app) defaults() command.Defaults {
	kernel, _ := rate.ParseKernel(a.conf.Pipeline.DefaultKernel)
	return command.Defaults{
		Lookback: a.conf.Pipeline.Lookback,
		Width:    a.conf.Pipeline.DefaultWidth,
		Kernel:   kernel,
	}
}

// timeRange reads optional start and end flags. A missing end is now and a
// missing start is end minus lookback.
func (a *app) timeRange(startArg, endArg string, lookback time.Duration) (int64, int64, error) {
	end := time.Now()
	if endArg != "" {
		t, err := command.ParseTime(endArg, a.loc)
		if err != nil {
			return 0, 0, err
		}
		end = t
	}
	start := end.Add(-lookback)
	if startArg != "" {
		t, err := command.ParseTime(startArg, a.loc)
		if err != nil {
			return 0, 0, err
		}
		start = t
	}
	if !start.Before(end) {
		return 0, 0, fmt.Errorf("start %s is not before end %s", start, end)
	}
	return start.Unix(), end.Unix(), nil
}
