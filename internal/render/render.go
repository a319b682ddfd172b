package render

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"liquefier/internal/rate"
	"liquefier/pkg/log"
)

const (
	ProductionName = "Amount of liquified He (sum)"
	YAxisName      = "Change in Level or Flow (Liquid L/h)"

	DefaultWidth  = 900
	DefaultHeight = 600

	timeLayout = "Jan 2 15:04"
)

var page = template.Must(template.New("chart").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
</head>
<body>
{{if .Chart}}{{.Chart}}{{else}}<p>No liquefier data between {{.From}} and {{.To}}.</p>{{end}}
<p>Updated {{.Updated}}</p>
</body>
</html>
`))

type pageData struct {
	Title    string
	Chart    template.HTML
	From, To string
	Updated  string
}

// Renderer writes the production chart as an HTML document with an inline SVG
// to a fixed path.
type Renderer struct {
	path      string
	width     int
	height    int
	loc       *time.Location
	publisher Publisher
	now       func() time.Time
	logger    *logrus.Entry
}

type Option func(r *Renderer)

func WithSize(width, height int) Option {
	return func(r *Renderer) {
		if width > 0 {
			r.width = width
		}
		if height > 0 {
			r.height = height
		}
	}
}

func WithLocation(loc *time.Location) Option {
	return func(r *Renderer) {
		if loc != nil {
			r.loc = loc
		}
	}
}

func WithPublisher(p Publisher) Option {
	return func(r *Renderer) {
		r.publisher = p
	}
}

func New(path string, opts ...Option) *Renderer {
	r := &Renderer{
		path:   path,
		width:  DefaultWidth,
		height: DefaultHeight,
		loc:    time.Local,
		now:    time.Now,
		logger: log.Component("render"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Renderer) Path() string {
	return r.path
}

// Title describes the smoothing applied to the plotted rates.
func Title(sm rate.Smoothing) string {
	if !sm.Enabled() {
		return "Liquid helium production rate, no smoothing"
	}
	if sm.Kernel == rate.KernelGaussian {
		return fmt.Sprintf("Gaussian filter smoothing σ: %.3g min", sm.Std/float64(rate.SamplesPerMinute))
	}
	name := string(sm.Kernel)
	if name == "" {
		name = string(rate.KernelBoxcar)
	}
	return fmt.Sprintf("%s%s filter smoothing, window: %.3g min", strings.ToUpper(name[:1]), name[1:], sm.Minutes())
}

// Render draws one line per rate column and a thick black production line,
// then replaces the artifact. With fewer than two rows a page saying there is
// no data is written instead.
func (r *Renderer) Render(ctx context.Context, res *rate.Result) error {
	data := pageData{
		Title:   Title(res.Smoothing),
		From:    r.format(res.Start),
		To:      r.format(res.End),
		Updated: r.now().In(r.loc).Format(time.RFC1123),
	}
	if res.Len() >= 2 {
		var buf bytes.Buffer
		if err := r.chart(res).Render(chart.SVG, &buf); err != nil {
			return fmt.Errorf("render chart: %w", err)
		}
		data.Chart = template.HTML(buf.String())
	} else {
		r.logger.Infof("no rates between %s and %s, writing empty chart", data.From, data.To)
	}

	err := WriteFileAtomic(r.path, func(w io.Writer) error {
		return page.Execute(w, data)
	})
	if err != nil {
		return err
	}
	r.logger.Infof("chart with %d rows written to %s", res.Len(), r.path)

	if r.publisher != nil {
		if err := r.publisher.Publish(ctx, r.path); err != nil {
			return err
		}
		r.logger.Debugf("chart %s published", r.path)
	}
	return nil
}

func (r *Renderer) format(epoch int64) string {
	if epoch == 0 {
		return "-"
	}
	return time.Unix(epoch, 0).In(r.loc).Format(timeLayout)
}

func (r *Renderer) chart(res *rate.Result) chart.Chart {
	idx := res.Rates.Index()
	times := make([]time.Time, len(idx))
	for i, ts := range idx {
		times[i] = time.Unix(ts, 0)
	}

	var series []chart.Series
	for i, col := range res.RateColumns() {
		series = append(series, chart.TimeSeries{
			Name:    col,
			XValues: times,
			YValues: res.Rates.Column(col),
			Style: chart.Style{
				StrokeWidth: 1.5,
				StrokeColor: chart.GetDefaultColor(i),
			},
		})
	}
	series = append(series, chart.TimeSeries{
		Name:    ProductionName,
		XValues: times,
		YValues: res.Production,
		Style: chart.Style{
			StrokeWidth: 4,
			StrokeColor: drawing.ColorBlack,
		},
	})

	ch := chart.Chart{
		Title:      Title(res.Smoothing),
		Width:      r.width,
		Height:     r.height,
		Background: chart.Style{Padding: chart.Box{Top: 40, Left: 16, Right: 16, Bottom: 16}},
		XAxis: chart.XAxis{
			Name:           "Time (" + r.loc.String() + ")",
			ValueFormatter: TimeFormatter(r.loc),
		},
		YAxis: chart.YAxis{
			Name: YAxisName,
		},
		Series: series,
	}
	ch.Elements = []chart.Renderable{chart.LegendLeft(&ch)}
	return ch
}

// TimeFormatter formats axis values in loc. go-chart hands time series values
// over as nanoseconds since the epoch.
func TimeFormatter(loc *time.Location) chart.ValueFormatter {
	return func(v interface{}) string {
		var t time.Time
		switch x := v.(type) {
		case time.Time:
			t = x
		case float64:
			t = time.Unix(0, int64(x))
		case int64:
			t = time.Unix(0, x)
		default:
			return ""
		}
		return t.In(loc).Format(timeLayout)
	}
}

// WriteFileAtomic writes through a temporary file in the target directory and
// renames it over path, so readers never see a partial file.
func WriteFileAtomic(path string, write func(w io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := write(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmp.Name(), err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}
