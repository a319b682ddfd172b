package history

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/sirupsen/logrus"

	"liquefier/pkg/log"
)

type InfluxConfig struct {
	URL    string `yaml:"url"`
	Org    string `yaml:"org"`
	Bucket string `yaml:"bucket"`
	Token  string `yaml:"token"`
}

// InfluxStore maps history tables to measurements and channel columns to
// fields.
type InfluxStore struct {
	client influxdb2.Client
	query  api.QueryAPI
	bucket string
	logger *logrus.Entry
}

func NewInfluxStore(conf InfluxConfig) *InfluxStore {
	client := influxdb2.NewClient(conf.URL, conf.Token)
	return &InfluxStore{
		client: client,
		query:  client.QueryAPI(conf.Org),
		bucket: conf.Bucket,
		logger: log.Component("history"),
	}
}

func (s *InfluxStore) Close() {
	s.client.Close()
}

var fluxEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "${", `\${`)

// fluxString quotes s as a Flux string literal.
func fluxString(s string) string {
	return `"` + fluxEscaper.Replace(s) + `"`
}

func fluxQuery(bucket, measurement string, fields []string, start, end int64) string {
	filters := make([]string, len(fields))
	for i, f := range fields {
		filters[i] = fmt.Sprintf(`r["_field"] == %s`, fluxString(f))
	}
	return fmt.Sprintf(
		`from(bucket: %s)
      |> range(start: time(v: "%s"), stop: time(v: "%s"))
      |> filter(fn: (r) => r["_measurement"] == %s)
      |> filter(fn: (r) => %s)
      |> pivot(rowKey: ["_time"], columnKey: ["_field"], valueColumn: "_value")
      |> sort(columns: ["_time"])`,
		fluxString(bucket),
		time.Unix(start, 0).UTC().Format(time.RFC3339),
		time.Unix(end, 0).UTC().Format(time.RFC3339),
		fluxString(measurement),
		strings.Join(filters, " or "),
	)
}

func (s *InfluxStore) Query(ctx context.Context, table string, columns []string, start, end int64) (*Result, error) {
	if len(columns) == 0 {
		return newResult(nil, 0), nil
	}

	res, err := s.query.Query(ctx, fluxQuery(s.bucket, table, columns, start, end))
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", table, err)
	}
	defer res.Close()

	out := newResult(columns, 1024)
	for res.Next() {
		rec := res.Record()
		t := rec.Time()
		out.Times = append(out.Times, float64(t.UnixNano())/float64(time.Second))
		for i, col := range columns {
			out.Values[i] = append(out.Values[i], toFloat64(rec.ValueByKey(col)))
		}
	}
	if res.Err() != nil {
		return nil, fmt.Errorf("query %s result error: %v", table, res.Err())
	}

	out.dropMissing()
	s.logger.Debugf("fetched %d rows from measurement %s", out.Len(), table)
	return out, nil
}

func toFloat64(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case float32:
		return float64(t)
	case int64:
		return float64(t)
	case uint64:
		return float64(t)
	case int32:
		return float64(t)
	case uint32:
		return float64(t)
	case int:
		return float64(t)
	case uint:
		return float64(t)
	default:
		return math.NaN()
	}
}
