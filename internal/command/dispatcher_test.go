package command

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"liquefier/internal/frame"
	"liquefier/internal/rate"
	"liquefier/internal/status"
)

type fakeRunner struct {
	calls      int
	start, end int64
	sm         rate.Smoothing
	err        error
}

func (f *fakeRunner) Run(_ context.Context, start, end int64, sm rate.Smoothing) (*rate.Result, error) {
	f.calls++
	f.start, f.end, f.sm = start, end, sm
	if f.err != nil {
		return nil, f.err
	}
	tb := frame.New([]int64{start, start + 10, start + 20})
	_ = tb.SetColumn("Level", []float64{1, 2, 3})
	return &rate.Result{Rates: tb, Production: []float64{1, 2, 3}, Start: start, End: end, Smoothing: sm}, nil
}

type fakeRenderer struct {
	calls int
	err   error
}

func (f *fakeRenderer) Render(context.Context, *rate.Result) error {
	f.calls++
	return f.err
}

type memRecorder struct {
	runs []*status.Run
}

func (m *memRecorder) Record(run *status.Run) error {
	m.runs = append(m.runs, run)
	return nil
}

func (m *memRecorder) Last() (*status.Run, error) {
	for i := len(m.runs) - 1; i >= 0; i-- {
		if m.runs[i].Succeeded() {
			return m.runs[i], nil
		}
	}
	return nil, status.ErrNoRun
}

var now = time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

func newTestDispatcher(t *testing.T) (*Dispatcher, *fakeRunner, *fakeRenderer, *memRecorder) {
	runner := &fakeRunner{}
	renderer := &fakeRenderer{}
	rec := &memRecorder{}
	d := NewDispatcher(runner, renderer, rec, time.UTC, Defaults{
		Lookback: 7 * 24 * time.Hour,
		Width:    30,
		Kernel:   rate.KernelBoxcar,
	})
	d.now = func() time.Time { return now }
	return d, runner, renderer, rec
}

func TestRecompute(t *testing.T) {
	d, runner, renderer, rec := newTestDispatcher(t)

	resp := d.Handle(context.Background(), &Request{
		Id:      "req-1",
		Command: "recompute",
		Args:    json.RawMessage(`{"start":"2024-05-01 00:00","end":"2024-05-02 00:00","width":"10","fn":"gaussian;{\"std\":0.2}"}`),
	})
	require.Equal(t, StatusSuccess, resp.Status, resp.Message)
	assert.Equal(t, "req-1", resp.Id)
	assert.Equal(t, 1, renderer.calls)

	start := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC).Unix()
	assert.Equal(t, start, runner.start)
	assert.Equal(t, start+86400, runner.end)
	assert.Equal(t, rate.Smoothing{Kernel: rate.KernelGaussian, Width: 60, Std: 12}, runner.sm)

	require.NotNil(t, resp.Payload)
	assert.Equal(t, now.Unix(), resp.Payload.CompletedAt)
	assert.Equal(t, "2024-05-10T12:00:00Z", resp.Payload.Completed)
	assert.Equal(t, 3, resp.Payload.Rows)
	assert.Equal(t, "2024-05-01 00:00", resp.Payload.LastSample)

	require.Len(t, rec.runs, 1)
	assert.Equal(t, "success", rec.runs[0].Status)
	assert.Equal(t, start+20, rec.runs[0].LastSample)
}

func TestRecomputeDefaults(t *testing.T) {
	d, runner, _, _ := newTestDispatcher(t)

	resp := d.Handle(context.Background(), &Request{Command: "recompute"})
	require.Equal(t, StatusSuccess, resp.Status, resp.Message)
	assert.NotEmpty(t, resp.Id)
	assert.Equal(t, now.Unix(), runner.end)
	assert.Equal(t, now.Add(-7*24*time.Hour).Unix(), runner.start)
	assert.Equal(t, rate.Window(rate.KernelBoxcar, 30, 0), runner.sm)
}

func TestRecomputeArgsAsString(t *testing.T) {
	d, runner, _, _ := newTestDispatcher(t)

	resp := d.Handle(context.Background(), &Request{
		Command: "recompute",
		Args:    json.RawMessage(`"{\"start\":\"2024-05-09 10:00\",\"width\":0}"`),
	})
	require.Equal(t, StatusSuccess, resp.Status, resp.Message)
	assert.Equal(t, time.Date(2024, 5, 9, 10, 0, 0, 0, time.UTC).Unix(), runner.start)
	assert.False(t, runner.sm.Enabled())
}

func TestUnrecognizedCommandDoesNotRender(t *testing.T) {
	d, runner, renderer, rec := newTestDispatcher(t)

	resp := d.Handle(context.Background(), &Request{Command: "explode"})
	assert.Equal(t, StatusUnrecognized, resp.Status)
	assert.Contains(t, resp.Message, "explode")
	assert.Zero(t, runner.calls)
	assert.Zero(t, renderer.calls)
	assert.Empty(t, rec.runs)
}

func TestMalformedRequests(t *testing.T) {
	cases := map[string]string{
		"timestamp":      `{"start":"yesterday"}`,
		"width":          `{"width":"wide"}`,
		"negative width": `{"width":-1}`,
		"kernel":         `{"fn":"sinc"}`,
		"gaussian std":   `{"fn":"gaussian"}`,
		"params":         `{"fn":"gaussian;{std:2}"}`,
		"boxcar std":     `{"fn":"boxcar;{\"std\":2}"}`,
		"reversed":       `{"start":"2024-05-02 00:00","end":"2024-05-01 00:00"}`,
		"unknown field":  `{"begin":"2024-05-02 00:00"}`,
		"not json":       `{`,
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			d, runner, renderer, _ := newTestDispatcher(t)
			resp := d.Handle(context.Background(), &Request{Command: "recompute", Args: json.RawMessage(args)})
			assert.Equal(t, StatusRejected, resp.Status)
			assert.NotEmpty(t, resp.Message)
			assert.Zero(t, runner.calls)
			assert.Zero(t, renderer.calls)
		})
	}
}

func TestInternalErrors(t *testing.T) {
	d, runner, renderer, rec := newTestDispatcher(t)
	runner.err = errors.New("database gone")

	resp := d.Handle(context.Background(), &Request{Command: "recompute"})
	assert.Equal(t, StatusInternalError, resp.Status)
	assert.Contains(t, resp.Message, "database gone")
	assert.Zero(t, renderer.calls)

	runner.err = nil
	renderer.err = errors.New("disk full")
	resp = d.Handle(context.Background(), &Request{Command: "recompute"})
	assert.Equal(t, StatusInternalError, resp.Status)

	require.Len(t, rec.runs, 2)
	assert.Equal(t, "internal_error", rec.runs[1].Status)
}

func TestStatusCommand(t *testing.T) {
	d, _, _, _ := newTestDispatcher(t)

	resp := d.Handle(context.Background(), &Request{Command: "status"})
	assert.Equal(t, StatusInternalError, resp.Status)

	d.Handle(context.Background(), &Request{Command: "recompute", Args: json.RawMessage(`{"start":"2024-05-01 00:00","end":"2024-05-02 00:00"}`)})
	resp = d.Handle(context.Background(), &Request{Command: "STATUS"})
	require.Equal(t, StatusSuccess, resp.Status, resp.Message)
	assert.Equal(t, "2024-05-01 00:00", resp.Payload.Start)
	assert.Equal(t, "2024-05-02 00:00", resp.Payload.End)
	assert.Equal(t, 3, resp.Payload.Rows)
}

func TestStatusReportsLastSuccessfulRun(t *testing.T) {
	d, runner, _, rec := newTestDispatcher(t)
	reg, err := status.Open("", time.Hour)
	require.NoError(t, err)
	t.Cleanup(func() { reg.Close() })
	d.recorder = reg
	tick := now
	d.now = func() time.Time {
		tick = tick.Add(time.Minute)
		return tick
	}

	resp := d.Handle(context.Background(), &Request{Command: "recompute", Args: json.RawMessage(`{"start":"2024-05-01 00:00","end":"2024-05-02 00:00"}`)})
	require.Equal(t, StatusSuccess, resp.Status, resp.Message)

	resp = d.Handle(context.Background(), &Request{Command: "recompute", Args: json.RawMessage(`{"start":"garbage"}`)})
	require.Equal(t, StatusRejected, resp.Status)

	runner.err = errors.New("database gone")
	resp = d.Handle(context.Background(), &Request{Command: "recompute"})
	require.Equal(t, StatusInternalError, resp.Status)

	resp = d.Handle(context.Background(), &Request{Command: "status"})
	require.Equal(t, StatusSuccess, resp.Status, resp.Message)
	assert.Equal(t, "2024-05-01 00:00", resp.Payload.Start)
	assert.Equal(t, "2024-05-02 00:00", resp.Payload.End)
	assert.Equal(t, 3, resp.Payload.Rows)
	assert.Equal(t, "2024-05-01 00:00", resp.Payload.LastSample)

	runs, err := reg.History(0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, "internal_error", runs[0].Status)
	assert.Empty(t, rec.runs)
}

func TestParseTime(t *testing.T) {
	loc, err := time.LoadLocation("America/Vancouver")
	require.NoError(t, err)
	want := time.Date(2024, 1, 2, 15, 4, 0, 0, loc)
	for _, s := range []string{"2024-01-02 15:04", "2024-01-02T15:04", "15:04 Jan 2, 2024", " 2024-01-02 15:04:00 "} {
		got, err := ParseTime(s, loc)
		require.NoError(t, err, s)
		assert.True(t, want.Equal(got), s)
	}
	_, err = ParseTime("2024/01/02", loc)
	require.ErrorIs(t, err, ErrMalformed)
}

func TestParseSmoothing(t *testing.T) {
	sm, err := ParseSmoothing("hann", 2)
	require.NoError(t, err)
	assert.Equal(t, rate.Smoothing{Kernel: rate.KernelHann, Width: 12}, sm)

	sm, err = ParseSmoothing("", 5)
	require.NoError(t, err)
	assert.Equal(t, rate.Smoothing{Kernel: rate.KernelBoxcar, Width: 30}, sm)

	sm, err = ParseSmoothing(`gaussian;{"std":2}`, 0)
	require.NoError(t, err)
	assert.False(t, sm.Enabled())
}

func TestStatusOf(t *testing.T) {
	assert.Equal(t, StatusSuccess, StatusOf(nil))
	assert.Equal(t, StatusRejected, StatusOf(ErrMalformed))
	assert.Equal(t, StatusUnrecognized, StatusOf(ErrUnrecognized))
	assert.Equal(t, StatusInternalError, StatusOf(errors.New("x")))
	assert.Equal(t, 400, StatusRejected.HTTPCode())
}

func TestCommandsDescribeArgs(t *testing.T) {
	d, _, _, _ := newTestDispatcher(t)
	cmds := d.Commands()
	require.Len(t, cmds, 2)
	assert.Equal(t, CommandRecompute, cmds[0].Name)

	data, err := json.Marshal(cmds[0])
	require.NoError(t, err)
	var described struct {
		Name       string         `json:"name"`
		ArgsSchema map[string]any `json:"args_schema"`
	}
	require.NoError(t, json.Unmarshal(data, &described))
	props, ok := described.ArgsSchema["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "start")
	assert.Contains(t, props, "fn")
	assert.Equal(t, false, described.ArgsSchema["additionalProperties"])
}
