package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"liquefier/internal/rate"
	"liquefier/internal/status"
	"liquefier/pkg/log"
)

const (
	CommandRecompute = "recompute"
	CommandStatus    = "status"
)

// TimeLayouts are the accepted formats of start and end, in the configured zone.
var TimeLayouts = []string{
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	"15:04 Jan 2, 2006",
	"2006-01-02 15:04:05",
}

type Runner interface {
	Run(ctx context.Context, start, end int64, sm rate.Smoothing) (*rate.Result, error)
}

type Renderer interface {
	Render(ctx context.Context, res *rate.Result) error
}

type Recorder interface {
	Record(run *status.Run) error
	Last() (*status.Run, error)
}

// Defaults fill in what a recompute request leaves out.
type Defaults struct {
	Lookback time.Duration
	// Width is the smoothing window in minutes.
	Width  float64
	Kernel rate.KernelKind
}

type RecomputeArgs struct {
	Start string      `json:"start,omitempty" jsonschema:"description=Range start in local time as YYYY-MM-DD HH:MM. Defaults to end minus the lookback"`
	End   string      `json:"end,omitempty" jsonschema:"description=Range end in local time as YYYY-MM-DD HH:MM. Defaults to now"`
	Width json.Number `json:"width,omitempty" jsonschema:"description=Smoothing window in minutes. 0 disables smoothing"`
	Fn    string      `json:"fn,omitempty" jsonschema:"description=Smoothing kernel optionally followed by ; and a JSON object of kernel parameters. std of a gaussian is a fraction of the width"`
}

type StatusArgs struct{}

// Dispatcher runs one command at a time.
type Dispatcher struct {
	mu       sync.Mutex
	commands map[string]*Command

	runner   Runner
	renderer Renderer
	recorder Recorder
	loc      *time.Location
	defaults Defaults
	now      func() time.Time
	logger   *logrus.Entry
}

// NewDispatcher builds the dispatcher. recorder may be nil.
func NewDispatcher(runner Runner, renderer Renderer, recorder Recorder, loc *time.Location, defaults Defaults) *Dispatcher {
	if loc == nil {
		loc = time.Local
	}
	d := &Dispatcher{
		commands: make(map[string]*Command),
		runner:   runner,
		renderer: renderer,
		recorder: recorder,
		loc:      loc,
		defaults: defaults,
		now:      time.Now,
		logger:   log.Component("command"),
	}
	d.register(NewCommand(
		WithName(CommandRecompute),
		WithDescription("Recompute the production rate for a time range and render the chart"),
		WithArgsSchema[RecomputeArgs](),
		WithFunc(d.recompute),
	))
	d.register(NewCommand(
		WithName(CommandStatus),
		WithDescription("Report the last completed recompute"),
		WithArgsSchema[StatusArgs](),
		WithFunc(d.lastRun),
	))
	return d
}

func (d *Dispatcher) register(c *Command) {
	d.commands[c.Name] = c
}

// Commands lists the commands sorted by name.
func (d *Dispatcher) Commands() []*Command {
	cmds := make([]*Command, 0, len(d.commands))
	for _, c := range d.commands {
		cmds = append(cmds, c)
	}
	sort.Slice(cmds, func(i, j int) bool { return cmds[i].Name < cmds[j].Name })
	return cmds
}

// Handle runs the request to completion. Every failure is reported in the
// response.
func (d *Dispatcher) Handle(ctx context.Context, req *Request) *Response {
	d.mu.Lock()
	defer d.mu.Unlock()

	if req.Id == "" {
		req.Id = uuid.NewString()
	}
	logger := log.GetLogger(ctx).WithField("command", req.Command)
	resp := &Response{Id: req.Id}

	cmd, ok := d.commands[strings.ToLower(strings.TrimSpace(req.Command))]
	if !ok {
		err := fmt.Errorf("%w: %q", ErrUnrecognized, req.Command)
		logger.Warn(err)
		resp.Status = StatusOf(err)
		resp.Message = err.Error()
		return resp
	}

	payload, err := d.call(ctx, cmd, req.Args)
	resp.Status = StatusOf(err)
	resp.Payload = payload
	if err != nil {
		resp.Message = err.Error()
		if resp.Status == StatusInternalError {
			logger.WithError(err).Error("command failed")
		} else {
			logger.WithError(err).Warn("command rejected")
		}
	} else {
		logger.Infof("command done, %d rows", payload.Rows)
	}

	if cmd.Name != CommandStatus {
		d.record(req, resp)
	}
	return resp
}

func (d *Dispatcher) call(ctx context.Context, cmd *Command, args json.RawMessage) (payload *Payload, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("command %s panicked: %v", cmd.Name, r)
		}
	}()
	return cmd.Func(ctx, args)
}

func (d *Dispatcher) record(req *Request, resp *Response) {
	if d.recorder == nil {
		return
	}
	run := &status.Run{
		Id:        req.Id,
		Command:   req.Command,
		Status:    resp.Status.String(),
		Message:   resp.Message,
		Completed: d.now(),
	}
	if p := resp.Payload; p != nil {
		run.Start = p.start
		run.End = p.end
		run.Smoothing = p.Smoothing
		run.Rows = p.Rows
		run.LastSample = p.lastSample
		run.Completed = time.Unix(p.CompletedAt, 0)
	}
	if err := d.recorder.Record(run); err != nil {
		d.logger.WithError(err).Error("record run")
	}
}

func (d *Dispatcher) recompute(ctx context.Context, args *RecomputeArgs) (*Payload, error) {
	start, end, err := d.parseRange(args.Start, args.End)
	if err != nil {
		return nil, err
	}
	width := d.defaults.Width
	if args.Width != "" {
		width, err = args.Width.Float64()
		if err != nil {
			return nil, fmt.Errorf("%w: width %q is not a number", ErrMalformed, args.Width)
		}
	}
	fn := args.Fn
	if fn == "" {
		fn = string(d.defaults.Kernel)
	}
	sm, err := ParseSmoothing(fn, width)
	if err != nil {
		return nil, err
	}

	res, err := d.runner.Run(ctx, start, end, sm)
	if err != nil {
		return nil, fmt.Errorf("compute rates: %w", err)
	}
	if err := d.renderer.Render(ctx, res); err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}

	p := d.payload(d.now())
	p.start, p.end = start, end
	p.Start = d.format(start)
	p.End = d.format(end)
	p.Smoothing = sm.String()
	p.Rows = res.Len()
	if last, ok := res.Last(); ok {
		p.lastSample = last
		p.LastSample = d.format(last)
	}
	return p, nil
}

func (d *Dispatcher) lastRun(_ context.Context, _ *StatusArgs) (*Payload, error) {
	if d.recorder == nil {
		return nil, errors.New("no status registry")
	}
	run, err := d.recorder.Last()
	if err != nil {
		return nil, err
	}
	p := d.payload(run.Completed)
	p.start, p.end, p.lastSample = run.Start, run.End, run.LastSample
	if run.Start != 0 {
		p.Start = d.format(run.Start)
	}
	if run.End != 0 {
		p.End = d.format(run.End)
	}
	if run.LastSample != 0 {
		p.LastSample = d.format(run.LastSample)
	}
	p.Smoothing = run.Smoothing
	p.Rows = run.Rows
	return p, nil
}

func (d *Dispatcher) payload(completed time.Time) *Payload {
	return &Payload{
		Completed:   completed.In(d.loc).Format(time.RFC3339),
		CompletedAt: completed.Unix(),
	}
}

func (d *Dispatcher) format(epoch int64) string {
	return time.Unix(epoch, 0).In(d.loc).Format(TimeLayouts[0])
}

func (d *Dispatcher) parseRange(startArg, endArg string) (int64, int64, error) {
	end := d.now().Unix()
	if endArg != "" {
		t, err := ParseTime(endArg, d.loc)
		if err != nil {
			return 0, 0, err
		}
		end = t.Unix()
	}
	start := end - int64(d.defaults.Lookback/time.Second)
	if startArg != "" {
		t, err := ParseTime(startArg, d.loc)
		if err != nil {
			return 0, 0, err
		}
		start = t.Unix()
	}
	if start >= end {
		return 0, 0, fmt.Errorf("%w: start %s is not before end %s", ErrMalformed, d.format(start), d.format(end))
	}
	return start, end, nil
}

// ParseTime reads a minute precision local timestamp.
func ParseTime(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range TimeLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: bad timestamp %q, expected YYYY-MM-DD HH:MM", ErrMalformed, s)
}

// ParseSmoothing reads a kernel description such as `gaussian;{"std":0.2}`
// and a window in minutes. A zero width disables smoothing.
func ParseSmoothing(fn string, width float64) (rate.Smoothing, error) {
	if width < 0 {
		return rate.Smoothing{}, fmt.Errorf("%w: negative width %g", ErrMalformed, width)
	}
	name, rawParams, _ := strings.Cut(fn, ";")
	kernel, err := rate.ParseKernel(name)
	if err != nil {
		return rate.Smoothing{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	var params struct {
		Std *float64 `json:"std"`
	}
	if rawParams = strings.TrimSpace(rawParams); rawParams != "" {
		dec := json.NewDecoder(strings.NewReader(rawParams))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&params); err != nil {
			return rate.Smoothing{}, fmt.Errorf("%w: kernel parameters %q: %v", ErrMalformed, rawParams, err)
		}
	}
	if params.Std != nil && kernel != rate.KernelGaussian {
		return rate.Smoothing{}, fmt.Errorf("%w: std only applies to a gaussian kernel", ErrMalformed)
	}

	if width == 0 {
		return rate.Smoothing{}, nil
	}
	var std float64
	if kernel == rate.KernelGaussian {
		if params.Std == nil || *params.Std <= 0 {
			return rate.Smoothing{}, fmt.Errorf("%w: gaussian kernel needs a positive std", ErrMalformed)
		}
		std = *params.Std
	}
	return rate.Window(kernel, width, std), nil
}
