package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/invopop/jsonschema"
)

var (
	ErrUnrecognized = errors.New("unrecognized command")
	ErrMalformed    = errors.New("malformed request")
)

type Status int

const (
	StatusSuccess Status = iota
	StatusRejected
	StatusUnrecognized
	StatusInternalError
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusRejected:
		return "rejected"
	case StatusUnrecognized:
		return "unrecognized"
	default:
		return "internal_error"
	}
}

func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s Status) HTTPCode() int {
	switch s {
	case StatusSuccess:
		return http.StatusOK
	case StatusRejected:
		return http.StatusBadRequest
	case StatusUnrecognized:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// StatusOf maps an error returned by a command to its status.
func StatusOf(err error) Status {
	switch {
	case err == nil:
		return StatusSuccess
	case errors.Is(err, ErrUnrecognized):
		return StatusUnrecognized
	case errors.Is(err, ErrMalformed):
		return StatusRejected
	default:
		return StatusInternalError
	}
}

type Request struct {
	Id      string `json:"id"`
	Command string `json:"command" binding:"required"`
	// Args is a JSON object, or a JSON string holding one.
	Args json.RawMessage `json:"args,omitempty"`
}

type Payload struct {
	// Completed is when the command finished, RFC 3339 in the configured zone.
	Completed   string `json:"completed"`
	CompletedAt int64  `json:"completedAt"`
	Start       string `json:"start,omitempty"`
	End         string `json:"end,omitempty"`
	Smoothing   string `json:"smoothing,omitempty"`
	Rows        int    `json:"rows"`
	LastSample  string `json:"lastSample,omitempty"`

	start, end, lastSample int64
}

type Response struct {
	Id      string   `json:"id,omitempty"`
	Status  Status   `json:"status"`
	Message string   `json:"message,omitempty"`
	Payload *Payload `json:"payload,omitempty"`
}

var reflector = jsonschema.Reflector{
	AllowAdditionalProperties: false,
	DoNotReference:            true,
}

// Command is one named operation of the endpoint.
type Command struct {
	Name        string                                                            `json:"name"`
	Description string                                                            `json:"description"`
	ArgsSchema  any                                                               `json:"-"`
	Func        func(ctx context.Context, args json.RawMessage) (*Payload, error) `json:"-"`
}

func (c *Command) MarshalJSON() ([]byte, error) {
	schema, err := c.GetArgsSchema()
	if err != nil {
		schema = map[string]any{}
	}
	return json.Marshal(struct {
		Name        string         `json:"name"`
		Description string         `json:"description"`
		ArgsSchema  map[string]any `json:"args_schema"`
	}{
		Name:        c.Name,
		Description: c.Description,
		ArgsSchema:  schema,
	})
}

func (c *Command) GetArgsSchema() (map[string]any, error) {
	if c.ArgsSchema == nil {
		return map[string]any{}, nil
	}
	schema, err := json.Marshal(reflector.Reflect(c.ArgsSchema))
	if err != nil {
		return nil, fmt.Errorf("create args schema of %s: %v", c.Name, err)
	}
	var result map[string]any
	if err := json.Unmarshal(schema, &result); err != nil {
		return nil, fmt.Errorf("create args schema of %s: %v", c.Name, err)
	}
	return result, nil
}

type CommandOption func(*Command)

func NewCommand(options ...CommandOption) *Command {
	c := &Command{}
	for _, option := range options {
		option(c)
	}
	return c
}

func WithName(name string) CommandOption {
	return func(c *Command) {
		c.Name = name
	}
}

func WithDescription(description string) CommandOption {
	return func(c *Command) {
		c.Description = description
	}
}

func WithArgsSchema[T any]() CommandOption {
	return func(c *Command) {
		c.ArgsSchema = new(T)
	}
}

func WithFunc[T any](f func(ctx context.Context, args *T) (*Payload, error)) CommandOption {
	return func(c *Command) {
		c.Func = func(ctx context.Context, raw json.RawMessage) (*Payload, error) {
			args := new(T)
			if err := DecodeArgs(raw, args); err != nil {
				return nil, err
			}
			return f(ctx, args)
		}
	}
}

// DecodeArgs decodes raw into v. raw may be empty, a JSON object, or a JSON
// string whose content is a JSON object.
func DecodeArgs(raw json.RawMessage, v any) error {
	data := strings.TrimSpace(string(raw))
	if data == "" || data == "null" {
		return nil
	}
	if strings.HasPrefix(data, `"`) {
		var inner string
		if err := json.Unmarshal([]byte(data), &inner); err != nil {
			return fmt.Errorf("%w: args: %v", ErrMalformed, err)
		}
		data = strings.TrimSpace(inner)
		if data == "" {
			return nil
		}
	}
	dec := json.NewDecoder(strings.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: args: %v", ErrMalformed, err)
	}
	return nil
}
