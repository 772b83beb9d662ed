// Package dispatch runs TestZeus operations behind a single guard: make sure
// a session exists, call the remote API once, and turn whatever happened
// into a uniform text result. Errors stay typed until Do returns; nothing
// past this package sees a Go error from a tool.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/vcto/testzeus-mcp/internal/ctxlog"
	"github.com/vcto/testzeus-mcp/internal/journal"
	"github.com/vcto/testzeus-mcp/internal/session"
	"github.com/vcto/testzeus-mcp/internal/testzeus"
)

// NotAuthenticated prefixes results of calls made without a usable session.
const NotAuthenticated = "Error: Not authenticated. Use authenticate_testzeus first."

// ErrMissingArgument is returned for absent required arguments.
var ErrMissingArgument = errors.New("missing required argument")

// Kind classifies a Result.
type Kind int

const (
	OK Kind = iota
	Authentication
	Operation
)

func (k Kind) String() string {
	switch k {
	case OK:
		return "ok"
	case Authentication:
		return "authentication"
	case Operation:
		return "operation"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Result is the outcome of one dispatched call.
type Result struct {
	Kind Kind
	Text string
}

// Failed reports whether the call did not succeed.
func (r Result) Failed() bool {
	return r.Kind != OK
}

// ToolResult renders r for the MCP boundary.
func (r Result) ToolResult() *mcp.CallToolResult {
	if r.Failed() {
		return mcp.NewToolResultError(r.Text)
	}
	return mcp.NewToolResultText(r.Text)
}

// Output is what an operation produces on success. Notice, when set,
// replaces the default text of the success notification.
type Output struct {
	Text   string
	Notice string
}

// Call describes one tool invocation. Verb and Entity build the error text,
// as in "Error listing tests: ...".
type Call struct {
	Tool   string
	Verb   string
	Entity string
	Args   map[string]any
}

// Op is a single remote operation.
type Op func(ctx context.Context, c *testzeus.Client) (Output, error)

// Sessions is the session manager as the dispatcher uses it.
type Sessions interface {
	Acquire(ctx context.Context) (*testzeus.Client, error)
	Authenticate(ctx context.Context, creds testzeus.Credentials) (*session.Session, error)
}

// Dispatcher guards and runs operations.
type Dispatcher struct {
	sessions Sessions
	notifier Notifier
	journal  journal.Storage
	logger   *slog.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithJournal records every call in s.
func WithJournal(s journal.Storage) Option {
	return func(d *Dispatcher) {
		d.journal = s
	}
}

// WithLogger sets the base logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// WithNotifier overrides how clients are told about results.
func WithNotifier(n Notifier) Option {
	return func(d *Dispatcher) {
		d.notifier = n
	}
}

// New returns a dispatcher over sessions.
func New(sessions Sessions, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		sessions: sessions,
		notifier: ClientNotifier{},
		journal:  journal.NoOpStorage{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Do acquires a session and runs op. The remote client is never touched
// when no session can be acquired.
func (d *Dispatcher) Do(ctx context.Context, call Call, op Op) Result {
	start := time.Now()
	ctx = d.withLogger(ctx, call.Tool)

	client, err := d.sessions.Acquire(ctx)
	if err != nil {
		res := Result{Kind: Authentication, Text: fmt.Sprintf("%s (%v)", NotAuthenticated, err)}
		d.finish(ctx, call, start, res, "")
		return res
	}

	out, err := run(ctx, client, op)
	if err != nil {
		res := Result{Kind: Operation, Text: fmt.Sprintf("Error %s %s: %v", call.Verb, call.Entity, err)}
		if session.IsAuthError(err) {
			res.Kind = Authentication
		}
		d.finish(ctx, call, start, res, "")
		return res
	}

	res := Result{Kind: OK, Text: out.Text}
	d.finish(ctx, call, start, res, out.Notice)
	return res
}

// Authenticate establishes a new session from creds, falling back to the
// environment for absent fields.
func (d *Dispatcher) Authenticate(ctx context.Context, call Call, creds testzeus.Credentials) Result {
	start := time.Now()
	ctx = d.withLogger(ctx, call.Tool)

	s, err := d.sessions.Authenticate(ctx, creds)
	if err != nil {
		res := Result{Kind: Authentication, Text: "Authentication failed: " + err.Error()}
		d.finish(ctx, call, start, res, "")
		return res
	}

	res := Result{Kind: OK, Text: "Successfully authenticated with TestZeus as " + s.Email}
	d.finish(ctx, call, start, res, "")
	return res
}

func (d *Dispatcher) withLogger(ctx context.Context, tool string) context.Context {
	return ctxlog.WithLogger(ctx, d.logger.With("tool", tool, "request_id", uuid.NewString()))
}

// run calls op, converting a panic into an error.
func run(ctx context.Context, client *testzeus.Client, op Op) (out Output, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("unexpected failure: %v", r)
		}
	}()
	return op(ctx, client)
}

func (d *Dispatcher) finish(ctx context.Context, call Call, start time.Time, res Result, notice string) {
	elapsed := time.Since(start)
	logger := ctxlog.FromContext(ctx)

	if res.Failed() {
		logger.Warn("Tool call failed", "kind", res.Kind.String(), "duration", elapsed, "error", res.Text)
		d.notifier.Notify(ctx, mcp.LoggingLevelError, res.Text)
	} else {
		logger.Debug("Tool call succeeded", "duration", elapsed)
		if notice == "" {
			notice = call.Tool + " completed"
		}
		d.notifier.Notify(ctx, mcp.LoggingLevelInfo, notice)
	}

	entry := journal.Entry{
		Timestamp:  start,
		Tool:       call.Tool,
		Kind:       res.Kind.String(),
		Arguments:  journal.Redact(call.Args),
		DurationMS: elapsed.Milliseconds(),
	}
	if res.Failed() {
		entry.Error = res.Text
	}
	if err := d.journal.Record(context.WithoutCancel(ctx), entry); err != nil {
		logger.Warn("Failed to journal tool call", "error", err)
	}
}

// Paging defaults and limits.
const (
	DefaultPage    = 1
	DefaultPerPage = 50
	MaxPerPage     = 100
)

// NormalizePaging applies defaults to zero values and clamps per_page to
// MaxPerPage.
func NormalizePaging(page, perPage int) (int, int) {
	if page < 1 {
		page = DefaultPage
	}
	switch {
	case perPage == 0:
		perPage = DefaultPerPage
	case perPage < 1:
		perPage = 1
	case perPage > MaxPerPage:
		perPage = MaxPerPage
	}
	return page, perPage
}

// JSON renders v as indented JSON.
func JSON(v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode response: %w", err)
	}
	return string(data), nil
}
