// Package tools defines the MCP tools and resources exposed by the TestZeus
// server. Every handler funnels through a dispatch.Dispatcher, so tools
// never see a Go error and never touch the API without a session.
package tools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/vcto/testzeus-mcp/internal/dispatch"
	"github.com/vcto/testzeus-mcp/internal/journal"
	"github.com/vcto/testzeus-mcp/internal/testzeus"
)

// Handler owns the tool and resource set.
type Handler struct {
	dispatcher *dispatch.Dispatcher
	catalog    []catalogEntry
	journal    journal.Storage
}

// Option configures a Handler.
type Option func(*Handler)

// WithJournal exposes store as journal:// resources when it is enabled.
func WithJournal(store journal.Storage) Option {
	return func(h *Handler) {
		h.journal = store
	}
}

// NewHandler returns a handler whose tools run through d.
func NewHandler(d *dispatch.Dispatcher, opts ...Option) *Handler {
	h := &Handler{
		dispatcher: d,
		catalog: []catalogEntry{
			testsEntity(),
			testRunsEntity(),
			environmentsEntity(),
			testDataEntity(),
			tagsEntity(),
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Tools returns every tool in registration order.
func (h *Handler) Tools() []server.ServerTool {
	tools := []server.ServerTool{h.authenticateTool()}
	for _, e := range h.catalog {
		tools = append(tools, e.tools(h.dispatcher)...)
		if _, ok := e.(*entity[testzeus.Test]); ok {
			tools = append(tools, h.runTestTool())
		}
		if _, ok := e.(*entity[testzeus.TestRun]); ok {
			tools = append(tools, h.createAndStartTool())
		}
	}
	return tools
}

// Register adds all tools and resources to s.
func (h *Handler) Register(s *server.MCPServer) {
	s.AddTools(h.Tools()...)
	for _, r := range h.resources() {
		r.register(s)
	}
}

func (h *Handler) resources() []resource {
	var out []resource
	for _, e := range h.catalog {
		out = append(out, e.resources(h.dispatcher)...)
	}
	if h.journal != nil && h.journal.IsEnabled() {
		out = append(out, journalResources(h.journal)...)
	}
	return out
}

func (h *Handler) authenticateTool() server.ServerTool {
	const tool = "authenticate_testzeus"
	return server.ServerTool{
		Tool: mcp.NewTool(tool,
			mcp.WithDescription("Authenticate with TestZeus. Missing fields fall back to the "+
				testzeus.EnvEmail+", "+testzeus.EnvPassword+" and "+testzeus.EnvBaseURL+" environment variables."),
			mcp.WithString("email", mcp.Description("TestZeus account email")),
			mcp.WithString("password", mcp.Description("TestZeus account password")),
			mcp.WithString("base_url", mcp.Description("TestZeus API base URL (default: "+testzeus.DefaultBaseURL+")")),
		),
		Handler: func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := arguments(request)
			creds := testzeus.Credentials{
				Email:    getString(args, "email"),
				Password: getString(args, "password"),
				BaseURL:  getString(args, "base_url"),
			}
			call := dispatch.Call{Tool: tool, Verb: "authenticating", Entity: "session", Args: args}
			return h.dispatcher.Authenticate(ctx, call, creds).ToolResult(), nil
		},
	}
}

func (h *Handler) runTestTool() server.ServerTool {
	const tool = "run_test"
	return server.ServerTool{
		Tool: mcp.NewTool(tool,
			mcp.WithDescription("Start a run of an existing test"),
			mcp.WithString("test_id_or_name", mcp.Required(), mcp.Description("Test ID or name")),
			mcp.WithString("environment", mcp.Description("Environment ID or name")),
			mcp.WithString("tag", mcp.Description("Tag ID or name")),
		),
		Handler: func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := arguments(request)
			call := dispatch.Call{Tool: tool, Verb: "running", Entity: "test", Args: args}

			return h.dispatcher.Do(ctx, call, func(ctx context.Context, c *testzeus.Client) (dispatch.Output, error) {
				ref, err := requireString(args, "test_id_or_name")
				if err != nil {
					return dispatch.Output{}, err
				}

				run, err := c.RunTest(ctx, ref, getString(args, "environment"), getString(args, "tag"))
				if err != nil {
					return dispatch.Output{}, err
				}
				return started(run), nil
			}).ToolResult(), nil
		},
	}
}

func (h *Handler) createAndStartTool() server.ServerTool {
	const tool = "create_and_start_test_run"
	return server.ServerTool{
		Tool: mcp.NewTool(tool,
			mcp.WithDescription("Create a named test run and start it immediately"),
			mcp.WithString("name", mcp.Required(), mcp.Description("Name of the test run")),
			mcp.WithString("test", mcp.Required(), mcp.Description("Test ID or name")),
			mcp.WithString("environment", mcp.Description("Environment ID or name")),
			mcp.WithString("tag", mcp.Description("Tag ID or name")),
		),
		Handler: func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := arguments(request)
			call := dispatch.Call{Tool: tool, Verb: "creating and starting", Entity: "test run", Args: args}

			return h.dispatcher.Do(ctx, call, func(ctx context.Context, c *testzeus.Client) (dispatch.Output, error) {
				name, err := requireString(args, "name")
				if err != nil {
					return dispatch.Output{}, err
				}
				test, err := requireString(args, "test")
				if err != nil {
					return dispatch.Output{}, err
				}

				run, err := c.CreateAndStart(ctx, name, test, getString(args, "environment"), getString(args, "tag"))
				if err != nil {
					return dispatch.Output{}, err
				}
				return started(run), nil
			}).ToolResult(), nil
		},
	}
}

func started(run *testzeus.TestRun) dispatch.Output {
	return dispatch.Output{
		Text:   fmt.Sprintf("Successfully started test run '%s' with ID: %s", run.Name, run.ID),
		Notice: "Started test run: " + run.Name,
	}
}
