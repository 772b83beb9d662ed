package tools

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/vcto/testzeus-mcp/internal/dispatch"
	"github.com/vcto/testzeus-mcp/internal/testzeus"
)

// listFilter is a shortcut argument on a list tool that becomes an equality
// filter, such as status on list_tests.
type listFilter struct {
	arg  string
	key  string
	desc string
}

// entity describes one TestZeus record type. Every CRUD tool and resource
// for that type is generated from it.
type entity[T testzeus.Entity] struct {
	name        string // tool suffix, "test_run"
	plural      string // list tool suffix, "test_runs"
	label       string // human form, "test run"
	labelPlural string
	idArg       string
	listURI     string
	itemURI     string
	resourceKey string

	collection func(*testzeus.Client) *testzeus.Collection[T]
	summary    func(T) any
	detail     func(T) any
	item       func(rec T, uri string) any

	filters      []listFilter
	createFields []field
	updateFields []field

	// fileField enables the add/remove file tools when set.
	fileField string
}

// catalogEntry lets entities of different record types share one slice.
type catalogEntry interface {
	tools(d *dispatch.Dispatcher) []server.ServerTool
	resources(d *dispatch.Dispatcher) []resource
}

func (e *entity[T]) tools(d *dispatch.Dispatcher) []server.ServerTool {
	tools := []server.ServerTool{
		e.listTool(d),
		e.getTool(d),
		e.createTool(d),
		e.updateTool(d),
		e.deleteTool(d),
	}
	if e.fileField != "" {
		tools = append(tools, e.fileTools(d)...)
	}
	return tools
}

func (e *entity[T]) listTool(d *dispatch.Dispatcher) server.ServerTool {
	opts := []mcp.ToolOption{
		mcp.WithDescription(fmt.Sprintf("List %s in TestZeus. Results are paginated.", e.labelPlural)),
		mcp.WithNumber("page", mcp.Description("Page number (1-based, default: 1)")),
		mcp.WithNumber("per_page", mcp.Description("Results per page (default: 50, max: 100)")),
	}
	for _, f := range e.filters {
		opts = append(opts, mcp.WithString(f.arg, mcp.Description(f.desc)))
	}
	opts = append(opts,
		mcp.WithObject("filters", mcp.Description("Field equality filters, e.g. {\"status\": \"ready\"}")),
		mcp.WithString("sort", mcp.Description("Sort expression, e.g. '-created' or 'name'")),
	)

	tool := "list_" + e.plural
	return server.ServerTool{
		Tool: mcp.NewTool(tool, opts...),
		Handler: func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := arguments(request)
			call := dispatch.Call{Tool: tool, Verb: "listing", Entity: e.labelPlural, Args: args}

			return d.Do(ctx, call, func(ctx context.Context, c *testzeus.Client) (dispatch.Output, error) {
				opts, err := e.listOptions(args)
				if err != nil {
					return dispatch.Output{}, err
				}

				page, err := e.collection(c).List(ctx, opts)
				if err != nil {
					return dispatch.Output{}, err
				}

				items := make([]any, 0, len(page.Items))
				for _, rec := range page.Items {
					items = append(items, e.summary(rec))
				}
				text, err := dispatch.JSON(items)
				if err != nil {
					return dispatch.Output{}, err
				}

				found := fmt.Sprintf("Found %d %s", len(items), e.labelPlural)
				return dispatch.Output{Text: found + ":\n" + text, Notice: found}, nil
			}).ToolResult(), nil
		},
	}
}

func (e *entity[T]) listOptions(args map[string]any) (testzeus.ListOptions, error) {
	page, err := intArg(args, "page")
	if err != nil {
		return testzeus.ListOptions{}, err
	}
	perPage, err := intArg(args, "per_page")
	if err != nil {
		return testzeus.ListOptions{}, err
	}
	page, perPage = dispatch.NormalizePaging(page, perPage)

	filters, err := filterArg(args, "filters")
	if err != nil {
		return testzeus.ListOptions{}, err
	}
	for _, f := range e.filters {
		if v := getString(args, f.arg); v != "" {
			if filters == nil {
				filters = map[string]any{}
			}
			filters[f.key] = v
		}
	}

	return testzeus.ListOptions{
		Page:    page,
		PerPage: perPage,
		Filters: filters,
		Sort:    getString(args, "sort"),
	}, nil
}

func (e *entity[T]) getTool(d *dispatch.Dispatcher) server.ServerTool {
	tool := "get_" + e.name
	return server.ServerTool{
		Tool: mcp.NewTool(tool,
			mcp.WithDescription(fmt.Sprintf("Get a specific %s by ID or name", e.label)),
			mcp.WithString(e.idArg, mcp.Required(), mcp.Description(capitalize(e.label)+" ID or name")),
		),
		Handler: func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := arguments(request)
			call := dispatch.Call{Tool: tool, Verb: "getting", Entity: e.label, Args: args}

			return d.Do(ctx, call, func(ctx context.Context, c *testzeus.Client) (dispatch.Output, error) {
				ref, err := requireString(args, e.idArg)
				if err != nil {
					return dispatch.Output{}, err
				}

				rec, err := e.collection(c).GetOne(ctx, ref)
				if err != nil {
					return dispatch.Output{}, err
				}

				text, err := dispatch.JSON(e.detail(*rec))
				if err != nil {
					return dispatch.Output{}, err
				}
				return dispatch.Output{
					Text:   capitalize(e.label) + " details:\n" + text,
					Notice: fmt.Sprintf("Retrieved %s: %s", e.label, (*rec).RecordName()),
				}, nil
			}).ToolResult(), nil
		},
	}
}

func (e *entity[T]) createTool(d *dispatch.Dispatcher) server.ServerTool {
	tool := "create_" + e.name
	opts := []mcp.ToolOption{mcp.WithDescription(fmt.Sprintf("Create a new %s in TestZeus", e.label))}
	for _, f := range e.createFields {
		opts = append(opts, f.option(true))
	}

	return server.ServerTool{
		Tool: mcp.NewTool(tool, opts...),
		Handler: func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := arguments(request)
			call := dispatch.Call{Tool: tool, Verb: "creating", Entity: e.label, Args: args}

			return d.Do(ctx, call, func(ctx context.Context, c *testzeus.Client) (dispatch.Output, error) {
				payload, err := buildPayload(ctx, c, e.createFields, args, true)
				if err != nil {
					return dispatch.Output{}, err
				}

				rec, err := e.collection(c).Create(ctx, payload)
				if err != nil {
					return dispatch.Output{}, err
				}
				return e.outcome("created", *rec, "with ID: %s"), nil
			}).ToolResult(), nil
		},
	}
}

func (e *entity[T]) updateTool(d *dispatch.Dispatcher) server.ServerTool {
	tool := "update_" + e.name
	opts := []mcp.ToolOption{
		mcp.WithDescription(fmt.Sprintf("Update an existing %s. Only specify fields to change.", e.label)),
		mcp.WithString(e.idArg, mcp.Required(), mcp.Description(capitalize(e.label)+" ID or name")),
	}
	for _, f := range e.updateFields {
		opts = append(opts, f.option(false))
	}

	return server.ServerTool{
		Tool: mcp.NewTool(tool, opts...),
		Handler: func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := arguments(request)
			call := dispatch.Call{Tool: tool, Verb: "updating", Entity: e.label, Args: args}

			return d.Do(ctx, call, func(ctx context.Context, c *testzeus.Client) (dispatch.Output, error) {
				ref, err := requireString(args, e.idArg)
				if err != nil {
					return dispatch.Output{}, err
				}
				payload, err := buildPayload(ctx, c, e.updateFields, args, false)
				if err != nil {
					return dispatch.Output{}, err
				}
				if len(payload) == 0 {
					return dispatch.Output{}, fmt.Errorf("no fields to update")
				}

				rec, err := e.collection(c).UpdateOne(ctx, ref, payload)
				if err != nil {
					return dispatch.Output{}, err
				}
				return e.outcome("updated", *rec, "(ID: %s)"), nil
			}).ToolResult(), nil
		},
	}
}

func (e *entity[T]) deleteTool(d *dispatch.Dispatcher) server.ServerTool {
	tool := "delete_" + e.name
	return server.ServerTool{
		Tool: mcp.NewTool(tool,
			mcp.WithDescription(fmt.Sprintf("Delete a %s by ID or name", e.label)),
			mcp.WithString(e.idArg, mcp.Required(), mcp.Description(capitalize(e.label)+" ID or name")),
		),
		Handler: func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := arguments(request)
			call := dispatch.Call{Tool: tool, Verb: "deleting", Entity: e.label, Args: args}

			return d.Do(ctx, call, func(ctx context.Context, c *testzeus.Client) (dispatch.Output, error) {
				ref, err := requireString(args, e.idArg)
				if err != nil {
					return dispatch.Output{}, err
				}

				rec, err := e.collection(c).DeleteOne(ctx, ref)
				if err != nil {
					return dispatch.Output{}, err
				}
				return e.outcome("deleted", *rec, "(ID: %s)"), nil
			}).ToolResult(), nil
		},
	}
}

// outcome renders "Successfully <verb> <label> '<name>' <suffix>".
func (e *entity[T]) outcome(verb string, rec T, suffix string) dispatch.Output {
	return dispatch.Output{
		Text:   fmt.Sprintf("Successfully %s %s '%s' "+suffix, verb, e.label, rec.RecordName(), rec.RecordID()),
		Notice: fmt.Sprintf("%s %s: %s", capitalize(verb), e.label, rec.RecordName()),
	}
}

func (e *entity[T]) fileTools(d *dispatch.Dispatcher) []server.ServerTool {
	idDesc := mcp.Description(capitalize(e.label) + " ID or name")

	add := "add_" + e.name + "_file"
	remove := "remove_" + e.name + "_file"
	removeAll := "remove_all_" + e.name + "_files"

	return []server.ServerTool{
		{
			Tool: mcp.NewTool(add,
				mcp.WithDescription(fmt.Sprintf("Upload a local file to a %s's supporting data files", e.label)),
				mcp.WithString(e.idArg, mcp.Required(), idDesc),
				mcp.WithString("file_path", mcp.Required(), mcp.Description("Path of the file on the server's filesystem")),
			),
			Handler: func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				args := arguments(request)
				call := dispatch.Call{Tool: add, Verb: "adding file to", Entity: e.label, Args: args}

				return d.Do(ctx, call, func(ctx context.Context, c *testzeus.Client) (dispatch.Output, error) {
					ref, err := requireString(args, e.idArg)
					if err != nil {
						return dispatch.Output{}, err
					}
					path, err := requireString(args, "file_path")
					if err != nil {
						return dispatch.Output{}, err
					}

					rec, err := e.collection(c).AttachFile(ctx, ref, e.fileField, path)
					if err != nil {
						return dispatch.Output{}, err
					}
					return dispatch.Output{
						Text: fmt.Sprintf("Successfully added file '%s' to %s '%s' (ID: %s)",
							filepath.Base(path), e.label, (*rec).RecordName(), (*rec).RecordID()),
					}, nil
				}).ToolResult(), nil
			},
		},
		{
			Tool: mcp.NewTool(remove,
				mcp.WithDescription(fmt.Sprintf("Remove one supporting data file from a %s", e.label)),
				mcp.WithString(e.idArg, mcp.Required(), idDesc),
				mcp.WithString("file_name", mcp.Required(), mcp.Description("Stored file name to remove")),
			),
			Handler: func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				args := arguments(request)
				call := dispatch.Call{Tool: remove, Verb: "removing file from", Entity: e.label, Args: args}

				return d.Do(ctx, call, func(ctx context.Context, c *testzeus.Client) (dispatch.Output, error) {
					ref, err := requireString(args, e.idArg)
					if err != nil {
						return dispatch.Output{}, err
					}
					name, err := requireString(args, "file_name")
					if err != nil {
						return dispatch.Output{}, err
					}

					rec, err := e.collection(c).DetachFile(ctx, ref, e.fileField, name)
					if err != nil {
						return dispatch.Output{}, err
					}
					return dispatch.Output{
						Text: fmt.Sprintf("Successfully removed file '%s' from %s '%s' (ID: %s)",
							name, e.label, (*rec).RecordName(), (*rec).RecordID()),
					}, nil
				}).ToolResult(), nil
			},
		},
		{
			Tool: mcp.NewTool(removeAll,
				mcp.WithDescription(fmt.Sprintf("Remove every supporting data file from a %s", e.label)),
				mcp.WithString(e.idArg, mcp.Required(), idDesc),
			),
			Handler: func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				args := arguments(request)
				call := dispatch.Call{Tool: removeAll, Verb: "removing files from", Entity: e.label, Args: args}

				return d.Do(ctx, call, func(ctx context.Context, c *testzeus.Client) (dispatch.Output, error) {
					ref, err := requireString(args, e.idArg)
					if err != nil {
						return dispatch.Output{}, err
					}

					rec, err := e.collection(c).DetachAllFiles(ctx, ref, e.fileField)
					if err != nil {
						return dispatch.Output{}, err
					}
					return dispatch.Output{
						Text: fmt.Sprintf("Successfully removed all files from %s '%s' (ID: %s)",
							e.label, (*rec).RecordName(), (*rec).RecordID()),
					}, nil
				}).ToolResult(), nil
			},
		},
	}
}

// itemID extracts the record id or name from an item URI such as
// test://abc or test://Login%20flow.
func (e *entity[T]) itemID(uri string) (string, error) {
	ref, err := url.PathUnescape(strings.TrimPrefix(uri, e.itemURI))
	if err != nil {
		return "", fmt.Errorf("invalid %s URI %q: %w", e.label, uri, err)
	}
	return ref, nil
}
