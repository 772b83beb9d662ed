package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/vcto/testzeus-mcp/internal/dispatch"
	"github.com/vcto/testzeus-mcp/internal/testzeus"
)

// resourcePageSize is how many records a listing resource returns.
const resourcePageSize = dispatch.MaxPerPage

// resource is either a static URI or a URI template, with its reader.
type resource struct {
	static   *mcp.Resource
	template *mcp.ResourceTemplate
	handler  server.ResourceHandlerFunc
}

func (r resource) register(s *server.MCPServer) {
	if r.static != nil {
		s.AddResource(*r.static, r.handler)
		return
	}
	s.AddResourceTemplate(*r.template, server.ResourceTemplateHandlerFunc(r.handler))
}

func (e *entity[T]) resources(d *dispatch.Dispatcher) []resource {
	list := mcp.NewResource(e.listURI, e.labelPlural,
		mcp.WithResourceDescription("All "+e.labelPlural+" in TestZeus"),
		mcp.WithMIMEType("application/json"),
	)
	item := mcp.NewResourceTemplate(e.itemURI+"{id}", e.label,
		mcp.WithTemplateDescription("A single "+e.label+" by ID or name"),
		mcp.WithTemplateMIMEType("application/json"),
	)

	return []resource{
		{static: &list, handler: e.readList(d)},
		{template: &item, handler: e.readItem(d)},
	}
}

func (e *entity[T]) readList(d *dispatch.Dispatcher) server.ResourceHandlerFunc {
	return func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		uri := request.Params.URI
		call := dispatch.Call{Tool: "read " + e.listURI, Verb: "listing", Entity: e.labelPlural}

		res := d.Do(ctx, call, func(ctx context.Context, c *testzeus.Client) (dispatch.Output, error) {
			page, err := e.collection(c).List(ctx, testzeus.ListOptions{Page: 1, PerPage: resourcePageSize})
			if err != nil {
				return dispatch.Output{}, err
			}

			items := make([]any, 0, len(page.Items))
			for _, rec := range page.Items {
				items = append(items, e.item(rec, e.itemURI+rec.RecordID()))
			}
			text, err := dispatch.JSON(map[string]any{e.resourceKey: items})
			if err != nil {
				return dispatch.Output{}, err
			}
			return dispatch.Output{Text: text}, nil
		})
		return contents(uri, res), nil
	}
}

func (e *entity[T]) readItem(d *dispatch.Dispatcher) server.ResourceHandlerFunc {
	return func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		uri := request.Params.URI
		ref, refErr := e.itemID(uri)
		call := dispatch.Call{
			Tool:   "read " + e.itemURI,
			Verb:   "getting",
			Entity: e.label,
			Args:   map[string]any{"id": ref},
		}

		res := d.Do(ctx, call, func(ctx context.Context, c *testzeus.Client) (dispatch.Output, error) {
			if refErr != nil {
				return dispatch.Output{}, refErr
			}
			if ref == "" {
				return dispatch.Output{}, dispatch.ErrMissingArgument
			}
			rec, err := e.collection(c).GetOne(ctx, ref)
			if err != nil {
				return dispatch.Output{}, err
			}
			text, err := dispatch.JSON(e.detail(*rec))
			if err != nil {
				return dispatch.Output{}, err
			}
			return dispatch.Output{Text: text}, nil
		})
		return contents(uri, res), nil
	}
}

// contents wraps a result as a single text document. Failures are reported
// in-band as plain text so the client sees why a read came back empty.
func contents(uri string, res dispatch.Result) []mcp.ResourceContents {
	mime := "application/json"
	if res.Failed() {
		mime = "text/plain"
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{URI: uri, MIMEType: mime, Text: res.Text},
	}
}
