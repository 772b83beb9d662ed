package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/vcto/testzeus-mcp/internal/dispatch"
	"github.com/vcto/testzeus-mcp/internal/testzeus"
)

type fieldKind int

const (
	stringField fieldKind = iota
	listField
	objectField
)

// resolver turns names given by the caller into record ids.
type resolver func(ctx context.Context, c *testzeus.Client, v any) (any, error)

// field describes one writable argument of a create or update tool.
type field struct {
	arg      string
	key      string // payload key, arg when empty
	kind     fieldKind
	desc     string
	required bool
	def      string
	resolve  resolver
}

func (f field) payloadKey() string {
	if f.key != "" {
		return f.key
	}
	return f.arg
}

func (f field) option(forCreate bool) mcp.ToolOption {
	var props []mcp.PropertyOption
	desc := f.desc
	if forCreate && f.def != "" {
		desc += fmt.Sprintf(" (default: %s)", f.def)
	}
	props = append(props, mcp.Description(desc))
	if forCreate && f.required {
		props = append(props, mcp.Required())
	}

	switch f.kind {
	case listField:
		props = append(props, mcp.Items(map[string]any{"type": "string"}))
		return mcp.WithArray(f.arg, props...)
	case objectField:
		return mcp.WithObject(f.arg, props...)
	}
	return mcp.WithString(f.arg, props...)
}

// one resolves a single id or name against a collection.
func one[T testzeus.Entity](coll func(*testzeus.Client) *testzeus.Collection[T]) resolver {
	return func(ctx context.Context, c *testzeus.Client, v any) (any, error) {
		return coll(c).ResolveID(ctx, v.(string))
	}
}

// many resolves a list of ids or names against a collection.
func many[T testzeus.Entity](coll func(*testzeus.Client) *testzeus.Collection[T]) resolver {
	return func(ctx context.Context, c *testzeus.Client, v any) (any, error) {
		return coll(c).ResolveIDs(ctx, v.([]string))
	}
}

// buildPayload collects fields from args. On create, required fields must
// be present and defaults fill the rest.
func buildPayload(ctx context.Context, c *testzeus.Client, fields []field, args map[string]any, create bool) (testzeus.Payload, error) {
	payload := testzeus.Payload{}
	for _, f := range fields {
		v, ok, err := extract(args, f)
		if err != nil {
			return nil, err
		}
		if !ok {
			switch {
			case create && f.required:
				return nil, fmt.Errorf("%w: %s", dispatch.ErrMissingArgument, f.arg)
			case create && f.def != "":
				v = f.def
			default:
				continue
			}
		}

		if f.resolve != nil {
			if v, err = f.resolve(ctx, c, v); err != nil {
				return nil, fmt.Errorf("%s: %w", f.arg, err)
			}
		}
		payload[f.payloadKey()] = v
	}
	return payload, nil
}

// extract reads f from args. Empty values count as absent.
func extract(args map[string]any, f field) (any, bool, error) {
	raw, ok := args[f.arg]
	if !ok || raw == nil {
		return nil, false, nil
	}

	switch f.kind {
	case listField:
		list, err := toStringList(raw)
		if err != nil {
			return nil, false, fmt.Errorf("%s: %w", f.arg, err)
		}
		return list, len(list) > 0, nil
	case objectField:
		obj, ok := raw.(map[string]any)
		if !ok {
			return nil, false, fmt.Errorf("%s: expected an object, got %T", f.arg, raw)
		}
		return obj, len(obj) > 0, nil
	}

	s, ok := raw.(string)
	if !ok {
		return nil, false, fmt.Errorf("%s: expected a string, got %T", f.arg, raw)
	}
	s = strings.TrimSpace(s)
	return s, s != "", nil
}

func toStringList(raw any) ([]string, error) {
	switch v := raw.(type) {
	case []string:
		return v, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("expected strings, got %T", item)
			}
			out = append(out, s)
		}
		return out, nil
	case string:
		var out []string
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out, nil
	}
	return nil, fmt.Errorf("expected a list of strings, got %T", raw)
}

func arguments(request mcp.CallToolRequest) map[string]any {
	args, _ := request.Params.Arguments.(map[string]any)
	if args == nil {
		return map[string]any{}
	}
	return args
}

func getString(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return strings.TrimSpace(s)
}

func requireString(args map[string]any, key string) (string, error) {
	s := getString(args, key)
	if s == "" {
		return "", fmt.Errorf("%w: %s", dispatch.ErrMissingArgument, key)
	}
	return s, nil
}

// intArg reads an optional integer argument. Values outside the int32 range
// saturate so callers can still clamp them.
func intArg(args map[string]any, key string) (int, error) {
	switch v := args[key].(type) {
	case nil:
		return 0, nil
	case float64:
		if math.IsNaN(v) || v != math.Trunc(v) {
			return 0, fmt.Errorf("%s: expected an integer, got %v", key, v)
		}
		return int(math.Max(math.MinInt32, math.Min(math.MaxInt32, v))), nil
	case int:
		return saturate(int64(v)), nil
	case json.Number:
		return parseInt(key, v.String())
	case string:
		if v == "" {
			return 0, nil
		}
		return parseInt(key, v)
	}
	return 0, fmt.Errorf("%s: expected an integer, got %T", key, args[key])
}

func parseInt(key, s string) (int, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		var numErr *strconv.NumError
		if errors.As(err, &numErr) && errors.Is(numErr.Err, strconv.ErrRange) {
			// ParseInt returns the saturated bound alongside ErrRange.
			return saturate(n), nil
		}
		return 0, fmt.Errorf("%s: expected an integer, got %q", key, s)
	}
	return saturate(n), nil
}

func saturate(n int64) int {
	switch {
	case n > math.MaxInt32:
		return math.MaxInt32
	case n < math.MinInt32:
		return math.MinInt32
	}
	return int(n)
}

// filterArg reads an optional object of field filters. Values keep their
// JSON type so numbers and booleans are not compared as strings.
func filterArg(args map[string]any, key string) (map[string]any, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return nil, nil
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%s: expected an object, got %T", key, raw)
	}

	out := make(map[string]any, len(obj))
	for k, v := range obj {
		switch v.(type) {
		case nil:
			continue
		case string, bool, float64, int, json.Number:
			out[k] = v
		default:
			return nil, fmt.Errorf("%s.%s: expected a string, number or boolean, got %T", key, k, v)
		}
	}
	return out, nil
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
