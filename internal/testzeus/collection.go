package testzeus

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var (
	recordIDPattern  = regexp.MustCompile(`^[a-z0-9]{15}$`)
	filterKeyPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.]*$`)
)

// IsRecordID reports whether s has the shape of a PocketBase record id.
func IsRecordID(s string) bool {
	return recordIDPattern.MatchString(s)
}

// Page is one page of a list response.
type Page[T Entity] struct {
	Page       int `json:"page"`
	PerPage    int `json:"perPage"`
	TotalItems int `json:"totalItems"`
	TotalPages int `json:"totalPages"`
	Items      []T `json:"items"`
}

// ListOptions selects a page of records.
type ListOptions struct {
	Page    int
	PerPage int
	Filters map[string]any
	Sort    string
	Expand  string
}

// Filter renders Filters as a PocketBase filter expression. Strings are
// quoted; numbers and booleans are written as literals. Clauses are sorted
// by key so the output is stable.
func (o ListOptions) Filter() (string, error) {
	if len(o.Filters) == 0 {
		return "", nil
	}

	keys := make([]string, 0, len(o.Filters))
	for k := range o.Filters {
		if !filterKeyPattern.MatchString(k) {
			return "", fmt.Errorf("invalid filter field %q", k)
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	clauses := make([]string, 0, len(keys))
	for _, k := range keys {
		lit, err := filterLiteral(o.Filters[k])
		if err != nil {
			return "", fmt.Errorf("filter field %q: %w", k, err)
		}
		clauses = append(clauses, k+" = "+lit)
	}
	return strings.Join(clauses, " && "), nil
}

func filterLiteral(v any) (string, error) {
	switch v := v.(type) {
	case string:
		return strconv.Quote(v), nil
	case bool:
		return strconv.FormatBool(v), nil
	case int:
		return strconv.Itoa(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return "", fmt.Errorf("unsupported number %v", v)
		}
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case json.Number:
		if _, err := v.Float64(); err != nil {
			return "", fmt.Errorf("unsupported number %q", v.String())
		}
		return v.String(), nil
	}
	return "", fmt.Errorf("unsupported value of type %T", v)
}

func (o ListOptions) query() (url.Values, error) {
	q := url.Values{}
	if o.Page > 0 {
		q.Set("page", strconv.Itoa(o.Page))
	}
	if o.PerPage > 0 {
		q.Set("perPage", strconv.Itoa(o.PerPage))
	}

	filter, err := o.Filter()
	if err != nil {
		return nil, err
	}
	if filter != "" {
		q.Set("filter", filter)
	}
	if o.Sort != "" {
		q.Set("sort", o.Sort)
	}
	if o.Expand != "" {
		q.Set("expand", o.Expand)
	}
	return q, nil
}

// Collection is a typed view over one TestZeus record collection.
type Collection[T Entity] struct {
	client *Client
	name   string
}

func newCollection[T Entity](c *Client, name string) *Collection[T] {
	return &Collection[T]{client: c, name: name}
}

func (c *Collection[T]) recordsPath() string {
	return "/api/collections/" + c.name + "/records"
}

func (c *Collection[T]) recordPath(id string) string {
	return c.recordsPath() + "/" + url.PathEscape(id)
}

// List fetches one page of records.
func (c *Collection[T]) List(ctx context.Context, opts ListOptions) (*Page[T], error) {
	q, err := opts.query()
	if err != nil {
		return nil, err
	}

	var page Page[T]
	if err := c.client.do(ctx, http.MethodGet, c.recordsPath(), q, nil, &page, true); err != nil {
		return nil, err
	}
	return &page, nil
}

// Get fetches a record by id.
func (c *Collection[T]) Get(ctx context.Context, id string) (*T, error) {
	var rec T
	if err := c.client.do(ctx, http.MethodGet, c.recordPath(id), nil, nil, &rec, true); err != nil {
		return nil, err
	}
	return &rec, nil
}

// FindByName returns the first record whose name matches exactly.
func (c *Collection[T]) FindByName(ctx context.Context, name string) (*T, error) {
	page, err := c.List(ctx, ListOptions{
		Page:    1,
		PerPage: 1,
		Filters: map[string]any{"name": name},
	})
	if err != nil {
		return nil, err
	}
	if len(page.Items) == 0 {
		return nil, fmt.Errorf("%s %q: %w", c.name, name, ErrNotFound)
	}
	return &page.Items[0], nil
}

// GetOne resolves idOrName, trying it as an id first when it looks like one.
func (c *Collection[T]) GetOne(ctx context.Context, idOrName string) (*T, error) {
	if IsRecordID(idOrName) {
		rec, err := c.Get(ctx, idOrName)
		if err == nil {
			return rec, nil
		}
		if !isNotFound(err) {
			return nil, err
		}
	}
	return c.FindByName(ctx, idOrName)
}

// ResolveID returns the record id for idOrName.
func (c *Collection[T]) ResolveID(ctx context.Context, idOrName string) (string, error) {
	rec, err := c.GetOne(ctx, idOrName)
	if err != nil {
		return "", err
	}
	return (*rec).RecordID(), nil
}

// ResolveIDs resolves every entry of idsOrNames, keeping order.
func (c *Collection[T]) ResolveIDs(ctx context.Context, idsOrNames []string) ([]string, error) {
	ids := make([]string, 0, len(idsOrNames))
	for _, ref := range idsOrNames {
		id, err := c.ResolveID(ctx, ref)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Create posts a new record. Tenant and modified_by are filled from the
// authenticated user when the payload leaves them out.
func (c *Collection[T]) Create(ctx context.Context, payload Payload) (*T, error) {
	body := Payload{}
	for k, v := range payload {
		body[k] = v
	}

	user := c.client.User()
	if _, ok := body["tenant"]; !ok && user.Tenant != "" {
		body["tenant"] = user.Tenant
	}
	if _, ok := body["modified_by"]; !ok && user.ID != "" {
		body["modified_by"] = user.ID
	}

	var rec T
	if err := c.client.do(ctx, http.MethodPost, c.recordsPath(), nil, body, &rec, true); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Update patches the record with id.
func (c *Collection[T]) Update(ctx context.Context, id string, payload Payload) (*T, error) {
	var rec T
	if err := c.client.do(ctx, http.MethodPatch, c.recordPath(id), nil, payload, &rec, true); err != nil {
		return nil, err
	}
	return &rec, nil
}

// UpdateOne resolves idOrName and patches it.
func (c *Collection[T]) UpdateOne(ctx context.Context, idOrName string, payload Payload) (*T, error) {
	id, err := c.ResolveID(ctx, idOrName)
	if err != nil {
		return nil, err
	}
	return c.Update(ctx, id, payload)
}

// DeleteOne resolves idOrName, deletes it and returns the record as it was.
func (c *Collection[T]) DeleteOne(ctx context.Context, idOrName string) (*T, error) {
	rec, err := c.GetOne(ctx, idOrName)
	if err != nil {
		return nil, err
	}
	if err := c.client.do(ctx, http.MethodDelete, c.recordPath((*rec).RecordID()), nil, nil, nil, true); err != nil {
		return nil, err
	}
	return rec, nil
}

// AttachFile uploads the local file at path into field.
func (c *Collection[T]) AttachFile(ctx context.Context, idOrName, field, path string) (*T, error) {
	id, err := c.ResolveID(ctx, idOrName)
	if err != nil {
		return nil, err
	}

	var rec T
	if err := c.client.upload(ctx, c.recordPath(id), field, path, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// DetachFile removes one stored file from field.
func (c *Collection[T]) DetachFile(ctx context.Context, idOrName, field, fileName string) (*T, error) {
	return c.UpdateOne(ctx, idOrName, Payload{field + "-": []string{fileName}})
}

// DetachAllFiles clears field.
func (c *Collection[T]) DetachAllFiles(ctx context.Context, idOrName, field string) (*T, error) {
	return c.UpdateOne(ctx, idOrName, Payload{field: []string{}})
}
