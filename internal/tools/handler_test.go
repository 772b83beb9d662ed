package tools

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vcto/testzeus-mcp/internal/dispatch"
	"github.com/vcto/testzeus-mcp/internal/journal"
	"github.com/vcto/testzeus-mcp/internal/session"
	"github.com/vcto/testzeus-mcp/internal/testutil"
	"github.com/vcto/testzeus-mcp/internal/testzeus"
)

const (
	email    = "qa@example.com"
	password = "s3cret"
)

type fixture struct {
	fake    *testutil.FakeTestZeus
	handler *Handler
	tools   map[string]server.ServerTool
}

// newFixture builds a handler against a fake API. With envCreds the session
// manager can authenticate lazily; without them only authenticate_testzeus
// establishes a session.
func newFixture(t *testing.T, envCreds bool) *fixture {
	t.Helper()
	return newJournaledFixture(t, envCreds, journal.NoOpStorage{})
}

func newJournaledFixture(t *testing.T, envCreds bool, store journal.Storage) *fixture {
	t.Helper()
	fake := testutil.NewFakeTestZeus(t, email, password)

	env := testzeus.Credentials{BaseURL: fake.URL}
	if envCreds {
		env.Email, env.Password = email, password
	}
	sessions := session.NewManager(session.WithEnvironment(func() testzeus.Credentials { return env }))

	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewHandler(dispatch.New(sessions, dispatch.WithLogger(quiet), dispatch.WithJournal(store)), WithJournal(store))

	tools := map[string]server.ServerTool{}
	for _, tool := range h.Tools() {
		tools[tool.Tool.Name] = tool
	}
	return &fixture{fake: fake, handler: h, tools: tools}
}

func (f *fixture) call(t *testing.T, name string, args map[string]any) (string, bool) {
	t.Helper()
	tool, ok := f.tools[name]
	require.True(t, ok, "unknown tool %s", name)

	result, err := tool.Handler(context.Background(), testutil.NewCallToolRequest(name, args))
	require.NoError(t, err, "tool handlers never return Go errors")
	return testutil.ResultText(t, result), result.IsError
}

func (f *fixture) mustCall(t *testing.T, name string, args map[string]any) string {
	t.Helper()
	text, isErr := f.call(t, name, args)
	require.False(t, isErr, "%s failed: %s", name, text)
	return text
}

func (f *fixture) read(t *testing.T, uri string) (string, string) {
	t.Helper()
	resources := f.handler.resources()
	for _, r := range resources {
		if r.static != nil && r.static.URI == uri {
			return f.readWith(t, r, uri)
		}
	}
	for _, r := range resources {
		if r.template != nil && strings.HasPrefix(uri, strings.TrimSuffix(r.template.URITemplate.Raw(), "{id}")) {
			return f.readWith(t, r, uri)
		}
	}
	t.Fatalf("no resource serves %s", uri)
	return "", ""
}

func (f *fixture) readWith(t *testing.T, r resource, uri string) (string, string) {
	t.Helper()
	contents, err := r.handler(context.Background(), testutil.NewReadResourceRequest(uri))
	require.NoError(t, err)
	return testutil.ResourceText(t, contents)
}

func TestTools_Catalog(t *testing.T) {
	f := newFixture(t, false)

	var names []string
	for name := range f.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	want := []string{
		"add_environment_file",
		"add_test_data_file",
		"authenticate_testzeus",
		"create_and_start_test_run",
		"create_environment",
		"create_tag",
		"create_test",
		"create_test_data",
		"create_test_run",
		"delete_environment",
		"delete_tag",
		"delete_test",
		"delete_test_data",
		"delete_test_run",
		"get_environment",
		"get_tag",
		"get_test",
		"get_test_data",
		"get_test_run",
		"list_environments",
		"list_tags",
		"list_test_data",
		"list_test_runs",
		"list_tests",
		"remove_all_environment_files",
		"remove_all_test_data_files",
		"remove_environment_file",
		"remove_test_data_file",
		"run_test",
		"update_environment",
		"update_tag",
		"update_test",
		"update_test_data",
		"update_test_run",
	}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Errorf("tool set mismatch (-want +got):\n%s", diff)
	}

	create := f.tools["create_test"].Tool.InputSchema
	assert.ElementsMatch(t, []string{"name", "test_feature"}, create.Required)
	status, _ := create.Properties["status"].(map[string]any)
	assert.Contains(t, status["description"], "(default: draft)")

	list := f.tools["list_test_runs"].Tool.InputSchema
	for _, arg := range []string{"page", "per_page", "test_id", "status", "filters", "sort"} {
		assert.Contains(t, list.Properties, arg)
	}
}

func TestTools_UnauthenticatedNeverReachAPI(t *testing.T) {
	f := newFixture(t, false)

	for name := range f.tools {
		if name == "authenticate_testzeus" {
			continue
		}
		t.Run(name, func(t *testing.T) {
			text, isErr := f.call(t, name, map[string]any{})
			assert.True(t, isErr)
			assert.True(t, strings.HasPrefix(text, dispatch.NotAuthenticated), "got %q", text)
		})
	}
	assert.Zero(t, f.fake.Requests())
}

func TestTools_TestLifecycle(t *testing.T) {
	f := newFixture(t, false)
	tagID := f.fake.Seed(testzeus.CollectionTags, map[string]any{"name": "smoke"})
	envID := f.fake.Seed(testzeus.CollectionEnvironments, map[string]any{"name": "staging"})

	testutil.Given(t, "an explicitly authenticated session")
	text := f.mustCall(t, "authenticate_testzeus", map[string]any{
		"email": email, "password": password, "base_url": f.fake.URL,
	})
	assert.Equal(t, "Successfully authenticated with TestZeus as "+email, text)

	testutil.When(t, "a test is created with tag and environment names")
	text = f.mustCall(t, "create_test", map[string]any{
		"name":         "Login flow",
		"test_feature": "Feature: login",
		"tags":         []any{"smoke"},
		"environment":  "staging",
	})
	require.True(t, strings.HasPrefix(text, "Successfully created test 'Login flow' with ID: "), text)
	id := strings.TrimPrefix(text, "Successfully created test 'Login flow' with ID: ")

	testutil.Then(t, "names are stored as ids and defaults are applied")
	rec := f.fake.Record(testzeus.CollectionTests, id)
	require.NotNil(t, rec)
	assert.Equal(t, "draft", rec["status"])
	assert.Equal(t, []any{tagID}, rec["tags"])
	assert.Equal(t, envID, rec["environment"])
	assert.NotEmpty(t, rec["tenant"])

	testutil.When(t, "the test is fetched by name")
	text = f.mustCall(t, "get_test", map[string]any{"test_id_or_name": "Login flow"})
	assert.True(t, strings.HasPrefix(text, "Test details:\n"))
	assert.Contains(t, text, `"id": "`+id+`"`)

	testutil.When(t, "the test is updated")
	text = f.mustCall(t, "update_test", map[string]any{"test_id_or_name": id, "status": "ready"})
	assert.Equal(t, "Successfully updated test 'Login flow' (ID: "+id+")", text)
	assert.Equal(t, "ready", f.fake.Record(testzeus.CollectionTests, id)["status"])

	testutil.Then(t, "fetching by name reflects the update")
	text = f.mustCall(t, "get_test", map[string]any{"test_id_or_name": "Login flow"})
	assert.Contains(t, text, `"status": "ready"`)

	testutil.When(t, "the test is run")
	text = f.mustCall(t, "run_test", map[string]any{"test_id_or_name": "Login flow", "tag": "smoke"})
	assert.True(t, strings.HasPrefix(text, "Successfully started test run 'Login flow run "), text)
	require.Equal(t, 1, f.fake.Count(testzeus.CollectionTestRuns))

	runs := f.mustCall(t, "list_test_runs", map[string]any{"test_id": id})
	assert.True(t, strings.HasPrefix(runs, "Found 1 test runs:\n"), runs)
	assert.Equal(t, `test = "`+id+`"`, f.fake.LastQuery(testzeus.CollectionTestRuns).Get("filter"))

	testutil.When(t, "the test is deleted")
	text = f.mustCall(t, "delete_test", map[string]any{"test_id_or_name": id})
	assert.Equal(t, "Successfully deleted test 'Login flow' (ID: "+id+")", text)

	testutil.Then(t, "it can no longer be found by id or by name")
	text, isErr := f.call(t, "get_test", map[string]any{"test_id_or_name": id})
	assert.True(t, isErr)
	assert.Equal(t, `Error getting test: tests "`+id+`": not found`, text)

	text, isErr = f.call(t, "get_test", map[string]any{"test_id_or_name": "Login flow"})
	assert.True(t, isErr)
	assert.Equal(t, `Error getting test: tests "Login flow": not found`, text)
}

func TestTools_CreateAndStartTestRun(t *testing.T) {
	f := newFixture(t, true)
	testID := f.fake.Seed(testzeus.CollectionTests, map[string]any{"name": "Checkout"})

	text := f.mustCall(t, "create_and_start_test_run", map[string]any{"name": "nightly", "test": "Checkout"})
	assert.True(t, strings.HasPrefix(text, "Successfully started test run 'nightly' with ID: "), text)

	runID := strings.TrimPrefix(text, "Successfully started test run 'nightly' with ID: ")
	run := f.fake.Record(testzeus.CollectionTestRuns, runID)
	require.NotNil(t, run)
	assert.Equal(t, testID, run["test"])
	assert.Equal(t, testzeus.StatusPending, run["status"])

	text, isErr := f.call(t, "create_and_start_test_run", map[string]any{"name": "nightly", "test": "Checkout", "tag": "missing"})
	assert.True(t, isErr)
	assert.Equal(t, `Error creating and starting test run: tag "missing": tags "missing": not found`, text)
}

func TestTools_Arguments(t *testing.T) {
	tests := []struct {
		name string
		tool string
		args map[string]any
		want string
	}{
		{
			name: "missing required",
			tool: "create_test",
			args: map[string]any{"name": "x"},
			want: "Error creating test: missing required argument: test_feature",
		},
		{
			name: "wrong type",
			tool: "list_tests",
			args: map[string]any{"page": "two"},
			want: `Error listing tests: page: expected an integer, got "two"`,
		},
		{
			name: "nothing to update",
			tool: "update_tag",
			args: map[string]any{"tag_id_or_name": "t"},
			want: "Error updating tag: no fields to update",
		},
		{
			name: "unknown reference",
			tool: "create_test",
			args: map[string]any{"name": "x", "test_feature": "f", "test_data": "nope"},
			want: `Error creating test: test_data: test_data "nope": not found`,
		},
		{
			name: "filter value is not a scalar",
			tool: "list_environments",
			args: map[string]any{"filters": map[string]any{"config": map[string]any{"region": "eu"}}},
			want: "Error listing environments: filters.config: expected a string, number or boolean, got map[string]interface {}",
		},
		{
			name: "blank required",
			tool: "create_tag",
			args: map[string]any{"name": " ", "value": "v"},
			want: "Error creating tag: missing required argument: name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, true)
			f.fake.Seed(testzeus.CollectionTags, map[string]any{"name": "t"})

			text, isErr := f.call(t, tt.tool, tt.args)
			assert.True(t, isErr)
			assert.Equal(t, tt.want, text)
		})
	}
}

func TestTools_ListPaging(t *testing.T) {
	f := newFixture(t, true)
	f.fake.Seed(testzeus.CollectionEnvironments, map[string]any{"name": "staging", "status": "ready"})
	f.fake.Seed(testzeus.CollectionEnvironments, map[string]any{"name": "old", "status": "draft"})

	text := f.mustCall(t, "create_environment", map[string]any{
		"name":        "prod",
		"description": "Production",
		"config":      map[string]any{"region": "eu"},
	})
	assert.True(t, strings.HasPrefix(text, "Successfully created environment 'prod' with ID: "), text)

	text = f.mustCall(t, "list_environments", map[string]any{"per_page": float64(200)})
	assert.True(t, strings.HasPrefix(text, "Found 3 environments:\n"), text)
	assert.Equal(t, "100", f.fake.LastQuery(testzeus.CollectionEnvironments).Get("perPage"))
	assert.Equal(t, "1", f.fake.LastQuery(testzeus.CollectionEnvironments).Get("page"))

	text = f.mustCall(t, "list_environments", map[string]any{"status": "ready", "sort": "-created"})
	assert.True(t, strings.HasPrefix(text, "Found 1 environments:\n"), text)
	assert.Contains(t, text, `"name": "staging"`)
	q := f.fake.LastQuery(testzeus.CollectionEnvironments)
	assert.Equal(t, `status = "ready"`, q.Get("filter"))
	assert.Equal(t, "-created", q.Get("sort"))
	assert.Equal(t, "50", q.Get("perPage"))

	f.mustCall(t, "list_environments", map[string]any{"filters": map[string]any{"name": "prod"}})
	assert.Equal(t, `name = "prod"`, f.fake.LastQuery(testzeus.CollectionEnvironments).Get("filter"))

	testutil.Section(t, "out of range paging saturates before clamping")
	for _, perPage := range []any{float64(1e20), "99999999999999999999", json.Number("99999999999999999999"), float64(-1e20)} {
		want := "100"
		if n, ok := perPage.(float64); ok && n < 0 {
			want = "1"
		}
		f.mustCall(t, "list_environments", map[string]any{"per_page": perPage})
		assert.Equal(t, want, f.fake.LastQuery(testzeus.CollectionEnvironments).Get("perPage"), "per_page %v", perPage)
	}
	f.mustCall(t, "list_environments", map[string]any{"page": "-99999999999999999999"})
	assert.Equal(t, "1", f.fake.LastQuery(testzeus.CollectionEnvironments).Get("page"))
}

func TestTools_ListTypedFilters(t *testing.T) {
	f := newFixture(t, true)
	flaky := f.fake.Seed(testzeus.CollectionEnvironments, map[string]any{"name": "flaky", "retries": 3, "archived": false})
	f.fake.Seed(testzeus.CollectionEnvironments, map[string]any{"name": "stable", "retries": 0, "archived": true})

	text := f.mustCall(t, "list_environments", map[string]any{"filters": map[string]any{"retries": float64(3), "archived": false}})
	assert.Equal(t, `archived = false && retries = 3`, f.fake.LastQuery(testzeus.CollectionEnvironments).Get("filter"))
	assert.True(t, strings.HasPrefix(text, "Found 1 environments:\n"), text)
	assert.Contains(t, text, `"id": "`+flaky+`"`)
}

func TestTools_CreateEnvironmentWithoutData(t *testing.T) {
	f := newFixture(t, true)

	testutil.When(t, "an environment is created with no data_content")
	text := f.mustCall(t, "create_environment", map[string]any{"name": "prod"})
	require.True(t, strings.HasPrefix(text, "Successfully created environment 'prod' with ID: "), text)
	id := strings.TrimPrefix(text, "Successfully created environment 'prod' with ID: ")
	assert.NotContains(t, f.fake.Record(testzeus.CollectionEnvironments, id), "data_content")

	testutil.Then(t, "listing with an oversized page returns exactly that environment")
	text = f.mustCall(t, "list_environments", map[string]any{"per_page": float64(200)})
	assert.Equal(t, "100", f.fake.LastQuery(testzeus.CollectionEnvironments).Get("perPage"))
	require.True(t, strings.HasPrefix(text, "Found 1 environments:\n"), text)
	assert.Contains(t, text, `"id": "`+id+`"`)
	assert.Contains(t, text, `"name": "prod"`)
}

func TestTools_SupportingFiles(t *testing.T) {
	f := newFixture(t, true)
	id := f.fake.Seed(testzeus.CollectionTestData, map[string]any{"name": "users"})

	path := filepath.Join(t.TempDir(), "users.csv")
	require.NoError(t, os.WriteFile(path, []byte("email\nqa@example.com\n"), 0o600))

	text := f.mustCall(t, "add_test_data_file", map[string]any{"test_data_id_or_name": "users", "file_path": path})
	assert.Equal(t, "Successfully added file 'users.csv' to test data 'users' (ID: "+id+")", text)
	assert.Equal(t, []string{"users.csv"}, f.fake.Record(testzeus.CollectionTestData, id)[testzeus.FieldSupportingFiles])

	text = f.mustCall(t, "remove_test_data_file", map[string]any{"test_data_id_or_name": id, "file_name": "users.csv"})
	assert.Equal(t, "Successfully removed file 'users.csv' from test data 'users' (ID: "+id+")", text)
	assert.Equal(t, []string{}, f.fake.Record(testzeus.CollectionTestData, id)[testzeus.FieldSupportingFiles])

	text = f.mustCall(t, "remove_all_test_data_files", map[string]any{"test_data_id_or_name": id})
	assert.Equal(t, "Successfully removed all files from test data 'users' (ID: "+id+")", text)

	text, isErr := f.call(t, "add_test_data_file", map[string]any{
		"test_data_id_or_name": id,
		"file_path":            filepath.Join(t.TempDir(), "missing.csv"),
	})
	assert.True(t, isErr)
	assert.True(t, strings.HasPrefix(text, "Error adding file to test data: "), text)
}

func TestResources(t *testing.T) {
	f := newFixture(t, true)
	testID := f.fake.Seed(testzeus.CollectionTests, map[string]any{"name": "Login flow", "status": "ready"})
	f.fake.Seed(testzeus.CollectionTestData, map[string]any{"name": "users", "type": "test"})

	testutil.Section(t, "listing")
	mime, text := f.read(t, "tests://")
	assert.Equal(t, "application/json", mime)
	assert.JSONEq(t, `{"tests": [{
		"id": "`+testID+`",
		"name": "Login flow",
		"status": "ready",
		"test_feature": "",
		"uri": "test://`+testID+`"
	}]}`, text)
	assert.Equal(t, "100", f.fake.LastQuery(testzeus.CollectionTests).Get("perPage"))

	_, text = f.read(t, "tags://")
	assert.JSONEq(t, `{"tags": []}`, text)

	testutil.Section(t, "items")
	mime, text = f.read(t, "test://"+testID)
	assert.Equal(t, "application/json", mime)
	assert.Contains(t, text, `"name": "Login flow"`)

	_, text = f.read(t, "test-data://users")
	assert.Contains(t, text, `"type": "test"`)

	mime, text = f.read(t, "environment://nowhere")
	assert.Equal(t, "text/plain", mime)
	assert.Equal(t, `Error getting environment: environment "nowhere": not found`, text)

	testutil.Section(t, "escaped names")
	mime, text = f.read(t, "test://Login%20flow")
	assert.Equal(t, "application/json", mime)
	assert.Contains(t, text, `"id": "`+testID+`"`)

	mime, text = f.read(t, "test://Login%zzflow")
	assert.Equal(t, "text/plain", mime)
	assert.True(t, strings.HasPrefix(text, `Error getting test: invalid test URI "test://Login%zzflow"`), text)
}

func TestResources_Journal(t *testing.T) {
	store, err := journal.NewStorage(journal.Config{Enabled: true, StorageType: journal.StorageMemory})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	f := newJournaledFixture(t, true, store)

	testutil.Given(t, "one successful and one failed call")
	f.mustCall(t, "list_tags", map[string]any{})
	_, isErr := f.call(t, "get_tag", map[string]any{"tag_id_or_name": "missing"})
	require.True(t, isErr)

	testutil.Then(t, "the journal resources report them without a session")
	mime, text := f.read(t, "journal://stats")
	assert.Equal(t, "application/json", mime)
	var stats journal.Stats
	require.NoError(t, json.Unmarshal([]byte(text), &stats))
	assert.True(t, stats.Enabled)
	assert.NotEmpty(t, stats.RunID)
	assert.Equal(t, int64(2), stats.Total)
	assert.Equal(t, int64(1), stats.Failures)
	assert.Equal(t, map[string]int{"list_tags": 1, "get_tag": 1}, stats.ByTool)

	_, text = f.read(t, "journal://recent")
	var recent struct {
		Entries []journal.Entry `json:"entries"`
	}
	require.NoError(t, json.Unmarshal([]byte(text), &recent))
	require.Len(t, recent.Entries, 2)
	assert.Equal(t, "get_tag", recent.Entries[0].Tool)
	assert.Equal(t, "tag_id_or_name", recent.Entries[0].Arguments)
	assert.Equal(t, stats.RunID, recent.Entries[0].RunID)
}

func TestResources_JournalDisabled(t *testing.T) {
	f := newFixture(t, true)
	for _, r := range f.handler.resources() {
		if r.static != nil {
			assert.False(t, strings.HasPrefix(r.static.URI, "journal://"), r.static.URI)
		}
	}
}

func TestResources_Unauthenticated(t *testing.T) {
	f := newFixture(t, false)

	mime, text := f.read(t, "test-runs://")
	assert.Equal(t, "text/plain", mime)
	assert.True(t, strings.HasPrefix(text, dispatch.NotAuthenticated))
	assert.Zero(t, f.fake.Requests())
}

func TestRegister(t *testing.T) {
	f := newFixture(t, false)
	s := server.NewMCPServer("test", "0.0.0", server.WithToolCapabilities(true), server.WithResourceCapabilities(false, false))

	assert.NotPanics(t, func() { f.handler.Register(s) })

	var templates []string
	for _, r := range f.handler.resources() {
		if r.template != nil {
			templates = append(templates, r.template.URITemplate.Raw())
		}
	}
	assert.ElementsMatch(t, []string{
		"test://{id}", "test-run://{id}", "environment://{id}", "test-data://{id}", "tag://{id}",
	}, templates)
}
