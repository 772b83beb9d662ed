package tools

import (
	"github.com/vcto/testzeus-mcp/internal/testzeus"
)

func testsColl(c *testzeus.Client) *testzeus.Collection[testzeus.Test] { return c.Tests }
func testRunsColl(c *testzeus.Client) *testzeus.Collection[testzeus.TestRun] { return c.TestRuns }
func environmentsColl(c *testzeus.Client) *testzeus.Collection[testzeus.Environment] { return c.Environments }
func testDataColl(c *testzeus.Client) *testzeus.Collection[testzeus.TestDatum] { return c.TestData }
func tagsColl(c *testzeus.Client) *testzeus.Collection[testzeus.Tag] { return c.Tags }

var (
	tagsField = field{
		arg: "tags", kind: listField, resolve: many(tagsColl),
		desc: "Tag IDs or names",
	}
	statusField = field{arg: "status", desc: "Status, e.g. draft or ready"}
	nameField   = field{arg: "name", desc: "Name"}
)

func testsEntity() *entity[testzeus.Test] {
	featureField := field{arg: "test_feature", desc: "Gherkin feature text describing the test"}
	testDataField := field{
		arg: "test_data", kind: listField, resolve: many(testDataColl),
		desc: "Test data IDs or names",
	}
	envField := field{
		arg: "environment", resolve: one(environmentsColl),
		desc: "Environment ID or name",
	}

	return &entity[testzeus.Test]{
		name:        "test",
		plural:      "tests",
		label:       "test",
		labelPlural: "tests",
		idArg:       "test_id_or_name",
		listURI:     "tests://",
		itemURI:     "test://",
		resourceKey: "tests",
		collection:  testsColl,
		summary:     summarizeTest,
		detail:      detailTest,
		item:        itemTest,
		filters: []listFilter{
			{arg: "status", key: "status", desc: "Only tests with this status"},
		},
		createFields: []field{
			required(nameField),
			required(featureField),
			withDefault(statusField, testzeus.StatusDraft),
			testDataField,
			tagsField,
			envField,
		},
		updateFields: []field{nameField, featureField, statusField, testDataField, tagsField, envField},
	}
}

func testRunsEntity() *entity[testzeus.TestRun] {
	return &entity[testzeus.TestRun]{
		name:        "test_run",
		plural:      "test_runs",
		label:       "test run",
		labelPlural: "test runs",
		idArg:       "test_run_id_or_name",
		listURI:     "test-runs://",
		itemURI:     "test-run://",
		resourceKey: "test_runs",
		collection:  testRunsColl,
		summary:     summarizeTestRun,
		detail:      detailTestRun,
		item:        itemTestRun,
		filters: []listFilter{
			{arg: "test_id", key: "test", desc: "Only runs of this test ID"},
			{arg: "status", key: "status", desc: "Only runs with this status"},
		},
		createFields: []field{
			{arg: "test_id", key: "test", required: true, resolve: one(testsColl), desc: "Test ID or name to run"},
			nameField,
			{arg: "environment", resolve: one(environmentsColl), desc: "Environment ID or name"},
			{arg: "tag", resolve: one(tagsColl), desc: "Tag ID or name"},
			{arg: "config", kind: objectField, desc: "Run configuration"},
		},
		updateFields: []field{nameField, statusField, tagsField},
	}
}

func environmentsEntity() *entity[testzeus.Environment] {
	descField := field{arg: "description", desc: "Description"}
	contentField := field{arg: "data_content", desc: "Environment data, e.g. KEY=value lines"}
	configField := field{arg: "config", kind: objectField, desc: "Environment configuration"}

	return &entity[testzeus.Environment]{
		name:        "environment",
		plural:      "environments",
		label:       "environment",
		labelPlural: "environments",
		idArg:       "environment_id_or_name",
		listURI:     "environments://",
		itemURI:     "environment://",
		resourceKey: "environments",
		collection:  environmentsColl,
		summary:     summarizeEnvironment,
		detail:      detailEnvironment,
		item:        itemEnvironment,
		filters: []listFilter{
			{arg: "status", key: "status", desc: "Only environments with this status"},
		},
		createFields: []field{
			required(nameField),
			descField,
			withDefault(statusField, testzeus.StatusDraft),
			contentField,
			configField,
			tagsField,
		},
		updateFields: []field{nameField, descField, statusField, contentField, configField, tagsField},
		fileField:    testzeus.FieldSupportingFiles,
	}
}

func testDataEntity() *entity[testzeus.TestDatum] {
	typeField := field{arg: "type", desc: "Data type"}
	contentField := field{arg: "data_content", desc: "Data content"}

	return &entity[testzeus.TestDatum]{
		name:        "test_data",
		plural:      "test_data",
		label:       "test data",
		labelPlural: "test data",
		idArg:       "test_data_id_or_name",
		listURI:     "test-data://",
		itemURI:     "test-data://",
		resourceKey: "test_data",
		collection:  testDataColl,
		summary:     summarizeTestData,
		detail:      detailTestData,
		item:        itemTestData,
		filters: []listFilter{
			{arg: "status", key: "status", desc: "Only test data with this status"},
			{arg: "type", key: "type", desc: "Only test data of this type"},
		},
		createFields: []field{
			required(nameField),
			withDefault(typeField, "test"),
			withDefault(statusField, testzeus.StatusDraft),
			contentField,
			tagsField,
		},
		updateFields: []field{nameField, typeField, statusField, contentField, tagsField},
		fileField:    testzeus.FieldSupportingFiles,
	}
}

func tagsEntity() *entity[testzeus.Tag] {
	valueField := field{arg: "value", desc: "Tag value"}

	return &entity[testzeus.Tag]{
		name:         "tag",
		plural:       "tags",
		label:        "tag",
		labelPlural:  "tags",
		idArg:        "tag_id_or_name",
		listURI:      "tags://",
		itemURI:      "tag://",
		resourceKey:  "tags",
		collection:   tagsColl,
		summary:      summarizeTag,
		detail:       detailTag,
		item:         itemTag,
		createFields: []field{required(nameField), valueField},
		updateFields: []field{nameField, valueField},
	}
}

func required(f field) field {
	f.required = true
	return f
}

func withDefault(f field, def string) field {
	f.def = def
	return f
}
