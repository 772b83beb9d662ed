package testzeus

import "encoding/json"

// Collection names on the TestZeus API.
const (
	CollectionTests        = "tests"
	CollectionTestRuns     = "test_runs"
	CollectionEnvironments = "environment"
	CollectionTestData     = "test_data"
	CollectionTags         = "tags"
)

// FieldSupportingFiles is the file field shared by environments and test data.
const FieldSupportingFiles = "supporting_data_files"

// Status values used when the caller does not choose one.
const (
	StatusDraft   = "draft"
	StatusPending = "pending"
)

// Entity is implemented by every record type the client returns.
type Entity interface {
	RecordID() string
	RecordName() string
}

// Payload is the JSON body of a create or update call.
type Payload map[string]any

// Record holds the system fields every TestZeus record carries.
type Record struct {
	ID             string `json:"id"`
	CollectionName string `json:"collectionName,omitempty"`
	Created        string `json:"created"`
	Updated        string `json:"updated"`
	Tenant         string `json:"tenant,omitempty"`
	ModifiedBy     string `json:"modified_by,omitempty"`
}

// RecordID returns the record id.
func (r Record) RecordID() string {
	return r.ID
}

// Test is a test definition written as a Gherkin feature.
type Test struct {
	Record
	Name        string          `json:"name"`
	Status      string          `json:"status"`
	TestFeature string          `json:"test_feature"`
	TestData    []string        `json:"test_data"`
	Tags        []string        `json:"tags"`
	Environment string          `json:"environment"`
	Config      json.RawMessage `json:"config,omitempty"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
}

func (t Test) RecordName() string { return t.Name }

// TestRun is one execution of a test.
type TestRun struct {
	Record
	Name          string          `json:"name"`
	Status        string          `json:"status"`
	Test          string          `json:"test"`
	TestStatus    string          `json:"test_status"`
	Environment   string          `json:"environment"`
	Tag           string          `json:"tag"`
	StartTime     string          `json:"start_time"`
	EndTime       string          `json:"end_time"`
	WorkflowRunID string          `json:"workflow_run_id"`
	Tags          []string        `json:"tags"`
	Config        json.RawMessage `json:"config,omitempty"`
	Metadata      json.RawMessage `json:"metadata,omitempty"`
}

func (r TestRun) RecordName() string { return r.Name }

// Environment holds configuration data and files a test runs against.
type Environment struct {
	Record
	Name                string          `json:"name"`
	Description         string          `json:"description"`
	Status              string          `json:"status"`
	DataContent         string          `json:"data_content"`
	SupportingDataFiles []string        `json:"supporting_data_files"`
	Tags                []string        `json:"tags"`
	Config              json.RawMessage `json:"config,omitempty"`
	Metadata            json.RawMessage `json:"metadata,omitempty"`
}

func (e Environment) RecordName() string { return e.Name }

// TestDatum is a named piece of input data for tests.
type TestDatum struct {
	Record
	Name                string          `json:"name"`
	Type                string          `json:"type"`
	Status              string          `json:"status"`
	DataContent         string          `json:"data_content"`
	SupportingDataFiles []string        `json:"supporting_data_files"`
	Tags                []string        `json:"tags"`
	Metadata            json.RawMessage `json:"metadata,omitempty"`
}

func (d TestDatum) RecordName() string { return d.Name }

// Tag labels tests, runs, environments and test data.
type Tag struct {
	Record
	Name  string `json:"name"`
	Value string `json:"value"`
}

func (t Tag) RecordName() string { return t.Name }
