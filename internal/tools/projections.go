package tools

import (
	"encoding/json"

	"github.com/vcto/testzeus-mcp/internal/testzeus"
)

// Projections fix the fields each tool reports. Summaries back list tools,
// details back get tools and item resources, items back listing resources.

type testSummary struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Status      string   `json:"status"`
	TestFeature string   `json:"test_feature"`
	Tags        []string `json:"tags"`
	Created     string   `json:"created"`
	Updated     string   `json:"updated"`
}

type testDetail struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Status      string          `json:"status"`
	TestFeature string          `json:"test_feature"`
	Tags        []string        `json:"tags"`
	TestData    []string        `json:"test_data"`
	Environment string          `json:"environment"`
	Config      json.RawMessage `json:"config"`
	Metadata    json.RawMessage `json:"metadata"`
	Created     string          `json:"created"`
	Updated     string          `json:"updated"`
	Tenant      string          `json:"tenant"`
	ModifiedBy  string          `json:"modified_by"`
}

type testItem struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Status      string `json:"status"`
	TestFeature string `json:"test_feature"`
	URI         string `json:"uri"`
}

func summarizeTest(t testzeus.Test) any {
	return testSummary{
		ID:          t.ID,
		Name:        t.Name,
		Status:      t.Status,
		TestFeature: t.TestFeature,
		Tags:        nonNil(t.Tags),
		Created:     t.Created,
		Updated:     t.Updated,
	}
}

func detailTest(t testzeus.Test) any {
	return testDetail{
		ID:          t.ID,
		Name:        t.Name,
		Status:      t.Status,
		TestFeature: t.TestFeature,
		Tags:        nonNil(t.Tags),
		TestData:    nonNil(t.TestData),
		Environment: t.Environment,
		Config:      nullable(t.Config),
		Metadata:    nullable(t.Metadata),
		Created:     t.Created,
		Updated:     t.Updated,
		Tenant:      t.Tenant,
		ModifiedBy:  t.ModifiedBy,
	}
}

func itemTest(t testzeus.Test, uri string) any {
	return testItem{ID: t.ID, Name: t.Name, Status: t.Status, TestFeature: t.TestFeature, URI: uri}
}

type testRunSummary struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Status    string `json:"status"`
	Test      string `json:"test"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Created   string `json:"created"`
	Updated   string `json:"updated"`
}

type testRunDetail struct {
	ID            string          `json:"id"`
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
	Metadata      json.RawMessage `json:"metadata"`
	Created       string          `json:"created"`
	Updated       string          `json:"updated"`
	Tenant        string          `json:"tenant"`
	ModifiedBy    string          `json:"modified_by"`
}

type testRunItem struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
	Test   string `json:"test"`
	URI    string `json:"uri"`
}

func summarizeTestRun(r testzeus.TestRun) any {
	return testRunSummary{
		ID:        r.ID,
		Name:      r.Name,
		Status:    r.Status,
		Test:      r.Test,
		StartTime: r.StartTime,
		EndTime:   r.EndTime,
		Created:   r.Created,
		Updated:   r.Updated,
	}
}

func detailTestRun(r testzeus.TestRun) any {
	return testRunDetail{
		ID:            r.ID,
		Name:          r.Name,
		Status:        r.Status,
		Test:          r.Test,
		TestStatus:    r.TestStatus,
		Environment:   r.Environment,
		Tag:           r.Tag,
		StartTime:     r.StartTime,
		EndTime:       r.EndTime,
		WorkflowRunID: r.WorkflowRunID,
		Tags:          nonNil(r.Tags),
		Metadata:      nullable(r.Metadata),
		Created:       r.Created,
		Updated:       r.Updated,
		Tenant:        r.Tenant,
		ModifiedBy:    r.ModifiedBy,
	}
}

func itemTestRun(r testzeus.TestRun, uri string) any {
	return testRunItem{ID: r.ID, Name: r.Name, Status: r.Status, Test: r.Test, URI: uri}
}

type environmentSummary struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Status      string          `json:"status"`
	Config      json.RawMessage `json:"config"`
	Created     string          `json:"created"`
	Updated     string          `json:"updated"`
}

type environmentDetail struct {
	ID                  string          `json:"id"`
	Name                string          `json:"name"`
	Description         string          `json:"description"`
	Status              string          `json:"status"`
	DataContent         string          `json:"data_content"`
	SupportingDataFiles []string        `json:"supporting_data_files"`
	Tags                []string        `json:"tags"`
	Config              json.RawMessage `json:"config"`
	Metadata            json.RawMessage `json:"metadata"`
	Created             string          `json:"created"`
	Updated             string          `json:"updated"`
	Tenant              string          `json:"tenant"`
	ModifiedBy          string          `json:"modified_by"`
}

type environmentItem struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	URI         string `json:"uri"`
}

func summarizeEnvironment(e testzeus.Environment) any {
	return environmentSummary{
		ID:          e.ID,
		Name:        e.Name,
		Description: e.Description,
		Status:      e.Status,
		Config:      nullable(e.Config),
		Created:     e.Created,
		Updated:     e.Updated,
	}
}

func detailEnvironment(e testzeus.Environment) any {
	return environmentDetail{
		ID:                  e.ID,
		Name:                e.Name,
		Description:         e.Description,
		Status:              e.Status,
		DataContent:         e.DataContent,
		SupportingDataFiles: nonNil(e.SupportingDataFiles),
		Tags:                nonNil(e.Tags),
		Config:              nullable(e.Config),
		Metadata:            nullable(e.Metadata),
		Created:             e.Created,
		Updated:             e.Updated,
		Tenant:              e.Tenant,
		ModifiedBy:          e.ModifiedBy,
	}
}

func itemEnvironment(e testzeus.Environment, uri string) any {
	return environmentItem{ID: e.ID, Name: e.Name, Description: e.Description, URI: uri}
}

type testDataSummary struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Type    string `json:"type"`
	Status  string `json:"status"`
	Created string `json:"created"`
	Updated string `json:"updated"`
}

type testDataDetail struct {
	ID                  string          `json:"id"`
	Name                string          `json:"name"`
	Type                string          `json:"type"`
	Status              string          `json:"status"`
	DataContent         string          `json:"data_content"`
	SupportingDataFiles []string        `json:"supporting_data_files"`
	Tags                []string        `json:"tags"`
	Metadata            json.RawMessage `json:"metadata"`
	Created             string          `json:"created"`
	Updated             string          `json:"updated"`
	Tenant              string          `json:"tenant"`
	ModifiedBy          string          `json:"modified_by"`
}

type testDataItem struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
	URI  string `json:"uri"`
}

func summarizeTestData(d testzeus.TestDatum) any {
	return testDataSummary{ID: d.ID, Name: d.Name, Type: d.Type, Status: d.Status, Created: d.Created, Updated: d.Updated}
}

func detailTestData(d testzeus.TestDatum) any {
	return testDataDetail{
		ID:                  d.ID,
		Name:                d.Name,
		Type:                d.Type,
		Status:              d.Status,
		DataContent:         d.DataContent,
		SupportingDataFiles: nonNil(d.SupportingDataFiles),
		Tags:                nonNil(d.Tags),
		Metadata:            nullable(d.Metadata),
		Created:             d.Created,
		Updated:             d.Updated,
		Tenant:              d.Tenant,
		ModifiedBy:          d.ModifiedBy,
	}
}

func itemTestData(d testzeus.TestDatum, uri string) any {
	return testDataItem{ID: d.ID, Name: d.Name, Type: d.Type, URI: uri}
}

type tagSummary struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Value   string `json:"value"`
	Created string `json:"created"`
	Updated string `json:"updated"`
}

type tagDetail struct {
	tagSummary
	Tenant     string `json:"tenant"`
	ModifiedBy string `json:"modified_by"`
}

type tagItem struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Value string `json:"value"`
	URI   string `json:"uri"`
}

func summarizeTag(t testzeus.Tag) any {
	return tagSummary{ID: t.ID, Name: t.Name, Value: t.Value, Created: t.Created, Updated: t.Updated}
}

func detailTag(t testzeus.Tag) any {
	return tagDetail{
		tagSummary: tagSummary{ID: t.ID, Name: t.Name, Value: t.Value, Created: t.Created, Updated: t.Updated},
		Tenant:     t.Tenant,
		ModifiedBy: t.ModifiedBy,
	}
}

func itemTag(t testzeus.Tag, uri string) any {
	return tagItem{ID: t.ID, Name: t.Name, Value: t.Value, URI: uri}
}

// nullable maps an absent or empty JSON value to null.
func nullable(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 || string(raw) == `""` {
		return json.RawMessage("null")
	}
	return raw
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
