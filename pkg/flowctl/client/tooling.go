package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/telekom/flowctl/pkg/flowctl/retention"
)

type QueryErrorKind string

const (
	QueryErrorTransport QueryErrorKind = "transport"
	QueryErrorHTTP      QueryErrorKind = "http"
)

// QueryError is returned when a SOQL query cannot be completed.
type QueryError struct {
	Kind  QueryErrorKind
	Query string
	Err   error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("query failed (%s): %v", e.Kind, e.Err)
}

func (e *QueryError) Unwrap() error {
	return e.Err
}

func newQueryError(query string, err error) error {
	kind := QueryErrorTransport
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		kind = QueryErrorHTTP
	}
	return &QueryError{Kind: kind, Query: query, Err: err}
}

type queryPage[T any] struct {
	TotalSize      int    `json:"totalSize"`
	Done           bool   `json:"done"`
	NextRecordsURL string `json:"nextRecordsUrl"`
	Records        []T    `json:"records"`
}

func queryAll[T any](ctx context.Context, c *Client, endpoint, soql string) ([]T, error) {
	next := endpoint + "?" + url.Values{"q": {soql}}.Encode()
	var all []T
	for next != "" {
		var page queryPage[T]
		if err := c.do(ctx, http.MethodGet, next, nil, &page); err != nil {
			return nil, newQueryError(soql, err)
		}
		all = append(all, page.Records...)
		if page.Done || page.NextRecordsURL == "" || page.NextRecordsURL == next {
			break
		}
		next = page.NextRecordsURL
	}
	return all, nil
}

// Query runs a SOQL query against the data API and follows nextRecordsUrl.
func Query[T any](ctx context.Context, c *Client, soql string) ([]T, error) {
	return queryAll[T](ctx, c, fmt.Sprintf("/services/data/%s/query", c.apiVersion), soql)
}

// ToolingQuery runs a SOQL query against the Tooling API and follows nextRecordsUrl.
func ToolingQuery[T any](ctx context.Context, c *Client, soql string) ([]T, error) {
	return queryAll[T](ctx, c, fmt.Sprintf("/services/data/%s/tooling/query", c.apiVersion), soql)
}

type flowRecord struct {
	ID            string `json:"Id"`
	MasterLabel   string `json:"MasterLabel"`
	VersionNumber int    `json:"VersionNumber"`
	Status        string `json:"Status"`
	DefinitionID  string `json:"DefinitionId"`
	Definition    *struct {
		DeveloperName string `json:"DeveloperName"`
		MasterLabel   string `json:"MasterLabel"`
	} `json:"Definition"`
}

func (r flowRecord) toVersion() retention.VersionRecord {
	record := retention.VersionRecord{
		ID:            r.ID,
		DefinitionID:  r.DefinitionID,
		VersionNumber: r.VersionNumber,
		Status:        retention.Status(r.Status),
		Label:         r.MasterLabel,
	}
	if r.Definition != nil {
		record.DeveloperName = r.Definition.DeveloperName
		if r.Definition.MasterLabel != "" {
			record.Label = r.Definition.MasterLabel
		}
	}
	return record
}

// FlowVersions returns every non-active Flow version, optionally restricted
// to the given definition developer names.
func (c *Client) FlowVersions(ctx context.Context, names []string) ([]retention.VersionRecord, error) {
	rows, err := ToolingQuery[flowRecord](ctx, c, FlowVersionsQuery(names))
	if err != nil {
		return nil, err
	}
	records := make([]retention.VersionRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, row.toVersion())
	}
	return records, nil
}

type Organization struct {
	Name string `json:"Name"`
	// IsSandbox is nil when the org did not report it.
	IsSandbox *bool `json:"IsSandbox"`
}

// Production reports whether the org must be treated as production. An
// unknown sandbox flag counts as production.
func (o *Organization) Production() bool {
	return o == nil || o.IsSandbox == nil || !*o.IsSandbox
}

func (c *Client) Organization(ctx context.Context) (*Organization, error) {
	rows, err := Query[Organization](ctx, c, OrganizationQuery)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return &Organization{}, nil
	}
	return &rows[0], nil
}
