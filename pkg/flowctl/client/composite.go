package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// MaxCompositeRequests is the number of sub-requests a single composite call accepts.
const MaxCompositeRequests = 25

type CompositeSubrequest struct {
	Method      string `json:"method"`
	URL         string `json:"url"`
	ReferenceID string `json:"referenceId"`
	Body        any    `json:"body,omitempty"`
}

type CompositeRequest struct {
	AllOrNone bool                  `json:"allOrNone"`
	Requests  []CompositeSubrequest `json:"compositeRequest"`
}

type CompositeSubresponse struct {
	Body           json.RawMessage `json:"body"`
	HTTPStatusCode int             `json:"httpStatusCode"`
	ReferenceID    string          `json:"referenceId"`
}

type CompositeResponse struct {
	Responses []CompositeSubresponse `json:"compositeResponse"`
}

// ByReference indexes sub-responses by reference id.
func (r *CompositeResponse) ByReference() map[string]CompositeSubresponse {
	out := make(map[string]CompositeSubresponse, len(r.Responses))
	for _, sub := range r.Responses {
		out[sub.ReferenceID] = sub
	}
	return out
}

// ToolingComposite submits a composite request to the Tooling API.
func (c *Client) ToolingComposite(ctx context.Context, req CompositeRequest) (*CompositeResponse, error) {
	if len(req.Requests) > MaxCompositeRequests {
		return nil, fmt.Errorf("composite request has %d sub-requests, limit is %d", len(req.Requests), MaxCompositeRequests)
	}
	var resp CompositeResponse
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/services/data/%s/tooling/composite", c.apiVersion), req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// FlowVersionPath is the sub-request url deleting one Flow version.
func (c *Client) FlowVersionPath(id string) string {
	return fmt.Sprintf("/services/data/%s/tooling/sobjects/Flow/%s", c.apiVersion, id)
}
