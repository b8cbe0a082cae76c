package cleanup

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/telekom/flowctl/pkg/flowctl/client"
)

// compositeServer answers tooling composite calls. status decides the
// sub-response code per record id; drop omits a reference from the reply.
type compositeServer struct {
	mu       sync.Mutex
	requests []client.CompositeRequest
	status   func(id string) int
	drop     map[string]bool
	failCall int
}

func (s *compositeServer) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.True(t, strings.HasSuffix(r.URL.Path, "/tooling/composite"), r.URL.Path)

		var req client.CompositeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		s.mu.Lock()
		s.requests = append(s.requests, req)
		call := len(s.requests)
		s.mu.Unlock()

		if s.failCall == call {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`[{"errorCode":"UNKNOWN_EXCEPTION","message":"boom"}]`))
			return
		}

		var resp client.CompositeResponse
		for _, sub := range req.Requests {
			if s.drop[sub.ReferenceID] {
				continue
			}
			id := sub.URL[strings.LastIndex(sub.URL, "/")+1:]
			code := http.StatusNoContent
			if s.status != nil {
				code = s.status(id)
			}
			out := client.CompositeSubresponse{ReferenceID: sub.ReferenceID, HTTPStatusCode: code}
			if code != http.StatusNoContent {
				out.Body = json.RawMessage(`[{"errorCode":"DELETE_FAILED","message":"cannot delete"}]`)
			}
			resp.Responses = append(resp.Responses, out)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}
}

func newTestDeleter(t *testing.T, srv *compositeServer) *Deleter {
	t.Helper()
	server := httptest.NewServer(srv.handler(t))
	t.Cleanup(server.Close)
	c, err := client.New(client.WithInstance(server.URL), client.WithToken("test-token"))
	require.NoError(t, err)
	return &Deleter{Client: c}
}

func makeIDs(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("301000000000%03d", i+1)
	}
	return ids
}

func TestDeleteBatchPartition(t *testing.T) {
	for _, n := range []int{1, 24, 25, 26, 27, 50, 51, 100} {
		t.Run(fmt.Sprintf("%d ids", n), func(t *testing.T) {
			srv := &compositeServer{}
			d := newTestDeleter(t, srv)

			summary, err := d.Delete(context.Background(), makeIDs(n))
			require.NoError(t, err)

			wantBatches := (n + client.MaxCompositeRequests - 1) / client.MaxCompositeRequests
			require.Len(t, srv.requests, wantBatches)
			require.Len(t, summary.Batches, wantBatches)
			total := 0
			for _, req := range srv.requests {
				assert.False(t, req.AllOrNone)
				assert.LessOrEqual(t, len(req.Requests), client.MaxCompositeRequests)
			}
			for _, batch := range summary.Batches {
				total += batch.Succeeded + batch.Failed
			}
			assert.Equal(t, n, total)
			assert.Equal(t, n, summary.TotalSucceeded)
		})
	}
}

func TestDeleteReferenceIDs(t *testing.T) {
	srv := &compositeServer{}
	d := newTestDeleter(t, srv)
	ids := makeIDs(27)

	summary, err := d.Delete(context.Background(), ids)
	require.NoError(t, err)
	require.Len(t, srv.requests, 2)
	require.Len(t, srv.requests[0].Requests, 25)
	require.Len(t, srv.requests[1].Requests, 2)

	assert.Equal(t, "batch1_del1", srv.requests[0].Requests[0].ReferenceID)
	assert.Equal(t, "batch1_del25", srv.requests[0].Requests[24].ReferenceID)
	assert.Equal(t, "batch2_del1", srv.requests[1].Requests[0].ReferenceID)
	assert.Equal(t, "batch2_del2", srv.requests[1].Requests[1].ReferenceID)

	sub := srv.requests[1].Requests[1]
	assert.Equal(t, http.MethodDelete, sub.Method)
	assert.Equal(t, "/services/data/v60.0/tooling/sobjects/Flow/"+ids[26], sub.URL)

	assert.Equal(t, 2, summary.Batches[1].Batch)
	assert.Equal(t, ids[26], summary.Batches[1].Items[1].RecordID)
}

func TestDeletePartialFailure(t *testing.T) {
	ids := makeIDs(25)
	srv := &compositeServer{status: func(id string) int {
		if id == ids[12] {
			return http.StatusBadRequest
		}
		return http.StatusNoContent
	}}
	d := newTestDeleter(t, srv)

	summary, err := d.Delete(context.Background(), ids)
	require.NoError(t, err)
	require.Len(t, summary.Batches, 1)
	assert.Equal(t, 24, summary.Batches[0].Succeeded)
	assert.Equal(t, 1, summary.Batches[0].Failed)
	assert.Equal(t, 24, summary.TotalSucceeded)
	assert.Equal(t, 1, summary.TotalFailed)

	failures := summary.Failures()
	require.Len(t, failures, 1)
	assert.Equal(t, ids[12], failures[0].RecordID)
	assert.Equal(t, "batch1_del13", failures[0].ReferenceID)
	assert.Equal(t, http.StatusBadRequest, failures[0].StatusCode)
	assert.Contains(t, failures[0].Body, "DELETE_FAILED")
}

func TestDeleteMissingSubresponse(t *testing.T) {
	srv := &compositeServer{drop: map[string]bool{"batch1_del2": true}}
	d := newTestDeleter(t, srv)

	summary, err := d.Delete(context.Background(), makeIDs(3))
	require.NoError(t, err)
	assert.Equal(t, 2, summary.TotalSucceeded)
	assert.Equal(t, 1, summary.TotalFailed)
	failures := summary.Failures()
	require.Len(t, failures, 1)
	assert.Equal(t, 0, failures[0].StatusCode)
}

func TestDeleteStopsOnCompositeFailure(t *testing.T) {
	srv := &compositeServer{failCall: 2}
	d := newTestDeleter(t, srv)
	var calls []BatchOutcome
	var errs []error
	d.OnBatch = func(outcome BatchOutcome, err error) {
		calls = append(calls, outcome)
		errs = append(errs, err)
	}

	summary, err := d.Delete(context.Background(), makeIDs(60))
	require.Error(t, err)

	var deleteErr *DeleteError
	require.ErrorAs(t, err, &deleteErr)
	assert.Equal(t, 2, deleteErr.Batch)
	var httpErr *client.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusInternalServerError, httpErr.StatusCode)

	assert.Len(t, srv.requests, 2, "batch 3 must not be sent")
	require.Len(t, summary.Batches, 1)
	assert.Equal(t, 25, summary.TotalSucceeded)
	assert.Equal(t, 0, summary.TotalFailed)

	require.Len(t, calls, 2)
	assert.NoError(t, errs[0])
	assert.Error(t, errs[1])
}

func TestDeleteLimiterHonoursContext(t *testing.T) {
	srv := &compositeServer{}
	d := newTestDeleter(t, srv)
	d.Limiter = rate.NewLimiter(rate.Limit(0.001), 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	summary, err := d.Delete(ctx, makeIDs(30))
	require.Error(t, err)
	var deleteErr *DeleteError
	require.ErrorAs(t, err, &deleteErr)
	assert.Equal(t, 1, deleteErr.Batch)
	assert.Empty(t, summary.Batches)
	assert.Empty(t, srv.requests)
}

func TestDeleteEmpty(t *testing.T) {
	srv := &compositeServer{}
	d := newTestDeleter(t, srv)

	summary, err := d.Delete(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, summary.Batches)
	assert.Empty(t, srv.requests)
}
