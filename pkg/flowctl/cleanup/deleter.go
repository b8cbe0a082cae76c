package cleanup

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/telekom/flowctl/pkg/flowctl/client"
)

// CompositeAPI is the part of the client the deleter needs.
type CompositeAPI interface {
	ToolingComposite(ctx context.Context, req client.CompositeRequest) (*client.CompositeResponse, error)
	FlowVersionPath(id string) string
}

// ItemResult is the result of deleting one version.
type ItemResult struct {
	ReferenceID string `json:"reference_id" yaml:"reference_id"`
	RecordID    string `json:"record_id" yaml:"record_id"`
	StatusCode  int    `json:"status_code" yaml:"status_code"`
	Body        string `json:"body,omitempty" yaml:"body,omitempty"`
}

func (i ItemResult) Succeeded() bool {
	return i.StatusCode == http.StatusNoContent
}

type BatchOutcome struct {
	Batch     int          `json:"batch" yaml:"batch"`
	Succeeded int          `json:"succeeded" yaml:"succeeded"`
	Failed    int          `json:"failed" yaml:"failed"`
	Items     []ItemResult `json:"items" yaml:"items"`
}

type DeleteSummary struct {
	Batches        []BatchOutcome `json:"batches" yaml:"batches"`
	TotalSucceeded int            `json:"total_succeeded" yaml:"total_succeeded"`
	TotalFailed    int            `json:"total_failed" yaml:"total_failed"`
}

// Failures lists every item that was not deleted.
func (s *DeleteSummary) Failures() []ItemResult {
	if s == nil {
		return nil
	}
	var out []ItemResult
	for _, batch := range s.Batches {
		for _, item := range batch.Items {
			if !item.Succeeded() {
				out = append(out, item)
			}
		}
	}
	return out
}

// DeleteError is returned when a whole composite call failed. Batches after
// Batch were not sent.
type DeleteError struct {
	Batch int
	Err   error
}

func (e *DeleteError) Error() string {
	return fmt.Sprintf("delete batch %d failed: %v", e.Batch, e.Err)
}

func (e *DeleteError) Unwrap() error {
	return e.Err
}

// Deleter removes Flow versions with Tooling API composite requests.
type Deleter struct {
	Client CompositeAPI
	// Limiter paces batch submissions; nil means unlimited.
	Limiter *rate.Limiter
	Logger  *zap.SugaredLogger
	// OnBatch is called after every composite call, with the error of a
	// failed call.
	OnBatch func(outcome BatchOutcome, err error)
}

func referenceID(batch, item int) string {
	return fmt.Sprintf("batch%d_del%d", batch, item)
}

func chunk(ids []string, size int) [][]string {
	var out [][]string
	for start := 0; start < len(ids); start += size {
		end := min(start+size, len(ids))
		out = append(out, ids[start:end])
	}
	return out
}

// Delete submits ids in chunks of client.MaxCompositeRequests. Item failures
// are counted in the summary; a failed composite call stops the run and is
// returned as a *DeleteError together with the summary so far.
func (d *Deleter) Delete(ctx context.Context, ids []string) (*DeleteSummary, error) {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	summary := &DeleteSummary{}
	batches := chunk(ids, client.MaxCompositeRequests)
	logger.Infow("Starting bulk delete", "versions", len(ids), "batches", len(batches))

	for n, batchIDs := range batches {
		number := n + 1
		if d.Limiter != nil {
			if err := d.Limiter.Wait(ctx); err != nil {
				return summary, &DeleteError{Batch: number, Err: err}
			}
		}

		req := client.CompositeRequest{AllOrNone: false}
		for i, id := range batchIDs {
			req.Requests = append(req.Requests, client.CompositeSubrequest{
				Method:      http.MethodDelete,
				URL:         d.Client.FlowVersionPath(id),
				ReferenceID: referenceID(number, i+1),
			})
		}

		resp, err := d.Client.ToolingComposite(ctx, req)
		if err != nil {
			logger.Errorw("Composite delete failed", "batch", number, "error", err)
			if d.OnBatch != nil {
				d.OnBatch(BatchOutcome{Batch: number}, err)
			}
			return summary, &DeleteError{Batch: number, Err: err}
		}

		outcome := collectBatch(number, req.Requests, batchIDs, resp)
		summary.Batches = append(summary.Batches, outcome)
		summary.TotalSucceeded += outcome.Succeeded
		summary.TotalFailed += outcome.Failed
		logger.Infow("Delete batch completed", "batch", number, "succeeded", outcome.Succeeded, "failed", outcome.Failed)
		if d.OnBatch != nil {
			d.OnBatch(outcome, nil)
		}
	}

	logger.Infow("Delete completed", "succeeded", summary.TotalSucceeded, "failed", summary.TotalFailed)
	return summary, nil
}

// collectBatch matches sub-responses to the submitted sub-requests. A missing
// sub-response is a failure with status 0.
func collectBatch(number int, requests []client.CompositeSubrequest, ids []string, resp *client.CompositeResponse) BatchOutcome {
	outcome := BatchOutcome{Batch: number, Items: make([]ItemResult, 0, len(requests))}
	var byRef map[string]client.CompositeSubresponse
	if resp != nil {
		byRef = resp.ByReference()
	}
	for i, sub := range requests {
		item := ItemResult{ReferenceID: sub.ReferenceID, RecordID: ids[i]}
		if got, ok := byRef[sub.ReferenceID]; ok {
			item.StatusCode = got.HTTPStatusCode
			if len(got.Body) > 0 && string(got.Body) != "null" {
				item.Body = string(got.Body)
			}
		} else {
			item.Body = "no sub-response returned"
		}
		if item.Succeeded() {
			outcome.Succeeded++
		} else {
			outcome.Failed++
		}
		outcome.Items = append(outcome.Items, item)
	}
	return outcome
}
