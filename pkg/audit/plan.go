package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/telekom/flowctl/pkg/flowctl/retention"
)

const planFilePrefix = "flows_to_delete_"

// PlanFile is the on-disk record of the versions selected for deletion.
type PlanFile struct {
	SessionID   string      `json:"session_id"`
	Timestamp   string      `json:"timestamp"`
	InstanceURL string      `json:"instance_url"`
	TotalFlows  int         `json:"total_flows"`
	Flows       []PlanEntry `json:"flows"`
}

type PlanEntry struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Label        string `json:"label"`
	Version      int    `json:"version"`
	Status       string `json:"status"`
	DefinitionID string `json:"definition_id"`
}

// PlanWriter writes deletion-plan files into Dir, creating it on first use.
type PlanWriter struct {
	Dir string
	Now func() time.Time
}

// PlanPath is the file a plan for sessionID is written to.
func (w *PlanWriter) PlanPath(sessionID string) string {
	return filepath.Join(w.Dir, planFilePrefix+sessionID+".json")
}

func (w *PlanWriter) Write(sessionID, instanceURL string, records []retention.VersionRecord) (string, error) {
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	plan := PlanFile{
		SessionID:   sessionID,
		Timestamp:   now().Format(time.RFC3339),
		InstanceURL: instanceURL,
		TotalFlows:  len(records),
		Flows:       make([]PlanEntry, 0, len(records)),
	}
	for _, r := range records {
		plan.Flows = append(plan.Flows, PlanEntry{
			ID:           r.ID,
			Name:         r.DeveloperName,
			Label:        r.Label,
			Version:      r.VersionNumber,
			Status:       string(r.Status),
			DefinitionID: r.DefinitionID,
		})
	}

	data, err := json.MarshalIndent(plan, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal deletion plan: %w", err)
	}
	if w.Dir != "" {
		if err := os.MkdirAll(w.Dir, 0o700); err != nil {
			return "", fmt.Errorf("failed to create output dir: %w", err)
		}
	}
	path := w.PlanPath(sessionID)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("failed to write deletion plan: %w", err)
	}
	return path, nil
}

// ReadPlan loads a previously written plan file.
func ReadPlan(path string) (*PlanFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var plan PlanFile
	if err := json.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("invalid plan file %s: %w", path, err)
	}
	return &plan, nil
}
