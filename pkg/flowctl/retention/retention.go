package retention

import "fmt"

// Status is the lifecycle status of a Flow version.
type Status string

const (
	StatusActive       Status = "Active"
	StatusObsolete     Status = "Obsolete"
	StatusDraft        Status = "Draft"
	StatusInvalidDraft Status = "InvalidDraft"
)

// VersionRecord is one version of a Flow definition as returned by the Tooling API.
type VersionRecord struct {
	ID            string `json:"id" yaml:"id"`
	DefinitionID  string `json:"definition_id" yaml:"definition_id"`
	VersionNumber int    `json:"version" yaml:"version"`
	Status        Status `json:"status" yaml:"status"`
	DeveloperName string `json:"name" yaml:"name"`
	Label         string `json:"label" yaml:"label"`
}

// IntegrityWarning reports a definition that holds the same version number twice.
type IntegrityWarning struct {
	DefinitionID  string
	DeveloperName string
	VersionNumber int
}

func (w IntegrityWarning) String() string {
	return fmt.Sprintf("definition %s (%s) has duplicate version number %d", w.DefinitionID, w.DeveloperName, w.VersionNumber)
}

// Plan partitions a record set. Delete keeps the input order.
type Plan struct {
	Keep     []VersionRecord
	Delete   []VersionRecord
	Warnings []IntegrityWarning
}

// Partition computes the latest version per definition and splits records into
// kept and deletable versions. Records are expected to be pre-filtered to
// non-active versions; status is not re-checked.
//
// A definition containing duplicate version numbers is kept entirely and
// reported in Warnings.
func Partition(records []VersionRecord) Plan {
	var plan Plan
	if len(records) == 0 {
		return plan
	}

	latest := make(map[string]int, len(records))
	seen := make(map[string]map[int]struct{}, len(records))
	corrupt := map[string]bool{}
	for _, r := range records {
		versions, ok := seen[r.DefinitionID]
		if !ok {
			versions = map[int]struct{}{}
			seen[r.DefinitionID] = versions
		}
		if _, dup := versions[r.VersionNumber]; dup {
			corrupt[r.DefinitionID] = true
			plan.Warnings = append(plan.Warnings, IntegrityWarning{
				DefinitionID:  r.DefinitionID,
				DeveloperName: r.DeveloperName,
				VersionNumber: r.VersionNumber,
			})
		}
		versions[r.VersionNumber] = struct{}{}

		if current, ok := latest[r.DefinitionID]; !ok || r.VersionNumber > current {
			latest[r.DefinitionID] = r.VersionNumber
		}
	}

	for _, r := range records {
		if !corrupt[r.DefinitionID] && r.VersionNumber < latest[r.DefinitionID] {
			plan.Delete = append(plan.Delete, r)
			continue
		}
		plan.Keep = append(plan.Keep, r)
	}
	return plan
}

// ComputeDeletable returns every record whose version is lower than the latest
// version of its definition, in input order.
func ComputeDeletable(records []VersionRecord) []VersionRecord {
	return Partition(records).Delete
}

// IDs returns the record ids in order.
func IDs(records []VersionRecord) []string {
	ids := make([]string, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.ID)
	}
	return ids
}
