package retention

import (
	"strings"

	"golang.org/x/exp/slices"
)

// DefinitionSummary aggregates the fetched versions of one Flow.
type DefinitionSummary struct {
	DeveloperName string `json:"name" yaml:"name"`
	Label         string `json:"label" yaml:"label"`
	Versions      int    `json:"versions" yaml:"versions"`
	Deletable     int    `json:"deletable" yaml:"deletable"`
	LatestVersion int    `json:"latest_version" yaml:"latest_version"`
}

// Summarize groups records by developer name, sorted by name.
func Summarize(records []VersionRecord) []DefinitionSummary {
	plan := Partition(records)
	deletable := map[string]int{}
	for _, r := range plan.Delete {
		deletable[r.DeveloperName]++
	}

	index := map[string]int{}
	var out []DefinitionSummary
	for _, r := range records {
		i, ok := index[r.DeveloperName]
		if !ok {
			i = len(out)
			index[r.DeveloperName] = i
			out = append(out, DefinitionSummary{DeveloperName: r.DeveloperName, Label: r.Label})
		}
		out[i].Versions++
		if r.VersionNumber > out[i].LatestVersion {
			out[i].LatestVersion = r.VersionNumber
		}
	}
	for i := range out {
		out[i].Deletable = deletable[out[i].DeveloperName]
	}
	slices.SortFunc(out, func(a, b DefinitionSummary) int {
		return strings.Compare(a.DeveloperName, b.DeveloperName)
	})
	return out
}
