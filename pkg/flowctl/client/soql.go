package client

import "strings"

const flowVersionFields = "Id, MasterLabel, VersionNumber, Status, DefinitionId, Definition.DeveloperName, Definition.MasterLabel"

// OrganizationQuery identifies the org and whether it is a sandbox.
const OrganizationQuery = "SELECT IsSandbox, Name FROM Organization LIMIT 1"

var soqlEscaper = strings.NewReplacer(
	`\`, `\\`,
	`'`, `\'`,
	"\n", `\n`,
	"\r", `\r`,
	"\t", `\t`,
)

// EscapeSOQL escapes a value for use inside a single-quoted SOQL literal.
func EscapeSOQL(value string) string {
	return soqlEscaper.Replace(value)
}

// FlowVersionsQuery selects every non-active Flow version. When names is
// non-empty the result is restricted to those definition developer names.
func FlowVersionsQuery(names []string) string {
	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(flowVersionFields)
	b.WriteString(" FROM Flow WHERE ")
	if len(names) > 0 {
		b.WriteString("Definition.DeveloperName IN (")
		for i, name := range names {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString("'")
			b.WriteString(EscapeSOQL(name))
			b.WriteString("'")
		}
		b.WriteString(") AND ")
	}
	b.WriteString("Status != 'Active' ORDER BY Definition.DeveloperName, VersionNumber DESC")
	return b.String()
}
