// Package cleanup deletes stale Flow versions: it authenticates against each
// target org, resolves the versions in scope, writes a deletion plan, asks for
// confirmation and submits composite deletes in batches.
package cleanup
