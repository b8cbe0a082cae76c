// Package retention decides which Flow versions may be deleted: for every Flow
// definition the highest-numbered version in the fetched set is kept and all
// lower versions are deletable.
package retention
