// Package core contains canonical gateway domain contracts, entities, and
// orchestration logic. Lower-level adapters must depend on this package; core
// must not depend on governor-specific or transport-specific adapters.
package core
