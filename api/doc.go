// Package api
// Author: momentics <momentics@gmail.com>
//
// Contract layer for the hioload-fiber runtime: shared error vocabulary and
// the minimal interfaces the runtime exposes to embedders. Concrete
// implementations live in sched, reactor and fiber; this package stays free
// of dependencies so any component can import it.
package api
