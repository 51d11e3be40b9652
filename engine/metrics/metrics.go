// Package metrics provides lightweight atomic counters for a Session,
// exposed through expvar.Var so they show up alongside any other
// process-wide counters an embedding application already publishes.
package metrics

import (
	"encoding/json"
	"expvar"
	"sync/atomic"
)

// Counters tracks session-level activity. The zero value is ready to use.
type Counters struct {
	StatementsExecuted     atomic.Int64
	RowsReturned           atomic.Int64
	Errors                 atomic.Int64
	TransactionsCommitted  atomic.Int64
	TransactionsRolledBack atomic.Int64
}

// String implements expvar.Var, rendering the counters as a JSON object.
func (c *Counters) String() string {
	snapshot := struct {
		StatementsExecuted     int64 `json:"statements_executed"`
		RowsReturned           int64 `json:"rows_returned"`
		Errors                 int64 `json:"errors"`
		TransactionsCommitted  int64 `json:"transactions_committed"`
		TransactionsRolledBack int64 `json:"transactions_rolled_back"`
	}{
		StatementsExecuted:     c.StatementsExecuted.Load(),
		RowsReturned:           c.RowsReturned.Load(),
		Errors:                 c.Errors.Load(),
		TransactionsCommitted:  c.TransactionsCommitted.Load(),
		TransactionsRolledBack: c.TransactionsRolledBack.Load(),
	}
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return "{}"
	}
	return string(raw)
}

// Publish registers c under name in the process-global expvar map. It
// panics if name is already published, matching expvar.Publish itself;
// callers that create more than one Session in a process should publish
// under distinct names or not at all.
func (c *Counters) Publish(name string) {
	expvar.Publish(name, c)
}

var _ expvar.Var = (*Counters)(nil)
