// Package core implements the raft consensus algorithm for a
// replicated key-value store node.
//
// The core is single-threaded and performs no IO. The caller drives
// it with `Step` for every inbound protocol message and `Periodic` at
// a stable cadence; both accumulate side effects (outbound messages,
// newly committed entries) which the caller drains with `TakeReady`
// and dispatches without holding any lock over the core.
//
// `Propose` appends a client command to the log when the node is
// leader; the command appears in Ready.CommitEntries once a strict
// majority of the cluster holds it and an entry of the current term
// has been committed.
package core
