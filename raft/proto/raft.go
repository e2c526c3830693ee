package raftpd

import "fmt"

// CommandType tags the operation a log entry carries.
type CommandType string

// Commands applied to the key-value state machine. Noop entries are
// appended by a fresh leader to anchor commitment in its own term;
// get entries exist because reads are routed through the log.
const (
	CommandNoop CommandType = "noop"
	CommandPut  CommandType = "put"
	CommandGet  CommandType = "get"
)

// Entry is a single log record. Index is positional and 1-based;
// index 0 is the sentinel held by the log holder. Entries are
// immutable once created.
type Entry struct {
	Index   uint64      `json:"index"`
	Term    uint64      `json:"term"`
	Command CommandType `json:"command"`
	MID     string      `json:"MID,omitempty"`
	Key     string      `json:"key,omitempty"`
	Value   string      `json:"value,omitempty"`
}

func (e *Entry) Reset() { *e = Entry{} }

func (e Entry) String() string {
	return fmt.Sprintf("raftpd.Entry{idx: %d, term: %d, command: %s}",
		e.Index, e.Term, e.Command)
}
