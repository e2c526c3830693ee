package raftpd

// MessageType names every message that crosses the wire. Raft
// protocol messages and client messages share one envelope; the
// server splits them by type.
//
// Message from candidate:
// - request_vote
//
// Message from all servers:
// - vote_granted
//
// Message from leader:
// - append_entries (empty entries slice is a heartbeat)
//
// Message from follower:
// - append_entries_reply
//
// Message from client:
// - get
// - put
//
// Message to client:
// - ok
// - fail
// - redirect
type MessageType string

// Wire values for MessageType.
const (
	MsgRequestVote MessageType = "request_vote"
	MsgVoteGranted MessageType = "vote_granted"
	MsgAppend      MessageType = "append_entries"
	MsgAppendReply MessageType = "append_entries_reply"
	MsgGet         MessageType = "get"
	MsgPut         MessageType = "put"
	MsgOK          MessageType = "ok"
	MsgFail        MessageType = "fail"
	MsgRedirect    MessageType = "redirect"
)

// IsClientRequest reports whether tp originates from a client.
func (tp MessageType) IsClientRequest() bool {
	return tp == MsgGet || tp == MsgPut
}

// Message is the envelope for every datagram between participants.
// Src, Dst, Leader and Type are always present; the remaining fields
// depend on Type. Leader carries the sender's best-known leader
// identity, or the unknown identity when it has none.
type Message struct {
	Src    string      `json:"src"`
	Dst    string      `json:"dst"`
	Leader string      `json:"leader"`
	Type   MessageType `json:"type"`

	// Client request identifier, echoed on ok/fail/redirect.
	MID string `json:"MID,omitempty"`

	Term uint64 `json:"term,omitempty"`

	// request_vote
	LastLogIdx  uint64 `json:"last_log_idx,omitempty"`
	LastLogTerm uint64 `json:"last_log_term,omitempty"`

	// append_entries
	PrevLogIdx   uint64  `json:"prev_log_idx,omitempty"`
	PrevLogTerm  uint64  `json:"prev_log_term,omitempty"`
	Entries      []Entry `json:"entries,omitempty"`
	LeaderCommit uint64  `json:"leader_commit,omitempty"`

	// append_entries_reply. MatchIdx is the last replicated index on
	// success, a convergence hint for nextIndex on failure.
	Success  bool   `json:"success"`
	MatchIdx uint64 `json:"match_idx,omitempty"`

	// get / put / ok
	Key   string `json:"key,omitempty"`
	Value string `json:"value,omitempty"`
}

func (m *Message) Reset() { *m = Message{} }
