package raft

import (
	"github.com/thinkermao/replikv/raft/proto"
)

// Transporter delivers a message to the peer named in msg.Dst. Each
// message travels as one self-contained datagram; delivery to a live
// local peer is reliable but not ordered across different peers.
type Transporter interface {
	Send(msg *raftpd.Message) error
}
