package server

import (
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/thinkermao/replikv/kv"
	"github.com/thinkermao/replikv/raft"
	"github.com/thinkermao/replikv/raft/core/conf"
	"github.com/thinkermao/replikv/raft/proto"
)

// Default timing, milliseconds. The heartbeat cadence sits well below
// the minimum election timeout so a healthy leader is never
// challenged.
const (
	DefaultElectionTick  = 150
	DefaultHeartbeatTick = 50
	DefaultTickSize      = 25
)

// consensus is the slice of raft.Raft the server depends on.
type consensus interface {
	Step(msg *raftpd.Message)
	Propose(command raftpd.CommandType, mid, key, value string) (uint64, uint64, bool)
	GetState() (uint64, bool)
	LeaderHint() string
	Kill()
}

// Config describes one participant.
type Config struct {
	// ID is this node's four-hex-digit identifier.
	ID string

	// Peers lists the other participants, excluding ID.
	Peers []string

	// Zero values fall back to the defaults above.
	ElectionTick  int
	HeartbeatTick int
	TickSize      int
}

func (cfg *Config) fillDefaults() {
	if cfg.ElectionTick == 0 {
		cfg.ElectionTick = DefaultElectionTick
	}
	if cfg.HeartbeatTick == 0 {
		cfg.HeartbeatTick = DefaultHeartbeatTick
	}
	if cfg.TickSize == 0 {
		cfg.TickSize = DefaultTickSize
	}
}

// pendingRequest is a client request waiting for its entry to commit,
// keyed by the log index the entry was proposed at. The request is
// answered only if the entry applied at that index still carries the
// same term and MID; otherwise leadership was lost, the request is
// dropped without a reply, and the client retries.
type pendingRequest struct {
	mid    string
	term   uint64
	client string
}

// Server is one replicated key-value store participant: it binds a
// raft instance to a transport, applies committed entries to the
// store, and answers client get/put requests.
type Server struct {
	id        string
	rf        consensus
	store     *kv.Store
	transport raft.Transporter

	mu      sync.Mutex
	pending map[uint64]pendingRequest
}

// New returns a running server. The caller owns the receive loop and
// feeds every inbound message to HandleMessage.
func New(cfg Config, transport raft.Transporter) *Server {
	cfg.fillDefaults()

	s := &Server{
		id:        cfg.ID,
		store:     kv.MakeStore(),
		transport: transport,
		pending:   make(map[uint64]pendingRequest),
	}

	raftConfig := conf.Config{
		ID:            cfg.ID,
		Peers:         cfg.Peers,
		ElectionTick:  cfg.ElectionTick,
		HeartbeatTick: cfg.HeartbeatTick,
	}
	s.rf = raft.MakeRaft(&raftConfig, cfg.TickSize, s, transport)

	return s
}

// HandleMessage dispatches one inbound datagram: client requests go
// to the request handler, everything else is a protocol message for
// raft.
func (s *Server) HandleMessage(msg *raftpd.Message) {
	if msg.Type.IsClientRequest() {
		s.handleClientRequest(msg)
		return
	}
	s.rf.Step(msg)
}

// ApplyEntry applies one committed entry to the state machine and
// resolves the pending request waiting on its index, if any. Called
// by raft in log order.
func (s *Server) ApplyEntry(entry *raftpd.Entry) {
	if entry.Command == raftpd.CommandPut {
		s.store.Put(entry.Key, entry.Value)
	}

	s.mu.Lock()
	p, ok := s.pending[entry.Index]
	if ok {
		delete(s.pending, entry.Index)
	}
	s.mu.Unlock()

	if !ok {
		return
	}
	if p.term != entry.Term || p.mid != entry.MID {
		// leadership was lost before this slot committed; the entry
		// that won the slot belongs to someone else. The client hears
		// nothing and retries.
		log.Infof("%s drop pending request %s at index %d [term: %d, applied term: %d]",
			s.id, p.mid, entry.Index, p.term, entry.Term)
		return
	}

	reply := raftpd.Message{
		Dst:  p.client,
		Type: raftpd.MsgOK,
		MID:  p.mid,
	}
	if entry.Command == raftpd.CommandGet {
		value, _ := s.store.Get(entry.Key)
		reply.Value = value
	}
	s.reply(&reply)
}

// GetState returns the current term and whether this node is leader.
func (s *Server) GetState() (uint64, bool) {
	return s.rf.GetState()
}

// LeaderHint returns this node's best-known leader identity.
func (s *Server) LeaderHint() string {
	return s.rf.LeaderHint()
}

// StoreValue reads the local state machine directly, bypassing
// consensus. For inspection only.
func (s *Server) StoreValue(key string) (string, bool) {
	return s.store.Get(key)
}

// Kill stops the underlying raft instance.
func (s *Server) Kill() {
	s.rf.Kill()
}

// handleClientRequest serves get/put. Reads are routed through the
// log like writes, so every acknowledged read is linearizable.
func (s *Server) handleClientRequest(msg *raftpd.Message) {
	_, isLeader := s.rf.GetState()
	if !isLeader {
		s.replyNotLeader(msg)
		return
	}

	var command raftpd.CommandType
	switch msg.Type {
	case raftpd.MsgGet:
		command = raftpd.CommandGet
	case raftpd.MsgPut:
		command = raftpd.CommandPut
	}

	index, term, ok := s.rf.Propose(command, msg.MID, msg.Key, msg.Value)
	if !ok {
		// deposed between the leader check and the proposal
		s.replyNotLeader(msg)
		return
	}

	log.Debugf("%s [term: %d] accept %s %s at index %d from %s",
		s.id, term, msg.Type, msg.MID, index, msg.Src)

	s.mu.Lock()
	s.pending[index] = pendingRequest{
		mid:    msg.MID,
		term:   term,
		client: msg.Src,
	}
	s.mu.Unlock()
}

// replyNotLeader answers a client request this node cannot serve:
// redirect when a leader is known, fail otherwise.
func (s *Server) replyNotLeader(msg *raftpd.Message) {
	reply := raftpd.Message{
		Dst: msg.Src,
		MID: msg.MID,
	}
	if s.rf.LeaderHint() == conf.UnknownID {
		reply.Type = raftpd.MsgFail
	} else {
		reply.Type = raftpd.MsgRedirect
	}
	s.reply(&reply)
}

func (s *Server) reply(msg *raftpd.Message) {
	msg.Src = s.id
	msg.Leader = s.rf.LeaderHint()
	if err := s.transport.Send(msg); err != nil {
		log.Warnf("%s failed to send %s to %s: %v", s.id, msg.Type, msg.Dst, err)
	}
}
