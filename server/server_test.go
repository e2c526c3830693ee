package server

import (
	"testing"

	"github.com/thinkermao/replikv/kv"
	"github.com/thinkermao/replikv/raft/core/conf"
	"github.com/thinkermao/replikv/raft/proto"
)

type fakeRaft struct {
	term     uint64
	isLeader bool
	leader   string

	proposeIdx uint64
	proposeOK  bool

	stepped  []raftpd.Message
	proposed []raftpd.Entry
}

func (f *fakeRaft) Step(msg *raftpd.Message) {
	f.stepped = append(f.stepped, *msg)
}

func (f *fakeRaft) Propose(command raftpd.CommandType, mid, key, value string) (
	uint64, uint64, bool) {
	if !f.proposeOK {
		return conf.InvalidIndex, conf.InvalidTerm, false
	}
	f.proposeIdx++
	f.proposed = append(f.proposed, raftpd.Entry{
		Index:   f.proposeIdx,
		Term:    f.term,
		Command: command,
		MID:     mid,
		Key:     key,
		Value:   value,
	})
	return f.proposeIdx, f.term, true
}

func (f *fakeRaft) GetState() (uint64, bool) { return f.term, f.isLeader }
func (f *fakeRaft) LeaderHint() string       { return f.leader }
func (f *fakeRaft) Kill()                    {}

type fakeTransport struct {
	sent []raftpd.Message
}

func (f *fakeTransport) Send(msg *raftpd.Message) error {
	f.sent = append(f.sent, *msg)
	return nil
}

func makeTestServer(rf *fakeRaft) (*Server, *fakeTransport) {
	transport := &fakeTransport{}
	s := &Server{
		id:        "0001",
		rf:        rf,
		store:     kv.MakeStore(),
		transport: transport,
		pending:   make(map[uint64]pendingRequest),
	}
	return s, transport
}

func TestServer_FailWithoutLeader(t *testing.T) {
	rf := &fakeRaft{term: 1, leader: conf.UnknownID}
	s, transport := makeTestServer(rf)

	s.HandleMessage(&raftpd.Message{
		Src:  "00a3",
		Dst:  "0001",
		Type: raftpd.MsgGet,
		MID:  "mid-1",
		Key:  "x",
	})

	if len(transport.sent) != 1 {
		t.Fatalf("want one reply, get: %d", len(transport.sent))
	}
	reply := transport.sent[0]
	if reply.Type != raftpd.MsgFail || reply.Dst != "00a3" || reply.MID != "mid-1" {
		t.Fatalf("want fail mid-1 to 00a3, get: %s %s to %s",
			reply.Type, reply.MID, reply.Dst)
	}
}

func TestServer_RedirectToLeader(t *testing.T) {
	rf := &fakeRaft{term: 1, leader: "0002"}
	s, transport := makeTestServer(rf)

	s.HandleMessage(&raftpd.Message{
		Src:   "00a3",
		Dst:   "0001",
		Type:  raftpd.MsgPut,
		MID:   "mid-1",
		Key:   "x",
		Value: "1",
	})

	if len(transport.sent) != 1 {
		t.Fatalf("want one reply, get: %d", len(transport.sent))
	}
	reply := transport.sent[0]
	if reply.Type != raftpd.MsgRedirect || reply.Leader != "0002" {
		t.Fatalf("want redirect to 0002, get: %s leader %q", reply.Type, reply.Leader)
	}
	if reply.MID != "mid-1" {
		t.Fatalf("redirect must echo the MID, get: %q", reply.MID)
	}
}

func TestServer_PutAnsweredOnCommit(t *testing.T) {
	rf := &fakeRaft{term: 1, isLeader: true, leader: "0001", proposeOK: true}
	s, transport := makeTestServer(rf)

	s.HandleMessage(&raftpd.Message{
		Src:   "00a3",
		Dst:   "0001",
		Type:  raftpd.MsgPut,
		MID:   "mid-1",
		Key:   "x",
		Value: "1",
	})

	// no reply until the entry commits
	if len(transport.sent) != 0 {
		t.Fatalf("put must not be answered before commit, get: %d replies",
			len(transport.sent))
	}

	s.ApplyEntry(&rf.proposed[0])

	if value, ok := s.store.Get("x"); !ok || value != "1" {
		t.Fatalf("store want x=1, get: %q, %v", value, ok)
	}
	if len(transport.sent) != 1 {
		t.Fatalf("want one reply after commit, get: %d", len(transport.sent))
	}
	reply := transport.sent[0]
	if reply.Type != raftpd.MsgOK || reply.Dst != "00a3" || reply.MID != "mid-1" {
		t.Fatalf("want ok mid-1 to 00a3, get: %s %s to %s",
			reply.Type, reply.MID, reply.Dst)
	}
}

func TestServer_GetCarriesValue(t *testing.T) {
	rf := &fakeRaft{term: 1, isLeader: true, leader: "0001", proposeOK: true}
	s, transport := makeTestServer(rf)

	s.store.Put("x", "42")

	s.HandleMessage(&raftpd.Message{
		Src:  "00a3",
		Dst:  "0001",
		Type: raftpd.MsgGet,
		MID:  "mid-2",
		Key:  "x",
	})
	s.ApplyEntry(&rf.proposed[0])

	if len(transport.sent) != 1 {
		t.Fatalf("want one reply, get: %d", len(transport.sent))
	}
	reply := transport.sent[0]
	if reply.Type != raftpd.MsgOK || reply.Value != "42" {
		t.Fatalf("want ok with value 42, get: %s value %q", reply.Type, reply.Value)
	}
}

func TestServer_GetAbsentKey(t *testing.T) {
	/* a read of an absent key succeeds with an empty value */
	rf := &fakeRaft{term: 1, isLeader: true, leader: "0001", proposeOK: true}
	s, transport := makeTestServer(rf)

	s.HandleMessage(&raftpd.Message{
		Src:  "00a3",
		Dst:  "0001",
		Type: raftpd.MsgGet,
		MID:  "mid-3",
		Key:  "missing",
	})
	s.ApplyEntry(&rf.proposed[0])

	reply := transport.sent[0]
	if reply.Type != raftpd.MsgOK || reply.Value != "" {
		t.Fatalf("want ok with empty value, get: %s value %q",
			reply.Type, reply.Value)
	}
}

func TestServer_DropSupersededPending(t *testing.T) {
	rf := &fakeRaft{term: 1, isLeader: true, leader: "0001", proposeOK: true}
	s, transport := makeTestServer(rf)

	s.HandleMessage(&raftpd.Message{
		Src:   "00a3",
		Dst:   "0001",
		Type:  raftpd.MsgPut,
		MID:   "mid-1",
		Key:   "x",
		Value: "1",
	})

	// another leader won the slot; its entry applies instead
	s.ApplyEntry(&raftpd.Entry{
		Index:   1,
		Term:    2,
		Command: raftpd.CommandPut,
		MID:     "mid-other",
		Key:     "y",
		Value:   "9",
	})

	if len(transport.sent) != 0 {
		t.Fatalf("superseded request must stay unanswered, get: %d replies",
			len(transport.sent))
	}
	if value, ok := s.store.Get("y"); !ok || value != "9" {
		t.Fatalf("store want y=9, get: %q, %v", value, ok)
	}
}

func TestServer_ProtocolMessagesReachRaft(t *testing.T) {
	rf := &fakeRaft{term: 1, leader: conf.UnknownID}
	s, _ := makeTestServer(rf)

	s.HandleMessage(&raftpd.Message{
		Src:  "0002",
		Dst:  "0001",
		Type: raftpd.MsgAppend,
		Term: 1,
	})

	if len(rf.stepped) != 1 || rf.stepped[0].Type != raftpd.MsgAppend {
		t.Fatalf("protocol message must reach raft, stepped: %v", rf.stepped)
	}
}
