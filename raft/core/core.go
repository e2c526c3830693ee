package core

import (
	log "github.com/sirupsen/logrus"

	"github.com/thinkermao/replikv/raft/core/conf"
	"github.com/thinkermao/replikv/raft/core/holder"
	"github.com/thinkermao/replikv/raft/core/peer"
	"github.com/thinkermao/replikv/raft/proto"
	"github.com/thinkermao/replikv/utils"
)

// Ready bundles the side effects accumulated since the last drain:
// outbound messages and entries whose commitment is now established.
// CommitEntries are in log order; the caller applies them to the
// state machine before (or regardless of) sending Messages.
type Ready struct {
	Messages      []raftpd.Message
	CommitEntries []raftpd.Entry
}

// SoftState is the queryable volatile state of a node.
type SoftState struct {
	LeaderID string
	State    StateRole
	Term     uint64
}

type Core struct {
	// Conceptually persistent fields (kept in memory here).
	term uint64             // current term
	vote string             // votedFor, conf.None when unset
	log  *holder.LogHolder  // log entries plus commit/apply cursors

	// Volatile fields.
	id       string
	leaderID string           // best-known leader, conf.UnknownID when unknown
	state    StateRole        // current role
	nodes    []*peer.Progress // leader view of the other cluster members

	// Time fields, all in milliseconds.
	timeElapsed            int // elapsed since last reset
	randomizedElectionTick int // randomized election timeout
	electionTick           int // base election timeout
	heartbeatTick          int // leader replication cadence

	// Accumulated side effects, drained by TakeReady.
	messages []raftpd.Message
	commits  []raftpd.Entry
}

// MakeCore builds a fresh node in the follower role at term 0.
func MakeCore(config *conf.Config) *Core {
	config.Verify()

	c := new(Core)

	c.term = conf.InvalidTerm
	c.vote = conf.None
	c.log = holder.MakeLogHolder(config.ID)

	c.id = config.ID
	c.leaderID = conf.UnknownID
	c.state = RoleFollower

	c.nodes = make([]*peer.Progress, 0, len(config.Peers))
	nextIndex := c.log.LastIndex() + 1
	for _, id := range config.Peers {
		c.nodes = append(c.nodes, peer.MakeProgress(c.id, id, nextIndex))
	}

	c.timeElapsed = 0
	c.electionTick = config.ElectionTick
	c.heartbeatTick = config.HeartbeatTick
	c.resetRandomizedElectionTimeout()

	log.Debugf("%s build raft at term: %d [lastIdx: %d, commitIdx: %d]",
		c.id, c.term, c.log.LastIndex(), c.log.CommitIndex())

	return c
}

// ReadSoftState returns the current term, role and leader hint.
func (c *Core) ReadSoftState() SoftState {
	return SoftState{
		LeaderID: c.leaderID,
		State:    c.state,
		Term:     c.term,
	}
}

// Propose appends a client command when this node is leader and
// pushes it to the peers. It returns the index and term the entry was
// appended at; ok is false when the node is not the leader.
func (c *Core) Propose(command raftpd.CommandType, mid, key, value string) (
	index uint64, term uint64, ok bool) {
	if !c.state.IsLeader() {
		return conf.InvalidIndex, conf.InvalidTerm, false
	}

	entry := raftpd.Entry{
		Index:   c.log.LastIndex() + 1,
		Term:    c.term,
		Command: command,
		MID:     mid,
		Key:     key,
		Value:   value,
	}

	// Leader Append-Only: a leader never overwrites or deletes
	// entries in its log; it only appends new entries. §5.3
	c.log.Append([]raftpd.Entry{entry})

	c.poll(entry.Index)
	c.broadcastAppend(false)
	c.applyEntries()

	return entry.Index, entry.Term, true
}

// Step advances the state machine with one inbound protocol message.
func (c *Core) Step(msg *raftpd.Message) {
	if msg.Term < c.term {
		log.Debugf("%s [term: %d] ignore a %s message with lower term from: %s [term: %d]",
			c.id, c.term, msg.Type, msg.Src, msg.Term)
		// A stale append still deserves an answer carrying our term,
		// so the old leader learns it is deposed. Stale vote traffic
		// is simply dropped: the schema has no negative vote.
		if msg.Type == raftpd.MsgAppend {
			c.rejectAppend(msg.Src)
		}
		return
	} else if msg.Term > c.term {
		log.Infof("%s [term: %d] receive a %s message with higher term from %s [term: %d]",
			c.id, c.term, msg.Type, msg.Src, msg.Term)
		c.becomeFollower(msg.Term, conf.UnknownID)
	}

	c.dispatch(msg)

	/* apply entries to state machine after handling remote msg */
	c.applyEntries()
}

// Periodic advances the node's clocks by msSinceLastPeriod
// milliseconds: leaders replicate on the heartbeat cadence, everyone
// else counts toward an election timeout.
func (c *Core) Periodic(msSinceLastPeriod int) {
	c.timeElapsed += msSinceLastPeriod

	if c.state.IsLeader() {
		if c.heartbeatTick <= c.timeElapsed {
			c.timeElapsed = 0
			c.broadcastAppend(true)
		}
	} else if c.randomizedElectionTick <= c.timeElapsed {
		c.campaign()
	}

	c.applyEntries()
}

// TakeReady drains the accumulated side effects.
func (c *Core) TakeReady() Ready {
	ready := Ready{
		Messages:      c.messages,
		CommitEntries: c.commits,
	}
	c.messages = nil
	c.commits = nil
	return ready
}

// ReadStatus returns the current term and whether this node is
// leader.
func (c *Core) ReadStatus() (uint64, bool) {
	return c.term, c.state.IsLeader()
}

// LeaderHint returns the best-known leader identity, conf.UnknownID
// when there is none.
func (c *Core) LeaderHint() string {
	return c.leaderID
}

func (c *Core) dispatch(msg *raftpd.Message) {
	switch msg.Type {
	case raftpd.MsgRequestVote:
		c.handleVote(msg)
	case raftpd.MsgVoteGranted:
		c.handleVoteGranted(msg)
	case raftpd.MsgAppend:
		c.handleAppendEntries(msg)
	case raftpd.MsgAppendReply:
		c.handleAppendEntriesReply(msg)
	default:
		utils.Assert(false, "%s received non-protocol message: %s", c.id, msg.Type)
	}
}
