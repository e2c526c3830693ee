package core

import (
	"math/rand"

	log "github.com/sirupsen/logrus"

	"github.com/thinkermao/replikv/raft/core/conf"
	"github.com/thinkermao/replikv/raft/core/peer"
	"github.com/thinkermao/replikv/raft/proto"
	"github.com/thinkermao/replikv/utils"
)

func quorum(len int) int {
	return len/2 + 1
}

// send stamps the envelope and queues msg for the caller to deliver.
func (c *Core) send(msg *raftpd.Message) {
	msg.Src = c.id
	msg.Leader = c.leaderID
	if msg.Term == conf.InvalidTerm {
		msg.Term = c.term
	}
	c.messages = append(c.messages, *msg)
}

func (c *Core) resetRandomizedElectionTimeout() {
	previousTimeout := c.randomizedElectionTick
	c.randomizedElectionTick =
		c.electionTick + rand.Intn(c.electionTick)

	log.Debugf("%s reset randomized election timeout [%d => %d]",
		c.id, previousTimeout, c.randomizedElectionTick)
}

func (c *Core) resetLease() {
	c.timeElapsed = 0
	c.resetRandomizedElectionTimeout()
}

// reset prepares for a (possibly new) term. votedFor is cleared only
// when the term actually advances.
func (c *Core) reset(term uint64) {
	utils.Assert(term >= c.term, "%s term regression %d => %d", c.id, c.term, term)
	if c.term != term {
		c.term = term
		c.vote = conf.None
	}
	c.leaderID = conf.UnknownID
	c.resetLease()
}

func (c *Core) becomeFollower(term uint64, leaderID string) {
	c.reset(term)
	c.leaderID = leaderID
	c.state = RoleFollower

	if leaderID != conf.UnknownID {
		log.Debugf("%s become %s's follower at %d", c.id, leaderID, c.term)
	} else {
		log.Debugf("%s become follower at %d, without leader", c.id, c.term)
	}
}

func (c *Core) becomeCandidate() {
	utils.Assert(!c.state.IsLeader(),
		"%s invalid translation [Leader => Candidate]", c.id)

	c.reset(c.term + 1)
	c.vote = c.id
	c.state = RoleCandidate

	c.resetNodesVoteState()

	log.Debugf("%s become candidate at %d", c.id, c.term)
}

func (c *Core) becomeLeader() {
	utils.Assert(c.state.IsCandidate(),
		"%s invalid translation [%v => Leader]", c.id, c.state)
	utils.Assert(c.vote == c.id, "leader will vote itself")

	c.reset(c.term)
	c.leaderID = c.id
	c.state = RoleLeader

	log.Infof("%s become leader at %d [lastIdx: %d, commitIdx: %d]",
		c.id, c.term, c.log.LastIndex(), c.log.CommitIndex())
}

// campaign starts a new election: enter candidate at term+1, vote for
// self, solicit votes from every peer.
func (c *Core) campaign() {
	c.becomeCandidate()

	if len(c.nodes) == 0 {
		/* single-node cluster wins immediately */
		c.becomeLeader()
		c.broadcastVictory()
		return
	}

	msg := raftpd.Message{
		Type:        raftpd.MsgRequestVote,
		LastLogIdx:  c.log.LastIndex(),
		LastLogTerm: c.log.LastTerm(),
	}
	c.sendToNodes(&msg)
}

func (c *Core) sendToNodes(msg *raftpd.Message) {
	for i := 0; i < len(c.nodes); i++ {
		node := c.nodes[i]
		msg.Dst = node.ID

		log.Debugf("%s [term: %d, index: %d] send %v request to %s at term %d",
			c.id, c.log.LastTerm(), c.log.LastIndex(), msg.Type, msg.Dst, c.term)
		c.send(msg)
	}
}

func (c *Core) quorum() int {
	return quorum(len(c.nodes) + 1)
}

// poll commits everything that can be committed up to idx.
// If there exists an N such that N > commitIndex, a majority
// of matchIndex[i] ≥ N, and log[N].term == currentTerm:
// set commitIndex = N (§5.3, §5.4).
func (c *Core) poll(idx uint64) {
	if idx <= c.log.CommitIndex() || c.log.Term(idx) != c.term {
		/* already committed, or an old term's entry: only entries of
		the current term establish commitment directly */
		return
	}
	count := 1
	for i := 0; i < len(c.nodes); i++ {
		if c.nodes[i].Matched >= idx {
			count++
		}
	}

	if count >= c.quorum() {
		c.log.CommitTo(idx)
	}
}

func (c *Core) getProgress(nodeID string) *peer.Progress {
	for i := 0; i < len(c.nodes); i++ {
		if c.nodes[i].ID == nodeID {
			return c.nodes[i]
		}
	}
	return nil
}

// broadcastVictory runs once per won election: reset every follower's
// progress and append a no-op entry of the fresh term. The no-op lets
// earlier-term entries commit transitively and anchors log-routed
// reads in the current term.
func (c *Core) broadcastVictory() {
	c.resetNodesProgress()

	entry := raftpd.Entry{
		Command: raftpd.CommandNoop,
		Index:   c.nextIndex(),
		Term:    c.term,
	}
	c.log.Append([]raftpd.Entry{entry})

	log.Debugf("%s [term: %d] begin broadcast self's victory", c.id, c.term)

	c.poll(entry.Index)
	c.broadcastAppend(false)
}

func (c *Core) rejectAppend(dst string) {
	m := raftpd.Message{
		Dst:      dst,
		Type:     raftpd.MsgAppendReply,
		Success:  false,
		MatchIdx: c.log.CommitIndex(),
	}
	c.send(&m)
}

func (c *Core) applyEntries() {
	entries := c.log.ApplyEntries()
	c.commits = append(c.commits, entries...)
}

func (c *Core) resetNodesVoteState() {
	for i := 0; i < len(c.nodes); i++ {
		c.nodes[i].ResetVoteState()
	}
}

func (c *Core) resetNodesProgress() {
	// When a leader first comes to power, it initializes all
	// nextIndex values to the index just after the last one in its
	// log. §5.3
	nextIndex := c.nextIndex()
	for i := 0; i < len(c.nodes); i++ {
		c.nodes[i].ToProbe(nextIndex)
	}
}

func (c *Core) nextIndex() uint64 {
	return c.log.LastIndex() + 1
}
