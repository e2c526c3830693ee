package core

import (
	log "github.com/sirupsen/logrus"

	"github.com/thinkermao/replikv/raft/core/conf"
	"github.com/thinkermao/replikv/raft/core/peer"
	"github.com/thinkermao/replikv/raft/proto"
	"github.com/thinkermao/replikv/utils"
)

// RPC:
// - RequestVote(term, lastLogIdx, lastLogTerm)
// - VoteGranted(term)
//
// Grant iff votedFor is unset or already the candidate, and the
// candidate's log is at least as up-to-date as ours. Step has already
// adopted a higher term before we get here, so term >= currentTerm
// holds. Denial sends nothing and mutates nothing.
func (c *Core) handleVote(msg *raftpd.Message) {
	canVote := c.vote == conf.None || c.vote == msg.Src
	if !canVote || !c.log.IsUpToDate(msg.LastLogIdx, msg.LastLogTerm) {
		log.Infof("%s [term: %d, vote: %q] deny vote to %s [logterm: %d, idx: %d]",
			c.id, c.term, c.vote, msg.Src, msg.LastLogTerm, msg.LastLogIdx)
		return
	}

	log.Infof("%s [term: %d] grant vote to %s [logterm: %d, idx: %d]",
		c.id, c.term, msg.Src, msg.LastLogTerm, msg.LastLogIdx)

	c.vote = msg.Src
	c.resetLease()

	reply := raftpd.Message{
		Dst:  msg.Src,
		Type: raftpd.MsgVoteGranted,
	}
	c.send(&reply)
}

func (c *Core) handleVoteGranted(msg *raftpd.Message) {
	if !c.state.IsCandidate() {
		/* stale grant from a finished campaign */
		return
	}

	node := c.getProgress(msg.Src)
	if node == nil {
		return
	}
	node.UpdateVoteState()

	count := c.voteCount()
	log.Infof("%s [term: %d] received vote from %s [granted: %d, quorum: %d]",
		c.id, c.term, msg.Src, count, c.quorum())

	if count >= c.quorum() {
		c.becomeLeader()
		c.broadcastVictory()
	}
}

func (c *Core) voteCount() int {
	/* self has one */
	var count = 1
	for i := 0; i < len(c.nodes); i++ {
		if c.nodes[i].Vote == peer.VoteGranted {
			count++
		}
	}
	return count
}

// RPC:
// - AppendEntries(term, prevLogIdx, prevLogTerm, entries, leaderCommit)
// - AppendEntriesReply(term, success, matchIdx)
//
// An append from the current term always legitimizes the sender as
// leader: a candidate reverts to follower, a follower refreshes its
// lease. The log-matching check and conflict resolution live in the
// holder.
func (c *Core) handleAppendEntries(msg *raftpd.Message) {
	if c.state.IsCandidate() {
		// A candidate that sees a leader of at least its own term
		// recognizes it and returns to follower. §5.2
		c.becomeFollower(msg.Term, msg.Src)
	}
	utils.Assert(!c.state.IsLeader(),
		"%s [term: %d] second leader %s in the same term", c.id, c.term, msg.Src)

	c.leaderID = msg.Src
	c.resetLease()

	reply := raftpd.Message{
		Dst:  msg.Src,
		Type: raftpd.MsgAppendReply,
	}
	if c.log.CommitIndex() > msg.PrevLogIdx {
		log.Infof("%s [term: %d, commit: %d] reply expired append entries "+
			"from %s [logterm: %d, idx: %d]", c.id, c.term, c.log.CommitIndex(),
			msg.Src, msg.PrevLogTerm, msg.PrevLogIdx)
		// already committed past there; answer as a successful append
		// so the leader's view converges without truncation.
		reply.Success = true
		reply.MatchIdx = c.log.CommitIndex()
	} else if idx, ok := c.log.TryAppend(msg.PrevLogIdx, msg.PrevLogTerm, msg.Entries); ok {
		log.Debugf("%s [term: %d, commit: %d] accept append entries "+
			"from %s [logterm: %d, idx: %d, count: %d]", c.id, c.term,
			c.log.CommitIndex(), msg.Src, msg.PrevLogTerm, msg.PrevLogIdx,
			len(msg.Entries))

		c.log.CommitTo(utils.MinUint64(msg.LeaderCommit, idx))
		reply.Success = true
		reply.MatchIdx = idx
	} else {
		log.Infof("%s [logterm: %d, commit: %d, last idx: %d] rejected append "+
			"[logterm: %d, idx: %d] from %s", c.id, c.log.Term(msg.PrevLogIdx),
			c.log.CommitIndex(), c.log.LastIndex(), msg.PrevLogTerm,
			msg.PrevLogIdx, msg.Src)
		reply.Success = false
		reply.MatchIdx = idx /* idx is the backoff hint */
	}
	c.send(&reply)
}

func (c *Core) handleAppendEntriesReply(msg *raftpd.Message) {
	if !c.state.IsLeader() {
		return
	}

	node := c.getProgress(msg.Src)
	if node == nil {
		return
	}

	if node.HandleAppendReply(msg.Success, msg.MatchIdx) {
		c.poll(node.Matched)
	}
}

// broadcastAppend sends every follower the entries from its nextIndex
// onward; an empty slice is a heartbeat. resume clears probe pauses
// first, so the periodic cadence retries followers whose probe reply
// was lost.
func (c *Core) broadcastAppend(resume bool) {
	for i := 0; i < len(c.nodes); i++ {
		node := c.nodes[i]
		if resume {
			node.Resume()
		}
		if node.IsPaused() {
			continue
		}
		c.sendAppend(node)
	}
}

func (c *Core) sendAppend(node *peer.Progress) {
	msg := raftpd.Message{}
	msg.Dst = node.ID
	msg.Type = raftpd.MsgAppend
	msg.PrevLogIdx = node.NextIdx - 1
	msg.PrevLogTerm = c.log.Term(msg.PrevLogIdx)
	// The leader must not forward a follower's commit past what that
	// follower is known to hold, to preserve Log Matching.
	msg.LeaderCommit = utils.MinUint64(node.Matched, c.log.CommitIndex())

	if c.log.LastIndex() >= node.NextIdx {
		entries := c.log.Slice(node.NextIdx, c.log.LastIndex()+1)
		msg.Entries = make([]raftpd.Entry, len(entries))
		copy(msg.Entries, entries)
	}

	log.Debugf("%s [term: %d] send append [idx: %d, term: %d, count: %d] "+
		"to node: %s [matched: %d, next index: %d]",
		c.id, c.term, msg.PrevLogIdx, msg.PrevLogTerm, len(msg.Entries),
		node.ID, node.Matched, node.NextIdx)

	node.SendEntries(msg.Entries)
	c.send(&msg)
}
