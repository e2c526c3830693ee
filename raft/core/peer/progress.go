package peer

import (
	log "github.com/sirupsen/logrus"

	"github.com/thinkermao/replikv/raft/core/conf"
	"github.com/thinkermao/replikv/raft/proto"
	"github.com/thinkermao/replikv/utils"
)

type progressState int

const (
	// In stateProbe the leader sends at most one append per heartbeat
	// cadence while it searches for the follower's last matching
	// index.
	stateProbe progressState = iota

	// In stateReplicate the leader optimistically advances NextIdx to
	// the last entry sent, streaming the log without waiting for each
	// reply.
	stateReplicate
)

var stateString = []string{
	"Probe",
	"Replicate",
}

func (state progressState) String() string {
	return stateString[state]
}

// VoteState records what a peer answered during the current campaign.
// There is no negative vote on the wire, so a peer either granted or
// has not answered.
type VoteState int

// Vote states.
const (
	VoteNone VoteState = iota
	VoteGranted
)

// Progress maintains the leader's view of one follower: replication
// progress plus the vote collected in the current campaign.
type Progress struct {
	belongID string

	// follower id
	ID string

	// vote collected during the current campaign
	Vote VoteState

	// highest index known replicated on the follower, monotone
	Matched uint64

	// index of the next entry to send
	NextIdx uint64

	state progressState

	// paused is used in stateProbe: after probing once, hold off
	// until the reply arrives or the next cadence.
	paused bool
}

// MakeProgress creates the progress record for one follower.
func MakeProgress(belong, id string, nextIdx uint64) *Progress {
	return &Progress{
		belongID: belong,
		ID:       id,
		Vote:     VoteNone,
		Matched:  conf.InvalidIndex,
		NextIdx:  nextIdx,
		state:    stateProbe,
	}
}

// HandleAppendReply digests an append_entries_reply. matchIdx is the
// follower's last replicated index on success, a backoff hint on
// failure. It reports whether Matched advanced, so the caller knows to
// re-poll commitment.
func (p *Progress) HandleAppendReply(success bool, matchIdx uint64) bool {
	if !success {
		next := utils.MinUint64(p.NextIdx-1, matchIdx+1)
		if next < 1 {
			next = 1
		}
		p.NextIdx = next
		log.Debugf("%s node: %s backoff next index: %d",
			p.belongID, p.ID, p.NextIdx)

		p.becomeProbe()
		return false
	}

	switch p.state {
	case stateProbe:
		if matchIdx < p.Matched {
			log.Debugf("%s node: %s [next: %d] ignore staled append reply: %d",
				p.belongID, p.ID, p.NextIdx, matchIdx)
			return false
		}

		p.Matched = matchIdx
		p.NextIdx = p.Matched + 1
		p.becomeReplicate()
		return true
	case stateReplicate:
		if p.Matched < matchIdx {
			p.Matched = matchIdx
			if p.NextIdx <= p.Matched {
				p.NextIdx = p.Matched + 1
			}
			return true
		}
	}
	return false
}

// SendEntries records that entries were sent: a probe pauses until
// answered, a replicating follower gets NextIdx advanced
// optimistically.
func (p *Progress) SendEntries(entries []raftpd.Entry) {
	switch p.state {
	case stateProbe:
		if len(entries) != 0 {
			p.pause()
		}
	case stateReplicate:
		if len(entries) != 0 {
			lastIndex := entries[len(entries)-1].Index
			p.NextIdx = lastIndex + 1
		}
	}
}

// UpdateVoteState marks the peer's vote as granted.
func (p *Progress) UpdateVoteState() {
	p.Vote = VoteGranted
}

// ResetVoteState clears the collected vote for a new campaign.
func (p *Progress) ResetVoteState() {
	p.Vote = VoteNone
}

// IsPaused reports whether replication to this peer should hold off
// this cadence.
func (p *Progress) IsPaused() bool {
	switch p.state {
	case stateProbe:
		return p.paused
	case stateReplicate:
		return false
	default:
		panic("unreachable")
	}
}

// ToProbe resets the progress for a fresh term of leadership: nothing
// known replicated, next probe starts just past the leader's log.
func (p *Progress) ToProbe(nextIdx uint64) {
	p.Matched = conf.InvalidIndex
	p.NextIdx = nextIdx
	p.becomeProbe()
}

// Resume clears the probe pause so the next cadence sends again.
func (p *Progress) Resume() {
	p.paused = false
}

func (p *Progress) pause() {
	p.paused = true
}

func (p *Progress) becomeProbe() {
	origin := p.state
	p.paused = false
	p.state = stateProbe

	if origin != stateProbe {
		log.Debugf("%s node: %s from %v => %v", p.belongID, p.ID, origin, p.state)
	}
}

func (p *Progress) becomeReplicate() {
	origin := p.state
	p.state = stateReplicate

	if origin != stateReplicate {
		log.Debugf("%s node: %s from %v => %v", p.belongID, p.ID, origin, p.state)
	}
}
