package core

import (
	"github.com/thinkermao/replikv/raft/core/conf"
	"github.com/thinkermao/replikv/raft/proto"
)

type raftOpt func(c *Core)

func vote(id string) raftOpt {
	return func(c *Core) {
		c.vote = id
	}
}

func term(t uint64) raftOpt {
	return func(c *Core) {
		c.term = t
	}
}

func randTick(tick int) raftOpt {
	return func(c *Core) {
		c.randomizedElectionTick = tick
	}
}

func timeElapsed(time int) raftOpt {
	return func(c *Core) {
		c.timeElapsed = time
	}
}

func leaderID(id string) raftOpt {
	return func(c *Core) {
		c.leaderID = id
	}
}

func state(state StateRole) raftOpt {
	return func(c *Core) {
		c.state = state
	}
}

func entries(terms ...uint64) raftOpt {
	return func(c *Core) {
		ents := []raftpd.Entry{}
		for i, t := range terms {
			ents = append(ents, makeEntry(uint64(i+1), t))
		}
		c.log.Append(ents)
	}
}

func committed(idx uint64) raftOpt {
	return func(c *Core) {
		c.log.CommitTo(idx)
		c.log.ApplyEntries()
	}
}

func makeEntry(idx, term uint64) raftpd.Entry {
	return raftpd.Entry{
		Index:   idx,
		Term:    term,
		Command: raftpd.CommandNoop,
	}
}

func makeTestCore(
	id string,
	peers []string,
	election, heartbeat int,
	opts ...raftOpt,
) *Core {
	c := conf.Config{
		ID:            id,
		Peers:         peers,
		ElectionTick:  election,
		HeartbeatTick: heartbeat,
	}

	core := MakeCore(&c)
	for _, opt := range opts {
		opt(core)
	}
	return core
}

// countMessages tallies the queued outbound messages by type without
// draining them.
func countMessages(c *Core, tp raftpd.MessageType) int {
	count := 0
	for i := 0; i < len(c.messages); i++ {
		if c.messages[i].Type == tp {
			count++
		}
	}
	return count
}
