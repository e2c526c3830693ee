package conf

import (
	log "github.com/sirupsen/logrus"
)

// Reserved values for raft.
const (
	// UnknownID is the wire representation of "no known leader".
	UnknownID = "FFFF"

	// None marks an empty votedFor.
	None = ""

	InvalidIndex uint64 = 0
	InvalidTerm  uint64 = 0
)

// Config carries the information needed to build a raft node.
type Config struct {
	// ID is the identity of the local node: an opaque four-hex-digit
	// token, unique per participant.
	ID string

	// Peers lists the identities of the other cluster members,
	// excluding ID.
	Peers []string

	// ElectionTick is the base election timeout in milliseconds. A
	// follower that hears nothing from a leader for a randomized
	// interval in [ElectionTick, 2*ElectionTick) starts an election.
	// Must be well above HeartbeatTick to avoid needless elections.
	ElectionTick int

	// HeartbeatTick is the leader's replication cadence in
	// milliseconds. Strictly less than ElectionTick.
	HeartbeatTick int
}

// Verify panics when fields of Config are invalid.
func (c *Config) Verify() {
	if c.ID == None || c.ID == UnknownID {
		log.Panicf("node id %q is reserved", c.ID)
	}

	if c.HeartbeatTick <= 0 {
		log.Panicf("heartbeat tick must be great than zero")
	}

	if c.ElectionTick <= c.HeartbeatTick {
		log.Panicf("election tick must be great than heartbeat tick")
	}

	for _, peer := range c.Peers {
		if peer == c.ID {
			log.Panicf("%s peer list contains self", c.ID)
		}
	}
}
