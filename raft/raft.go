package raft

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/thinkermao/replikv/raft/core"
	"github.com/thinkermao/replikv/raft/core/conf"
	"github.com/thinkermao/replikv/raft/proto"
	"github.com/thinkermao/replikv/utils"
)

// Application is the interface for the state machine. ApplyEntry is
// invoked exactly once per committed entry, in log order, from a
// single goroutine.
type Application interface {
	ApplyEntry(entry *raftpd.Entry)
}

// Raft drives the consensus core with a periodic tick and serializes
// access to it. Raft is thread-safe: the core's state is touched only
// under mutex, and the accumulated side effects (outbound messages,
// committed entries) are drained and dispatched by the tick goroutine
// with no lock held.
type Raft struct {
	mutex sync.Mutex

	id   string
	core *core.Core

	timer     chan struct{}
	callback  Application
	transport Transporter
}

// MakeRaft returns a running Raft instance ticking every tickSize
// milliseconds.
func MakeRaft(config *conf.Config, tickSize int,
	application Application, transport Transporter) *Raft {
	raft := &Raft{
		id:        config.ID,
		core:      core.MakeCore(config),
		callback:  application,
		transport: transport,
	}

	raft.service(tickSize)

	return raft
}

// GetState returns the current term and whether this node believes it
// is the leader.
func (raft *Raft) GetState() (uint64, bool) {
	raft.mutex.Lock()
	defer raft.mutex.Unlock()

	return raft.core.ReadStatus()
}

// LeaderHint returns the best-known leader identity, conf.UnknownID
// when there is none.
func (raft *Raft) LeaderHint() string {
	raft.mutex.Lock()
	defer raft.mutex.Unlock()

	return raft.core.LeaderHint()
}

// Propose appends a client command when this node is leader. The
// command reaches Application.ApplyEntry once committed.
func (raft *Raft) Propose(command raftpd.CommandType, mid, key, value string) (
	uint64, uint64, bool) {
	raft.mutex.Lock()
	defer raft.mutex.Unlock()

	return raft.core.Propose(command, mid, key, value)
}

// Step feeds one inbound protocol message to the core.
func (raft *Raft) Step(msg *raftpd.Message) {
	raft.mutex.Lock()
	defer raft.mutex.Unlock()

	raft.core.Step(msg)
}

// Kill stops the tick goroutine. It is the only method that needs no
// mutex.
func (raft *Raft) Kill() {
	close(raft.timer)
}

// service ticks every tickSize milliseconds: advance the core's
// clocks, then drain and dispatch whatever accumulated.
func (raft *Raft) service(tickSize int) {
	last := time.Now()
	raft.timer = utils.StartTimer(tickSize, func(now time.Time) {
		msSinceLastPeriod := int(now.Sub(last).Nanoseconds() / 1e6)
		last = now

		raft.periodic(msSinceLastPeriod)
		raft.handleReady()
	})
}

func (raft *Raft) periodic(msSinceLastPeriod int) {
	raft.mutex.Lock()
	defer raft.mutex.Unlock()
	raft.core.Periodic(msSinceLastPeriod)
}

func (raft *Raft) takeReady() core.Ready {
	raft.mutex.Lock()
	defer raft.mutex.Unlock()
	return raft.core.TakeReady()
}

// handleReady applies committed entries and sends pending messages.
// Runs only on the tick goroutine, so apply order is log order. No
// lock is held across callbacks or network sends.
func (raft *Raft) handleReady() {
	ready := raft.takeReady()

	for i := 0; i < len(ready.CommitEntries); i++ {
		raft.callback.ApplyEntry(&ready.CommitEntries[i])
	}

	if len(ready.CommitEntries) > 0 {
		last := len(ready.CommitEntries) - 1
		log.Debugf("%s apply entries from %d [term: %d] to %d [term: %d]",
			raft.id, ready.CommitEntries[0].Index, ready.CommitEntries[0].Term,
			ready.CommitEntries[last].Index, ready.CommitEntries[last].Term)
	}

	for i := 0; i < len(ready.Messages); i++ {
		msg := &ready.Messages[i]
		if err := raft.transport.Send(msg); err != nil {
			// absorbed: the periodic cadence is the retry mechanism
			log.Warnf("%s failed to send %s to %s: %v",
				raft.id, msg.Type, msg.Dst, err)
		}
	}
}
