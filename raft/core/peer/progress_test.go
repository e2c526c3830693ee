package peer

import (
	"testing"

	"github.com/thinkermao/replikv/raft/proto"
)

func makeEntries(idxs ...uint64) []raftpd.Entry {
	entries := []raftpd.Entry{}
	for _, idx := range idxs {
		entries = append(entries, raftpd.Entry{Index: idx, Term: 1})
	}
	return entries
}

func TestProgress_HandleAppendReply(t *testing.T) {
	tests := []struct {
		state     progressState
		matched   uint64
		nextIdx   uint64
		success   bool
		replyIdx  uint64
		wantAdv   bool
		wantState progressState
		wantMatch uint64
		wantNext  uint64
	}{
		// probe succeeds, start replicating
		{stateProbe, 0, 5, true, 4, true, stateReplicate, 4, 5},
		// probe fails, back off toward the hint
		{stateProbe, 0, 5, false, 2, false, stateProbe, 0, 3},
		// probe fails with a hint above next, step back by one
		{stateProbe, 0, 5, false, 9, false, stateProbe, 0, 4},
		// stale probe reply is ignored
		{stateProbe, 4, 5, true, 3, false, stateProbe, 4, 5},
		// replicate advances matched
		{stateReplicate, 4, 8, true, 7, true, stateReplicate, 7, 8},
		// replicate ignores an old ack
		{stateReplicate, 4, 8, true, 3, false, stateReplicate, 4, 8},
		// replicate failure falls back to probing
		{stateReplicate, 4, 8, false, 4, false, stateProbe, 4, 5},
	}

	for i, test := range tests {
		p := MakeProgress("0001", "0002", test.nextIdx)
		p.state = test.state
		p.Matched = test.matched

		adv := p.HandleAppendReply(test.success, test.replyIdx)
		if adv != test.wantAdv {
			t.Fatalf("#%d: advanced want: %v, get: %v", i, test.wantAdv, adv)
		}
		if p.state != test.wantState {
			t.Fatalf("#%d: state want: %v, get: %v", i, test.wantState, p.state)
		}
		if p.Matched != test.wantMatch || p.NextIdx != test.wantNext {
			t.Fatalf("#%d: progress want: (%d, %d), get: (%d, %d)",
				i, test.wantMatch, test.wantNext, p.Matched, p.NextIdx)
		}
	}
}

func TestProgress_SendEntries(t *testing.T) {
	// a probe pauses after sending entries, until resumed
	p := MakeProgress("0001", "0002", 3)
	p.SendEntries(nil)
	if p.IsPaused() {
		t.Fatal("probe heartbeat must not pause")
	}
	p.SendEntries(makeEntries(3, 4))
	if !p.IsPaused() {
		t.Fatal("probe must pause after sending entries")
	}
	if p.NextIdx != 3 {
		t.Fatalf("probe must not advance next index, get: %d", p.NextIdx)
	}
	p.Resume()
	if p.IsPaused() {
		t.Fatal("resume must clear the pause")
	}

	// replication advances next index optimistically and never pauses
	p.HandleAppendReply(true, 2)
	p.SendEntries(makeEntries(3, 4, 5))
	if p.IsPaused() {
		t.Fatal("replicate must not pause")
	}
	if p.NextIdx != 6 {
		t.Fatalf("replicate next index want: 6, get: %d", p.NextIdx)
	}
}

func TestProgress_ToProbe(t *testing.T) {
	p := MakeProgress("0001", "0002", 3)
	p.HandleAppendReply(true, 5)
	p.UpdateVoteState()

	p.ToProbe(9)
	if p.state != stateProbe || p.Matched != 0 || p.NextIdx != 9 {
		t.Fatalf("to probe want: (Probe, 0, 9), get: (%v, %d, %d)",
			p.state, p.Matched, p.NextIdx)
	}
	if p.Vote != VoteGranted {
		t.Fatal("resetting progress must not clear the collected vote")
	}

	p.ResetVoteState()
	if p.Vote != VoteNone {
		t.Fatal("reset vote state must clear the collected vote")
	}
}
