package holder

import (
	log "github.com/sirupsen/logrus"

	"github.com/thinkermao/replikv/raft/core/conf"
	"github.com/thinkermao/replikv/raft/proto"
	"github.com/thinkermao/replikv/utils"
)

// LogHolder stores the in-memory log entries and tracks the commit
// and apply cursors for raft. The memory layout:
//
// [sentinel, lastApplied, commitIndex, lastIndex]
// +--------------+--------------+---------------+
// |   applied    |  wait apply  |  wait commit  |
// +--------------+--------------+---------------+
// ^ 0            ^ lastApplied  ^ commitIndex   ^ last
//
// Notice:
//	- entries[0] is a sentinel with index 0 and term 0, so positional
// index and slice offset coincide and prev-log lookups at the head of
// the log need no special case.
//	- commitIndex and lastApplied never decrease; entries at index
// less than or equal to commitIndex are never truncated.
type LogHolder struct {
	// owning node id, for diagnostics only
	id string

	// last index of entry has been applied
	lastApplied uint64

	// last index of committed entry
	commitIndex uint64

	// buffered entries, entries[0] is the sentinel
	entries []raftpd.Entry
}

// MakeLogHolder creates an empty LogHolder holding only the sentinel.
func MakeLogHolder(id string) *LogHolder {
	log.Debugf("%s make log holder", id)

	entries := make([]raftpd.Entry, 1)
	entries[0].Command = raftpd.CommandNoop
	entries[0].Index = conf.InvalidIndex
	entries[0].Term = conf.InvalidTerm
	return &LogHolder{
		id:          id,
		entries:     entries,
		lastApplied: conf.InvalidIndex,
		commitIndex: conf.InvalidIndex,
	}
}

// Term returns the term of the entry at idx, or InvalidTerm when no
// entry with that index exists.
func (holder *LogHolder) Term(idx uint64) uint64 {
	if idx > holder.LastIndex() {
		return conf.InvalidTerm
	}
	return holder.entries[idx].Term
}

// Slice returns the entries in [lo, hi), sentinel excluded.
func (holder *LogHolder) Slice(lo, hi uint64) []raftpd.Entry {
	holder.checkOutOfBounds(lo, hi)
	entries := holder.entries[lo:hi]

	if len(entries) != 0 {
		utils.Assert(entries[0].Index == lo, "%s error index", holder.id)
		utils.Assert(entries[len(entries)-1].Index == hi-1, "%s error index", holder.id)
	}
	return entries
}

// IsUpToDate determines whether a log ending at (idx, term) is at
// least as up-to-date as this one: a later last term wins, equal last
// terms compare last index. §5.4.1
func (holder *LogHolder) IsUpToDate(idx, term uint64) bool {
	return term > holder.LastTerm() ||
		(term == holder.LastTerm() && idx >= holder.LastIndex())
}

// LastIndex returns the index of the last entry, 0 when the log holds
// only the sentinel.
func (holder *LogHolder) LastIndex() uint64 {
	utils.Assert(len(holder.entries) != 0, "require len(holder.entries) great than zero")
	length := len(holder.entries)
	actual := holder.entries[length-1].Index
	utils.Assert(actual == uint64(length-1), "%s bad entries", holder.id)
	return actual
}

// LastTerm returns the term of the last entry.
func (holder *LogHolder) LastTerm() uint64 {
	return holder.Term(holder.LastIndex())
}

// CommitIndex returns the highest index known committed.
func (holder *LogHolder) CommitIndex() uint64 {
	return holder.commitIndex
}

// AppliedIndex returns the highest index applied to the state machine.
func (holder *LogHolder) AppliedIndex() uint64 {
	return holder.lastApplied
}

// CommitTo advances commitIndex to `to`. Commit never decreases, and
// never runs beyond the last entry actually held.
func (holder *LogHolder) CommitTo(to uint64) {
	if holder.commitIndex >= to {
		/* never decrease commit */
		return
	}

	utils.Assert(holder.LastIndex() >= to,
		"%s toCommit %d is out of range [last index: %d]",
		holder.id, to, holder.LastIndex())

	holder.commitIndex = to

	log.Debugf("%s commit entries to index: %d", holder.id, to)
}

// ApplyEntries returns the committed-but-unapplied entries in order
// and advances lastApplied to commitIndex.
func (holder *LogHolder) ApplyEntries() []raftpd.Entry {
	if holder.lastApplied == holder.commitIndex {
		return nil
	}

	log.Debugf("%s apply entries to index: %d", holder.id, holder.commitIndex)

	result := holder.Slice(holder.lastApplied+1, holder.commitIndex+1)
	holder.lastApplied = holder.commitIndex

	return result
}

// TryAppend checks the log-matching precondition at (prevIdx,
// prevTerm). On success it resolves conflicts, appends the entries not
// already present, and returns the last index of the incoming entries
// (lastIndex for heartbeats) with true; otherwise it returns a hint
// for the leader's nextIndex backoff with false.
func (holder *LogHolder) TryAppend(prevIdx, prevTerm uint64,
	entries []raftpd.Entry) (uint64, bool) {
	if holder.Term(prevIdx) == prevTerm && prevIdx <= holder.LastIndex() {
		lastNewIndex := prevIdx + uint64(len(entries))
		conflictIdx := holder.findConflict(entries)
		if conflictIdx == 0 {
			/* success, no conflict, everything already present */
		} else if conflictIdx <= holder.commitIndex {
			log.Panicf("%s entry %d conflict with committed entry %d",
				holder.id, conflictIdx, holder.commitIndex)
		} else {
			offset := prevIdx + 1
			holder.truncateAndAppend(entries[conflictIdx-offset:])
		}

		return lastNewIndex, true
	}

	utils.Assert(prevIdx > holder.commitIndex,
		"%s entry %d [Term: %d] conflict with committed entry Term: %d",
		holder.id, prevIdx, prevTerm, holder.Term(prevIdx))

	return holder.hintIndex(prevIdx, prevTerm), false
}

// Append pushes entries at the back and returns the new last index.
// Leader Append-Only: the caller never hands entries that overwrite
// existing ones; that path goes through TryAppend.
func (holder *LogHolder) Append(entries []raftpd.Entry) uint64 {
	if len(entries) == 0 {
		return holder.LastIndex()
	}

	prevIndex := entries[0].Index - 1
	utils.Assert(prevIndex == holder.LastIndex(),
		"%s append at %d is not contiguous [last index: %d]",
		holder.id, prevIndex+1, holder.LastIndex())

	holder.entries = append(holder.entries, entries...)
	holder.validateConsistency()
	return holder.LastIndex()
}
