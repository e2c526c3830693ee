package holder

import (
	log "github.com/sirupsen/logrus"

	"github.com/thinkermao/replikv/raft/proto"
	"github.com/thinkermao/replikv/utils"
)

func (holder *LogHolder) checkOutOfBounds(lo, hi uint64) {
	utils.Assert(lo <= hi, "%s invalid slice %d > %d", holder.id, lo, hi)

	upper := holder.LastIndex() + 1
	utils.Assert(lo >= 1 && hi <= upper,
		"%s slice[%d, %d] out of bound[1, %d]",
		holder.id, lo, hi, upper)
}

// truncateAndAppend drops the conflicting suffix and appends entries.
// entries[0].Index is the first conflicting index; the caller has
// already checked it lies beyond commitIndex.
func (holder *LogHolder) truncateAndAppend(entries []raftpd.Entry) {
	if len(entries) == 0 {
		return
	}

	lastIndex := holder.LastIndex()
	after := entries[0].Index
	if after == lastIndex+1 {
		// next index in holder.entries, append directly
	} else {
		holder.checkOutOfBounds(1, after)
		holder.entries = holder.entries[:after]
	}
	holder.entries = append(holder.entries, entries...)

	holder.validateConsistency()
}

// findConflict returns the first index whose term differs from the
// entry already held there, or the first missing index; zero when
// every entry is already present with a matching term.
func (holder *LogHolder) findConflict(entries []raftpd.Entry) uint64 {
	for i := 0; i < len(entries); i++ {
		entry := &entries[i]
		if holder.Term(entry.Index) != entry.Term {
			if entry.Index <= holder.LastIndex() {
				log.Infof("%s found conflict at index %d, "+
					"[existing Term: %d, conflicting Term: %d]",
					holder.id, entry.Index, holder.Term(entry.Index), entry.Term)
			}
			return entry.Index
		}
	}
	return 0
}

// hintIndex computes the nextIndex backoff hint after a failed
// log-matching check: the last index of the term found at prevIdx,
// floored at commitIndex so the leader never probes below commitment.
func (holder *LogHolder) hintIndex(prevIdx, prevTerm uint64) uint64 {
	idx := utils.MinUint64(prevIdx, holder.LastIndex())
	term := holder.Term(idx)
	for idx > holder.commitIndex {
		if holder.Term(idx) != term {
			break
		}
		idx--
	}
	return utils.MaxUint64(holder.commitIndex, idx)
}

func (holder *LogHolder) validateConsistency() {
	for i := 0; i < len(holder.entries)-1; i++ {
		utils.Assert(holder.entries[i].Index+1 == holder.entries[i+1].Index,
			"%s index:%d at:%d not sequences", holder.id, holder.entries[i].Index, i)
	}
}
