package verify

import (
	"fmt"
	"testing"

	"github.com/thinkermao/replikv/simu/env"
	"github.com/thinkermao/replikv/simu/node"
)

func TestKV_InitialElection(t *testing.T) {
	servers := 3
	env := envior.MakeEnvironment(t, servers, false)
	defer env.Cleanup()

	fmt.Printf("Test: initial election ...\n")

	// is a leader elected?
	leader := env.CheckOneLeader()

	// does every follower learn who the leader is?
	sleep(3 * node.HeartbeatTimeout)
	leaderID := env.ServerIDs()[leader]
	for i := 0; i < servers; i++ {
		if hint := env.LeaderHint(i); hint != leaderID {
			t.Fatalf("server %d names leader %q, expected %q", i, hint, leaderID)
		}
	}

	// does the leader+term stay the same if there is no network failure?
	term1 := env.CheckTerms()
	sleep(3 * node.ElectionTimeout)
	term2 := env.CheckTerms()
	if term1 != term2 {
		fmt.Printf("warning: term changed even though there were no failures")
	}

	fmt.Printf("  ... Passed\n")
}

func TestKV_ReElection(t *testing.T) {
	servers := 3
	env := envior.MakeEnvironment(t, servers, false)
	defer env.Cleanup()

	fmt.Printf("Test: election after network failure ...\n")

	leader1 := env.CheckOneLeader()

	// if the leader disconnects, a new one should be elected.
	env.Disconnect(leader1)
	leader2 := env.CheckOneLeader()

	// if the old leader rejoins, it must step down to the newer term.
	env.Connect(leader1)
	sleep(3 * node.HeartbeatTimeout)
	env.CheckOneLeader()
	if _, isLeader := env.GetState(leader1); isLeader {
		t.Fatal("old leader should lose leadership to the newer term")
	}

	// if there's no quorum, no leader should be elected.
	env.Disconnect(leader2)
	env.Disconnect((leader2 + 1) % servers)
	sleep(3 * node.ElectionTimeout)
	env.CheckNoLeader()

	// if a quorum arises, it should elect a leader.
	env.Connect((leader2 + 1) % servers)
	env.CheckOneLeader()

	// re-join of last node shouldn't prevent leader from existing.
	env.Connect(leader2)
	env.CheckOneLeader()

	fmt.Printf("  ... Passed\n")
}
