package envior

import (
	"testing"
	"time"

	"github.com/thinkermao/network-simu-go"

	"github.com/thinkermao/replikv/raft/proto"
	"github.com/thinkermao/replikv/simu/node"
)

// Environment support Environment for test. It hosts num servers plus
// one client on a simulated network.
type Environment struct {
	t          *testing.T
	net        network.Network
	totalNodes int
	apps       []*node.App
	client     *node.Client
}

// MakeEnvironment return instance of Environment.
func MakeEnvironment(t *testing.T, num int, unreliable bool) *Environment {
	builder := network.CreateBuilder()
	env := &Environment{}

	var apps []*node.App
	for i := 0; i < num; i++ {
		handler := builder.AddEndpoint()
		apps = append(apps, node.MakeApp(handler))
	}
	client := node.MakeClient(builder.AddEndpoint())

	env.t = t
	env.net = builder.Build()
	env.totalNodes = num
	env.apps = apps
	env.client = client

	env.SetUnreliable(unreliable)

	// Connect everyone; the client rides the last endpoint.
	for i := 0; i < num; i++ {
		env.Start1(i)
		env.Connect(i)
	}
	env.net.Enable(num)

	return env
}

// ServerIDs lists the participant identifiers of all servers.
func (env *Environment) ServerIDs() []string {
	ids := make([]string, 0, env.totalNodes)
	for i := 0; i < env.totalNodes; i++ {
		ids = append(ids, env.apps[i].Identifier())
	}
	return ids
}

// Start1 start or re-start a server.
// if one already exists, "kill" it first.
func (env *Environment) Start1(i int) {
	env.Crash1(i)

	var peers []string
	for j := 0; j < env.totalNodes; j++ {
		if j != i {
			peers = append(peers, env.apps[j].Identifier())
		}
	}
	env.apps[i].Start(peers)
}

// Crash1 shut down a server; its state is lost.
func (env *Environment) Crash1(i int) {
	env.Disconnect(i)
	env.apps[i].Shutdown()
}

// GetState return the term and leadership claim of server i.
func (env *Environment) GetState(i int) (uint64, bool) {
	return env.apps[i].GetState()
}

// LeaderHint return the best-known leader identity of server i.
func (env *Environment) LeaderHint(i int) string {
	return env.apps[i].LeaderHint()
}

// StoreValue read server i's state machine directly.
func (env *Environment) StoreValue(i int, key string) (string, bool) {
	return env.apps[i].StoreValue(key)
}

// Put drive one write through the cluster via the client.
func (env *Environment) Put(key, value string, deadline time.Duration) bool {
	return env.client.Put(env.ServerIDs(), key, value, deadline)
}

// Get drive one read through the cluster via the client.
func (env *Environment) Get(key string, deadline time.Duration) (string, bool) {
	return env.client.Get(env.ServerIDs(), key, deadline)
}

// Request probe one server directly, without retries.
func (env *Environment) Request(i int, msg raftpd.Message) (raftpd.Message, bool) {
	return env.client.Request(env.apps[i].Identifier(), msg)
}

// Cleanup kill all servers.
func (env *Environment) Cleanup() {
	for i := 0; i < len(env.apps); i++ {
		if env.apps[i] != nil {
			env.apps[i].Shutdown()
		}
	}
}

// Connect attach server i to the net.
func (env *Environment) Connect(i int) {
	env.net.Enable(i)
}

// Disconnect detach server i from the net.
func (env *Environment) Disconnect(i int) {
	env.net.Disable(i)
}

// SetUnreliable make network become unreliable.
func (env *Environment) SetUnreliable(unrel bool) {
	env.net.SetReliable(!unrel)
}

// CheckOneLeader check that there's exactly one leader.
// try a few times in case re-elections are needed.
func (env *Environment) CheckOneLeader() int {
	for iters := 0; iters < 10; iters++ {
		time.Sleep(node.ElectionTimeout * time.Millisecond)
		leaders := make(map[int][]int)
		for i := 0; i < env.totalNodes; i++ {
			if env.net.IsEnable(i) {
				if t, leader := env.apps[i].GetState(); leader {
					leaders[int(t)] = append(leaders[int(t)], i)
				}
			}
		}

		lastTermWithLeader := -1
		for t, leaders := range leaders {
			if len(leaders) > 1 {
				env.t.Fatalf("term %d has %d (>1) leaders", t, len(leaders))
			}
			if t > lastTermWithLeader {
				lastTermWithLeader = t
			}
		}

		if len(leaders) != 0 {
			return leaders[lastTermWithLeader][0]
		}
	}
	env.t.Fatalf("expected one leader, got none")
	return -1
}

// CheckTerms check that everyone agrees on the term.
func (env *Environment) CheckTerms() int {
	term := -1
	for i := 0; i < env.totalNodes; i++ {
		if env.net.IsEnable(i) {
			xterm, _ := env.apps[i].GetState()
			if term == -1 {
				term = int(xterm)
			} else if term != int(xterm) {
				env.t.Fatalf("servers disagree on term")
			}
		}
	}
	return term
}

// CheckNoLeader check that there's no leader.
func (env *Environment) CheckNoLeader() {
	for i := 0; i < env.totalNodes; i++ {
		if env.net.IsEnable(i) {
			_, isLeader := env.apps[i].GetState()
			if isLeader {
				env.t.Fatalf("expected no leader, but %v claims to be leader", i)
			}
		}
	}
}

// WaitStoreValue wait for at least n connected servers to hold
// key=value in their state machines. but don't wait forever.
func (env *Environment) WaitStoreValue(key, value string, n int) {
	to := 10 * time.Millisecond
	for iters := 0; iters < 30; iters++ {
		if env.countStoreValue(key, value) >= n {
			return
		}
		time.Sleep(to)
		if to < time.Second {
			to *= 2
		}
	}
	count := env.countStoreValue(key, value)
	if count < n {
		env.t.Fatalf("only %d servers hold %s=%s; wanted %d",
			count, key, value, n)
	}
}

func (env *Environment) countStoreValue(key, value string) int {
	count := 0
	for i := 0; i < env.totalNodes; i++ {
		if v, ok := env.apps[i].StoreValue(key); ok && v == value {
			count++
		}
	}
	return count
}
