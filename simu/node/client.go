package node

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/thinkermao/network-simu-go"

	"github.com/thinkermao/replikv/raft/proto"
)

const perRequestTimeout = 250 * time.Millisecond

// Client is a simulated key-value client on its own network
// endpoint. It tags each operation with a fresh MID and follows
// redirects until some server acknowledges or the deadline passes.
type Client struct {
	id      string
	handler network.Handler

	mu      sync.Mutex
	waiting map[string]chan raftpd.Message
}

// MakeClient binds a fresh Client to handler.
func MakeClient(handler network.Handler) *Client {
	c := &Client{
		id:      EncodeID(handler.ID()),
		handler: handler,
		waiting: make(map[string]chan raftpd.Message),
	}
	c.handler.BindReceiver(c.handleData)
	return c
}

// Identifier returns the client's participant identifier.
func (c *Client) Identifier() string {
	return c.id
}

// Put writes key=value, retrying across servers until acknowledged or
// the deadline passes. Returns whether the write was acknowledged.
func (c *Client) Put(servers []string, key, value string, deadline time.Duration) bool {
	request := raftpd.Message{
		Type:  raftpd.MsgPut,
		MID:   uuid.NewString(),
		Key:   key,
		Value: value,
	}
	_, ok := c.run(servers, request, deadline)
	return ok
}

// Get reads key, retrying across servers until acknowledged or the
// deadline passes. Returns the value and whether a reply arrived.
func (c *Client) Get(servers []string, key string, deadline time.Duration) (string, bool) {
	request := raftpd.Message{
		Type: raftpd.MsgGet,
		MID:  uuid.NewString(),
		Key:  key,
	}
	return c.run(servers, request, deadline)
}

// Request sends one message to one server and waits for the reply.
// No retries, no redirect chasing; for probing a specific server.
func (c *Client) Request(dst string, request raftpd.Message) (raftpd.Message, bool) {
	if request.MID == "" {
		request.MID = uuid.NewString()
	}
	return c.call(dst, request)
}

// run drives one operation to completion: ok ends it, redirect
// switches target, fail or silence rotates to the next server.
func (c *Client) run(servers []string, request raftpd.Message, deadline time.Duration) (string, bool) {
	expire := time.Now().Add(deadline)
	target := servers[0]
	next := 1

	for time.Now().Before(expire) {
		reply, ok := c.call(target, request)
		if ok {
			switch reply.Type {
			case raftpd.MsgOK:
				return reply.Value, true
			case raftpd.MsgRedirect:
				log.Debugf("client %s redirected %s to %s", c.id, request.MID, reply.Leader)
				target = reply.Leader
				continue
			}
		}

		// no reply, or fail: try another server after a beat
		target = servers[next%len(servers)]
		next++
		time.Sleep(50 * time.Millisecond)
	}
	return "", false
}

func (c *Client) call(dst string, request raftpd.Message) (raftpd.Message, bool) {
	to, err := DecodeID(dst)
	if err != nil {
		return raftpd.Message{}, false
	}

	request.Src = c.id
	request.Dst = dst
	request.Leader = dst

	ch := make(chan raftpd.Message, 4)
	c.mu.Lock()
	c.waiting[request.MID] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.waiting, request.MID)
		c.mu.Unlock()
	}()

	data, err := json.Marshal(&request)
	if err != nil {
		return raftpd.Message{}, false
	}
	if err := c.handler.Call(to, data); err != nil {
		return raftpd.Message{}, false
	}

	select {
	case reply := <-ch:
		return reply, true
	case <-time.After(perRequestTimeout):
		return raftpd.Message{}, false
	}
}

func (c *Client) handleData(from int, data []byte) {
	var msg raftpd.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Warnf("client %s drop malformed datagram from %d: %v", c.id, from, err)
		return
	}

	c.mu.Lock()
	ch, ok := c.waiting[msg.MID]
	c.mu.Unlock()
	if !ok {
		// late reply for an operation already resolved
		return
	}

	select {
	case ch <- msg:
	default:
	}
}
