package node

import (
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	log "github.com/sirupsen/logrus"
	"github.com/thinkermao/network-simu-go"

	"github.com/thinkermao/replikv/raft/proto"
	"github.com/thinkermao/replikv/server"
)

// Simulation timing, milliseconds. Compressed relative to the binary
// defaults but with the same shape: heartbeat well below election.
const (
	ElectionTimeout  = 300
	HeartbeatTimeout = 60
	tickSize         = 20
)

// EncodeID maps a simulated endpoint index to a participant
// identifier.
func EncodeID(endpoint int) string {
	return fmt.Sprintf("%04x", endpoint)
}

// DecodeID maps a participant identifier back to its endpoint index.
func DecodeID(id string) (int, error) {
	v, err := strconv.ParseUint(id, 16, 16)
	if err != nil {
		return 0, fmt.Errorf("bad participant id %q: %w", id, err)
	}
	return int(v), nil
}

// App hosts one server on a simulated network endpoint.
type App struct {
	id      string
	handler network.Handler

	mu  sync.Mutex
	srv *server.Server
}

// MakeApp binds a fresh App to handler. Call Start to bring the
// server up.
func MakeApp(handler network.Handler) *App {
	app := &App{
		id:      EncodeID(handler.ID()),
		handler: handler,
	}
	app.handler.BindReceiver(app.handleData)
	return app
}

// Identifier returns the participant identifier of this app.
func (app *App) Identifier() string {
	return app.id
}

// Start brings up the server with the given peer identifiers.
func (app *App) Start(peers []string) {
	app.mu.Lock()
	defer app.mu.Unlock()

	if app.srv != nil {
		app.srv.Kill()
	}
	app.srv = server.New(server.Config{
		ID:            app.id,
		Peers:         peers,
		ElectionTick:  ElectionTimeout,
		HeartbeatTick: HeartbeatTimeout,
		TickSize:      tickSize,
	}, app)
}

// Shutdown stops the server; state is in-memory only, so this loses
// it.
func (app *App) Shutdown() {
	app.mu.Lock()
	defer app.mu.Unlock()

	if app.srv != nil {
		app.srv.Kill()
		app.srv = nil
	}
}

// GetState returns the server's term and leadership claim.
func (app *App) GetState() (uint64, bool) {
	if srv := app.getServer(); srv != nil {
		return srv.GetState()
	}
	return 0, false
}

// LeaderHint returns the server's best-known leader identity.
func (app *App) LeaderHint() string {
	if srv := app.getServer(); srv != nil {
		return srv.LeaderHint()
	}
	return ""
}

// StoreValue reads the server's local state machine.
func (app *App) StoreValue(key string) (string, bool) {
	if srv := app.getServer(); srv != nil {
		return srv.StoreValue(key)
	}
	return "", false
}

// Send implements raft.Transporter over the simulated network.
func (app *App) Send(msg *raftpd.Message) error {
	to, err := DecodeID(msg.Dst)
	if err != nil {
		return err
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return app.handler.Call(to, data)
}

func (app *App) getServer() *server.Server {
	app.mu.Lock()
	defer app.mu.Unlock()
	return app.srv
}

func (app *App) handleData(from int, data []byte) {
	srv := app.getServer()
	if srv == nil {
		return
	}

	var msg raftpd.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Warnf("%s drop malformed datagram from %d: %v", app.id, from, err)
		return
	}
	srv.HandleMessage(&msg)
}
