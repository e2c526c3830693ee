// Package udp carries the wire protocol over localhost UDP
// datagrams. Every message is one self-contained JSON object in one
// datagram; a participant's port is the numeric value of its
// four-hex-digit identifier.
package udp

import (
	"encoding/json"
	"fmt"
	"net"
	"strconv"

	log "github.com/sirupsen/logrus"

	"github.com/thinkermao/replikv/raft/proto"
)

const maxDatagramSize = 64 * 1024

// Transport binds the local node's socket and delivers outbound
// datagrams to peers by identifier.
type Transport struct {
	id   string
	conn *net.UDPConn
}

// Listen opens the local socket for id.
func Listen(id string) (*Transport, error) {
	addr, err := resolve(id)
	if err != nil {
		return nil, err
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", id, err)
	}

	log.Infof("%s listening on %s", id, conn.LocalAddr())

	return &Transport{id: id, conn: conn}, nil
}

// Send marshals msg and delivers it to the peer named in msg.Dst.
func (t *Transport) Send(msg *raftpd.Message) error {
	addr, err := resolve(msg.Dst)
	if err != nil {
		return err
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", msg.Type, err)
	}

	if _, err := t.conn.WriteToUDP(data, addr); err != nil {
		return fmt.Errorf("send to %s: %w", msg.Dst, err)
	}
	return nil
}

// Serve reads datagrams until the socket fails, handing each decoded
// message to handler. A read error is fatal for the transport and is
// returned to the caller.
func (t *Transport) Serve(handler func(msg *raftpd.Message)) error {
	buffer := make([]byte, maxDatagramSize)
	for {
		n, _, err := t.conn.ReadFromUDP(buffer)
		if err != nil {
			return fmt.Errorf("receive on %s: %w", t.id, err)
		}

		var msg raftpd.Message
		if err := json.Unmarshal(buffer[:n], &msg); err != nil {
			log.Warnf("%s drop malformed datagram: %v", t.id, err)
			continue
		}
		handler(&msg)
	}
}

// Close releases the socket; a blocked Serve returns.
func (t *Transport) Close() error {
	return t.conn.Close()
}

// resolve maps a participant identifier to its localhost endpoint.
func resolve(id string) (*net.UDPAddr, error) {
	port, err := strconv.ParseUint(id, 16, 16)
	if err != nil {
		return nil, fmt.Errorf("bad participant id %q: %w", id, err)
	}
	if port < 1024 {
		return nil, fmt.Errorf("participant id %q maps to reserved port %d", id, port)
	}
	return &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: int(port)}, nil
}
