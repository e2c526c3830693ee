package udp

import (
	"testing"
	"time"

	"github.com/thinkermao/replikv/raft/proto"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		id     string
		port   int
		wantOK bool
	}{
		{"2710", 10000, true},
		{"fffe", 65534, true},
		{"00ff", 0, false}, /* reserved port range */
		{"zzzz", 0, false}, /* not hexadecimal */
		{"", 0, false},
	}

	for i, test := range tests {
		addr, err := resolve(test.id)
		if test.wantOK != (err == nil) {
			t.Fatalf("#%d: resolve(%q) error: %v", i, test.id, err)
		}
		if err == nil && addr.Port != test.port {
			t.Fatalf("#%d: port want: %d, get: %d", i, test.port, addr.Port)
		}
	}
}

func TestTransport_RoundTrip(t *testing.T) {
	a, err := Listen("2710")
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	b, err := Listen("2711")
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	received := make(chan raftpd.Message, 1)
	go b.Serve(func(msg *raftpd.Message) {
		received <- *msg
	})

	sent := raftpd.Message{
		Src:    "2710",
		Dst:    "2711",
		Leader: "FFFF",
		Type:   raftpd.MsgGet,
		MID:    "mid-1",
		Key:    "x",
	}
	if err := a.Send(&sent); err != nil {
		t.Fatal(err)
	}

	select {
	case msg := <-received:
		if msg.Type != sent.Type || msg.MID != sent.MID || msg.Key != sent.Key {
			t.Fatalf("round trip mismatch: %+v", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("datagram never arrived")
	}
}

func TestTransport_SendToBadID(t *testing.T) {
	a, err := Listen("2712")
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	msg := raftpd.Message{Dst: "zzzz", Type: raftpd.MsgGet}
	if err := a.Send(&msg); err == nil {
		t.Fatal("send to a malformed identifier must fail")
	}
}
