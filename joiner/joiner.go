// Package joiner implements spec §4.5's wire-level join handshake: a
// one-shot TCP payload the leader writes and a prospective joiner reads,
// after which the connection is closed and the joiner builds its first
// view from the payload.
//
// Grounded on rafthttp's peer-dial/peer-accept split (rafthttp.go,
// 03_rafthttp.go) for the connect/listen shape, with the payload itself
// encoded via the wire package per SPEC_FULL.md §4.5.
package joiner

import (
	"fmt"
	"net"
	"time"

	"github.com/vsync-go/vsync/wire"
)

// DialTimeout bounds the joiner's connection attempt to the leader.
const DialTimeout = 5 * time.Second

// ViewPayload is the decoded handshake payload: the committed next view,
// as the leader's GMS computed it.
type ViewPayload struct {
	VID        uint32
	MemberIDs  []uint32
	Addresses  []string
	Failed     []bool
}

// SendView writes payload to conn in the order spec §4.5 fixes, then
// leaves the connection open for the caller to close (the caller controls
// connection lifetime since it may be reused for an error path abort).
func SendView(conn net.Conn, payload ViewPayload) error {
	n := len(payload.MemberIDs)
	if len(payload.Addresses) != n || len(payload.Failed) != n {
		return fmt.Errorf("joiner: mismatched payload slice lengths")
	}

	if err := wire.PutUint32(conn, payload.VID); err != nil {
		return err
	}
	if err := wire.PutUint32(conn, uint32(n)); err != nil {
		return err
	}
	for _, id := range payload.MemberIDs {
		if err := wire.PutUint32(conn, id); err != nil {
			return err
		}
	}
	for _, addr := range payload.Addresses {
		if err := wire.PutString(conn, addr); err != nil {
			return err
		}
	}
	for _, f := range payload.Failed {
		b := byte(0)
		if f {
			b = 1
		}
		if err := wire.PutByte(conn, b); err != nil {
			return err
		}
	}
	return nil
}

// ReceiveView reads one SendView payload. Spec §7: transport I/O errors
// here abort the in-progress join; the caller retries from scratch rather
// than trying to resume a partial read.
func ReceiveView(conn net.Conn) (ViewPayload, error) {
	var p ViewPayload

	var err error
	p.VID, err = wire.ReadUint32(conn)
	if err != nil {
		return p, fmt.Errorf("joiner: read vid: %w", err)
	}

	n, err := wire.ReadUint32(conn)
	if err != nil {
		return p, fmt.Errorf("joiner: read num_members: %w", err)
	}

	p.MemberIDs = make([]uint32, n)
	for i := range p.MemberIDs {
		p.MemberIDs[i], err = wire.ReadUint32(conn)
		if err != nil {
			return p, fmt.Errorf("joiner: read node_id[%d]: %w", i, err)
		}
	}

	p.Addresses = make([]string, n)
	for i := range p.Addresses {
		p.Addresses[i], err = wire.ReadString(conn)
		if err != nil {
			return p, fmt.Errorf("joiner: read address[%d]: %w", i, err)
		}
	}

	p.Failed = make([]bool, n)
	for i := range p.Failed {
		b, err := wire.ReadByte(conn)
		if err != nil {
			return p, fmt.Errorf("joiner: read failed[%d]: %w", i, err)
		}
		p.Failed[i] = b != 0
	}

	return p, nil
}

// SendJoinRequest announces the joiner's own preconfigured address to the
// leader, so HandleJoinRequest can look it up in the id-to-address map
// (spec §4.4's "assigns the joiner a known id from the preconfigured
// id-to-address map") instead of trusting the TCP connection's remote
// address, which is an ephemeral outbound port rather than the joiner's
// listening address.
func SendJoinRequest(conn net.Conn, myAddr string) error {
	return wire.PutString(conn, myAddr)
}

// ReceiveJoinRequest reads the address SendJoinRequest announced.
func ReceiveJoinRequest(conn net.Conn) (string, error) {
	addr, err := wire.ReadString(conn)
	if err != nil {
		return "", fmt.Errorf("joiner: read join request address: %w", err)
	}
	return addr, nil
}

// Dial connects to the leader's GMS port, announces myAddr, and performs
// the join handshake, returning the committed first view.
func Dial(addr, myAddr string) (ViewPayload, error) {
	conn, err := net.DialTimeout("tcp", addr, DialTimeout)
	if err != nil {
		return ViewPayload{}, fmt.Errorf("joiner: dial %s: %w", addr, err)
	}
	defer conn.Close()
	if err := SendJoinRequest(conn, myAddr); err != nil {
		return ViewPayload{}, fmt.Errorf("joiner: send join request: %w", err)
	}
	return ReceiveView(conn)
}
