package gms

import (
	"net"

	"github.com/vsync-go/vsync/joiner"
	"github.com/vsync-go/vsync/sst"
	"github.com/vsync-go/vsync/view"
)

// HandleJoinRequest is called by package node's listener when a new TCP
// connection arrives on the leader's GMS port, spec §4.4's "Join": the
// leader assigns the joiner a known id from the preconfigured id-to-
// address map, proposes an addition change, and wedges its own view. The
// actual handshake payload is written later, once that change commits and
// view installation reaches step 7 (see install.go's sendCommittedView).
//
// Returns false if this node isn't the leader, a join is already in
// progress, or addr matches no configured id outside the current view —
// the caller should close conn in each case.
func (c *Controller) HandleJoinRequest(conn net.Conn, addr string) bool {
	v := c.View()
	if !v.IsLeader() {
		return false
	}
	t := v.Table

	c.joinMu.Lock()
	if c.joinConn != nil {
		c.joinMu.Unlock()
		return false
	}
	id, ok := c.pickUnusedID(v, addr)
	if !ok {
		c.joinMu.Unlock()
		return false
	}
	c.joinConn = conn
	c.joinAddr = addr
	c.joinToken = c.idGen.Next()
	c.joinMu.Unlock()

	t.WriteLocal(func(r *sst.Row) { r.JoinerAddress = addr })
	t.Put(sst.FieldJoinerAddress)
	c.proposeChangeLocked(t, sst.Change{NodeID: id, Add: true})
	v.Wedge()
	return true
}

// pickUnusedID finds the preconfigured id whose address matches addr and
// which isn't already a member of v. Spec §3: "no dynamic address
// assignment" — a joiner must already appear in the process-lifetime
// id-to-address map under the address it dials in from.
func (c *Controller) pickUnusedID(v *view.View, addr string) (uint64, bool) {
	inView := make(map[uint64]bool, len(v.Members))
	for _, id := range v.Members {
		inView[id] = true
	}
	for id, a := range c.members {
		if a == addr && !inView[id] {
			return id, true
		}
	}
	return 0, false
}

func (c *Controller) sendCommittedView(payload joiner.ViewPayload) {
	c.joinMu.Lock()
	conn := c.joinConn
	c.joinConn = nil
	c.joinAddr = ""
	c.joinMu.Unlock()

	if conn == nil {
		return
	}
	defer conn.Close()
	if err := joiner.SendView(conn, payload); err != nil {
		logger.Errorf("gms: send committed view to joiner: %v", err)
	}
}
