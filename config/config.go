// Package config holds process-level configuration, spec §6's enumerated
// list plus the id-to-address map spec §3 says is fixed for the process
// lifetime.
//
// Grounded on raft.Config/raft_config.go's shape and style: a plain
// struct with doc comments at the same density, and a Validate method
// using bare errors.New/fmt.Errorf rather than a validation library — the
// pack's only "config" code is this same plain-struct idiom, so that's
// what we follow (no third-party flags/config library appears anywhere in
// the corpus).
package config

import (
	"errors"
	"fmt"
)

// DissemType selects the block-multicast dissemination algorithm, spec
// §6's "type" field. The reference implementation only ships Loopback;
// real dissemination algorithms (RDMC-style binomial pipeline, etc.) are
// out of scope (spec §1) and are named here only as a configuration
// surface a production Transport would switch on.
type DissemType int

const (
	// DissemLoopback selects blockmcast.LoopbackNetwork, the in-process
	// reference transport.
	DissemLoopback DissemType = iota
)

func (t DissemType) String() string {
	switch t {
	case DissemLoopback:
		return "loopback"
	default:
		return "unknown"
	}
}

// Config is the process-level configuration spec §6 enumerates.
type Config struct {
	// MyID is this node's stable integer id, assigned before startup
	// (spec §3: "Node identity").
	MyID uint64

	// Members is the fixed id -> network address map for the process
	// lifetime (spec §3: "no dynamic address assignment").
	Members map[uint64]string

	// BufferSize is the per-sender ring size in bytes (spec §4.1's B).
	BufferSize int

	// BlockSize is the transport's block size.
	BlockSize int

	// WindowSize bounds outstanding undelivered messages per sender;
	// must be >= 1.
	WindowSize int

	// GMSPort is the TCP port the leader's joiner-handshake listener
	// binds, spec §4.4's "Join".
	GMSPort int

	// Type selects the block-multicast dissemination algorithm.
	Type DissemType
}

// Validate reports the first configuration error found, following
// raft.Config.validate's style: plain sentinel/formatted errors, checked
// in the same order the fields are declared.
func (c *Config) Validate() error {
	if c.MyID == 0 {
		return errors.New("config: MyID must be nonzero")
	}
	if len(c.Members) == 0 {
		return errors.New("config: Members must not be empty")
	}
	if _, ok := c.Members[c.MyID]; !ok {
		return fmt.Errorf("config: MyID %d not present in Members", c.MyID)
	}
	if c.BufferSize <= 0 {
		return errors.New("config: BufferSize must be greater than 0")
	}
	if c.BlockSize <= 0 {
		return errors.New("config: BlockSize must be greater than 0")
	}
	if c.BlockSize > c.BufferSize {
		return fmt.Errorf("config: BlockSize (%d) must not exceed BufferSize (%d)", c.BlockSize, c.BufferSize)
	}
	if c.WindowSize < 1 {
		return errors.New("config: WindowSize must be at least 1")
	}
	if c.BufferSize/c.WindowSize <= 0 {
		return errors.New("config: BufferSize/WindowSize must allow at least 1 byte per message")
	}
	if c.GMSPort <= 0 || c.GMSPort > 65535 {
		return fmt.Errorf("config: GMSPort %d out of range", c.GMSPort)
	}
	return nil
}
