package sst

import "sync"

var logger = newPackageLogger()

// Matrix is the shared backing store for one view's table: numMembers rows,
// all readable by every node, each writable only by its own rank's handle.
// It plays the role real RDMA-replicated memory plays in the source system
// — every write is, in this single-process model, instantly visible to
// every reader; Put exists to drive predicate evaluation, not to move
// bytes.
type Matrix struct {
	mu     sync.RWMutex
	rows   []Row
	frozen []bool

	// handles are notified (non-blocking) whenever any handle calls Put.
	handles []*NodeTable

	// barrier state for SyncWithMembers
	barrierMu   sync.Mutex
	barrierCond *sync.Cond
	generation  int
	arrived     int
}

// NewMatrix returns a Matrix sized for numMembers rows, all zeroed.
func NewMatrix(numMembers int) *Matrix {
	m := &Matrix{
		rows:   make([]Row, numMembers),
		frozen: make([]bool, numMembers),
	}
	for i := range m.rows {
		m.rows[i] = NewRow(numMembers)
		m.rows[i].VID = 0
	}
	m.barrierCond = sync.NewCond(&m.barrierMu)
	return m
}

// NewNodeTable returns rank's Table handle onto m, with its own predicate
// registry and evaluator goroutine, per spec §5: "SST predicate evaluator:
// a single thread per SST".
func (m *Matrix) NewNodeTable(rank int) *NodeTable {
	nt := &NodeTable{
		matrix:   m,
		rank:     rank,
		registry: NewRegistry(),
		notifyCh: make(chan struct{}, 1),
		stopCh:   make(chan struct{}),
	}
	m.mu.Lock()
	m.handles = append(m.handles, nt)
	m.mu.Unlock()
	go nt.evaluateLoop()
	return nt
}

// NumMembers returns the number of rows in the matrix.
func (m *Matrix) NumMembers() int { return len(m.rows) }

func (m *Matrix) notifyAll() {
	m.mu.RLock()
	handles := m.handles
	m.mu.RUnlock()
	for _, h := range handles {
		select {
		case h.notifyCh <- struct{}{}:
		default:
			// an evaluation is already pending for h; it will see the
			// latest row state when it runs, so dropping this wakeup is
			// safe.
		}
	}
}

// NodeTable implements Table for one rank against a shared Matrix.
type NodeTable struct {
	matrix   *Matrix
	rank     int
	registry *Registry
	notifyCh chan struct{}
	stopCh   chan struct{}
	stopOnce sync.Once
}

var _ Table = (*NodeTable)(nil)

func (nt *NodeTable) Rank() int        { return nt.rank }
func (nt *NodeTable) NumMembers() int  { return nt.matrix.NumMembers() }
func (nt *NodeTable) Predicates() *Registry { return nt.registry }

func (nt *NodeTable) Row(rank int) Row {
	m := nt.matrix
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.rows[rank].Clone()
}

func (nt *NodeTable) WriteLocal(fn func(*Row)) {
	m := nt.matrix
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.frozen[nt.rank] {
		logger.Warnf("rejected write to frozen row %d", nt.rank)
		return
	}
	fn(&m.rows[nt.rank])
}

func (nt *NodeTable) Put(fields ...Field) {
	// fields is accepted for interface fidelity with the source system's
	// partial-update broadcast; this in-process matrix always publishes
	// the whole row, since there is no wire cost to save here.
	_ = fields
	nt.matrix.notifyAll()
}

func (nt *NodeTable) Freeze(rank int) {
	m := nt.matrix
	m.mu.Lock()
	m.frozen[rank] = true
	m.mu.Unlock()
}

func (nt *NodeTable) Frozen(rank int) bool {
	m := nt.matrix
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.frozen[rank]
}

// SyncWithMembers rendezvous with every other non-frozen rank's
// SyncWithMembers call before returning, implementing spec §4.4 step 9's
// barrier.
func (nt *NodeTable) SyncWithMembers() {
	m := nt.matrix

	m.mu.RLock()
	expect := 0
	for i := range m.frozen {
		if !m.frozen[i] {
			expect++
		}
	}
	m.mu.RUnlock()

	m.barrierMu.Lock()
	gen := m.generation
	m.arrived++
	if m.arrived >= expect {
		m.arrived = 0
		m.generation++
		m.barrierCond.Broadcast()
	} else {
		for m.generation == gen {
			m.barrierCond.Wait()
		}
	}
	m.barrierMu.Unlock()
}

func (nt *NodeTable) evaluateLoop() {
	for {
		select {
		case <-nt.notifyCh:
			nt.registry.evaluate(nt)
		case <-nt.stopCh:
			return
		}
	}
}

// Stop shuts down this handle's evaluator goroutine. Idempotent.
func (nt *NodeTable) Stop() {
	nt.stopOnce.Do(func() { close(nt.stopCh) })
}
