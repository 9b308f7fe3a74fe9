package raft

import (
	"encoding/binary"
	"io"
	"math/rand"
	"net"
	"sync"
	"time"
)

// Transport defines the interface for Raft RPC communication.
type Transport interface {
	// Send sends an RPC to a peer and waits for response.
	Send(peerID string, msgType uint8, data []byte) ([]byte, error)

	// Listen starts listening for incoming RPCs.
	Listen(handler RPCHandler) error

	// Close shuts down the transport.
	Close() error

	// LocalAddr returns the local address.
	LocalAddr() string
}

// RPCHandler handles incoming RPC messages.
// Returns the response data to send back.
type RPCHandler func(msgType uint8, data []byte) []byte

// TCPTransport implements Transport using TCP.
type TCPTransport struct {
	addr     string
	listener net.Listener
	peers    map[string]string   // peerID -> address
	conns    map[string]net.Conn // peerID -> connection
	handler  RPCHandler
	timeout  time.Duration
	closed   bool
	mu       sync.RWMutex
	wg       sync.WaitGroup
}

// NewTCPTransport creates a new TCP transport.
func NewTCPTransport(addr string, peers map[string]string) *TCPTransport {
	return &TCPTransport{
		addr:    addr,
		peers:   peers,
		conns:   make(map[string]net.Conn),
		timeout: 5 * time.Second,
	}
}

// SetTimeout sets the connection timeout.
func (t *TCPTransport) SetTimeout(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.timeout = d
}

// LocalAddr returns the local address.
func (t *TCPTransport) LocalAddr() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.listener != nil {
		return t.listener.Addr().String()
	}
	return t.addr
}

// Send sends an RPC message to a peer and waits for response.
// Message format: [type:1][length:4][data:N]
func (t *TCPTransport) Send(peerID string, msgType uint8, data []byte) ([]byte, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, ErrTransportClosed
	}

	conn, ok := t.conns[peerID]
	if !ok || conn == nil {
		addr, exists := t.peers[peerID]
		if !exists {
			t.mu.Unlock()
			return nil, ErrConnectFailed
		}

		var err error
		conn, err = net.DialTimeout("tcp", addr, t.timeout)
		if err != nil {
			t.mu.Unlock()
			return nil, err
		}
		t.conns[peerID] = conn
	}
	t.mu.Unlock()

	// Set deadline for this operation
	conn.SetDeadline(time.Now().Add(t.timeout))

	// Write message: [type:1][length:4][data:N]
	header := make([]byte, 5)
	header[0] = msgType
	binary.LittleEndian.PutUint32(header[1:5], uint32(len(data)))

	if _, err := conn.Write(header); err != nil {
		t.removeConn(peerID)
		return nil, err
	}
	if _, err := conn.Write(data); err != nil {
		t.removeConn(peerID)
		return nil, err
	}

	// Read response header
	respHeader := make([]byte, 5)
	if _, err := io.ReadFull(conn, respHeader); err != nil {
		t.removeConn(peerID)
		return nil, err
	}

	// Read response data
	respLen := binary.LittleEndian.Uint32(respHeader[1:5])
	respData := make([]byte, respLen)
	if respLen > 0 {
		if _, err := io.ReadFull(conn, respData); err != nil {
			t.removeConn(peerID)
			return nil, err
		}
	}

	return respData, nil
}

// Listen starts accepting connections and handling RPCs.
func (t *TCPTransport) Listen(handler RPCHandler) error {
	listener, err := net.Listen("tcp", t.addr)
	if err != nil {
		return err
	}

	t.mu.Lock()
	t.listener = listener
	t.handler = handler
	t.mu.Unlock()

	t.wg.Add(1)
	go t.acceptLoop()

	return nil
}

func (t *TCPTransport) acceptLoop() {
	defer t.wg.Done()

	for {
		conn, err := t.listener.Accept()
		if err != nil {
			t.mu.RLock()
			closed := t.closed
			t.mu.RUnlock()
			if closed {
				return
			}
			continue
		}

		t.wg.Add(1)
		go t.handleConn(conn)
	}
}

func (t *TCPTransport) handleConn(conn net.Conn) {
	defer t.wg.Done()
	defer conn.Close()

	for {
		t.mu.RLock()
		closed := t.closed
		t.mu.RUnlock()
		if closed {
			return
		}

		// Set read deadline
		conn.SetReadDeadline(time.Now().Add(t.timeout * 2))

		// Read message header
		header := make([]byte, 5)
		if _, err := io.ReadFull(conn, header); err != nil {
			return
		}

		msgType := header[0]
		dataLen := binary.LittleEndian.Uint32(header[1:5])

		// Sanity check: prevent allocation of unreasonably large buffers
		if dataLen > 64*1024*1024 { // 64MB max
			return
		}

		// Read message data
		data := make([]byte, dataLen)
		if dataLen > 0 {
			if _, err := io.ReadFull(conn, data); err != nil {
				return
			}
		}

		// Handle the message
		var resp []byte
		if t.handler != nil {
			resp = t.handler(msgType, data)
		}

		// Write response
		respHeader := make([]byte, 5)
		respHeader[0] = msgType
		binary.LittleEndian.PutUint32(respHeader[1:5], uint32(len(resp)))

		conn.SetWriteDeadline(time.Now().Add(t.timeout))
		if _, err := conn.Write(respHeader); err != nil {
			return
		}
		if len(resp) > 0 {
			if _, err := conn.Write(resp); err != nil {
				return
			}
		}
	}
}

func (t *TCPTransport) removeConn(peerID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if conn, ok := t.conns[peerID]; ok {
		conn.Close()
		delete(t.conns, peerID)
	}
}

// Close shuts down the transport.
func (t *TCPTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	// Close listener
	if t.listener != nil {
		t.listener.Close()
	}

	// Close all peer connections
	t.mu.Lock()
	for _, conn := range t.conns {
		conn.Close()
	}
	t.conns = make(map[string]net.Conn)
	t.mu.Unlock()

	// Wait for goroutines
	t.wg.Wait()

	return nil
}

// AddPeer adds a new peer to the transport.
func (t *TCPTransport) AddPeer(peerID string, addr string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.peers == nil {
		t.peers = make(map[string]string)
	}
	t.peers[peerID] = addr
}

// RemovePeer removes a peer from the transport.
func (t *TCPTransport) RemovePeer(peerID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.peers, peerID)
	if conn, ok := t.conns[peerID]; ok {
		conn.Close()
		delete(t.conns, peerID)
	}
}

// link identifies a directed sender/receiver pair in the in-memory network.
type link struct {
	from, to string
}

// InMemoryNetwork simulates a cluster network for testing. Links can
// be delayed, made lossy, or partitioned without touching real
// sockets, and the random drop decisions come from a seeded source so
// runs are reproducible.
type InMemoryNetwork struct {
	transports map[string]*InMemoryTransport
	groups     map[string]int // partition group per node, default 0
	delays     map[link]time.Duration
	dropRates  map[link]float64
	rng        *rand.Rand
	mu         sync.Mutex
}

// NewInMemoryNetwork creates a new in-memory network.
func NewInMemoryNetwork(seed int64) *InMemoryNetwork {
	return &InMemoryNetwork{
		transports: make(map[string]*InMemoryTransport),
		groups:     make(map[string]int),
		delays:     make(map[link]time.Duration),
		dropRates:  make(map[link]float64),
		rng:        rand.New(rand.NewSource(seed)),
	}
}

// NewTransport creates a new in-memory transport for a node.
func (n *InMemoryNetwork) NewTransport(nodeID string, addr string) *InMemoryTransport {
	t := &InMemoryTransport{
		id:      nodeID,
		addr:    addr,
		network: n,
	}

	n.mu.Lock()
	n.transports[nodeID] = t
	n.mu.Unlock()

	return t
}

// SetDelay sets a one-way delivery delay between two nodes.
func (n *InMemoryNetwork) SetDelay(from, to string, d time.Duration) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.delays[link{from, to}] = d
}

// SetDropRate sets the probability (0..1) that a message from one
// node to another is dropped.
func (n *InMemoryNetwork) SetDropRate(from, to string, rate float64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.dropRates[link{from, to}] = rate
}

// Partition splits the network into the given groups. Nodes in
// different groups cannot reach each other; nodes not named in any
// group are placed in their own isolated group.
func (n *InMemoryNetwork) Partition(groups ...[]string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.groups = make(map[string]int)
	for id := range n.transports {
		n.groups[id] = -1 // isolated unless assigned below
	}
	for i, group := range groups {
		for _, id := range group {
			n.groups[id] = i
		}
	}
}

// Heal removes all partitions; delays and drop rates are kept.
func (n *InMemoryNetwork) Heal() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.groups = make(map[string]int)
}

// deliverable decides whether a message can travel from one node to
// another, and returns the delay to apply if it can.
func (n *InMemoryNetwork) deliverable(from, to string) (time.Duration, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	fromGroup, fromAssigned := n.groups[from]
	toGroup, toAssigned := n.groups[to]
	if fromAssigned || toAssigned {
		if fromGroup != toGroup || fromGroup == -1 {
			return 0, false
		}
	}

	if rate := n.dropRates[link{from, to}]; rate > 0 && n.rng.Float64() < rate {
		return 0, false
	}

	return n.delays[link{from, to}], true
}

// InMemoryTransport implements Transport over an InMemoryNetwork.
type InMemoryTransport struct {
	id      string
	addr    string
	network *InMemoryNetwork
	handler RPCHandler
	closed  bool
	mu      sync.RWMutex
}

// Send sends an RPC to a peer.
func (t *InMemoryTransport) Send(peerID string, msgType uint8, data []byte) ([]byte, error) {
	t.mu.RLock()
	if t.closed {
		t.mu.RUnlock()
		return nil, ErrTransportClosed
	}
	t.mu.RUnlock()

	t.network.mu.Lock()
	peer, ok := t.network.transports[peerID]
	t.network.mu.Unlock()

	if !ok {
		return nil, ErrConnectFailed
	}

	delay, ok := t.network.deliverable(t.id, peerID)
	if !ok {
		return nil, ErrUnreachable
	}
	if delay > 0 {
		time.Sleep(delay)
	}

	peer.mu.RLock()
	handler := peer.handler
	closed := peer.closed
	peer.mu.RUnlock()

	if closed || handler == nil {
		return nil, ErrConnectFailed
	}

	resp := handler(msgType, data)

	// The reply crosses the same unreliable network
	delay, ok = t.network.deliverable(peerID, t.id)
	if !ok {
		return nil, ErrUnreachable
	}
	if delay > 0 {
		time.Sleep(delay)
	}

	return resp, nil
}

// Listen starts listening for RPCs.
func (t *InMemoryTransport) Listen(handler RPCHandler) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handler = handler
	return nil
}

// Close shuts down the transport.
func (t *InMemoryTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	t.handler = nil
	return nil
}

// LocalAddr returns the local address.
func (t *InMemoryTransport) LocalAddr() string {
	return t.addr
}
