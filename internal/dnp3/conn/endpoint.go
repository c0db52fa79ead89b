package conn

import (
	"bytes"
	"log"
	"net"
	"sync"
	"time"

	"rvpf/internal/dnp3"
)

// RemoteEndpoint is one remote party: its connection handle, its
// associations keyed by (local<<16)|remote, and the endpoint timeouts.
type RemoteEndpoint struct {
	manager *Manager
	address string

	mu           sync.Mutex
	conn         net.Conn
	packet       net.PacketConn
	packetTo     net.Addr
	associations map[uint32]*Association

	// feedBuf accumulates datagram bytes until whole frames decode.
	feedBuf bytes.Buffer
}

func newRemoteEndpoint(m *Manager, address string) *RemoteEndpoint {
	return &RemoteEndpoint{
		manager:      m,
		address:      address,
		associations: map[uint32]*Association{},
	}
}

// Address is the remote network address the endpoint was created for.
func (e *RemoteEndpoint) Address() string {
	return e.address
}

func (e *RemoteEndpoint) connected() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.conn != nil || e.packet != nil
}

// install adopts a stream connection, replacing any previous one, and
// starts its read worker.
func (e *RemoteEndpoint) install(conn net.Conn) {
	e.mu.Lock()
	previous := e.conn
	e.conn = conn
	e.mu.Unlock()
	if previous != nil {
		previous.Close()
	}
	e.manager.group.Go(func() error {
		e.readLoop(conn)
		return nil
	})
	if e.manager.config.KeepAlive > 0 {
		e.manager.group.Go(func() error {
			e.keepAliveLoop(conn)
			return nil
		})
	}
}

// installPacket adopts a datagram socket for frame egress.
func (e *RemoteEndpoint) installPacket(packet net.PacketConn, to net.Addr) {
	e.mu.Lock()
	e.packet = packet
	e.packetTo = to
	e.mu.Unlock()
}

// readLoop parses frames off the connection until it fails. Per-frame
// decode errors are logged and the stream resynchronizes on the next
// start bytes; a broken connection tears the endpoint connection down.
func (e *RemoteEndpoint) readLoop(conn net.Conn) {
	for {
		frame, err := dnp3.ReadFrame(conn)
		if err != nil {
			switch err {
			case dnp3.ErrBadCRC, dnp3.ErrInvalidStartField, dnp3.ErrInvalidFrameLength:
				log.Printf("[dnp3] %s: dropped frame: %v", e.address, err)
				continue
			}
			e.dropConn(conn)
			return
		}
		e.route(frame)
	}
}

func (e *RemoteEndpoint) keepAliveLoop(conn net.Conn) {
	ticker := time.NewTicker(e.manager.config.KeepAlive)
	defer ticker.Stop()
	for {
		select {
		case <-e.manager.ctx.Done():
			return
		case <-ticker.C:
			e.mu.Lock()
			current := e.conn
			e.mu.Unlock()
			if current != conn {
				return
			}
			status := &dnp3.Frame{
				Control: dnp3.NewControl(e.manager.config.Master, true, false, false,
					dnp3.RequestLinkStatus),
				Destination: 0,
				Source:      e.manager.config.LocalAddress,
			}
			if err := e.send(status); err != nil {
				log.Printf("[dnp3] %s: keep-alive: %v", e.address, err)
				return
			}
		}
	}
}

func (e *RemoteEndpoint) dropConn(conn net.Conn) {
	conn.Close()
	e.mu.Lock()
	if e.conn == conn {
		e.conn = nil
	}
	associations := e.snapshotLocked()
	e.mu.Unlock()
	for _, assoc := range associations {
		assoc.abort()
	}
}

func (e *RemoteEndpoint) snapshotLocked() []*Association {
	associations := make([]*Association, 0, len(e.associations))
	for _, assoc := range e.associations {
		associations = append(associations, assoc)
	}
	return associations
}

// feed decodes whole frames from accumulated datagram bytes.
func (e *RemoteEndpoint) feed(buf []byte) {
	e.feedBuf.Write(buf)
	for {
		data := e.feedBuf.Bytes()
		if len(data) == 0 {
			return
		}
		frame, consumed, err := dnp3.DecodeFrame(data)
		if err != nil {
			if err == dnp3.ErrBadCRC || err == dnp3.ErrInvalidStartField ||
				err == dnp3.ErrInvalidFrameLength {
				log.Printf("[dnp3] %s: dropped datagram frame: %v", e.address, err)
				e.feedBuf.Reset()
			}
			return
		}
		e.feedBuf.Next(consumed)
		e.route(frame)
	}
}

// route filters on the destination address and hands the frame to its
// association. Frames for other stations are dropped.
func (e *RemoteEndpoint) route(frame *dnp3.Frame) {
	local := e.manager.config.LocalAddress
	if frame.Destination != local && !dnp3.IsBroadcast(frame.Destination) {
		log.Printf("[dnp3] %s: IgnoredFrame: destination %04X is not local %04X",
			e.address, frame.Destination, local)
		return
	}
	assoc := e.Association(local, frame.Source)
	assoc.receive(frame)
}

// Association returns the association for the address pair, creating it
// lazily on first use.
func (e *RemoteEndpoint) Association(local, remote uint16) *Association {
	key := uint32(local)<<16 | uint32(remote)
	e.mu.Lock()
	defer e.mu.Unlock()
	assoc, ok := e.associations[key]
	if !ok {
		assoc = newAssociation(e, local, remote)
		e.associations[key] = assoc
	}
	return assoc
}

// send writes a frame over the endpoint's connection.
func (e *RemoteEndpoint) send(frame *dnp3.Frame) error {
	encoded, err := frame.Encode()
	if err != nil {
		return err
	}
	e.mu.Lock()
	conn := e.conn
	packet, to := e.packet, e.packetTo
	e.mu.Unlock()
	switch {
	case conn != nil:
		_, err = conn.Write(encoded)
	case packet != nil:
		_, err = packet.WriteTo(encoded, to)
	default:
		return ErrServiceNotAvailable
	}
	return err
}

// Close aborts the associations and closes the connection.
func (e *RemoteEndpoint) Close() {
	e.mu.Lock()
	conn := e.conn
	e.conn = nil
	associations := e.snapshotLocked()
	e.mu.Unlock()
	for _, assoc := range associations {
		assoc.abort()
	}
	if conn != nil {
		conn.Close()
	}
}
