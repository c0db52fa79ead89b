// Package conn manages DNP3 connectivity: listening sockets, outgoing
// connections, remote endpoints and their associations. Frames read from
// a connection are routed to the association keyed by the local and
// remote link addresses, which drives the transport reassembly and hands
// complete application fragments to the installed role handler.
package conn

import (
	"context"
	"log"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"rvpf/internal/dnp3/app"
	"rvpf/internal/dnp3/transport"
)

// DefaultPort is the registered DNP3 TCP and UDP port.
const DefaultPort = 20000

// Default timeouts.
const (
	DefaultConnectTimeout   = 30 * time.Second
	DefaultReplyTimeout     = 5 * time.Second
	DefaultKeepAliveTimeout = 60 * time.Second
)

// Service errors surfaced to read/write callers.
var (
	ErrConnectionFailed    = errors.New("dnp3: connection failed")
	ErrReplyTimeout        = errors.New("dnp3: reply timeout")
	ErrServiceNotAvailable = errors.New("dnp3: service not available")
)

// Handler consumes application fragments arriving on an association that
// are not consumed by a pending transaction (requests on an outstation,
// unsolicited responses on a master).
type Handler func(assoc *Association, fragment *app.Fragment)

// Config carries the per-endpoint settings from the configuration
// attributes.
type Config struct {
	LocalAddress   uint16
	ConnectTimeout time.Duration
	ReplyTimeout   time.Duration
	KeepAlive      time.Duration
	MaxFragment    int
	Master         bool
}

func (c Config) withDefaults() Config {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.ReplyTimeout <= 0 {
		c.ReplyTimeout = DefaultReplyTimeout
	}
	if c.KeepAlive <= 0 {
		c.KeepAlive = DefaultKeepAliveTimeout
	}
	if c.MaxFragment <= 0 {
		if c.Master {
			c.MaxFragment = transport.DefaultMasterFragment
		} else {
			c.MaxFragment = transport.MinFragment
		}
	}
	return c
}

// Manager owns the listeners and the remote endpoints. Mutations are
// rare (configuration, accept, disconnect) and run under its lock.
type Manager struct {
	config  Config
	handler Handler

	mu        sync.Mutex
	listeners []net.Listener
	endpoints map[string]*RemoteEndpoint
	closed    bool

	// redial paces reconnection attempts across all endpoints.
	redial *rate.Limiter

	group  *errgroup.Group
	ctx    context.Context
	cancel context.CancelFunc
}

// NewManager builds a connection manager; handler receives the
// fragments no transaction claims.
func NewManager(config Config, handler Handler) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	group, ctx := errgroup.WithContext(ctx)
	return &Manager{
		config:    config.withDefaults(),
		handler:   handler,
		endpoints: map[string]*RemoteEndpoint{},
		redial:    rate.NewLimiter(rate.Every(time.Second), 1),
		group:     group,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Listen accepts TCP connections on address and routes their frames.
func (m *Manager) Listen(address string) error {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return errors.Wrap(err, "dnp3 listen")
	}
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		listener.Close()
		return ErrServiceNotAvailable
	}
	m.listeners = append(m.listeners, listener)
	m.mu.Unlock()

	m.group.Go(func() error {
		for {
			conn, err := listener.Accept()
			if err != nil {
				select {
				case <-m.ctx.Done():
					return nil
				default:
				}
				log.Printf("[dnp3] accept: %v", err)
				return nil
			}
			endpoint := m.Endpoint(conn.RemoteAddr().String())
			endpoint.install(conn)
		}
	})
	return nil
}

// ListenUDP accepts datagrams on address; each datagram carries whole
// frames.
func (m *Manager) ListenUDP(address string) error {
	packet, err := net.ListenPacket("udp", address)
	if err != nil {
		return errors.Wrap(err, "dnp3 listen udp")
	}
	m.group.Go(func() error {
		buf := make([]byte, 65536)
		for {
			n, from, err := packet.ReadFrom(buf)
			if err != nil {
				select {
				case <-m.ctx.Done():
					return nil
				default:
				}
				log.Printf("[dnp3] udp read: %v", err)
				return nil
			}
			endpoint := m.Endpoint(from.String())
			endpoint.installPacket(packet, from)
			endpoint.feed(buf[:n])
		}
	})
	return nil
}

// Connect dials the remote endpoint over TCP, reusing an existing
// connection when one is up.
func (m *Manager) Connect(address string) (*RemoteEndpoint, error) {
	endpoint := m.Endpoint(address)
	if endpoint.connected() {
		return endpoint, nil
	}
	if err := m.redial.Wait(m.ctx); err != nil {
		return nil, ErrServiceNotAvailable
	}
	conn, err := net.DialTimeout("tcp", address, m.config.ConnectTimeout)
	if err != nil {
		return nil, errors.Wrapf(ErrConnectionFailed, "dial %s: %v", address, err)
	}
	endpoint.install(conn)
	return endpoint, nil
}

// Attach hands an established connection (a serial port, a test pipe) to
// the endpoint named by address.
func (m *Manager) Attach(address string, conn net.Conn) *RemoteEndpoint {
	endpoint := m.Endpoint(address)
	endpoint.install(conn)
	return endpoint
}

// Endpoint returns the endpoint for the remote address, creating it on
// first use.
func (m *Manager) Endpoint(address string) *RemoteEndpoint {
	m.mu.Lock()
	defer m.mu.Unlock()
	endpoint, ok := m.endpoints[address]
	if !ok {
		endpoint = newRemoteEndpoint(m, address)
		m.endpoints[address] = endpoint
	}
	return endpoint
}

// Close stops the listeners, tears down every endpoint and waits for the
// workers to exit. Transactions in flight surface ErrServiceNotAvailable.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	listeners := m.listeners
	endpoints := make([]*RemoteEndpoint, 0, len(m.endpoints))
	for _, endpoint := range m.endpoints {
		endpoints = append(endpoints, endpoint)
	}
	m.mu.Unlock()

	m.cancel()
	for _, listener := range listeners {
		listener.Close()
	}
	for _, endpoint := range endpoints {
		endpoint.Close()
	}
	return m.group.Wait()
}
