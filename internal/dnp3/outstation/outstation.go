// Package outstation implements the DNP3 outstation role: it serves
// point values to READ requests, accepts writes and operates, maintains
// the internal indications and emits unsolicited responses for local
// events.
package outstation

import (
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"rvpf/internal/dnp3/app"
	"rvpf/internal/dnp3/conn"
	"rvpf/internal/point"
)

// unsolicitedRetries bounds confirmation retries before giving up.
const unsolicitedRetries = 3

// Station is one outstation: its configured points, their current
// values, the IIN register and the update pipeline.
type Station struct {
	manager *conn.Manager

	mu     sync.RWMutex
	points map[pointKey]*point.Point

	// values holds the current observation per point UUID.
	values sync.Map

	// iin is the atomic internal-indications register.
	iin atomic.Uint32

	// updates carries inbound writes FIFO to the update worker.
	updates    chan *point.Value
	isUpdating atomic.Bool
	listeners  []func(*point.Value)
	listenerMu sync.Mutex

	// lastRecorded is the instant stamped by RECORD_CURRENT_TIME.
	lastRecorded atomic.Int64

	// unsolicited tracks whether the master enabled unsolicited
	// responses, and the pending confirm slot.
	unsolicitedOK atomic.Bool
	confirmMu     sync.Mutex
	confirm       chan byte

	done chan struct{}
}

type pointKey struct {
	pointType point.Type
	index     uint32
}

// New builds a station over its connection manager. The device-restart
// indication starts set, as after a power-up.
func New(config conn.Config) *Station {
	config.Master = false
	s := &Station{
		points:  map[pointKey]*point.Point{},
		updates: make(chan *point.Value, 256),
		done:    make(chan struct{}),
	}
	s.manager = conn.NewManager(config, s.handle)
	s.iin.Store(uint32(app.IINDeviceRestart))
	s.unsolicitedOK.Store(true)
	go s.updateLoop()
	return s
}

// Manager exposes the station's connection manager for listeners.
func (s *Station) Manager() *conn.Manager {
	return s.manager
}

// Close stops the update worker and the connections.
func (s *Station) Close() error {
	close(s.done)
	return s.manager.Close()
}

// AddPoint registers a served point under every index it spans.
func (s *Station) AddPoint(p *point.Point) {
	start, stop := p.Indexes()
	s.mu.Lock()
	defer s.mu.Unlock()
	for index := start; index <= stop; index++ {
		s.points[pointKey{p.Type, index}] = p
	}
}

// SetValue stores the current observation for its point.
func (s *Station) SetValue(pv *point.Value) {
	if pv.Point == nil {
		return
	}
	s.values.Store(pv.Point.UUID, pv)
}

// Value returns the current observation of a point.
func (s *Station) Value(p *point.Point) (*point.Value, bool) {
	stored, ok := s.values.Load(p.UUID)
	if !ok {
		return nil, false
	}
	return stored.(*point.Value), true
}

// OnUpdate registers a listener for inbound point values (writes and
// operates received from the master).
func (s *Station) OnUpdate(listener func(*point.Value)) {
	s.listenerMu.Lock()
	defer s.listenerMu.Unlock()
	s.listeners = append(s.listeners, listener)
}

// IIN snapshots the internal indications.
func (s *Station) IIN() app.IIN {
	return app.IIN(s.iin.Load())
}

// RaiseIIN sets indication bits.
func (s *Station) RaiseIIN(flags app.IIN) {
	for {
		old := s.iin.Load()
		if s.iin.CompareAndSwap(old, old|uint32(flags)) {
			return
		}
	}
}

// ClearIIN clears indication bits.
func (s *Station) ClearIIN(flags app.IIN) {
	for {
		old := s.iin.Load()
		if s.iin.CompareAndSwap(old, old&^uint32(flags)) {
			return
		}
	}
}

func (s *Station) lookup(pointType point.Type, index uint32) *point.Point {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.points[pointKey{pointType, index}]
}

// updateLoop drains the inbound write queue in arrival order.
func (s *Station) updateLoop() {
	for {
		select {
		case <-s.done:
			return
		case pv := <-s.updates:
			s.isUpdating.Store(true)
			s.SetValue(pv)
			s.listenerMu.Lock()
			listeners := append([]func(*point.Value){}, s.listeners...)
			s.listenerMu.Unlock()
			for _, listener := range listeners {
				listener(pv)
			}
			if len(s.updates) == 0 {
				s.isUpdating.Store(false)
			}
		}
	}
}

// publish queues an inbound observation.
func (s *Station) publish(pv *point.Value) {
	select {
	case s.updates <- pv:
	default:
		s.RaiseIIN(app.IINEventBufferOverflow)
		log.Printf("[dnp3] outstation: update queue full, %s dropped", pv)
	}
}

// Notify emits an unsolicited response carrying the observation and
// waits for the master's confirmation, retrying a bounded number of
// times before raising the event-buffer indication.
func (s *Station) Notify(assoc *conn.Association, pv *point.Value) error {
	if !s.unsolicitedOK.Load() {
		return errors.Wrap(conn.ErrServiceNotAvailable, "unsolicited disabled")
	}
	item, err := s.responseItem(pv.Point, pv)
	if err != nil {
		return err
	}
	seq := assoc.NextUnsolicited()
	fragment := &app.Fragment{
		Control:  app.NewControl(true, true, true, true, seq),
		Function: app.UnsolicitedResponse,
		IIN:      s.IIN(),
		Items:    []*app.Item{item},
	}

	s.confirmMu.Lock()
	confirm := make(chan byte, 1)
	s.confirm = confirm
	s.confirmMu.Unlock()
	defer func() {
		s.confirmMu.Lock()
		s.confirm = nil
		s.confirmMu.Unlock()
	}()

	for attempt := 0; attempt <= unsolicitedRetries; attempt++ {
		if err := assoc.Send(fragment); err != nil {
			return err
		}
		timeout := time.NewTimer(conn.DefaultReplyTimeout)
		select {
		case echoed := <-confirm:
			timeout.Stop()
			if echoed == seq {
				return nil
			}
		case <-timeout.C:
		case <-s.done:
			timeout.Stop()
			return conn.ErrServiceNotAvailable
		}
	}
	s.RaiseIIN(app.IINEventBufferOverflow)
	return conn.ErrReplyTimeout
}

// NotifyRestart sends the initial unsolicited null response announcing
// the device restart.
func (s *Station) NotifyRestart(assoc *conn.Association) error {
	fragment := &app.Fragment{
		Control:  app.NewControl(true, true, false, true, assoc.NextUnsolicited()),
		Function: app.UnsolicitedResponse,
		IIN:      s.IIN(),
	}
	return assoc.Send(fragment)
}
