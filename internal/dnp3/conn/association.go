package conn

import (
	"log"
	"sync"
	"time"

	"rvpf/internal/dnp3"
	"rvpf/internal/dnp3/app"
	"rvpf/internal/dnp3/transport"
)

// Association is the logical channel for one (local, remote) link address
// pair: it owns the transport state, the application sequence counters
// and the single outstanding solicited transaction slot.
type Association struct {
	endpoint *RemoteEndpoint
	Local    uint16
	Remote   uint16

	mu          sync.Mutex
	segmenter   transport.Segmenter
	reassembler *transport.Reassembler
	fcb         bool
	solicited   byte
	unsolicited byte
	pending     chan *app.Fragment

	// partial accumulates a multi-fragment application series.
	partial []*app.Fragment
}

func newAssociation(e *RemoteEndpoint, local, remote uint16) *Association {
	return &Association{
		endpoint:    e,
		Local:       local,
		Remote:      remote,
		reassembler: transport.NewReassembler(e.manager.config.MaxFragment),
	}
}

// NextSolicited advances and returns the 4-bit solicited sequence.
func (a *Association) NextSolicited() byte {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.solicited = (a.solicited + 1) & app.SeqMask
	return a.solicited
}

// NextUnsolicited advances and returns the unsolicited sequence.
func (a *Association) NextUnsolicited() byte {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.unsolicited = (a.unsolicited + 1) & app.SeqMask
	return a.unsolicited
}

// Send encodes a fragment, splits it into transport segments and writes
// them as data-link frames, splitting first at item boundaries when it
// exceeds the peer's fragment size.
func (a *Association) Send(fragment *app.Fragment) error {
	pieces, err := fragment.EncodeSplit(a.endpoint.manager.config.MaxFragment)
	if err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, piece := range pieces {
		for _, segment := range a.segmenter.Split(piece) {
			frame := &dnp3.Frame{
				Control: dnp3.NewControl(a.endpoint.manager.config.Master, true,
					false, false, dnp3.UnconfirmedUserData),
				Destination: a.Remote,
				Source:      a.Local,
				Data:        segment,
			}
			if err := a.endpoint.send(frame); err != nil {
				return err
			}
		}
	}
	return nil
}

// Request sends a solicited request and blocks for its response. Only one
// transaction may be outstanding; a caller that finds the pending slot
// taken is refused with ErrServiceNotAvailable.
func (a *Association) Request(fragment *app.Fragment) (*app.Fragment, error) {
	a.mu.Lock()
	if a.pending != nil {
		a.mu.Unlock()
		return nil, ErrServiceNotAvailable
	}
	pending := make(chan *app.Fragment, 1)
	a.pending = pending
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		if a.pending == pending {
			a.pending = nil
		}
		a.mu.Unlock()
	}()

	if err := a.Send(fragment); err != nil {
		return nil, err
	}

	timeout := time.NewTimer(a.endpoint.manager.config.ReplyTimeout)
	defer timeout.Stop()
	select {
	case response, ok := <-pending:
		if !ok || response == nil {
			return nil, ErrServiceNotAvailable
		}
		return response, nil
	case <-timeout.C:
		return nil, ErrReplyTimeout
	case <-a.endpoint.manager.ctx.Done():
		return nil, ErrServiceNotAvailable
	}
}

// receive drives the association's data-link secondary side for one
// frame.
func (a *Association) receive(frame *dnp3.Frame) {
	control := frame.Control
	if control.Prm() {
		switch control.Function() {
		case dnp3.ResetLink:
			a.mu.Lock()
			a.fcb = false
			a.mu.Unlock()
			a.replyLink(dnp3.Ack)
		case dnp3.TestLink:
			a.replyLink(dnp3.Ack)
		case dnp3.RequestLinkStatus:
			a.replyLink(dnp3.LinkStatus)
		case dnp3.ConfirmedUserData:
			a.replyLink(dnp3.Ack)
			a.userData(frame.Data)
		case dnp3.UnconfirmedUserData:
			a.userData(frame.Data)
		default:
			a.replyLink(dnp3.NotSupported)
		}
		return
	}
	// Secondary frames (ACK, link status) only refresh liveness.
}

func (a *Association) replyLink(function dnp3.LinkFunction) {
	frame := &dnp3.Frame{
		Control:     dnp3.NewControl(a.endpoint.manager.config.Master, false, false, false, function),
		Destination: a.Remote,
		Source:      a.Local,
	}
	if err := a.endpoint.send(frame); err != nil {
		log.Printf("[dnp3] %04X->%04X: link reply: %v", a.Local, a.Remote, err)
	}
}

// userData feeds a transport segment; a completed fragment is decoded and
// dispatched.
func (a *Association) userData(segment []byte) {
	a.mu.Lock()
	fragment, done, err := a.reassembler.Feed(segment)
	a.mu.Unlock()
	if err != nil {
		log.Printf("[dnp3] %04X->%04X: transport: %v", a.Local, a.Remote, err)
		return
	}
	if !done {
		return
	}
	decoded, err := app.Decode(fragment)
	if err != nil {
		log.Printf("[dnp3] %04X->%04X: application: %v", a.Local, a.Remote, err)
		return
	}
	a.dispatch(decoded)
}

// dispatch assembles multi-fragment application series and routes a
// completed message: solicited responses wake the pending transaction,
// everything else goes to the role handler.
func (a *Association) dispatch(fragment *app.Fragment) {
	a.mu.Lock()
	if !fragment.Control.Fir() && len(a.partial) == 0 {
		a.mu.Unlock()
		log.Printf("[dnp3] %04X->%04X: dropped continuation without start", a.Local, a.Remote)
		return
	}
	if fragment.Control.Fir() {
		a.partial = a.partial[:0]
	}
	a.partial = append(a.partial, fragment)
	if !fragment.Control.Fin() {
		a.mu.Unlock()
		return
	}
	series := a.partial
	a.partial = nil
	merged := series[0]
	for _, piece := range series[1:] {
		merged.Items = append(merged.Items, piece.Items...)
		merged.IIN |= piece.IIN
	}
	merged.Control = app.NewControl(true, true,
		fragment.Control.Con(), fragment.Control.Uns(), fragment.Control.Seq())

	pending := a.pending
	a.mu.Unlock()

	if merged.Function == app.Response && !merged.Control.Uns() && pending != nil {
		a.mu.Lock()
		a.pending = nil
		a.mu.Unlock()
		pending <- merged
		return
	}
	if handler := a.endpoint.manager.handler; handler != nil {
		handler(a, merged)
	}
}

// abort fails the outstanding transaction, if any; its caller sees
// ErrServiceNotAvailable.
func (a *Association) abort() {
	a.mu.Lock()
	pending := a.pending
	a.pending = nil
	a.mu.Unlock()
	if pending != nil {
		close(pending)
	}
}
