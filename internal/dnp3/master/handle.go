package master

import (
	"log"
	"time"

	"rvpf/internal/dnp3/app"
	"rvpf/internal/dnp3/conn"
	"rvpf/internal/dnp3/object"
	"rvpf/internal/point"
	"rvpf/internal/value"
)

// handle consumes fragments outside transactions: unsolicited responses
// are confirmed and fanned out to the value listeners.
func (m *Master) handle(assoc *conn.Association, fragment *app.Fragment) {
	if fragment.Function != app.UnsolicitedResponse {
		log.Printf("[dnp3] master: unexpected %s dropped", fragment)
		return
	}
	if fragment.Control.Con() {
		confirm := &app.Fragment{
			Control:  app.NewControl(true, true, false, true, fragment.Control.Seq()),
			Function: app.Confirm,
		}
		if err := assoc.Send(confirm); err != nil {
			log.Printf("[dnp3] master: confirm: %v", err)
		}
	}
	for _, item := range fragment.Items {
		m.fanOut(item)
	}
	m.checkIndications(assoc, fragment.IIN)
}

// fanOut converts an unsolicited item's instances into anonymous point
// values for the listeners.
func (m *Master) fanOut(item *app.Item) {
	m.listenerMu.Lock()
	listeners := append([]func(*point.Value){}, m.listeners...)
	m.listenerMu.Unlock()
	if len(listeners) == 0 {
		return
	}
	for _, inst := range item.Instances {
		pv := &point.Value{
			Point: &point.Point{Index: inst.Index, StopIndex: inst.Index},
			Stamp: time.Now(),
			Value: inst.Value,
		}
		if !inst.Time.IsZero() {
			pv.Stamp = inst.Time
		}
		for _, listener := range listeners {
			listener(pv)
		}
	}
}

// checkIndications reacts to the outstation's IIN: device-restart is
// write-cleared at its G80V1 bit, need-time is served by recording the
// current time and writing it as the last-recorded absolute time.
func (m *Master) checkIndications(assoc *conn.Association, iin app.IIN) {
	if iin.Has(app.IINDeviceRestart) {
		go func() {
			if err := m.clearDeviceRestart(assoc); err != nil {
				log.Printf("[dnp3] master: clear device restart: %v", err)
			}
		}()
	}
	if iin.Has(app.IINNeedTime) {
		go func() {
			if err := m.writeTime(assoc); err != nil {
				log.Printf("[dnp3] master: write time: %v", err)
			}
		}()
	}
}

// clearDeviceRestart writes a zero bit at the device-restart index of
// the packed internal indications.
func (m *Master) clearDeviceRestart(assoc *conn.Association) error {
	d, err := object.Lookup(object.GroupInternalIndications, 1)
	if err != nil {
		return err
	}
	item := app.NewRangeItem(d, object.DeviceRestartCode, object.DeviceRestartCode,
		[]object.Instance{{Index: object.DeviceRestartCode, Value: value.Bool(false)}})
	request := &app.Fragment{
		Control:  app.NewControl(true, true, false, false, assoc.NextSolicited()),
		Function: app.Write,
		Items:    []*app.Item{item},
	}
	_, err = assoc.Request(request)
	return err
}

// writeTime performs RECORD_CURRENT_TIME then writes the recorded
// instant as G50V3.
func (m *Master) writeTime(assoc *conn.Association) error {
	record := &app.Fragment{
		Control:  app.NewControl(true, true, false, false, assoc.NextSolicited()),
		Function: app.RecordCurrentTime,
	}
	if _, err := assoc.Request(record); err != nil {
		return err
	}
	m.mu.Lock()
	m.recorded = time.Now()
	recorded := m.recorded
	m.mu.Unlock()

	d, err := object.Lookup(object.GroupTimeAndDate, 3)
	if err != nil {
		return err
	}
	item := &app.Item{
		Group:      d.Group,
		Variation:  d.Variation,
		Descriptor: d,
		Prefix:     app.PrefixNone,
		Range:      app.RangeCountByte,
		Count:      1,
		Instances:  []object.Instance{{Time: recorded}},
	}
	write := &app.Fragment{
		Control:  app.NewControl(true, true, false, false, assoc.NextSolicited()),
		Function: app.Write,
		Items:    []*app.Item{item},
	}
	_, err = assoc.Request(write)
	return err
}

// RequestPointValue batches a read of the point for the next commit.
func (m *Master) RequestPointValue(assoc *conn.Association, p *point.Point) error {
	group, ok := readGroups[p.Type]
	if !ok {
		return object.ErrUnknownGroup
	}
	start, stop := p.Indexes()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readBatches[assoc] = append(m.readBatches[assoc], app.NewRequestItem(group, 0, start, stop))
	return nil
}

// RequestPointUpdate batches a write of the value for the next commit.
func (m *Master) RequestPointUpdate(assoc *conn.Association, pv *point.Value) error {
	item, err := commandItem(pv)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeBatches[assoc] = append(m.writeBatches[assoc], item)
	return nil
}

// CommitReadRequests coalesces the batched reads of the association into
// one request and returns the response items in batch order.
func (m *Master) CommitReadRequests(assoc *conn.Association) ([]*app.Item, error) {
	m.mu.Lock()
	items := m.readBatches[assoc]
	delete(m.readBatches, assoc)
	m.mu.Unlock()
	if len(items) == 0 {
		return nil, nil
	}
	request := &app.Fragment{
		Control:  app.NewControl(true, true, false, false, assoc.NextSolicited()),
		Function: app.Read,
		Items:    items,
	}
	response, err := assoc.Request(request)
	if err != nil {
		return nil, err
	}
	m.checkIndications(assoc, response.IIN)
	return response.Items, nil
}

// CommitUpdateRequests coalesces the batched writes into one WRITE
// request.
func (m *Master) CommitUpdateRequests(assoc *conn.Association) error {
	m.mu.Lock()
	items := m.writeBatches[assoc]
	delete(m.writeBatches, assoc)
	m.mu.Unlock()
	if len(items) == 0 {
		return nil
	}
	request := &app.Fragment{
		Control:  app.NewControl(true, true, false, false, assoc.NextSolicited()),
		Function: app.Write,
		Items:    items,
	}
	response, err := assoc.Request(request)
	if err != nil {
		return err
	}
	m.checkIndications(assoc, response.IIN)
	if len(response.Items) != 0 {
		return app.ErrUnexpectedResponseItems
	}
	return nil
}
