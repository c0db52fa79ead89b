// Package master implements the DNP3 master role: building READ, WRITE
// and DIRECT_OPERATE requests, committing batched requests, confirming
// unsolicited responses, clearing device-restart and serving need-time.
package master

import (
	"sync"
	"time"

	"github.com/pkg/errors"

	"rvpf/internal/dnp3/app"
	"rvpf/internal/dnp3/conn"
	"rvpf/internal/dnp3/object"
	"rvpf/internal/point"
	"rvpf/internal/value"
)

// readGroups maps point types to the group a master reads.
var readGroups = map[point.Type]byte{
	point.TypeSingleBitInput: object.GroupBinaryInput,
	point.TypeDoubleBitInput: object.GroupDoubleBitInput,
	point.TypeBinaryOutput:   object.GroupBinaryOutput,
	point.TypeCounter:        object.GroupCounter,
	point.TypeFrozenCounter:  object.GroupFrozenCounter,
	point.TypeAnalogInput:    object.GroupAnalogInput,
	point.TypeAnalogOutput:   object.GroupAnalogOutputStatus,
}

// writeGroups maps point types to the command group a master writes.
var writeGroups = map[point.Type]byte{
	point.TypeBinaryOutput: object.GroupBinaryOutputCommand,
	point.TypeAnalogOutput: object.GroupAnalogOutputCommand,
}

// Master drives the master side of its associations.
type Master struct {
	manager *conn.Manager

	mu sync.Mutex
	// batches accumulates request items per association until commit.
	readBatches  map[*conn.Association][]*app.Item
	writeBatches map[*conn.Association][]*app.Item
	// unsolicitedUnsupported remembers a NoFuncCodeSupport answer to
	// DISABLE_UNSOLICITED.
	unsolicitedUnsupported bool

	listeners  []func(*point.Value)
	listenerMu sync.Mutex

	// recorded is the instant of the last RECORD_CURRENT_TIME, written
	// to the outstation on need-time.
	recorded time.Time
}

// New builds a master over its connection manager.
func New(config conn.Config) *Master {
	config.Master = true
	m := &Master{
		readBatches:  map[*conn.Association][]*app.Item{},
		writeBatches: map[*conn.Association][]*app.Item{},
	}
	m.manager = conn.NewManager(config, m.handle)
	return m
}

// Manager exposes the connection manager.
func (m *Master) Manager() *conn.Manager {
	return m.manager
}

// Close tears down the connections.
func (m *Master) Close() error {
	return m.manager.Close()
}

// OnValue registers a listener for values arriving outside transactions
// (unsolicited items).
func (m *Master) OnValue(listener func(*point.Value)) {
	m.listenerMu.Lock()
	defer m.listenerMu.Unlock()
	m.listeners = append(m.listeners, listener)
}

// UnsolicitedSupported reports whether the outstation accepted the
// unsolicited disabling handshake.
func (m *Master) UnsolicitedSupported() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.unsolicitedUnsupported
}

// Connect ensures a connection to the origin and performs the initial
// handshake: DISABLE_UNSOLICITED for the three event classes, recording
// whether the outstation supports it.
func (m *Master) Connect(origin string, localAddr, remoteAddr uint16) (*conn.Association, error) {
	endpoint, err := m.manager.Connect(origin)
	if err != nil {
		return nil, err
	}
	assoc := endpoint.Association(localAddr, remoteAddr)
	if err := m.disableUnsolicited(assoc); err != nil {
		return nil, err
	}
	return assoc, nil
}

// Associate binds an association on an already attached endpoint (serial
// port, test pipe) and runs the same handshake.
func (m *Master) Associate(origin string, localAddr, remoteAddr uint16) (*conn.Association, error) {
	assoc := m.manager.Endpoint(origin).Association(localAddr, remoteAddr)
	if err := m.disableUnsolicited(assoc); err != nil {
		return nil, err
	}
	return assoc, nil
}

func (m *Master) disableUnsolicited(assoc *conn.Association) error {
	response, err := m.classRequest(assoc, app.DisableUnsolicited)
	if err != nil {
		return err
	}
	if response.IIN.Has(app.IINNoFuncCodeSupport) {
		m.mu.Lock()
		m.unsolicitedUnsupported = true
		m.mu.Unlock()
	}
	m.checkIndications(assoc, response.IIN)
	return nil
}

// EnableUnsolicited turns unsolicited reporting for the three event
// classes back on.
func (m *Master) EnableUnsolicited(assoc *conn.Association) error {
	response, err := m.classRequest(assoc, app.EnableUnsolicited)
	if err != nil {
		return err
	}
	m.checkIndications(assoc, response.IIN)
	return nil
}

func (m *Master) classRequest(assoc *conn.Association, function app.FunctionCode) (*app.Fragment, error) {
	request := &app.Fragment{
		Control:  app.NewControl(true, true, false, false, assoc.NextSolicited()),
		Function: function,
		Items: []*app.Item{
			app.NewAllItem(object.GroupClassObjects, 2),
			app.NewAllItem(object.GroupClassObjects, 3),
			app.NewAllItem(object.GroupClassObjects, 4),
		},
	}
	return assoc.Request(request)
}

// Read requests the current value of a single point and blocks for the
// response, decoding the first item into the point's value (a tuple for
// a multi-index point).
func (m *Master) Read(assoc *conn.Association, p *point.Point) (*point.Value, error) {
	group, ok := readGroups[p.Type]
	if !ok {
		return nil, errors.Errorf("point %s has no readable type", p)
	}
	start, stop := p.Indexes()
	request := &app.Fragment{
		Control:  app.NewControl(true, true, false, false, assoc.NextSolicited()),
		Function: app.Read,
		Items:    []*app.Item{app.NewRequestItem(group, 0, start, stop)},
	}
	response, err := assoc.Request(request)
	if err != nil {
		return nil, err
	}
	m.checkIndications(assoc, response.IIN)
	if len(response.Items) == 0 {
		return nil, errors.Wrap(app.ErrUnexpectedResponseItems, "empty read response")
	}
	return itemValue(p, response.Items[0])
}

// itemValue converts a response item into a point value: one instance
// becomes a scalar, several become a tuple in index order.
func itemValue(p *point.Point, item *app.Item) (*point.Value, error) {
	if len(item.Instances) == 0 {
		return nil, errors.Wrap(app.ErrUnexpectedResponseItems, "no instances")
	}
	pv := point.NewValue(p, nil)
	if len(item.Instances) == 1 {
		pv.Value = item.Instances[0].Value
		return pv, nil
	}
	tuple := value.NewTuple()
	for _, inst := range item.Instances {
		tuple.Items = append(tuple.Items, inst.Value)
	}
	pv.Value = tuple
	return pv, nil
}

// Write sends the point value with WRITE and checks the null response.
func (m *Master) Write(assoc *conn.Association, pv *point.Value) error {
	return m.command(assoc, pv, app.Write)
}

// DirectOperate sends the point value with DIRECT_OPERATE; the
// outstation publishes it inbound and confirms with a null response.
func (m *Master) DirectOperate(assoc *conn.Association, pv *point.Value) error {
	return m.command(assoc, pv, app.DirectOperate)
}

func (m *Master) command(assoc *conn.Association, pv *point.Value, function app.FunctionCode) error {
	item, err := commandItem(pv)
	if err != nil {
		return err
	}
	request := &app.Fragment{
		Control:  app.NewControl(true, true, false, false, assoc.NextSolicited()),
		Function: function,
		Items:    []*app.Item{item},
	}
	response, err := assoc.Request(request)
	if err != nil {
		return err
	}
	m.checkIndications(assoc, response.IIN)
	if len(response.Items) != 0 {
		return app.ErrUnexpectedResponseItems
	}
	if response.IIN.Has(app.IINParameterError) {
		return errors.Wrap(conn.ErrServiceNotAvailable, "parameter error")
	}
	return nil
}

func commandItem(pv *point.Value) (*app.Item, error) {
	p := pv.Point
	group, ok := writeGroups[p.Type]
	if !ok {
		group, ok = readGroups[p.Type]
		if !ok {
			return nil, errors.Errorf("point %s has no writable type", p)
		}
	}
	d, err := object.DefaultVariation(group, p.DataType)
	if err != nil {
		return nil, err
	}
	start, stop := p.Indexes()
	count := int(stop-start) + 1
	instances := make([]object.Instance, count)
	if tuple, ok := pv.Value.(*value.Tuple); ok {
		if len(tuple.Items) != count {
			return nil, object.ErrBadObjectValue
		}
		for i := range instances {
			instances[i] = object.Instance{Index: start + uint32(i), Value: tuple.Items[i]}
		}
	} else {
		if count != 1 {
			return nil, object.ErrBadObjectValue
		}
		instances[0] = object.Instance{Index: start, Value: pv.Value}
	}
	return app.NewIndexedItem(d, instances), nil
}
