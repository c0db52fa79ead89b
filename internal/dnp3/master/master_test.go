package master_test

import (
	"net"
	"testing"
	"time"

	"github.com/google/uuid"

	"rvpf/internal/dnp3/app"
	"rvpf/internal/dnp3/conn"
	"rvpf/internal/dnp3/master"
	"rvpf/internal/dnp3/outstation"
	"rvpf/internal/point"
	"rvpf/internal/value"
)

const (
	masterAddr     = 0x0001
	outstationAddr = 0x0004
)

type harness struct {
	master  *master.Master
	station *outstation.Station
	assoc   *conn.Association
}

// newHarness wires a master and an outstation over an in-memory pipe and
// runs the connect handshake.
func newHarness(t *testing.T) *harness {
	t.Helper()
	masterSide, stationSide := net.Pipe()

	m := master.New(conn.Config{
		LocalAddress: masterAddr,
		KeepAlive:    time.Hour,
		ReplyTimeout: 500 * time.Millisecond,
	})
	station := outstation.New(conn.Config{LocalAddress: outstationAddr, KeepAlive: time.Hour})
	t.Cleanup(func() {
		m.Close()
		station.Close()
	})

	m.Manager().Attach("pipe", masterSide)
	station.Manager().Attach("pipe", stationSide)

	assoc, err := m.Associate("pipe", masterAddr, outstationAddr)
	if err != nil {
		t.Fatalf("associate: %v", err)
	}

	// The handshake response reported DeviceRestart; wait for the
	// master's write-clear to land.
	deadline := time.Now().Add(2 * time.Second)
	for station.IIN().Has(app.IINDeviceRestart) {
		if time.Now().After(deadline) {
			t.Fatal("device restart never cleared")
		}
		time.Sleep(5 * time.Millisecond)
	}
	// Let the clearing transaction's response drain before the tests
	// issue their own requests.
	time.Sleep(50 * time.Millisecond)
	return &harness{master: m, station: station, assoc: assoc}
}

func analogInput(index uint32) *point.Point {
	return &point.Point{
		UUID:      uuid.New(),
		Name:      "analog-7",
		Type:      point.TypeAnalogInput,
		DataType:  point.DataFloat32,
		Index:     index,
		StopIndex: index,
	}
}

// Test the single-point read scenario: an analog input served as G30V5.
func TestReadAnalogInput(t *testing.T) {
	h := newHarness(t)
	p := analogInput(7)
	h.station.AddPoint(p)
	h.station.SetValue(point.NewValue(p, value.Double(1234.5)))

	pv, err := h.master.Read(h.assoc, p)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !value.Equal(pv.Value, value.Double(1234.5)) {
		t.Errorf("value: got %v, want 1234.5", pv.Value)
	}
	if pv.Stamp.IsZero() {
		t.Error("stamp missing")
	}
}

// Test the direct-operate scenario: a 16-bit analog output command is
// published inbound on the outstation and the master sees a null
// response.
func TestDirectOperate(t *testing.T) {
	h := newHarness(t)
	p := &point.Point{
		UUID:      uuid.New(),
		Name:      "setpoint-3",
		Type:      point.TypeAnalogOutput,
		DataType:  point.DataInt16,
		Index:     3,
		StopIndex: 3,
	}
	h.station.AddPoint(p)

	received := make(chan *point.Value, 1)
	h.station.OnUpdate(func(pv *point.Value) {
		received <- pv
	})

	if err := h.master.DirectOperate(h.assoc, point.NewValue(p, value.Long(-100))); err != nil {
		t.Fatalf("direct operate: %v", err)
	}
	select {
	case pv := <-received:
		if !value.Equal(pv.Value, value.Long(-100)) {
			t.Errorf("published value: got %v, want -100", pv.Value)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no inbound point value")
	}
}

// Test a multi-index read producing a tuple in index order.
func TestReadRangeTuple(t *testing.T) {
	h := newHarness(t)
	p := &point.Point{
		UUID:      uuid.New(),
		Name:      "block",
		Type:      point.TypeAnalogInput,
		DataType:  point.DataInt32,
		Index:     4,
		StopIndex: 7,
	}
	h.station.AddPoint(p)
	h.station.SetValue(point.NewValue(p, value.NewTuple(
		value.Long(10), value.Long(20), value.Long(30), value.Long(40))))

	pv, err := h.master.Read(h.assoc, p)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	tuple, ok := pv.Value.(*value.Tuple)
	if !ok {
		t.Fatalf("expected tuple, got %T", pv.Value)
	}
	want := []int64{10, 20, 30, 40}
	if len(tuple.Items) != len(want) {
		t.Fatalf("%d items, want %d", len(tuple.Items), len(want))
	}
	for i, item := range tuple.Items {
		if !value.Equal(item, value.Long(want[i])) {
			t.Errorf("item %d: got %v, want %d", i, item, want[i])
		}
	}
}

// Test that the device-restart indication is gone after the handshake
// write-clear and responses no longer carry it.
func TestDeviceRestartCleared(t *testing.T) {
	h := newHarness(t)
	if h.station.IIN().Has(app.IINDeviceRestart) {
		t.Error("device restart still set after handshake")
	}
}

// Test batched reads committed as one request, responses in add order.
func TestBatchCommit(t *testing.T) {
	h := newHarness(t)
	first := analogInput(1)
	second := &point.Point{
		UUID: uuid.New(), Name: "counter-2",
		Type: point.TypeCounter, DataType: point.DataInt32,
		Index: 2, StopIndex: 2,
	}
	h.station.AddPoint(first)
	h.station.AddPoint(second)
	h.station.SetValue(point.NewValue(first, value.Double(1.5)))
	h.station.SetValue(point.NewValue(second, value.Long(99)))

	if err := h.master.RequestPointValue(h.assoc, first); err != nil {
		t.Fatalf("batch first: %v", err)
	}
	if err := h.master.RequestPointValue(h.assoc, second); err != nil {
		t.Fatalf("batch second: %v", err)
	}
	items, err := h.master.CommitReadRequests(h.assoc)
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("%d items, want 2", len(items))
	}
	if !value.Equal(items[0].Instances[0].Value, value.Double(1.5)) {
		t.Errorf("first: got %v", items[0].Instances[0].Value)
	}
	if !value.Equal(items[1].Instances[0].Value, value.Long(99)) {
		t.Errorf("second: got %v", items[1].Instances[0].Value)
	}
}

// Test an unsolicited notification: the master confirms and fans the
// value out to its listeners.
func TestUnsolicited(t *testing.T) {
	h := newHarness(t)
	p := analogInput(9)
	h.station.AddPoint(p)

	received := make(chan *point.Value, 1)
	h.master.OnValue(func(pv *point.Value) {
		select {
		case received <- pv:
		default:
		}
	})

	if err := h.master.EnableUnsolicited(h.assoc); err != nil {
		t.Fatalf("enable unsolicited: %v", err)
	}
	stationAssoc := h.station.Manager().Endpoint("pipe").Association(outstationAddr, masterAddr)
	if err := h.station.Notify(stationAssoc, point.NewValue(p, value.Double(42.5))); err != nil {
		t.Fatalf("notify: %v", err)
	}
	select {
	case pv := <-received:
		if !value.Equal(pv.Value, value.Double(42.5)) {
			t.Errorf("got %v, want 42.5", pv.Value)
		}
		if pv.Point.Index != 9 {
			t.Errorf("index %d, want 9", pv.Point.Index)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("unsolicited value never arrived")
	}
}

// Test that frames addressed to another station are ignored.
func TestIgnoredFrame(t *testing.T) {
	h := newHarness(t)
	p := analogInput(7)
	h.station.AddPoint(p)
	h.station.SetValue(point.NewValue(p, value.Double(1.0)))

	other := h.master.Manager().Endpoint("pipe").Association(masterAddr, 0x5678)
	request := &app.Fragment{
		Control:  app.NewControl(true, true, false, false, other.NextSolicited()),
		Function: app.Read,
	}
	if _, err := other.Request(request); err != conn.ErrReplyTimeout {
		t.Errorf("got %v, want %v", err, conn.ErrReplyTimeout)
	}
}
