package archive

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"rvpf/internal/point"
	"rvpf/internal/value"
)

func testPoint(name string) *point.Point {
	return &point.Point{
		UUID:     uuid.New(),
		Name:     name,
		Type:     point.TypeAnalogInput,
		DataType: point.DataFloat64,
	}
}

// Test the insert/latest/range cycle.
func TestStore(t *testing.T) {
	store, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()

	p := testPoint("flow")
	base := time.Now().Add(-time.Hour)
	for i := 0; i < 10; i++ {
		pv := &point.Value{
			Point: p,
			Stamp: base.Add(time.Duration(i) * time.Minute),
			Value: value.Double(float64(i) * 1.5),
		}
		if err := store.Put(pv); err != nil {
			t.Fatalf("put %d: %v", i, err)
		}
	}

	count, err := store.Count()
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 10 {
		t.Errorf("count: got %d, want 10", count)
	}

	latest, err := store.Latest(p)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest == nil || !value.Equal(latest.Value, value.Double(13.5)) {
		t.Errorf("latest: %v", latest)
	}

	values, err := store.Query(p, base.Add(2*time.Minute), base.Add(5*time.Minute))
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(values) != 4 {
		t.Fatalf("query: %d values, want 4", len(values))
	}
	if !value.Equal(values[0].Value, value.Double(3)) {
		t.Errorf("first in range: %v", values[0].Value)
	}
}

// Test kind preservation through the store.
func TestKinds(t *testing.T) {
	store, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()

	tests := []value.Value{
		value.Bool(true),
		value.Long(-42),
		value.Double(2.5),
		value.String("text"),
		value.Null{},
	}
	for i, v := range tests {
		p := testPoint("kind")
		pv := &point.Value{Point: p, Stamp: time.Now().Add(time.Duration(i) * time.Second), Value: v}
		if err := store.Put(pv); err != nil {
			t.Fatalf("put: %v", err)
		}
		latest, err := store.Latest(p)
		if err != nil {
			t.Fatalf("latest: %v", err)
		}
		if !value.Equal(latest.Value, v) {
			t.Errorf("kind %T: got %v, want %v", v, latest.Value, v)
		}
	}
}

// Test that a missing point yields no value, not an error.
func TestMissing(t *testing.T) {
	store, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()
	latest, err := store.Latest(testPoint("absent"))
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest != nil {
		t.Errorf("got %v, want nil", latest)
	}
}

// Test the deletion sentinel survives the store.
func TestDeletedState(t *testing.T) {
	store, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()

	p := testPoint("gone")
	state := point.DeletedState
	pv := &point.Value{Point: p, Stamp: time.Now(), State: &state}
	if err := store.Put(pv); err != nil {
		t.Fatalf("put: %v", err)
	}
	latest, err := store.Latest(p)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest == nil || !latest.Deleted() {
		t.Errorf("deleted state lost: %v", latest)
	}
}
