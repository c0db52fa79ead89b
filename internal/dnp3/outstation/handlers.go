package outstation

import (
	"log"
	"time"

	"rvpf/internal/dnp3/app"
	"rvpf/internal/dnp3/conn"
	"rvpf/internal/dnp3/object"
	"rvpf/internal/point"
	"rvpf/internal/value"
)

// groupPointTypes maps request object groups to the served point types.
var groupPointTypes = map[byte]point.Type{
	object.GroupBinaryInput:         point.TypeSingleBitInput,
	object.GroupBinaryInputEvent:    point.TypeSingleBitInput,
	object.GroupDoubleBitInput:      point.TypeDoubleBitInput,
	object.GroupBinaryOutput:        point.TypeBinaryOutput,
	object.GroupBinaryOutputCommand: point.TypeBinaryOutput,
	object.GroupCounter:             point.TypeCounter,
	object.GroupCounterEvent:        point.TypeCounter,
	object.GroupFrozenCounter:       point.TypeFrozenCounter,
	object.GroupAnalogInput:         point.TypeAnalogInput,
	object.GroupAnalogInputEvent:    point.TypeAnalogInput,
	object.GroupAnalogOutputStatus:  point.TypeAnalogOutput,
	object.GroupAnalogOutputCommand: point.TypeAnalogOutput,
	object.GroupAnalogOutputEvent:   point.TypeAnalogOutput,
}

// responseGroups maps point types to the group answering a READ.
var responseGroups = map[point.Type]byte{
	point.TypeSingleBitInput: object.GroupBinaryInput,
	point.TypeDoubleBitInput: object.GroupDoubleBitInput,
	point.TypeBinaryOutput:   object.GroupBinaryOutput,
	point.TypeCounter:        object.GroupCounter,
	point.TypeFrozenCounter:  object.GroupFrozenCounter,
	point.TypeAnalogInput:    object.GroupAnalogInput,
	point.TypeAnalogOutput:   object.GroupAnalogOutputStatus,
}

// handle is the station's fragment handler: the per-function-code
// dispatch of the inbound request consumer.
func (s *Station) handle(assoc *conn.Association, fragment *app.Fragment) {
	switch fragment.Function {
	case app.Read:
		s.handleRead(assoc, fragment)
	case app.Write, app.DirectOperate, app.Operate:
		s.handleWrite(assoc, fragment)
	case app.Confirm:
		s.handleConfirm(fragment)
	case app.DisableUnsolicited:
		s.unsolicitedOK.Store(false)
		s.respond(assoc, fragment, nil)
	case app.EnableUnsolicited:
		s.unsolicitedOK.Store(true)
		s.respond(assoc, fragment, nil)
	case app.RecordCurrentTime:
		s.lastRecorded.Store(time.Now().UnixMilli())
		s.respond(assoc, fragment, nil)
	default:
		s.RaiseIIN(app.IINNoFuncCodeSupport)
		s.respond(assoc, fragment, nil)
		s.ClearIIN(app.IINNoFuncCodeSupport)
	}
}

// respond sends a solicited response echoing the request sequence.
func (s *Station) respond(assoc *conn.Association, request *app.Fragment, items []*app.Item) {
	response := &app.Fragment{
		Control:  app.NewControl(true, true, false, false, request.Control.Seq()),
		Function: app.Response,
		IIN:      s.IIN(),
		Items:    items,
	}
	if err := assoc.Send(response); err != nil {
		log.Printf("[dnp3] outstation: response: %v", err)
	}
}

// handleRead serves the current value of every requested point.
func (s *Station) handleRead(assoc *conn.Association, request *app.Fragment) {
	var items []*app.Item
	for _, reqItem := range request.Items {
		if reqItem.Group == object.GroupClassObjects {
			items = append(items, s.allPointItems()...)
			continue
		}
		pointType, ok := groupPointTypes[reqItem.Group]
		if !ok {
			s.RaiseIIN(app.IINObjectUnknown)
			continue
		}
		p := s.lookup(pointType, reqItem.Start)
		if p == nil {
			s.RaiseIIN(app.IINObjectUnknown)
			continue
		}
		pv, _ := s.Value(p)
		item, err := s.responseItem(p, pv)
		if err != nil {
			log.Printf("[dnp3] outstation: read %s: %v", p, err)
			s.RaiseIIN(app.IINParameterError)
			continue
		}
		items = append(items, item)
	}
	s.respond(assoc, request, items)
	s.ClearIIN(app.IINObjectUnknown | app.IINParameterError)
}

func (s *Station) allPointItems() []*app.Item {
	s.mu.RLock()
	seen := map[*point.Point]bool{}
	points := make([]*point.Point, 0, len(s.points))
	for _, p := range s.points {
		if !seen[p] {
			seen[p] = true
			points = append(points, p)
		}
	}
	s.mu.RUnlock()
	var items []*app.Item
	for _, p := range points {
		pv, _ := s.Value(p)
		item, err := s.responseItem(p, pv)
		if err != nil {
			continue
		}
		items = append(items, item)
	}
	return items
}

// responseItem builds the output item for a point: the output variation
// comes from the point's data type, and a tuple value must match the
// point's index range.
func (s *Station) responseItem(p *point.Point, pv *point.Value) (*app.Item, error) {
	group, ok := responseGroups[p.Type]
	if !ok {
		return nil, object.ErrUnknownGroup
	}
	d, err := object.DefaultVariation(group, p.DataType)
	if err != nil {
		return nil, err
	}
	start, stop := p.Indexes()
	count := int(stop-start) + 1

	var datum value.Value
	var stamp time.Time
	if pv != nil {
		datum = pv.Value
		stamp = pv.Stamp
	}

	instances := make([]object.Instance, count)
	if tuple, ok := datum.(*value.Tuple); ok {
		if len(tuple.Items) != count {
			return nil, object.ErrBadObjectValue
		}
		for i := 0; i < count; i++ {
			instances[i] = object.Instance{
				Index: start + uint32(i),
				Flags: 0x01,
				Time:  stamp,
				Value: tuple.Items[i],
			}
		}
	} else {
		if count != 1 {
			return nil, object.ErrBadObjectValue
		}
		instances[0] = object.Instance{
			Index: start,
			Flags: 0x01,
			Time:  stamp,
			Value: datum,
		}
		if datum == nil {
			instances[0].Value = value.Long(0)
			instances[0].Flags = 0 // not online
		}
	}
	return app.NewRangeItem(d, start, stop, instances), nil
}

// handleWrite accepts WRITE, DIRECT_OPERATE and OPERATE items: internal
// indications, time updates, and point updates published inbound. The
// confirmation is a null response either way.
func (s *Station) handleWrite(assoc *conn.Association, request *app.Fragment) {
	for _, item := range request.Items {
		switch {
		case item.Group == object.GroupInternalIndications:
			s.writeIIN(item)
		case item.Descriptor != nil && item.Descriptor.Class&object.WithTime != 0 &&
			item.Descriptor.Class&object.WithValue == 0:
			if len(item.Instances) > 0 {
				s.lastRecorded.Store(item.Instances[0].Time.UnixMilli())
			}
		default:
			s.writePoint(item)
		}
	}
	s.respond(assoc, request, nil)
}

func (s *Station) writeIIN(item *app.Item) {
	for _, inst := range item.Instances {
		on, _ := inst.Value.(value.Bool)
		if bool(on) {
			s.RaiseIIN(app.Bit(inst.Index))
		} else {
			s.ClearIIN(app.Bit(inst.Index))
		}
	}
}

func (s *Station) writePoint(item *app.Item) {
	pointType, ok := groupPointTypes[item.Group]
	if !ok {
		s.RaiseIIN(app.IINObjectUnknown)
		return
	}
	if len(item.Instances) == 0 {
		return
	}
	p := s.lookup(pointType, item.Instances[0].Index)
	if p == nil {
		s.RaiseIIN(app.IINObjectUnknown)
		return
	}
	var datum value.Value
	if p.Multi() {
		tuple := value.NewTuple()
		for _, inst := range item.Instances {
			tuple.Items = append(tuple.Items, inst.Value)
		}
		datum = tuple
	} else {
		datum = item.Instances[0].Value
	}
	s.publish(point.NewValue(p, datum))
}

// handleConfirm routes a master confirmation to the pending unsolicited
// transaction.
func (s *Station) handleConfirm(fragment *app.Fragment) {
	if !fragment.Control.Uns() {
		return
	}
	s.confirmMu.Lock()
	confirm := s.confirm
	s.confirmMu.Unlock()
	if confirm != nil {
		select {
		case confirm <- fragment.Control.Seq():
		default:
		}
	}
}
