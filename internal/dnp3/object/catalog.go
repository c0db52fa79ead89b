package object

import (
	"rvpf/internal/point"
	"rvpf/internal/value"
)

// Well-known groups.
const (
	GroupBinaryInput         = 1
	GroupBinaryInputEvent    = 2
	GroupDoubleBitInput      = 3
	GroupBinaryOutput        = 10
	GroupBinaryOutputCommand = 12
	GroupCounter             = 20
	GroupFrozenCounter       = 21
	GroupCounterEvent        = 22
	GroupAnalogInput         = 30
	GroupAnalogInputEvent    = 32
	GroupAnalogDeadband      = 34
	GroupAnalogOutputStatus  = 40
	GroupAnalogOutputCommand = 41
	GroupAnalogOutputEvent   = 42
	GroupTimeAndDate         = 50
	GroupTimeCTO             = 51
	GroupTimeDelay           = 52
	GroupClassObjects        = 60
	GroupInternalIndications = 80
)

// DeviceRestartCode is the G80V1 bit index of the device-restart
// indication a master write-clears.
const DeviceRestartCode = 7

func init() {
	// Binary inputs.
	register(packedObject(GroupBinaryInput, 1, 1, point.DataBool))
	register(flagBitObject(GroupBinaryInput, 2, point.DataBool))

	// Binary input events; variation 2 carries an absolute time.
	register(flagBitObject(GroupBinaryInputEvent, 1, point.DataBool))
	register(binaryEventWithTime(GroupBinaryInputEvent, 2))

	// Double-bit inputs pack two bits per point.
	register(packedObject(GroupDoubleBitInput, 1, 2, point.DataDoubleBit))
	register(doubleBitFlagObject(GroupDoubleBitInput, 2))

	// Binary outputs.
	register(packedObject(GroupBinaryOutput, 1, 1, point.DataBool))
	register(flagBitObject(GroupBinaryOutput, 2, point.DataBool))

	// Binary output command (control relay output block).
	register(crobObject(GroupBinaryOutputCommand, 1))

	// Counters and frozen counters, with and without flags.
	register(intObject(GroupCounter, 1, 4, true, point.DataInt32))
	register(intObject(GroupCounter, 2, 2, true, point.DataInt16))
	register(intObject(GroupCounter, 5, 4, false, point.DataInt32))
	register(intObject(GroupCounter, 6, 2, false, point.DataInt16))
	register(intObject(GroupFrozenCounter, 1, 4, true, point.DataInt32))
	register(intObject(GroupFrozenCounter, 2, 2, true, point.DataInt16))
	register(intObject(GroupFrozenCounter, 9, 4, false, point.DataInt32))
	register(intObject(GroupFrozenCounter, 10, 2, false, point.DataInt16))
	register(intObject(GroupCounterEvent, 1, 4, true, point.DataInt32))
	register(intObject(GroupCounterEvent, 2, 2, true, point.DataInt16))

	// Analog inputs.
	register(intObject(GroupAnalogInput, 1, 4, true, point.DataInt32))
	register(intObject(GroupAnalogInput, 2, 2, true, point.DataInt16))
	register(intObject(GroupAnalogInput, 3, 4, false, point.DataInt32))
	register(intObject(GroupAnalogInput, 4, 2, false, point.DataInt16))
	register(floatObject(GroupAnalogInput, 5, 4, true, point.DataFloat32))
	register(floatObject(GroupAnalogInput, 6, 8, true, point.DataFloat64))

	// Analog input events.
	register(intObject(GroupAnalogInputEvent, 1, 4, true, point.DataInt32))
	register(intObject(GroupAnalogInputEvent, 2, 2, true, point.DataInt16))
	register(withTime(intObject(GroupAnalogInputEvent, 3, 4, true, point.DataInt32)))
	register(withTime(intObject(GroupAnalogInputEvent, 4, 2, true, point.DataInt16)))
	register(floatObject(GroupAnalogInputEvent, 5, 4, true, point.DataFloat32))
	register(floatObject(GroupAnalogInputEvent, 6, 8, true, point.DataFloat64))

	// Analog input reporting deadbands.
	register(intObject(GroupAnalogDeadband, 1, 2, false, point.DataInt16))
	register(intObject(GroupAnalogDeadband, 2, 4, false, point.DataInt32))
	register(floatObject(GroupAnalogDeadband, 3, 4, false, point.DataFloat32))

	// Analog output status and commands.
	register(intObject(GroupAnalogOutputStatus, 1, 4, true, point.DataInt32))
	register(intObject(GroupAnalogOutputStatus, 2, 2, true, point.DataInt16))
	register(floatObject(GroupAnalogOutputStatus, 3, 4, true, point.DataFloat32))
	register(floatObject(GroupAnalogOutputStatus, 4, 8, true, point.DataFloat64))
	register(intObject(GroupAnalogOutputCommand, 1, 4, true, point.DataInt32))
	register(intObject(GroupAnalogOutputCommand, 2, 2, true, point.DataInt16))
	register(floatObject(GroupAnalogOutputCommand, 3, 4, true, point.DataFloat32))
	register(floatObject(GroupAnalogOutputCommand, 4, 8, true, point.DataFloat64))
	register(intObject(GroupAnalogOutputEvent, 1, 4, true, point.DataInt32))
	register(intObject(GroupAnalogOutputEvent, 2, 2, true, point.DataInt16))
	register(floatObject(GroupAnalogOutputEvent, 5, 4, true, point.DataFloat32))
	register(floatObject(GroupAnalogOutputEvent, 6, 8, true, point.DataFloat64))

	// Time and date.
	register(timeObject(GroupTimeAndDate, 1))
	register(timeObject(GroupTimeAndDate, 3)) // absolute time, last recorded
	register(timeObject(GroupTimeCTO, 1))
	register(timeObject(GroupTimeCTO, 2))
	register(timeDelayObject(GroupTimeDelay, 1)) // coarse, seconds
	register(timeDelayObject(GroupTimeDelay, 2)) // fine, milliseconds

	// Class objects carry no data.
	register(markerObject(GroupClassObjects, 1))
	register(markerObject(GroupClassObjects, 2))
	register(markerObject(GroupClassObjects, 3))
	register(markerObject(GroupClassObjects, 4))

	// Internal indications, packed bits.
	register(packedObject(GroupInternalIndications, 1, 1, point.DataBool))
}

// binaryEventWithTime is the single-octet state-and-flags object followed
// by an absolute time.
func binaryEventWithTime(group, variation byte) *Descriptor {
	base := flagBitObject(group, variation, point.DataBool)
	d := &Descriptor{
		Group: group, Variation: variation,
		Class: base.Class | WithTime, DataType: base.DataType, Size: base.Size + 6,
	}
	d.Decode = func(buf []byte) (Instance, error) {
		if len(buf) < d.Size {
			return Instance{}, ErrShortObject
		}
		inst, err := base.Decode(buf[:1])
		if err != nil {
			return Instance{}, err
		}
		inst.Time = decodeTimestamp(buf[1:])
		return inst, nil
	}
	d.Encode = func(inst Instance) ([]byte, error) {
		buf, err := base.Encode(inst)
		if err != nil {
			return nil, err
		}
		return append(buf, encodeTimestamp(inst.Time)...), nil
	}
	return d
}

// doubleBitFlagObject carries the two-bit state in bits 6..7.
func doubleBitFlagObject(group, variation byte) *Descriptor {
	d := &Descriptor{
		Group: group, Variation: variation,
		Class: WithValue | WithFlags, DataType: point.DataDoubleBit, Size: 1,
	}
	d.Decode = func(buf []byte) (Instance, error) {
		if len(buf) < 1 {
			return Instance{}, ErrShortObject
		}
		return Instance{
			Flags: buf[0] & 0x3F,
			Value: value.Long(buf[0] >> 6),
		}, nil
	}
	d.Encode = func(inst Instance) ([]byte, error) {
		state, err := longOf(inst.Value)
		if err != nil {
			return nil, err
		}
		return []byte{inst.Flags&0x3F | byte(state&0x03)<<6}, nil
	}
	return d
}

// crobObject is the control relay output block: control code, count,
// on/off times and a status octet.
func crobObject(group, variation byte) *Descriptor {
	d := &Descriptor{
		Group: group, Variation: variation,
		Class: WithValue | WithFlags, DataType: point.DataBool, Size: 11,
	}
	d.Decode = func(buf []byte) (Instance, error) {
		if len(buf) < 11 {
			return Instance{}, ErrShortObject
		}
		// Latch-on (0x03) commands true, anything else false; the
		// status octet rides in Flags.
		return Instance{
			Value: value.Bool(buf[0]&0x0F == 0x03),
			Flags: buf[10],
		}, nil
	}
	d.Encode = func(inst Instance) ([]byte, error) {
		on, err := longOf(inst.Value)
		if err != nil {
			return nil, err
		}
		code := byte(0x04) // latch off
		if on != 0 {
			code = 0x03 // latch on
		}
		buf := make([]byte, 11)
		buf[0] = code
		buf[1] = 1
		buf[10] = inst.Flags
		return buf, nil
	}
	return d
}

// timeDelayObject is a 16-bit delay; the variation fixes the unit.
func timeDelayObject(group, variation byte) *Descriptor {
	d := &Descriptor{
		Group: group, Variation: variation,
		Class: WithValue, DataType: point.DataInt16, Size: 2,
	}
	d.Decode = func(buf []byte) (Instance, error) {
		if len(buf) < 2 {
			return Instance{}, ErrShortObject
		}
		raw := int64(buf[0]) | int64(buf[1])<<8
		return Instance{Value: value.Long(raw)}, nil
	}
	d.Encode = func(inst Instance) ([]byte, error) {
		raw, err := longOf(inst.Value)
		if err != nil {
			return nil, err
		}
		return []byte{byte(raw), byte(raw >> 8)}, nil
	}
	return d
}

// withTime extends a fixed-size descriptor with a trailing absolute
// time.
func withTime(base *Descriptor) *Descriptor {
	d := &Descriptor{
		Group: base.Group, Variation: base.Variation,
		Class: base.Class | WithTime, DataType: base.DataType, Size: base.Size + 6,
	}
	d.Decode = func(buf []byte) (Instance, error) {
		if len(buf) < d.Size {
			return Instance{}, ErrShortObject
		}
		inst, err := base.Decode(buf[:base.Size])
		if err != nil {
			return Instance{}, err
		}
		inst.Time = decodeTimestamp(buf[base.Size:])
		return inst, nil
	}
	d.Encode = func(inst Instance) ([]byte, error) {
		buf, err := base.Encode(inst)
		if err != nil {
			return nil, err
		}
		return append(buf, encodeTimestamp(inst.Time)...), nil
	}
	return d
}
