package vmdbg

import (
	"github.com/coldbrew-vm/vmdbg/wire"
)

// readStructuredObjectLocked reads one frame and dispatches by variant,
// recursively reading additional frames for composite structures. Must be
// called with mu held (readNext requires the engine's internal read to be
// exclusive, matching the single-reader invariant).
func (c *Controller) readStructuredObjectLocked() (RemoteObjectValue, error) {
	reply, err := c.engine.readNext(true)
	if err != nil {
		return nil, err
	}

	switch v := reply.(type) {
	case wire.DartValue:
		return RemoteValue{Payload: v.Payload}, nil

	case wire.InstanceStructure:
		fields := make([]RemoteObjectValue, 0, v.FieldCount)
		for i := 0; i < v.FieldCount; i++ {
			field, err := c.readStructuredObjectLocked()
			if err != nil {
				return nil, err
			}
			fields = append(fields, field)
		}
		return &RemoteObject{ClassId: c.translator.FromWire(v.ClassId), Fields: fields}, nil

	case wire.ArrayStructure:
		count := v.EndIndex - v.StartIndex
		if count < 0 {
			count = 0
		}
		elements := make([]RemoteObjectValue, 0, count)
		for i := 0; i < count; i++ {
			el, err := c.readStructuredObjectLocked()
			if err != nil {
				return nil, err
			}
			elements = append(elements, el)
		}
		return &RemoteArray{StartIndex: v.StartIndex, Elements: elements}, nil

	default:
		code := "nil"
		if reply != nil {
			code = reply.Code().String()
		}
		return RemoteErrorObject{Message: "unexpected structured object frame: " + code}, nil
	}
}
