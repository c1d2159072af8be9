package registermap

import (
	"encoding/binary"
	"fmt"
	"math"
)

// WritePlan is the outcome of PlanWrite: either register words ready to
// dispatch to the transport, or a reason the caller should not issue the
// write at all (deadband_skip still returns a plan — the decision to skip
// issuing it belongs to the caller).
type WritePlan struct {
	Fc           int
	Start        uint16
	Quantity     uint16
	Words        []uint16
	ValueApplied float64
	Reason       string // "", "clamped", or "deadband_skip"
}

// PlanWrite validates and computes the register write for one point. Bounds
// and deadband comparisons operate on the engineering-unit value the caller
// supplies (the same units Decode returns); the scale/offset transform is
// inverted internally before the value is packed into register words, so
// that encode(PlanWrite(v)) -> Decode round-trips to v.
func (m *RegisterMap) PlanWrite(pointName string, rawValue float64, allowClamp bool) (WritePlan, error) {
	p, ok := m.points[pointName]
	if !ok {
		return WritePlan{}, fmt.Errorf("registermap: unknown point %q", pointName)
	}
	if p.ReadOnly {
		return WritePlan{}, fmt.Errorf("registermap: point %q is read-only", pointName)
	}
	if math.IsNaN(rawValue) {
		return WritePlan{}, fmt.Errorf("registermap: point %q: value is NaN", pointName)
	}

	value := rawValue
	reason := ""
	if p.SafeBounds != nil {
		lo, hi := p.SafeBounds[0], p.SafeBounds[1]
		if value < lo || value > hi {
			if !allowClamp {
				return WritePlan{}, fmt.Errorf("registermap: point %q: value %v out of safe bounds [%v,%v]", pointName, value, lo, hi)
			}
			if value < lo {
				value = lo
			} else {
				value = hi
			}
			reason = "clamped"
		}
	}

	if p.Deadband != nil && *p.Deadband > 0 {
		m.lastSetMu.Lock()
		last, had := m.lastSet[pointName]
		if had && math.Abs(value-last) < *p.Deadband {
			reason = "deadband_skip"
		} else {
			m.lastSet[pointName] = value
		}
		m.lastSetMu.Unlock()
	}

	width, err := p.Type.Width()
	if err != nil {
		return WritePlan{}, err
	}

	bo := p.effectiveByteOrder(m.ByteOrder)
	wo := p.effectiveWordOrder(m.WordOrder)

	invVal := value
	if p.Offset != nil {
		invVal -= *p.Offset
	}
	if p.Scale != nil && *p.Scale != 0 {
		invVal /= *p.Scale
	}

	var words []uint16
	var fc int
	switch p.Type {
	case TypeU16:
		fc = 6
		words = []uint16{encodeU16(uint16(math.Round(invVal)), bo)}
	case TypeI16:
		fc = 6
		words = []uint16{encodeU16(uint16(int16(math.Round(invVal))), bo)}
	case TypeU32:
		fc = 16
		words = encodeU32(uint32(math.Round(invVal)), bo, wo)
	case TypeI32:
		fc = 16
		words = encodeU32(uint32(int32(math.Round(invVal))), bo, wo)
	case TypeFloat32:
		fc = 16
		words = encodeU32(math.Float32bits(float32(invVal)), bo, wo)
	default:
		return WritePlan{}, fmt.Errorf("registermap: point %q: unsupported type %q", pointName, p.Type)
	}

	return WritePlan{
		Fc:           fc,
		Start:        p.Addr,
		Quantity:     uint16(width),
		Words:        words,
		ValueApplied: value,
		Reason:       reason,
	}, nil
}

func encodeU16(raw uint16, bo ByteOrder) uint16 {
	var b [2]byte
	if bo == LittleEndian {
		binary.LittleEndian.PutUint16(b[:], raw)
	} else {
		binary.BigEndian.PutUint16(b[:], raw)
	}
	return binary.BigEndian.Uint16(b[:])
}

func encodeU32(bits uint32, bo ByteOrder, wo WordOrder) []uint16 {
	var ordered [4]byte
	if bo == LittleEndian {
		binary.LittleEndian.PutUint32(ordered[:], bits)
	} else {
		binary.BigEndian.PutUint32(ordered[:], bits)
	}

	var w1, w2 [2]byte
	if wo == WordOrderCDAB {
		copy(w1[:], ordered[2:4])
		copy(w2[:], ordered[0:2])
	} else {
		copy(w1[:], ordered[0:2])
		copy(w2[:], ordered[2:4])
	}

	return []uint16{binary.BigEndian.Uint16(w1[:]), binary.BigEndian.Uint16(w2[:])}
}
