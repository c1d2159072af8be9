package registermap

import (
	"encoding/binary"
	"math"
)

// DecodePointsFromBlocks decodes every declared point from the given block
// buffers (block name -> raw bytes, as returned by the transport's block
// read). A point whose owning block buffer is missing, too short, or whose
// raw bits can't be formed into a finite number decodes to a nil entry
// rather than an error: decoding must never abort the whole frame (§4.1).
func (m *RegisterMap) DecodePointsFromBlocks(blockBuffers map[string][]byte) map[string]*float64 {
	out := make(map[string]*float64, len(m.points))
	for name, p := range m.points {
		out[name] = m.decodePoint(name, p, blockBuffers)
	}
	return out
}

func (m *RegisterMap) decodePoint(name string, p PointDef, blockBuffers map[string][]byte) *float64 {
	block, ok := m.pointBlock[name]
	if !ok {
		return nil
	}
	buf, ok := blockBuffers[block.Name]
	if !ok {
		return nil
	}

	width, err := p.Type.Width()
	if err != nil {
		return nil
	}
	byteIndex := int(p.Addr-block.Start) * 2
	need := width * 2
	if byteIndex < 0 || byteIndex+need > len(buf) {
		return nil
	}

	bo := p.effectiveByteOrder(m.ByteOrder)
	raw := buf[byteIndex : byteIndex+need]

	var value float64
	switch p.Type {
	case TypeU16:
		value = float64(readU16(raw, bo))
	case TypeI16:
		value = float64(int16(readU16(raw, bo)))
	case TypeU32:
		value = float64(readU32(raw, bo, p.effectiveWordOrder(m.WordOrder)))
	case TypeI32:
		value = float64(int32(readU32(raw, bo, p.effectiveWordOrder(m.WordOrder))))
	case TypeFloat32:
		bits := readU32(raw, bo, p.effectiveWordOrder(m.WordOrder))
		value = float64(math.Float32frombits(bits))
	default:
		return nil
	}

	if math.IsNaN(value) || math.IsInf(value, 0) {
		return nil
	}

	if p.Scale != nil || p.Offset != nil {
		scale := 1.0
		if p.Scale != nil {
			scale = *p.Scale
		}
		offset := 0.0
		if p.Offset != nil {
			offset = *p.Offset
		}
		value = value*scale + offset
	}

	return &value
}

func readU16(raw []byte, bo ByteOrder) uint16 {
	if bo == LittleEndian {
		return binary.LittleEndian.Uint16(raw)
	}
	return binary.BigEndian.Uint16(raw)
}

// readU32 reassembles a 32-bit quantity from two consecutive registers. The
// word order decides whether the first register (w1) is the high or low
// half; after reordering, the four bytes are read as one big/little-endian
// quantity per bo.
func readU32(raw []byte, bo ByteOrder, wo WordOrder) uint32 {
	w1 := raw[0:2]
	w2 := raw[2:4]

	var ordered [4]byte
	if wo == WordOrderCDAB {
		copy(ordered[0:2], w2)
		copy(ordered[2:4], w1)
	} else {
		copy(ordered[0:2], w1)
		copy(ordered[2:4], w2)
	}

	if bo == LittleEndian {
		return binary.LittleEndian.Uint32(ordered[:])
	}
	return binary.BigEndian.Uint32(ordered[:])
}
