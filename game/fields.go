package game

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Struct is the byte image of one target struct, fetched in a single read
// and picked apart locally. Accessors bounds-check against the image so a
// schema offset past the struct end fails instead of reading garbage.
type Struct []byte

func (s Struct) field(off int64, size int) ([]byte, error) {
	if off < 0 || off+int64(size) > int64(len(s)) {
		return nil, fmt.Errorf("field at %#x+%d outside %d byte struct", off, size, len(s))
	}
	return s[off : off+int64(size)], nil
}

func (s Struct) U8(off int64) (uint8, error) {
	b, err := s.field(off, 1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (s Struct) U16(off int64) (uint16, error) {
	b, err := s.field(off, 2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (s Struct) U32(off int64) (uint32, error) {
	b, err := s.field(off, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (s Struct) U64(off int64) (uint64, error) {
	b, err := s.field(off, 8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (s Struct) I32(off int64) (int32, error) {
	v, err := s.U32(off)
	return int32(v), err
}

func (s Struct) F32(off int64) (float32, error) {
	v, err := s.U32(off)
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(v), nil
}

// Vec3 reads three packed float32 components.
func (s Struct) Vec3(off int64) ([3]float32, error) {
	b, err := s.field(off, 12)
	if err != nil {
		return [3]float32{}, err
	}
	return [3]float32{
		math.Float32frombits(binary.LittleEndian.Uint32(b[0:])),
		math.Float32frombits(binary.LittleEndian.Uint32(b[4:])),
		math.Float32frombits(binary.LittleEndian.Uint32(b[8:])),
	}, nil
}

// Bool reads a single byte as a truth value.
func (s Struct) Bool(off int64) (bool, error) {
	v, err := s.U8(off)
	return v != 0, err
}
