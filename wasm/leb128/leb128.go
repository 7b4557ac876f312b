
// Package leb128 implements LEB128 variable-length integer encoding, as
// used throughout the binary format of WebAssembly modules.
package leb128

import (
	"io"
)

func readByte(r io.Reader) (byte, error) {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

// WriteVarUint32 writes v to w as an unsigned LEB128 value.
func WriteVarUint32(w io.Writer, v uint32) (int, error) {
	return writeVarUint(w, uint64(v))
}

// WriteVarUint64 writes v to w as an unsigned LEB128 value.
func WriteVarUint64(w io.Writer, v uint64) (int, error) {
	return writeVarUint(w, v)
}

func writeVarUint(w io.Writer, v uint64) (int, error) {
	var buf [10]byte
	n := 0
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		buf[n] = b
		n++
		if v == 0 {
			break
		}
	}
	written, err := w.Write(buf[:n])
	return written, err
}

// WriteVarint32 writes v to w as a signed LEB128 value.
func WriteVarint32(w io.Writer, v int32) (int, error) {
	return writeVarint(w, int64(v))
}

// WriteVarint64 writes v to w as a signed LEB128 value.
func WriteVarint64(w io.Writer, v int64) (int, error) {
	return writeVarint(w, v)
}

func writeVarint(w io.Writer, v int64) (int, error) {
	var buf [10]byte
	n := 0
	for {
		b := byte(v & 0x7f)
		v >>= 7
		signBitSet := b&0x40 != 0
		if (v == 0 && !signBitSet) || (v == -1 && signBitSet) {
			buf[n] = b
			n++
			break
		}
		buf[n] = b | 0x80
		n++
	}
	return w.Write(buf[:n])
}

// ReadVarUint32 reads an unsigned LEB128 value from r, erroring if it
// overflows 32 bits.
func ReadVarUint32(r io.Reader) (uint32, error) {
	v, err := readVarUint(r, 32)
	return uint32(v), err
}

// ReadVarUint64 reads an unsigned LEB128 value from r, erroring if it
// overflows 64 bits.
func ReadVarUint64(r io.Reader) (uint64, error) {
	return readVarUint(r, 64)
}

func readVarUint(r io.Reader, size uint) (uint64, error) {
	var result uint64
	var shift uint
	for {
		b, err := readByte(r)
		if err != nil {
			return 0, err
		}
		if shift+7 > size && uint64(b&0x7f)>>(size-shift) != 0 {
			return 0, ErrOverflow
		}
		result |= uint64(b&0x7f) << shift
		shift += 7
		if b&0x80 == 0 {
			break
		}
		if shift >= size {
			return 0, ErrOverflow
		}
	}
	return result, nil
}

// ReadVarint32 reads a signed LEB128 value from r, erroring if it overflows
// 32 bits.
func ReadVarint32(r io.Reader) (int32, error) {
	v, err := readVarint(r, 32)
	return int32(v), err
}

// ReadVarint64 reads a signed LEB128 value from r, erroring if it overflows
// 64 bits.
func ReadVarint64(r io.Reader) (int64, error) {
	return readVarint(r, 64)
}

func readVarint(r io.Reader, size uint) (int64, error) {
	var result int64
	var shift uint
	var b byte
	var err error
	for {
		b, err = readByte(r)
		if err != nil {
			return 0, err
		}
		if shift+7 > size {
			// Bits past size-1 must repeat the sign bit.
			hi := (b & 0x7f) >> (size - shift - 1)
			if hi != 0 && hi != 0x7f>>(size-shift-1) {
				return 0, ErrOverflow
			}
		}
		result |= int64(b&0x7f) << shift
		shift += 7
		if b&0x80 == 0 {
			break
		}
		if shift >= size {
			return 0, ErrOverflow
		}
	}
	if shift < 64 && b&0x40 != 0 {
		result |= -1 << shift
	}
	return result, nil
}

// ErrOverflow is returned when a decoded LEB128 value does not fit in the
// requested integer width.
var ErrOverflow = overflowError{}

type overflowError struct{}

func (overflowError) Error() string { return "leb128: integer overflow" }

// GetVarUint32 decodes an unsigned LEB128 value from the front of b,
// returning the value and the number of bytes consumed.
func GetVarUint32(b []byte) (uint32, int, error) {
	v, n, err := getVarUint(b, 32)
	return uint32(v), n, err
}

// GetVarUint64 decodes an unsigned LEB128 value from the front of b,
// returning the value and the number of bytes consumed.
func GetVarUint64(b []byte) (uint64, int, error) {
	return getVarUint(b, 64)
}

func getVarUint(b []byte, size uint) (uint64, int, error) {
	var result uint64
	var shift uint
	for i := 0; ; i++ {
		if i >= len(b) {
			return 0, 0, io.ErrUnexpectedEOF
		}
		c := b[i]
		if shift < 64 {
			result |= uint64(c&0x7f) << shift
		}
		shift += 7
		if c&0x80 == 0 {
			return result, i + 1, nil
		}
		if shift >= size+7 {
			return 0, 0, ErrOverflow
		}
	}
}

// GetVarint32 decodes a signed LEB128 value from the front of b, returning
// the value and the number of bytes consumed.
func GetVarint32(b []byte) (int32, int, error) {
	v, n, err := getVarint(b, 32)
	return int32(v), n, err
}

// GetVarint64 decodes a signed LEB128 value from the front of b, returning
// the value and the number of bytes consumed.
func GetVarint64(b []byte) (int64, int, error) {
	return getVarint(b, 64)
}

func getVarint(b []byte, size uint) (int64, int, error) {
	var result int64
	var shift uint
	var c byte
	var i int
	for i = 0; ; i++ {
		if i >= len(b) {
			return 0, 0, io.ErrUnexpectedEOF
		}
		c = b[i]
		if shift < 64 {
			result |= int64(c&0x7f) << shift
		}
		shift += 7
		if c&0x80 == 0 {
			break
		}
		if shift >= size+7 {
			return 0, 0, ErrOverflow
		}
	}
	if shift < 64 && c&0x40 != 0 {
		result |= -1 << shift
	}
	return result, i + 1, nil
}
