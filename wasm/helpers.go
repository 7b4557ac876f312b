
package wasm

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/wasmforge/wasmforge/wasm/leb128"
)

// ValidationError reports that a module or function body violates a Wasm
// typing or structural rule.
type ValidationError string

func (e ValidationError) Error() string {
	return "wasm: validation error: " + string(e)
}

// ErrEmptyInitExpr is returned when a constant initializer expression is
// empty (missing even the terminating "end").
var ErrEmptyInitExpr = ValidationError("empty constant initializer expression")

// InvalidInitExprOpError reports that a constant initializer expression
// contained an opcode other than a const, get_global, or end.
type InvalidInitExprOpError byte

func (e InvalidInitExprOpError) Error() string {
	return fmt.Sprintf("wasm: invalid opcode in constant initializer expression: %#x", byte(e))
}

// logger traces section and import decoding. Silenced by default (its
// output is a writer that drops everything); call logger.SetOutput to see it.
var logger = log.New(os.Stderr, "wasm: ", 0)

func init() {
	logger.SetOutput(discard{})
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

func readU32(r io.Reader) (uint32, error) {
	var v uint32
	if err := binary.Read(r, binary.LittleEndian, &v); err != nil {
		return 0, err
	}
	return v, nil
}

// getInitialCap bounds the preallocation used for a count-prefixed vector
// decoded from untrusted input, so a tiny file with a huge declared count
// can't force a huge allocation before the rest of the data is even read.
func getInitialCap(count uint32) uint32 {
	const maxInitialCap = 4096
	if count > maxInitialCap {
		return maxInitialCap
	}
	return count
}

func readUTF8StringUint(r io.Reader) (string, error) {
	n, err := leb128.ReadVarUint32(r)
	if err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func writeStringUint(w io.Writer, s string) error {
	if _, err := leb128.WriteVarUint32(w, uint32(len(s))); err != nil {
		return err
	}
	_, err := w.Write([]byte(s))
	return err
}

func readBytes(r io.Reader, n uint32) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func readBytesUint(r io.Reader) ([]byte, error) {
	n, err := leb128.ReadVarUint32(r)
	if err != nil {
		return nil, err
	}
	return readBytes(r, n)
}

func writeBytesUint(w io.Writer, b []byte) error {
	if _, err := leb128.WriteVarUint32(w, uint32(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

// Opcodes legal in a constant initializer expression, plus the
// terminating "end". Kept local (rather than shared with core's opcode
// table, since core imports wasm) as this is only byte-span delimiting,
// not validation - the real type/shape checks happen downstream.
const (
	initOpI32Const  = 0x41
	initOpI64Const  = 0x42
	initOpF32Const  = 0x43
	initOpF64Const  = 0x44
	initOpGlobalGet = 0x23
	initOpEnd       = 0x0b
)

// readInitExpr copies the raw bytes of a constant initializer expression,
// up to and including the terminating "end" opcode. It must correctly
// delimit the span without mistaking an immediate byte for "end", so it
// decodes each instruction's immediate by shape rather than scanning for
// the end byte.
func readInitExpr(r io.Reader) ([]byte, error) {
	var buf bytes.Buffer
	tr := io.TeeReader(r, &buf)
	for {
		op, err := readByte(tr)
		if err != nil {
			if err == io.EOF && buf.Len() == 0 {
				return nil, ErrEmptyInitExpr
			}
			return nil, err
		}
		switch op {
		case initOpEnd:
			return buf.Bytes(), nil
		case initOpI32Const:
			if _, err := leb128.ReadVarint32(tr); err != nil {
				return nil, err
			}
		case initOpI64Const:
			if _, err := leb128.ReadVarint64(tr); err != nil {
				return nil, err
			}
		case initOpF32Const:
			if _, err := readBytes(tr, 4); err != nil {
				return nil, err
			}
		case initOpF64Const:
			if _, err := readBytes(tr, 8); err != nil {
				return nil, err
			}
		case initOpGlobalGet:
			if _, err := leb128.ReadVarUint32(tr); err != nil {
				return nil, err
			}
		default:
			return nil, InvalidInitExprOpError(op)
		}
	}
}
