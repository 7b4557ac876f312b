package load

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/wasmforge/wasmforge/wasm"
)

// LoadModule decodes a binary WebAssembly module from r. The text format is
// out of scope: a magic number mismatch is reported rather than falling
// back to a parser.
func LoadModule(r io.Reader) (*wasm.Module, error) {
	br := bufio.NewReader(r)

	buf, err := br.Peek(4)
	if err != nil {
		return nil, err
	}
	magic := binary.LittleEndian.Uint32(buf)

	if magic != wasm.Magic {
		return nil, fmt.Errorf("load: not a binary WebAssembly module (bad magic %#08x)", magic)
	}

	return wasm.DecodeModule(br)
}

// LoadFile opens path and decodes it as a binary WebAssembly module.
func LoadFile(path string) (*wasm.Module, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return LoadModule(f)
}
