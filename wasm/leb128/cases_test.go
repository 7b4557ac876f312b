package leb128

// Shared test vectors for the fixed-vector write tests in this
// package, taken from the canonical LEB128 encodings used throughout
// the WebAssembly binary format spec examples.

var casesUint = []struct {
	v uint32
	b []byte
}{
	{v: 4, b: []byte{0x04}},
	{v: 16256, b: []byte{0x80, 0x7f}},
	{v: 624485, b: []byte{0xe5, 0x8e, 0x26}},
	{v: 165675008, b: []byte{0x80, 0x80, 0x80, 0x4f}},
	{v: 268435465, b: []byte{0x89, 0x80, 0x80, 0x80, 0x01}},
}

var casesInt = []struct {
	v int64
	b []byte
}{
	{v: 0, b: []byte{0x00}},
	{v: 4, b: []byte{0x04}},
	{v: 127, b: []byte{0xff, 0x00}},
	{v: 129, b: []byte{0x81, 0x01}},
	{v: -1, b: []byte{0x7f}},
	{v: -127, b: []byte{0x81, 0x7f}},
	{v: -129, b: []byte{0xff, 0x7e}},
}
