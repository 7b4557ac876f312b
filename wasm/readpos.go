package wasm

import "io"

// readPos wraps an io.Reader and tracks how many bytes have been read
// through it so far, so that the section decoders can record each
// section's exact byte range for diagnostics.
type readPos struct {
	R      io.Reader
	CurPos int64
}

// Read implements io.Reader, advancing CurPos by the number of bytes read.
func (r *readPos) Read(p []byte) (int, error) {
	n, err := r.R.Read(p)
	r.CurPos += int64(n)
	return n, err
}

// ReadByte implements io.ByteReader in terms of Read; the decoder uses it
// to read each section's ID byte.
func (r *readPos) ReadByte() (byte, error) {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}
