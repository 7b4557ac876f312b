package core

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFixupTableResolveAll(t *testing.T) {
	env := &Environment{Istream: make([]byte, 16)}
	e := &istreamEmitter{env: env}

	f := newFixupTable()
	require.True(t, f.AllEmpty())

	f.Append(2, 0)
	f.Append(2, 4)
	require.False(t, f.AllEmpty())
	require.False(t, f.IsEmpty(2))
	require.True(t, f.IsEmpty(0))

	f.ResolveAll(2, 0xdeadbeef, e)
	require.True(t, f.IsEmpty(2))
	require.True(t, f.AllEmpty())

	require.Equal(t, uint32(0xdeadbeef), uint32(env.Istream[0])|uint32(env.Istream[1])<<8|uint32(env.Istream[2])<<16|uint32(env.Istream[3])<<24)
}

func TestFixupTableResolveUnknownIndexIsNoop(t *testing.T) {
	env := &Environment{}
	e := &istreamEmitter{env: env}
	f := newFixupTable()
	f.ResolveAll(7, 123, e) // never Append'd into; must not panic or grow
	require.True(t, f.AllEmpty())
}
