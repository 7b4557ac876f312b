package core

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLabelStackAtDepth(t *testing.T) {
	ls := newLabelStack()
	ls.Push(Label{Kind: LabelFunc, Offset: InvalidIndex})
	ls.Push(Label{Kind: LabelBlock, Offset: InvalidIndex})
	ls.Push(Label{Kind: LabelLoop, Offset: 10})

	top, ok := ls.At(0)
	require.True(t, ok)
	require.Equal(t, LabelLoop, top.Kind)

	mid, ok := ls.At(1)
	require.True(t, ok)
	require.Equal(t, LabelBlock, mid.Kind)

	bottom, ok := ls.At(2)
	require.True(t, ok)
	require.Equal(t, LabelFunc, bottom.Kind)

	_, ok = ls.At(3)
	require.False(t, ok, "depth past the FUNC frame is out of range")
}

func TestLabelStackBranchFixupsResolveBeforePop(t *testing.T) {
	env := &Environment{Istream: make([]byte, 8)}
	e := &istreamEmitter{env: env}

	ls := newLabelStack()
	ls.Push(Label{Kind: LabelFunc, Offset: InvalidIndex})
	ls.Push(Label{Kind: LabelBlock, Offset: InvalidIndex})

	ls.AddBranchFixup(0, 0)
	require.False(t, ls.TopFixupsEmpty())

	ls.ResolveBranchesToTop(4, e)
	require.True(t, ls.TopFixupsEmpty())

	require.Equal(t, uint32(4), uint32(env.Istream[0])|uint32(env.Istream[1])<<8|uint32(env.Istream[2])<<16|uint32(env.Istream[3])<<24)

	popped := ls.Pop()
	require.Equal(t, LabelBlock, popped.Kind)
	require.Equal(t, 1, ls.Size())
}
