package core

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOperandTypeStackBasic(t *testing.T) {
	var s operandTypeStack
	s.Push(TypeI32)
	s.Push(TypeI64)
	require.Equal(t, 2, s.Size())
	require.True(t, s.Check(TypeI64))
	require.True(t, s.Check(TypeI32))
	require.Equal(t, 0, s.Size())

	// Popping an empty stack fails rather than panicking.
	_, ok := s.Pop()
	require.False(t, ok)
}

func TestOperandTypeStackAnyIsVacuous(t *testing.T) {
	var s operandTypeStack
	s.Push(TypeI32)
	s.PushAny(0)
	require.True(t, s.isAny())

	// Once Any sits on top, pushes/pops/checks never touch real state.
	s.Push(TypeF64)
	require.Equal(t, 1, s.Size())
	require.True(t, s.Check(TypeF32))
	require.True(t, s.Check(TypeI64))

	top, ok := s.Pop()
	require.True(t, ok)
	require.Equal(t, TypeAny, top)
	require.Equal(t, 1, s.Size(), "Pop in Any-state never shrinks the stack")
}

func TestOperandTypeStackMatchesResults(t *testing.T) {
	var s operandTypeStack
	s.Push(TypeI32)
	s.Push(TypeI64)
	require.True(t, s.MatchesResults(0, []OperandType{TypeI32, TypeI64}))
	require.False(t, s.MatchesResults(0, []OperandType{TypeI32}))
	require.False(t, s.MatchesResults(1, []OperandType{TypeI32, TypeI64}))
}

func TestOperandTypeStackResetToLimit(t *testing.T) {
	var s operandTypeStack
	s.Push(TypeI32)
	s.Push(TypeI64)
	s.Push(TypeF32)
	s.ResetToLimit(1)
	require.Equal(t, 1, s.Size())
	top, _ := s.top()
	require.Equal(t, TypeI32, top)
}
