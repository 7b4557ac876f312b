package core

// operandTypeStack is the validator's abstract value stack. Once TypeAny
// sits on top, every push and pop against it is a no-op and every type
// check against it succeeds vacuously — this is what lets a validator
// walk statically-unreachable code (after br/return/unreachable) without
// rejecting it, per spec section 3's OperandType and section 4.5's
// after-branch reset rule.
type operandTypeStack struct {
	types []OperandType
}

// Size returns the number of tracked entries, including a trailing Any
// marker if present.
func (s *operandTypeStack) Size() int {
	return len(s.types)
}

// top returns the top entry, or false if the stack is empty.
func (s *operandTypeStack) top() (OperandType, bool) {
	if len(s.types) == 0 {
		return 0, false
	}
	return s.types[len(s.types)-1], true
}

// isAny reports whether the stack's top is the Any marker.
func (s *operandTypeStack) isAny() bool {
	t, ok := s.top()
	return ok && t == TypeAny
}

// Push appends t, unless the stack is currently in Any-state, in which
// case the push is a no-op (the code pushing it is unreachable).
func (s *operandTypeStack) Push(t OperandType) {
	if s.isAny() {
		return
	}
	s.types = append(s.types, t)
}

// Pop removes and returns the top entry. In Any-state it returns TypeAny
// without shrinking the stack, since the stack's true shape below the Any
// marker is unknowable (and irrelevant) in unreachable code.
func (s *operandTypeStack) Pop() (OperandType, bool) {
	if s.isAny() {
		return TypeAny, true
	}
	t, ok := s.top()
	if !ok {
		return 0, false
	}
	s.types = s.types[:len(s.types)-1]
	return t, true
}

// Check pops and compares the top entry against want, succeeding
// vacuously in Any-state. Returns false if the stack was empty or the
// popped type didn't match.
func (s *operandTypeStack) Check(want OperandType) bool {
	if s.isAny() {
		return true
	}
	got, ok := s.Pop()
	return ok && got == want
}

// ResetToLimit truncates the stack to exactly `limit` entries, discarding
// everything above (including any Any marker). Used before both entering
// Any-state (branch/return/unreachable) and the `else` clause's operand
// stack reset (spec section 4.5).
func (s *operandTypeStack) ResetToLimit(limit int) {
	if limit < len(s.types) {
		s.types = s.types[:limit]
	}
}

// PushAny truncates to limit and pushes the Any marker, per the
// after-branch/return/unreachable rule in spec section 4.5.
func (s *operandTypeStack) PushAny(limit int) {
	s.ResetToLimit(limit)
	s.types = append(s.types, TypeAny)
}

// MatchesResults reports whether the entries above limit are exactly
// results, in order — the check performed at a non-FUNC label's `end`
// (spec section 4.5, invariant 4). In Any-state this succeeds vacuously
// regardless of what results says, since unreachable code's true shape is
// unknowable.
func (s *operandTypeStack) MatchesResults(limit int, results []OperandType) bool {
	if s.isAny() {
		return true
	}
	if len(s.types)-limit != len(results) {
		return false
	}
	for i, want := range results {
		if s.types[limit+i] != want {
			return false
		}
	}
	return true
}
