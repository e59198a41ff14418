// Package cond evaluates guarded expressions: an ordered list of
// (predicate, result) clauses where the first matching predicate wins.
package cond

// Clause pairs a predicate with the result produced when it matches.
type Clause[A, T any] struct {
	test   func(A) bool
	result func(A) T
}

// When matches when test returns true for the call argument.
func When[A, T any](test func(A) bool, result T) Clause[A, T] {
	return Clause[A, T]{test: test, result: constant[A](result)}
}

// WhenThen is like When but computes the result lazily from the call argument.
func WhenThen[A, T any](test func(A) bool, result func(A) T) Clause[A, T] {
	return Clause[A, T]{test: test, result: result}
}

// If matches when ok is true, for conditions already known at build time.
func If[A, T any](ok bool, result T) Clause[A, T] {
	return Clause[A, T]{test: func(A) bool { return ok }, result: constant[A](result)}
}

// IfThen is If with a lazily computed result.
func IfThen[A, T any](ok bool, result func(A) T) Clause[A, T] {
	return Clause[A, T]{test: func(A) bool { return ok }, result: result}
}

// Expr is an ordered set of clauses with an optional default.
type Expr[A, T any] struct {
	clauses []Clause[A, T]
	def     func(A) T
}

// New builds an expression from clauses evaluated top to bottom.
func New[A, T any](clauses ...Clause[A, T]) *Expr[A, T] {
	return &Expr[A, T]{clauses: clauses}
}

// Else sets the value returned when no clause matches.
func (e *Expr[A, T]) Else(result T) *Expr[A, T] {
	e.def = constant[A](result)
	return e
}

// ElseThen sets a lazily computed default.
func (e *Expr[A, T]) ElseThen(result func(A) T) *Expr[A, T] {
	e.def = result
	return e
}

// Eval returns the result of the first matching clause, or the default.
// The boolean is false only when nothing matched and no default is set.
// A predicate that panics is treated as a non-match.
func (e *Expr[A, T]) Eval(arg A) (T, bool) {
	for _, c := range e.clauses {
		if c.test == nil || !safeTest(c.test, arg) {
			continue
		}
		if c.result == nil {
			var zero T
			return zero, true
		}
		return c.result(arg), true
	}
	if e.def != nil {
		return e.def(arg), true
	}
	var zero T
	return zero, false
}

// Value is Eval without the match flag.
func (e *Expr[A, T]) Value(arg A) T {
	v, _ := e.Eval(arg)
	return v
}

func safeTest[A any](test func(A) bool, arg A) (matched bool) {
	defer func() {
		if recover() != nil {
			matched = false
		}
	}()
	return test(arg)
}

func constant[A, T any](v T) func(A) T {
	return func(A) T { return v }
}
