// Package analyzer runs security passes over a checked contract AST:
// reentrancy-shaped orderings, unchecked integer arithmetic, and
// storage fields that are read but never written.
package analyzer

import (
	"fmt"

	"swiftsc/pkg/compiler"
)

// Pass names, reported with every warning.
const (
	PassReentrancy  = "reentrancy"
	PassOverflow    = "overflow"
	PassUninitStore = "uninitialized-storage"
)

// Warning is one finding. Findings never stop a build; the analyze
// command decides what exit status they map to.
type Warning struct {
	Pass     string
	Function string // empty for contract-level findings
	Line     int
	Message  string
}

func (w Warning) String() string {
	if w.Function != "" {
		return fmt.Sprintf("[%s] line %d, fn %s: %s", w.Pass, w.Line, w.Function, w.Message)
	}
	return fmt.Sprintf("[%s] line %d: %s", w.Pass, w.Line, w.Message)
}

// Analyze runs all passes and returns the combined findings in source order.
func Analyze(prog *compiler.Program, info *compiler.ContractInfo) []Warning {
	a := &analysis{prog: prog, info: info}
	a.overflowPass()
	a.reentrancyPass()
	a.uninitializedStoragePass()
	return a.warnings
}

type analysis struct {
	prog     *compiler.Program
	info     *compiler.ContractInfo
	warnings []Warning
}

func (a *analysis) warnf(pass, fn string, line int, format string, args ...any) {
	a.warnings = append(a.warnings, Warning{
		Pass:     pass,
		Function: fn,
		Line:     line,
		Message:  fmt.Sprintf(format, args...),
	})
}

// overflowPass flags raw + - * on u64 operands. The checked std::math
// wrappers revert instead of wrapping, so raw arithmetic on balances is
// almost always a bug.
func (a *analysis) overflowPass() {
	for _, fn := range a.prog.Contract.Funcs {
		name := fn.Name
		walkStmts(fn.Body, func(s compiler.Stmt) {}, func(e compiler.Expr) {
			bin, ok := e.(*compiler.BinaryExpr)
			if !ok {
				return
			}
			var op string
			switch bin.Op {
			case compiler.PLUS:
				op = "add"
			case compiler.MINUS:
				op = "sub"
			case compiler.STAR:
				op = "mul"
			default:
				return
			}
			a.warnf(PassOverflow, name, bin.Line,
				"unchecked %s arithmetic can wrap; use std::math::%s", bin.Op, op)
		})
	}
}

// reentrancyPass flags storage writes that happen after an external
// interaction (a native transfer) in the same function. State should
// settle before funds move.
func (a *analysis) reentrancyPass() {
	for _, fn := range a.prog.Contract.Funcs {
		name := fn.Name
		transferred := false
		transferLine := 0

		walkStmts(fn.Body, func(s compiler.Stmt) {
			if !transferred {
				return
			}
			switch st := s.(type) {
			case *compiler.AssignStmt:
				if _, ok := st.Target.(*compiler.StorageRef); ok {
					a.warnf(PassReentrancy, name, st.Line,
						"storage write after transfer_native on line %d; update state before transferring", transferLine)
				}
			case *compiler.ExprStmt:
				if m, ok := st.E.(*compiler.MethodCall); ok && m.Name == "insert" {
					a.warnf(PassReentrancy, name, st.Line,
						"storage write after transfer_native on line %d; update state before transferring", transferLine)
				}
			}
		}, func(e compiler.Expr) {
			if call, ok := e.(*compiler.CallExpr); ok && call.Name == "transfer_native" {
				if !transferred {
					transferred = true
					transferLine = call.Line
				}
			}
		})
	}
}

// uninitializedStoragePass flags storage fields that some function
// reads but no function ever writes: scalar reads return zero values
// and unguarded map lookups revert.
func (a *analysis) uninitializedStoragePass() {
	read := make(map[string]int)  // field -> first read line
	wrote := make(map[string]bool)

	for _, fn := range a.prog.Contract.Funcs {
		walkStmts(fn.Body, func(s compiler.Stmt) {
			if st, ok := s.(*compiler.AssignStmt); ok {
				if ref, ok := st.Target.(*compiler.StorageRef); ok {
					wrote[ref.Field] = true
				}
			}
		}, func(e compiler.Expr) {
			switch n := e.(type) {
			case *compiler.MethodCall:
				if ref, ok := n.Recv.(*compiler.StorageRef); ok {
					if n.Name == "insert" {
						wrote[ref.Field] = true
					} else {
						if _, seen := read[ref.Field]; !seen {
							read[ref.Field] = n.Line
						}
					}
				}
			case *compiler.StorageRef:
				if _, seen := read[n.Field]; !seen {
					read[n.Field] = n.Line
				}
			}
		})
	}

	for _, field := range a.info.Storage {
		line, isRead := read[field.Name]
		if isRead && !wrote[field.Name] {
			a.warnf(PassUninitStore, "", line,
				"storage field %q is read but never written", field.Name)
		}
	}
}

//  AST traversal

// walkStmts visits statements in source order, calling stmtFn on each
// statement and exprFn on every expression it contains.
func walkStmts(b *compiler.Block, stmtFn func(compiler.Stmt), exprFn func(compiler.Expr)) {
	for _, s := range b.Stmts {
		walkStmt(s, stmtFn, exprFn)
	}
}

func walkStmt(s compiler.Stmt, stmtFn func(compiler.Stmt), exprFn func(compiler.Expr)) {
	stmtFn(s)
	switch st := s.(type) {
	case *compiler.LetStmt:
		walkExpr(st.Value, exprFn)
	case *compiler.AssignStmt:
		walkExpr(st.Value, exprFn)
	case *compiler.IfStmt:
		walkExpr(st.Cond, exprFn)
		walkStmts(st.Then, stmtFn, exprFn)
		if st.Else != nil {
			walkStmts(st.Else, stmtFn, exprFn)
		}
	case *compiler.WhileStmt:
		walkExpr(st.Cond, exprFn)
		walkStmts(st.Body, stmtFn, exprFn)
	case *compiler.ReturnStmt:
		if st.Value != nil {
			walkExpr(st.Value, exprFn)
		}
	case *compiler.RequireStmt:
		walkExpr(st.Cond, exprFn)
	case *compiler.ExprStmt:
		walkExpr(st.E, exprFn)
	}
}

func walkExpr(e compiler.Expr, exprFn func(compiler.Expr)) {
	exprFn(e)
	switch n := e.(type) {
	case *compiler.BinaryExpr:
		walkExpr(n.Left, exprFn)
		walkExpr(n.Right, exprFn)
	case *compiler.LogicalExpr:
		walkExpr(n.Left, exprFn)
		walkExpr(n.Right, exprFn)
	case *compiler.UnaryExpr:
		walkExpr(n.Right, exprFn)
	case *compiler.TryExpr:
		walkExpr(n.Inner, exprFn)
	case *compiler.OkExpr:
		if n.Inner != nil {
			walkExpr(n.Inner, exprFn)
		}
	case *compiler.ErrExpr:
		walkExpr(n.Inner, exprFn)
	case *compiler.CallExpr:
		for _, a := range n.Args {
			walkExpr(a, exprFn)
		}
	case *compiler.MethodCall:
		walkExpr(n.Recv, exprFn)
		for _, a := range n.Args {
			walkExpr(a, exprFn)
		}
	}
}
