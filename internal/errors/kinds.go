package errors

import (
	"fmt"

	"x64cc/internal/ast"
)

// ErrorBuilder provides a fluent interface for constructing a CompilerError
// with suggestions and notes, in the style of a diagnostic-rich frontend.
type ErrorBuilder struct {
	err CompilerError
}

func newBuilder(kind Kind, level ErrorLevel, code, message string, pos ast.Position) *ErrorBuilder {
	return &ErrorBuilder{err: CompilerError{
		Kind:     kind,
		Level:    level,
		Code:     code,
		Message:  message,
		Position: pos,
		Length:   1,
	}}
}

// Structural starts building a StructuralError: malformed input the core
// detects directly (undefined names, arity mismatches, bad l-values).
func Structural(code, message string, pos ast.Position) *ErrorBuilder {
	return newBuilder(KindStructural, Error, code, message, pos)
}

// Unsupported starts building an UnsupportedConstruct error: well-formed
// input using a construct the implemented subset does not cover.
func Unsupported(code, message string, pos ast.Position) *ErrorBuilder {
	return newBuilder(KindUnsupported, Error, code, message, pos)
}

// Invariant builds an InvariantViolation: a verifier or internal consistency
// check failed. These indicate a compiler bug, never a user mistake.
func Invariant(code, message string) CompilerError {
	return CompilerError{Kind: KindInvariant, Level: Error, Code: code, Message: message}
}

// IO builds an IOError wrapping a failure to read, write, or spawn a process.
func IO(code, message string, cause error) CompilerError {
	msg := message
	if cause != nil {
		msg = fmt.Sprintf("%s: %v", message, cause)
	}
	return CompilerError{Kind: KindIO, Level: Error, Code: code, Message: msg}
}

func (b *ErrorBuilder) WithLength(length int) *ErrorBuilder {
	b.err.Length = length
	return b
}

func (b *ErrorBuilder) WithSuggestion(message string) *ErrorBuilder {
	b.err.Suggestions = append(b.err.Suggestions, Suggestion{Message: message})
	return b
}

func (b *ErrorBuilder) WithNote(note string) *ErrorBuilder {
	b.err.Notes = append(b.err.Notes, note)
	return b
}

func (b *ErrorBuilder) WithHelp(help string) *ErrorBuilder {
	b.err.HelpText = help
	return b
}

func (b *ErrorBuilder) Build() CompilerError {
	return b.err
}

// Common structural-error constructors.

func UndefinedVariable(name string, pos ast.Position) CompilerError {
	return Structural(ErrorUndefinedVariable, fmt.Sprintf("undefined variable '%s'", name), pos).
		WithLength(len(name)).
		WithSuggestion("make sure the variable is declared before use").
		Build()
}

func UndefinedFunction(name string, pos ast.Position) CompilerError {
	return Structural(ErrorUndefinedFunction, fmt.Sprintf("function '%s' is not declared", name), pos).
		WithLength(len(name)).
		Build()
}

func FieldNotFound(typeName, fieldName string, pos ast.Position) CompilerError {
	return Structural(ErrorFieldNotFound, fmt.Sprintf("no field '%s' on '%s'", fieldName, typeName), pos).
		WithLength(len(fieldName)).
		Build()
}

func NotAnLValue(pos ast.Position) CompilerError {
	return Structural(ErrorNotAnLValue, "expression is not assignable", pos).
		WithHelp("only variables, *p, a[i], s.field, and p->field are assignable").
		Build()
}

func BreakOutsideLoop(pos ast.Position) CompilerError {
	return Structural(ErrorBreakOutsideLoop, "'break' outside of a loop or switch", pos).Build()
}

func ContinueOutsideLoop(pos ast.Position) CompilerError {
	return Structural(ErrorContinueOutsideLoop, "'continue' outside of a loop", pos).Build()
}

func UndefinedLabel(name string, pos ast.Position) CompilerError {
	return Structural(ErrorUndefinedLabel, fmt.Sprintf("goto references undefined label '%s'", name), pos).Build()
}

func NonConstantCaseLabel(pos ast.Position) CompilerError {
	return Structural(ErrorNonConstantCaseLabel, "case label must be a compile-time constant", pos).Build()
}

func UnsupportedType(desc string, pos ast.Position) CompilerError {
	return Unsupported(ErrorUnsupportedType, fmt.Sprintf("unsupported type: %s", desc), pos).Build()
}

func UnsupportedOperator(desc string, pos ast.Position) CompilerError {
	return Unsupported(ErrorUnsupportedOperator, fmt.Sprintf("unsupported operator: %s", desc), pos).Build()
}

func VLANotSupported(pos ast.Position) CompilerError {
	return Unsupported(ErrorVLANotSupported, "variable-length arrays are not supported", pos).
		WithHelp("array bounds must be compile-time constants").
		Build()
}

func SSAVerificationFailed(detail string) CompilerError {
	return Invariant(ErrorSSAVerificationFailed, fmt.Sprintf("SSA verification failed: %s", detail))
}

func MissingTerminator(blockDesc string) CompilerError {
	return Invariant(ErrorMissingTerminator, fmt.Sprintf("block %s has no terminator", blockDesc))
}

func UnreachableCode(pos ast.Position) CompilerError {
	return newBuilder(KindStructural, Warning, WarningUnreachableCode, "unreachable code", pos).Build()
}
