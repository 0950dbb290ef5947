// Package errors provides the error taxonomy shared by the window builder,
// the parameter space and the optimization driver.
package errors

import (
	"fmt"
	"net/http"
	"strings"

	crdb "github.com/cockroachdb/errors"
	"go.uber.org/zap/zapcore"
)

// Kind classifies an error.
type Kind string

const (
	// KindConfiguration covers invalid or contradictory dimension, space and run options.
	KindConfiguration Kind = "configuration"
	// KindUnsupportedAlgorithm is an algorithm name outside grid, random, bayes and tpe.
	KindUnsupportedAlgorithm Kind = "unsupported_algorithm"
	// KindInsufficientData means no window can be produced from the input.
	KindInsufficientData Kind = "insufficient_data"
	// KindObjectiveSignature is a mismatch between calling convention and objective.
	KindObjectiveSignature Kind = "objective_signature"
	// KindDependencyVersion means a backend lacks a requested capability.
	KindDependencyVersion Kind = "dependency_version"
	// KindObjective wraps an error returned by the objective itself.
	KindObjective Kind = "objective"
	// KindNumerical is a linear algebra failure inside the surrogate model.
	KindNumerical Kind = "numerical"
)

// Sentinels usable with Is.
var (
	ErrConfiguration        = crdb.New("configuration error")
	ErrUnsupportedAlgorithm = crdb.New("unsupported algorithm")
	ErrInsufficientData     = crdb.New("insufficient data")
	ErrObjectiveSignature   = crdb.New("objective signature mismatch")
	ErrDependencyVersion    = crdb.New("dependency version mismatch")
	ErrObjective            = crdb.New("objective failed")
	ErrNumerical            = crdb.New("numerical failure")
)

func (k Kind) sentinel() error {
	switch k {
	case KindConfiguration:
		return ErrConfiguration
	case KindUnsupportedAlgorithm:
		return ErrUnsupportedAlgorithm
	case KindInsufficientData:
		return ErrInsufficientData
	case KindObjectiveSignature:
		return ErrObjectiveSignature
	case KindDependencyVersion:
		return ErrDependencyVersion
	case KindObjective:
		return ErrObjective
	case KindNumerical:
		return ErrNumerical
	}
	return nil
}

// Error represents an error with diagnostic context and a stack trace.
type Error struct {
	Kind Kind
	// A human-readable message describing the error
	Message string
	// The operation that was being performed when the error occurred
	Operation string
	// The component or package where the error occurred
	Component string
	// Dimension is the offending parameter name, if any.
	Dimension string
	// Algorithm is the search algorithm of the failing run, if any.
	Algorithm string
	// Trial is the zero-based trial index, or -1.
	Trial int
	// The underlying error, nil for errors created with New.
	Err error

	stack error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var builder strings.Builder

	if e.Message != "" {
		builder.WriteString(e.Message)
	} else if s := e.Kind.sentinel(); s != nil {
		builder.WriteString(s.Error())
	}

	var ctx []string
	if e.Operation != "" {
		ctx = append(ctx, "operation="+e.Operation)
	}
	if e.Component != "" {
		ctx = append(ctx, "component="+e.Component)
	}
	if e.Dimension != "" {
		ctx = append(ctx, "dimension="+e.Dimension)
	}
	if e.Algorithm != "" {
		ctx = append(ctx, "algorithm="+e.Algorithm)
	}
	if e.Trial >= 0 {
		ctx = append(ctx, fmt.Sprintf("trial=%d", e.Trial))
	}
	if len(ctx) > 0 {
		builder.WriteString(" (")
		builder.WriteString(strings.Join(ctx, ", "))
		builder.WriteString(")")
	}

	if e.Err != nil {
		if builder.Len() > 0 {
			builder.WriteString(": ")
		}
		builder.WriteString(e.Err.Error())
	}

	return builder.String()
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel of the error's kind.
func (e *Error) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}

// Format prints the stack trace with %+v.
func (e *Error) Format(s fmt.State, verb rune) {
	switch {
	case verb == 'v' && s.Flag('+'):
		fmt.Fprintf(s, "%s\n%+v", e.Error(), e.stack)
	case verb == 'q':
		fmt.Fprintf(s, "%q", e.Error())
	default:
		fmt.Fprint(s, e.Error())
	}
}

// StackTrace returns the captured stack as text.
func (e *Error) StackTrace() string {
	if e.stack == nil {
		return ""
	}
	return fmt.Sprintf("%+v", e.stack)
}

// WithMessage sets the message.
func (e *Error) WithMessage(msg string) *Error {
	e.Message = msg
	return e
}

// WithOperation sets the operation.
func (e *Error) WithOperation(op string) *Error {
	e.Operation = op
	return e
}

// WithComponent sets the component.
func (e *Error) WithComponent(component string) *Error {
	e.Component = component
	return e
}

// WithDimension sets the offending dimension name.
func (e *Error) WithDimension(name string) *Error {
	e.Dimension = name
	return e
}

// WithAlgorithm sets the algorithm.
func (e *Error) WithAlgorithm(algorithm string) *Error {
	e.Algorithm = algorithm
	return e
}

// WithTrial sets the trial index.
func (e *Error) WithTrial(index int) *Error {
	e.Trial = index
	return e
}

// MarshalLogObject lets zap log the error as a structured object.
func (e *Error) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("kind", string(e.Kind))
	enc.AddString("message", e.Message)
	if e.Operation != "" {
		enc.AddString("operation", e.Operation)
	}
	if e.Component != "" {
		enc.AddString("component", e.Component)
	}
	if e.Dimension != "" {
		enc.AddString("dimension", e.Dimension)
	}
	if e.Algorithm != "" {
		enc.AddString("algorithm", e.Algorithm)
	}
	if e.Trial >= 0 {
		enc.AddInt("trial", e.Trial)
	}
	if e.Err != nil {
		enc.AddString("cause", e.Err.Error())
	}
	return nil
}

// New creates an error of the given kind.
func New(kind Kind, msg string) *Error {
	return &Error{
		Kind:    kind,
		Message: msg,
		Trial:   -1,
		stack:   crdb.WithStackDepth(kind.sentinel(), 1),
	}
}

// Newf creates an error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
		Trial:   -1,
		stack:   crdb.WithStackDepth(kind.sentinel(), 1),
	}
}

// Wrap wraps err with a kind and a message. A nil err yields nil.
func Wrap(err error, kind Kind, msg string) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Kind:    kind,
		Message: msg,
		Trial:   -1,
		Err:     err,
		stack:   crdb.WithStackDepth(err, 1),
	}
}

// Wrapf wraps err with a kind and a formatted message.
func Wrapf(err error, kind Kind, format string, args ...interface{}) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
		Trial:   -1,
		Err:     err,
		stack:   crdb.WithStackDepth(err, 1),
	}
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return crdb.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return crdb.As(err, target)
}

// KindOf returns the kind of the outermost *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if As(err, &e) {
		return e.Kind
	}
	return ""
}

// HTTPStatus maps an error to the response status used by the API.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindConfiguration, KindUnsupportedAlgorithm, KindInsufficientData, KindObjectiveSignature:
		return http.StatusBadRequest
	case KindDependencyVersion:
		return http.StatusNotImplemented
	case KindObjective, KindNumerical:
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}
