package apperrors

import "errors"

// appError implements the apperrors.Error interface.
// Every derivation returns a copy, so package level sentinels stay untouched.
type appError struct {
	msg           string
	base          Error
	wrappedErrors []error
	kind          Kind
	expandError   bool
	prefix        string
	suffix        string
}

func (e *appError) Error() string {
	msg := e.msg
	if e.prefix != "" {
		msg = e.prefix + ": " + msg
	}
	if e.suffix != "" {
		msg += ": " + e.suffix
	}
	return msg
}

func (e *appError) ErrorAll() string {
	msg := e.Error()
	if !e.expandError {
		return msg
	}
	var causes string
	for _, err := range e.wrappedErrors {
		causes += err.Error() + ";"
	}
	if len(causes) > 0 {
		// remove the last ;
		msg = msg + ": " + causes[:len(causes)-1]
	}
	return msg
}

func (e *appError) Unwrap() []error {
	return e.wrappedErrors
}

func (e *appError) clone() *appError {
	c := *e
	c.wrappedErrors = append([]error(nil), e.wrappedErrors...)
	return &c
}

// New derives a fresh error whose base is e.
func (e *appError) New(msg string) Error {
	return &appError{
		msg:  msg,
		kind: e.kind,
		base: e,
	}
}

func (e *appError) Msg(msg string) Error {
	c := e.derive()
	c.msg = msg
	return c
}

func (e *appError) Prefix(prefix string) Error {
	c := e.derive()
	c.prefix = prefix
	return c
}

func (e *appError) Suffix(suffix string) Error {
	c := e.derive()
	c.suffix = suffix
	return c
}

func (e *appError) MsgErr(msg string, err ...error) Error {
	c := e.derive()
	c.msg = msg
	c.wrappedErrors = append(c.wrappedErrors, nonNil(err)...)
	return c
}

func (e *appError) Err(err ...error) Error {
	c := e.derive()
	c.wrappedErrors = append(c.wrappedErrors, nonNil(err)...)
	return c
}

// derive returns a copy that still matches e under errors.Is.
func (e *appError) derive() *appError {
	c := e.clone()
	c.base = e
	return c
}

func (e *appError) Is(target error) bool {
	if e == target || e.base == target {
		return true
	}
	if e.base != nil && e.base.Is(target) {
		return true
	}
	for _, err := range e.wrappedErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func (e *appError) SetExpandError(expand bool) Error {
	c := e.derive()
	c.expandError = expand
	return c
}

func (e *appError) SetKind(kind Kind) Error {
	c := e.derive()
	c.kind = kind
	return c
}

func (e *appError) Kind() Kind {
	return e.kind
}

func nonNil(errs []error) []error {
	out := errs[:0:0]
	for _, err := range errs {
		if err != nil {
			out = append(out, err)
		}
	}
	return out
}

func New(msg string) Error {
	return &appError{
		msg: msg,
	}
}

// NewKind creates a root error of the given kind.
func NewKind(msg string, kind Kind) Error {
	return &appError{
		msg:  msg,
		kind: kind,
	}
}

// Kinder is implemented by errors that classify themselves without being an Error.
type Kinder interface {
	Kind() Kind
}

// KindOf reports the kind of the first error in err's chain that has one.
func KindOf(err error) Kind {
	var k Kinder
	if errors.As(err, &k) {
		return k.Kind()
	}
	return KindUnknown
}
