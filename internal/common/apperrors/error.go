package apperrors

type Error interface {
	Error() string
	ErrorAll() string
	New(msg string) Error
	MsgErr(msg string, err ...error) Error
	Msg(msg string) Error
	Prefix(prefix string) Error
	Suffix(suffix string) Error
	Err(err ...error) Error
	Unwrap() []error
	Is(target error) bool
	SetExpandError(expand bool) Error
	SetKind(kind Kind) Error
	Kind() Kind
}

// Kind classifies an error for callers that need to decide how to surface it.
type Kind int

const (
	KindUnknown Kind = iota
	KindConnectivity
	KindConfiguration
	KindNotFound
	KindConflict
	KindInvalidInput
	KindPartial
)

func (k Kind) String() string {
	switch k {
	case KindConnectivity:
		return "connectivity"
	case KindConfiguration:
		return "configuration"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindInvalidInput:
		return "invalid_input"
	case KindPartial:
		return "partial"
	}
	return "unknown"
}
