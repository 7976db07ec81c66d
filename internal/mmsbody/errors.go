package mmsbody

import "fmt"

// ContentTypeError reports a missing, malformed or unsupported content type.
// Index is the 0-based attachment position, or -1 when the error is not
// about a specific attachment.
type ContentTypeError struct {
	ContentType string
	Index       int
	msg         string
}

// NewContentTypeError returns a ContentTypeError with a formatted message.
func NewContentTypeError(contentType string, index int, format string, args ...any) *ContentTypeError {
	return &ContentTypeError{ContentType: contentType, Index: index, msg: fmt.Sprintf(format, args...)}
}

func (e *ContentTypeError) Error() string { return e.msg }

// ValueError reports a payload that does not parse as the format its content
// type promised.
type ValueError struct {
	Format string
	Err    error
}

func (e *ValueError) Error() string {
	return fmt.Sprintf("bad %s content: %v", e.Format, e.Err)
}

func (e *ValueError) Unwrap() error { return e.Err }

// MissingFieldError reports a required field absent from a payload.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("bad content: missing field %q", e.Field)
}
