package definition

import "fmt"

// ParseError reports a malformed pipeline definition. It is returned before any
// job is triggered.
type ParseError struct {
	Line  int
	Token string
	Msg   string
}

func (e *ParseError) Error() string {
	if e.Token == "" {
		return fmt.Sprintf("line %d: %s", e.Line, e.Msg)
	}
	return fmt.Sprintf("line %d: %s %q", e.Line, e.Msg, e.Token)
}

func errorf(line int, token, format string, args ...interface{}) *ParseError {
	return &ParseError{Line: line, Token: token, Msg: fmt.Sprintf(format, args...)}
}
