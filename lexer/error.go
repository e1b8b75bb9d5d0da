package lexer

import "fmt"

// SyntaxError is raised for every lexer failure.
// It carries enough context — source name, line, offending token text,
// and a human message — for an embedder to report without re-deriving
// position information.
type SyntaxError struct {
	Source  string
	Line    int
	Token   string
	Message string
}

func (e *SyntaxError) Error() string {
	if e.Token == "" {
		return fmt.Sprintf("%s:%d: %s", e.Source, e.Line, e.Message)
	}
	return fmt.Sprintf("%s:%d: %s near %s", e.Source, e.Line, e.Message, e.Token)
}

