package iql

import (
	"errors"
	"fmt"

	"github.com/alecthomas/participle/v2"
)

// SyntaxError is the structured error IQL returns for a malformed query,
// carrying the offending token's byte offset so callers (the CLI, the tool
// registry) can point at it directly.
type SyntaxError struct {
	Message string
	Offset  int
	Line    int
	Column  int
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("iql: syntax error at %d:%d: %s", e.Line, e.Column, e.Message)
}

// ExampleQueries is returned alongside a SyntaxError so callers can show the
// user a recognizable starting point (spec §7: "an unrecognized IQL query
// returns a syntax error plus a set of example queries").
var ExampleQueries = []string{
	`FIND resources WHERE resourceType = 'database' LIMIT 10`,
	`FIND DOWNSTREAM OF 'aws::us-east-1:compute:i-1' DEPTH 2`,
	`FIND PATH FROM 'aws::us-east-1:compute:i-1' TO 'aws::us-east-1:database:db-1'`,
	`SUMMARIZE cost BY provider WHERE status = 'running'`,
}

func toSyntaxError(err error, src string) *SyntaxError {
	var perr participle.Error
	if errors.As(err, &perr) {
		pos := perr.Position()
		return &SyntaxError{Message: perr.Message(), Offset: pos.Offset, Line: pos.Line, Column: pos.Column}
	}
	return &SyntaxError{Message: err.Error()}
}
