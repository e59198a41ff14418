package query

import (
	"errors"
	"fmt"
)

// ErrMalformedQuery is wrapped by every parse failure.
var ErrMalformedQuery = errors.New("malformed query")

const (
	selectGrammar    = "SELECT <fields> FROM <entities> [WHERE <predicate>] [GROUP BY <fields>] [HAVING <predicate>] [ORDER BY <field> [ASC|DESC], ...]"
	fromGrammar      = "FROM <entity>[, <entity>...] or FROM <entity> [LEFT|FULL] JOIN <entity> ON <entity>.<key> = <entity>.<key>"
	predicateGrammar = "<field> = <value> or <field> IN (<value>, ...)"
	updateGrammar    = "UPDATE <entity> SET <field> = <value>[, ...] WHERE id = <id>"
	deleteGrammar    = "DELETE FROM <entity> WHERE id = <id>"
	commandGrammar   = "SELECT, INSERT, UPDATE or DELETE"
)

func malformed(expected string) error {
	return fmt.Errorf("%w: expected %s", ErrMalformedQuery, expected)
}

func malformedf(expected, format string, args ...any) error {
	return fmt.Errorf("%w: %s (expected %s)", ErrMalformedQuery, fmt.Sprintf(format, args...), expected)
}
