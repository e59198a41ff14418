package query

import (
	"regexp"
	"strings"
)

var (
	commandPattern      = regexp.MustCompile(`^\s*(\w+)`)
	insertEntityPattern = regexp.MustCompile(`(?i)^\s*INSERT\s+INTO\s+([^\s(]+)`)
	insertFieldsPattern = regexp.MustCompile(`(?is)^\s*\((.*?)\)`)
	insertValuesPattern = regexp.MustCompile(`(?is)\bVALUES\s*\((.*)\)\s*$`)
	updatePattern       = regexp.MustCompile(`(?is)^\s*UPDATE\s+(\S+)\s+SET\s+(.+?)\s+WHERE\s+(\w+)\s*=\s*(.+?)\s*$`)
	updateTargetPattern = regexp.MustCompile(`(?is)^\s*UPDATE\s+(\S+)\s+(?:SET\s+.+?\s+)?WHERE\s+(\w+)\s*=\s*(.+?)\s*$`)
	deletePattern       = regexp.MustCompile(`(?is)^\s*DELETE\s+FROM\s+(\S+)\s+WHERE\s+(\w+)\s*=\s*(.+?)\s*$`)
)

// DetectCommand returns the statement verb of q.
func DetectCommand(q string) (Command, error) {
	m := commandPattern.FindStringSubmatch(q)
	if m == nil {
		return "", malformed(commandGrammar)
	}
	cmd := Command(strings.ToLower(m[1]))
	switch cmd {
	case CommandSelect, CommandInsert, CommandUpdate, CommandDelete:
		return cmd, nil
	default:
		return "", malformedf(commandGrammar, "unknown command %q", m[1])
	}
}

// ParseInsert reads "INSERT INTO entity (f1, ...) VALUES (v1, ...)".
// The statement is not validated: a missing field list yields no columns and
// a short VALUES list leaves nil entries for the trailing columns.
func ParseInsert(q string) Insert {
	out := Insert{Data: map[string]any{}}
	loc := insertEntityPattern.FindStringSubmatchIndex(q)
	if loc == nil {
		return out
	}
	out.Entity = q[loc[2]:loc[3]]
	rest := q[loc[1]:]

	if m := insertFieldsPattern.FindStringSubmatch(rest); m != nil {
		for _, f := range splitList(m[1]) {
			out.Columns = append(out.Columns, Unquote(f))
		}
	}

	var values []any
	if m := insertValuesPattern.FindStringSubmatch(rest); m != nil {
		for _, v := range splitList(m[1]) {
			values = append(values, ParseScalar(v))
		}
	}

	for i, col := range out.Columns {
		if i < len(values) {
			out.Data[col] = values[i]
		} else {
			out.Data[col] = nil
		}
	}
	return out
}

// ParseUpdate reads "UPDATE entity SET f1 = v1, ... WHERE id = idVal".
func ParseUpdate(q string) (Update, error) {
	m := updatePattern.FindStringSubmatch(q)
	if m == nil {
		return Update{}, malformed(updateGrammar)
	}
	data := make(map[string]any)
	for _, assignment := range splitList(m[2]) {
		field, raw, ok := strings.Cut(assignment, "=")
		field = strings.TrimSpace(field)
		if !ok || field == "" {
			return Update{}, malformedf(updateGrammar, "invalid assignment %q", assignment)
		}
		data[field] = parseAssignmentValue(strings.TrimSpace(raw))
	}
	return Update{Entity: m[1], Data: data, ID: Unquote(m[4])}, nil
}

// ParseUpdateTarget reads the entity and id of an UPDATE whose SET list may be
// absent because the new values are supplied as a payload.
func ParseUpdateTarget(q string) (entity, id string, err error) {
	m := updateTargetPattern.FindStringSubmatch(q)
	if m == nil {
		return "", "", malformed(updateGrammar)
	}
	return m[1], Unquote(m[3]), nil
}

// ParseDelete reads "DELETE FROM entity WHERE id = idVal".
func ParseDelete(q string) (Delete, error) {
	m := deletePattern.FindStringSubmatch(q)
	if m == nil {
		return Delete{}, malformed(deleteGrammar)
	}
	return Delete{Entity: m[1], ID: Unquote(m[3])}, nil
}
