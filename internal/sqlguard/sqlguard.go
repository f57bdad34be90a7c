// Package sqlguard rejects generated statements that do not match the
// requested action before they reach the database.
package sqlguard

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/ldi/taskdesk/pkg/models"
)

var (
	ErrEmpty              = errors.New("empty statement")
	ErrMultipleStatements = errors.New("more than one statement")
	ErrVerbMismatch       = errors.New("statement verb does not match action")
	ErrUnknownTable       = errors.New("statement references an unknown table")
)

// AllowedTables are the only tables a strict check lets through.
var AllowedTables = []string{"CONTACTS", "TASKS"}

// tokenPattern splits SQL into quoted strings, quoted identifiers ("x",
// `x`, [x]), bare identifiers and single punctuation characters. Comments
// are matched so they can be dropped.
var tokenPattern = regexp.MustCompile("'(?:[^']|'')*'|\"(?:[^\"]|\"\")*\"|`(?:[^`]|``)*`|\\[[^\\]]*\\]|--[^\\n]*|/\\*(?s:.*?)\\*/|[A-Za-z_][A-Za-z0-9_.]*|[0-9]+|\\S")

type Guard struct {
	// Strict makes Check reject tables outside AllowedTables.
	Strict bool
}

// Check validates sql for action: exactly one statement (a trailing
// semicolon is fine), leading verb INSERT/SELECT/UPDATE for add/view/update,
// and, when strict, only CONTACTS and TASKS as table references.
func (g Guard) Check(action models.Action, sql string) error {
	tokens := tokenize(sql)
	for len(tokens) > 0 && tokens[len(tokens)-1] == ";" {
		tokens = tokens[:len(tokens)-1]
	}
	if len(tokens) == 0 {
		return ErrEmpty
	}

	for _, tok := range tokens {
		if tok == ";" {
			return ErrMultipleStatements
		}
	}

	verb := strings.ToUpper(tokens[0])
	if verb != action.Verb() {
		return fmt.Errorf("%w: %s for %s", ErrVerbMismatch, verb, action)
	}

	if g.Strict {
		for _, table := range Tables(tokens) {
			if !allowed(table) {
				return fmt.Errorf("%w: %s", ErrUnknownTable, table)
			}
		}
	}
	return nil
}

// Check runs a strict Guard.
func Check(action models.Action, sql string) error {
	return Guard{Strict: true}.Check(action, sql)
}

func tokenize(sql string) []string {
	raw := tokenPattern.FindAllString(sql, -1)
	out := raw[:0]
	for _, tok := range raw {
		if strings.HasPrefix(tok, "--") || strings.HasPrefix(tok, "/*") {
			continue
		}
		out = append(out, tok)
	}
	return out
}

// Tables returns the upper-cased identifiers that follow FROM, JOIN, INTO
// and UPDATE, plus every comma-separated entry of a FROM list.
func Tables(tokens []string) []string {
	var tables []string
	seen := make(map[string]bool)
	add := func(tok string) {
		var name string
		switch {
		case isQuotedIdent(tok):
			name = strings.ToUpper(unquoteIdent(tok))
		case isIdent(tok) && !isKeyword(tok):
			name = strings.ToUpper(tok)
			if i := strings.LastIndexByte(name, '.'); i >= 0 {
				name = name[i+1:]
			}
		default:
			return
		}
		if !seen[name] {
			seen[name] = true
			tables = append(tables, name)
		}
	}

	// parens holds the token before each open parenthesis so FROM inside
	// EXTRACT(... FROM col) and friends is not taken for a table list.
	var parens []string
	for i := 0; i < len(tokens)-1; i++ {
		switch tok := strings.ToUpper(tokens[i]); tok {
		case "(":
			prev := ""
			if i > 0 {
				prev = strings.ToUpper(tokens[i-1])
			}
			parens = append(parens, prev)
		case ")":
			if len(parens) > 0 {
				parens = parens[:len(parens)-1]
			}
		case "JOIN", "INTO", "UPDATE":
			add(tokens[i+1])
		case "FROM":
			if len(parens) > 0 && fromFunctions[parens[len(parens)-1]] {
				continue
			}
			// FROM a [alias], b [alias] ...
			j := i + 1
			for j < len(tokens) {
				add(tokens[j])
				j++
				for j < len(tokens) && (isQuotedIdent(tokens[j]) || isIdent(tokens[j]) && !isKeyword(tokens[j])) {
					j++ // alias or AS
				}
				if j < len(tokens) && tokens[j] == "," {
					j++
					continue
				}
				break
			}
		}
	}
	return tables
}

func allowed(table string) bool {
	for _, t := range AllowedTables {
		if t == table {
			return true
		}
	}
	return false
}

func isIdent(tok string) bool {
	if tok == "" {
		return false
	}
	c := tok[0]
	return c == '_' || (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')
}

func isQuotedIdent(tok string) bool {
	if len(tok) < 2 {
		return false
	}
	switch tok[0] {
	case '"':
		return tok[len(tok)-1] == '"'
	case '`':
		return tok[len(tok)-1] == '`'
	case '[':
		return tok[len(tok)-1] == ']'
	}
	return false
}

// unquoteIdent strips identifier quotes and collapses doubled quote
// characters.
func unquoteIdent(tok string) string {
	inner := tok[1 : len(tok)-1]
	switch tok[0] {
	case '"':
		return strings.ReplaceAll(inner, `""`, `"`)
	case '`':
		return strings.ReplaceAll(inner, "``", "`")
	}
	return inner
}

var keywords = map[string]bool{
	"WHERE": true, "JOIN": true, "LEFT": true, "RIGHT": true, "INNER": true,
	"OUTER": true, "FULL": true, "CROSS": true, "ON": true, "GROUP": true,
	"ORDER": true, "LIMIT": true, "OFFSET": true, "HAVING": true, "UNION": true,
	"SET": true, "VALUES": true, "RETURNING": true, "NATURAL": true,
	"EXCEPT": true, "INTERSECT": true, "WINDOW": true, "USING": true,
}

var fromFunctions = map[string]bool{
	"EXTRACT": true, "SUBSTRING": true, "TRIM": true, "OVERLAY": true, "POSITION": true,
}

func isKeyword(tok string) bool {
	return keywords[strings.ToUpper(tok)]
}
