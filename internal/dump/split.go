package dump

import (
	"errors"
	"strings"
)

// ErrUnterminatedLiteral is returned when a dump ends inside a quoted span.
var ErrUnterminatedLiteral = errors.New("unterminated quoted literal")

type splitState int

const (
	plain splitState = iota
	inSingleQuote
	inDoubleQuote
)

// Split cuts a dump script into individual statements. Statements end at a
// semicolon outside quoted spans; a semicolon inside a single- or
// double-quoted literal is part of the literal. Lines whose first
// non-whitespace characters are the comment marker "--" are discarded.
// Doubled quotes inside a literal ('' or "") are the escape form and do not
// close the span.
func Split(text string) ([]string, error) {
	var (
		stmts          []string
		buf            strings.Builder
		state          = plain
		lineHasContent bool
	)

	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		r := runes[i]

		if state == plain {
			switch {
			case r == '-' && !lineHasContent && i+1 < len(runes) && runes[i+1] == '-':
				// Comment line: drop everything up to the newline.
				for i < len(runes) && runes[i] != '\n' {
					i++
				}
				continue
			case r == ';':
				if stmt := strings.TrimSpace(buf.String()); stmt != "" {
					stmts = append(stmts, stmt)
				}
				buf.Reset()
				continue
			case r == '\'':
				state = inSingleQuote
			case r == '"':
				state = inDoubleQuote
			}
		} else {
			quote := '\''
			if state == inDoubleQuote {
				quote = '"'
			}
			if r == quote {
				if i+1 < len(runes) && runes[i+1] == quote {
					// Escaped quote: emit both and stay inside the span.
					buf.WriteRune(r)
					i++
					r = runes[i]
				} else {
					state = plain
				}
			}
		}

		if r == '\n' {
			lineHasContent = false
		} else if !lineHasContent && !isSpace(r) {
			lineHasContent = true
		}
		buf.WriteRune(r)
	}

	if state != plain {
		return nil, ErrUnterminatedLiteral
	}
	if stmt := strings.TrimSpace(buf.String()); stmt != "" {
		stmts = append(stmts, stmt)
	}
	return stmts, nil
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\r' || r == '\n'
}
