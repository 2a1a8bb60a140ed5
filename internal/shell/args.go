package shell

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

var errUnterminatedQuote = errors.New("unterminated quote")

// tokenize splits a command line on whitespace. Double quotes group words,
// and \" or \\ inside quotes stand for the literal character. Quotes may
// start mid-token, so name="Office Chair" is one token.
func tokenize(line string) ([]string, error) {
	var (
		tokens  []string
		cur     strings.Builder
		inQuote bool
		started bool
	)

	runes := []rune(line)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case inQuote && r == '\\' && i+1 < len(runes) && (runes[i+1] == '"' || runes[i+1] == '\\'):
			i++
			cur.WriteRune(runes[i])
		case r == '"':
			inQuote = !inQuote
			started = true
		case !inQuote && unicode.IsSpace(r):
			if started {
				tokens = append(tokens, cur.String())
				cur.Reset()
				started = false
			}
		default:
			cur.WriteRune(r)
			started = true
		}
	}

	if inQuote {
		return nil, errUnterminatedQuote
	}
	if started {
		tokens = append(tokens, cur.String())
	}
	return tokens, nil
}

// args holds the operands of one command: key=value pairs and the remaining
// positional words in order.
type args struct {
	named      map[string]string
	positional []string
}

func parseArgs(tokens []string) args {
	a := args{named: make(map[string]string)}
	for _, t := range tokens {
		if k, v, ok := strings.Cut(t, "="); ok && k != "" {
			a.named[strings.ToLower(k)] = v
			continue
		}
		a.positional = append(a.positional, t)
	}
	return a
}

// get returns the named value for key, or else the positional operand at
// index pos (pos < 0 disables the fallback).
func (a args) get(key string, pos int) (string, bool) {
	if v, ok := a.named[key]; ok {
		return v, true
	}
	if pos >= 0 && pos < len(a.positional) {
		return a.positional[pos], true
	}
	return "", false
}

func (a args) id(pos int) (int64, error) {
	raw, ok := a.get("id", pos)
	if !ok {
		return 0, usageError("product id is required")
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, usageError("invalid product id %q", raw)
	}
	return id, nil
}

func (a args) price(key string, pos int) (decimal.Decimal, bool, error) {
	raw, ok := a.get(key, pos)
	if !ok {
		return decimal.Decimal{}, false, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, true, usageError("invalid %s %q", key, raw)
	}
	return d, true, nil
}

type usageErr struct{ msg string }

func (e *usageErr) Error() string { return e.msg }

func usageError(format string, v ...any) error {
	return &usageErr{msg: fmt.Sprintf(format, v...)}
}
