// internal/store/postgres/regex.go
package postgres

import (
	"fmt"
	"regexp/syntax"
	"strconv"
	"strings"
	"unicode"

	"github-integration/internal/store"
)

const (
	areSpecial   = `\^$.|?*+()[]{}`
	classSpecial = `\]^-[`
)

// toARE rewrites a Regex predicate pattern into PostgreSQL advanced regular
// expression syntax, so ~* matches what Go's regexp matches.
func toARE(pattern string) (string, error) {
	re, err := store.ParsePattern(pattern)
	if err != nil {
		return "", fmt.Errorf("regex %q: %w", pattern, err)
	}
	var b strings.Builder
	writeARE(&b, re)
	return b.String(), nil
}

func writeARE(b *strings.Builder, re *syntax.Regexp) {
	switch re.Op {
	case syntax.OpEmptyMatch:
	case syntax.OpLiteral:
		for _, r := range re.Rune {
			writeRune(b, r, areSpecial)
		}
	case syntax.OpCharClass:
		writeClass(b, re.Rune)
	case syntax.OpAnyChar:
		// Outside newline-sensitive mode an ARE dot also matches \n.
		b.WriteString(".")
	case syntax.OpAnyCharNotNL:
		b.WriteString(`[^\n]`)
	case syntax.OpBeginText:
		b.WriteString("^")
	case syntax.OpEndText:
		b.WriteString("$")
	case syntax.OpWordBoundary:
		b.WriteString(`\y`)
	case syntax.OpNoWordBoundary:
		b.WriteString(`\Y`)
	case syntax.OpCapture:
		b.WriteString("(")
		writeARE(b, re.Sub[0])
		b.WriteString(")")
	case syntax.OpStar, syntax.OpPlus, syntax.OpQuest, syntax.OpRepeat:
		writeAtom(b, re.Sub[0])
		switch re.Op {
		case syntax.OpStar:
			b.WriteString("*")
		case syntax.OpPlus:
			b.WriteString("+")
		case syntax.OpQuest:
			b.WriteString("?")
		default:
			b.WriteString("{" + strconv.Itoa(re.Min))
			switch {
			case re.Max == -1:
				b.WriteString(",")
			case re.Max != re.Min:
				b.WriteString("," + strconv.Itoa(re.Max))
			}
			b.WriteString("}")
		}
	case syntax.OpConcat:
		for _, sub := range re.Sub {
			if sub.Op == syntax.OpAlternate {
				writeGroup(b, sub)
				continue
			}
			writeARE(b, sub)
		}
	case syntax.OpAlternate:
		for i, sub := range re.Sub {
			if i > 0 {
				b.WriteString("|")
			}
			writeARE(b, sub)
		}
	}
}

// writeAtom writes re so that a following quantifier applies to all of it.
func writeAtom(b *strings.Builder, re *syntax.Regexp) {
	switch {
	case re.Op == syntax.OpLiteral && len(re.Rune) == 1,
		re.Op == syntax.OpCharClass, re.Op == syntax.OpAnyChar,
		re.Op == syntax.OpAnyCharNotNL, re.Op == syntax.OpCapture:
		writeARE(b, re)
	default:
		writeGroup(b, re)
	}
}

func writeGroup(b *strings.Builder, re *syntax.Regexp) {
	b.WriteString("(?:")
	writeARE(b, re)
	b.WriteString(")")
}

// writeClass writes a bracket expression. Go stores negated classes as their
// complement up to unicode.MaxRune; those are written back as [^...].
func writeClass(b *strings.Builder, ranges []rune) {
	if len(ranges) >= 2 && ranges[0] == 0 && ranges[len(ranges)-1] == unicode.MaxRune {
		gaps := make([]rune, 0, len(ranges))
		for i := 1; i+1 < len(ranges); i += 2 {
			gaps = append(gaps, ranges[i]+1, ranges[i+1]-1)
		}
		if len(gaps) == 0 {
			b.WriteString(".")
			return
		}
		b.WriteString("[^")
		writeRanges(b, gaps)
		b.WriteString("]")
		return
	}
	b.WriteString("[")
	writeRanges(b, ranges)
	b.WriteString("]")
}

func writeRanges(b *strings.Builder, ranges []rune) {
	for i := 0; i+1 < len(ranges); i += 2 {
		lo, hi := ranges[i], ranges[i+1]
		// NUL cannot occur in PostgreSQL text.
		if lo == 0 {
			lo = 1
		}
		if lo > hi {
			continue
		}
		writeRune(b, lo, classSpecial)
		if hi > lo {
			b.WriteString("-")
			writeRune(b, hi, classSpecial)
		}
	}
}

func writeRune(b *strings.Builder, r rune, special string) {
	switch {
	case r < 0x20 || r > 0x7e:
		if r > 0xffff {
			fmt.Fprintf(b, `\U%08x`, r)
		} else {
			fmt.Fprintf(b, `\u%04x`, r)
		}
	case strings.ContainsRune(special, r):
		b.WriteByte('\\')
		b.WriteRune(r)
	default:
		b.WriteRune(r)
	}
}
