// internal/store/pattern.go
package store

import (
	"errors"
	"fmt"
	"regexp/syntax"
)

// MaxPatternRepeat is the largest {n,m} bound a Regex pattern may use.
const MaxPatternRepeat = 255

// ParsePattern parses the pattern of a Regex predicate and checks that it stays
// inside the subset every adapter evaluates alike: literals, character classes,
// the ^ and $ text anchors, \b and \B, greedy repetition, groups and alternation.
func ParsePattern(pattern string) (*syntax.Regexp, error) {
	re, err := syntax.Parse(pattern, syntax.Perl)
	if err != nil {
		return nil, err
	}
	if err := checkPattern(re); err != nil {
		return nil, err
	}
	return re, nil
}

func checkPattern(re *syntax.Regexp) error {
	switch re.Op {
	case syntax.OpLiteral:
		for _, r := range re.Rune {
			if r == 0 {
				return errors.New("NUL characters are not supported")
			}
		}
	case syntax.OpCharClass:
		if len(re.Rune) == 2 && re.Rune[0] == 0 && re.Rune[1] == 0 {
			return errors.New("NUL characters are not supported")
		}
	case syntax.OpAnyChar, syntax.OpAnyCharNotNL, syntax.OpBeginText, syntax.OpEndText,
		syntax.OpWordBoundary, syntax.OpNoWordBoundary, syntax.OpEmptyMatch,
		syntax.OpConcat, syntax.OpAlternate:
	case syntax.OpCapture:
		if re.Name != "" {
			return fmt.Errorf("named group %q is not supported", re.Name)
		}
	case syntax.OpStar, syntax.OpPlus, syntax.OpQuest, syntax.OpRepeat:
		if re.Flags&syntax.NonGreedy != 0 {
			return errors.New("non-greedy repetition is not supported")
		}
		if re.Op == syntax.OpRepeat && (re.Min > MaxPatternRepeat || re.Max > MaxPatternRepeat) {
			return fmt.Errorf("repetition bounds above %d are not supported", MaxPatternRepeat)
		}
	case syntax.OpBeginLine, syntax.OpEndLine:
		return errors.New("multi-line anchors are not supported")
	default:
		return fmt.Errorf("%q is not supported", re.String())
	}
	for _, sub := range re.Sub {
		if err := checkPattern(sub); err != nil {
			return err
		}
	}
	return nil
}
