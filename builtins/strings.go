package builtins

import (
	"regexp"
	"strings"
	"unicode"

	"silo/types"
)

func builtinLength(ctx *types.TaskContext, args []types.Value) types.Result {
	if len(args) != 1 {
		return types.Err(types.E_ARGS)
	}
	switch v := args[0].(type) {
	case types.StrValue:
		return types.Ok(types.NewInt(int64(len([]rune(v.Value())))))
	case types.ListValue:
		return types.Ok(types.NewInt(int64(v.Len())))
	default:
		return types.Err(types.E_TYPE)
	}
}

// builtinStrsub implements strsub(subject, old, new [, case_matters]).
func builtinStrsub(ctx *types.TaskContext, args []types.Value) types.Result {
	if len(args) < 3 || len(args) > 4 {
		return types.Err(types.E_ARGS)
	}
	subject, ok := args[0].(types.StrValue)
	if !ok {
		return types.Err(types.E_TYPE)
	}
	old, ok := args[1].(types.StrValue)
	if !ok {
		return types.Err(types.E_TYPE)
	}
	replacement, ok := args[2].(types.StrValue)
	if !ok {
		return types.Err(types.E_TYPE)
	}
	if old.Value() == "" {
		return types.Err(types.E_INVARG)
	}
	caseSensitive := len(args) == 4 && args[3].Truthy()

	if caseSensitive {
		return types.Ok(types.NewStr(strings.ReplaceAll(subject.Value(), old.Value(), replacement.Value())))
	}
	return types.Ok(types.NewStr(replaceAllCaseInsensitive(subject.Value(), old.Value(), replacement.Value())))
}

// runesEqual compares two runes, optionally folding case.
func runesEqual(a, b rune, caseSensitive bool) bool {
	if caseSensitive {
		return a == b
	}
	return unicode.ToLower(a) == unicode.ToLower(b)
}

// findNeedle scans hRunes[from:] for the first occurrence of nRunes and
// returns its 0-based index, or -1. When reverse is true it scans backward
// from the end instead, returning the last occurrence.
func findNeedle(hRunes, nRunes []rune, from int, caseSensitive, reverse bool) int {
	if len(nRunes) == 0 || len(nRunes) > len(hRunes) {
		return -1
	}
	matchAt := func(i int) bool {
		for j, nc := range nRunes {
			if !runesEqual(hRunes[i+j], nc, caseSensitive) {
				return false
			}
		}
		return true
	}
	if reverse {
		for i := len(hRunes) - len(nRunes); i >= 0; i-- {
			if matchAt(i) {
				return i
			}
		}
		return -1
	}
	for i := from; i <= len(hRunes)-len(nRunes); i++ {
		if matchAt(i) {
			return i
		}
	}
	return -1
}

// builtinIndex implements index(haystack, needle [, case_matters [, start]]).
func builtinIndex(ctx *types.TaskContext, args []types.Value) types.Result {
	if len(args) < 2 || len(args) > 4 {
		return types.Err(types.E_ARGS)
	}
	haystack, ok := args[0].(types.StrValue)
	if !ok {
		return types.Err(types.E_TYPE)
	}
	needle, ok := args[1].(types.StrValue)
	if !ok {
		return types.Err(types.E_TYPE)
	}
	caseSensitive := len(args) >= 3 && args[2].Truthy()

	start := 1
	if len(args) == 4 {
		startVal, ok := args[3].(types.IntValue)
		if !ok {
			return types.Err(types.E_TYPE)
		}
		start = int(startVal.Val)
	}
	if start < 1 {
		start = 1
	}

	hRunes, nRunes := []rune(haystack.Value()), []rune(needle.Value())
	if start-1 >= len(hRunes) {
		return types.Ok(types.NewInt(0))
	}
	if i := findNeedle(hRunes, nRunes, start-1, caseSensitive, false); i >= 0 {
		return types.Ok(types.NewInt(int64(i + 1)))
	}
	return types.Ok(types.NewInt(0))
}

// builtinRindex implements rindex(haystack, needle [, case_matters]).
func builtinRindex(ctx *types.TaskContext, args []types.Value) types.Result {
	if len(args) < 2 || len(args) > 4 {
		return types.Err(types.E_ARGS)
	}
	haystack, ok := args[0].(types.StrValue)
	if !ok {
		return types.Err(types.E_TYPE)
	}
	needle, ok := args[1].(types.StrValue)
	if !ok {
		return types.Err(types.E_TYPE)
	}
	caseSensitive := len(args) >= 3 && args[2].Truthy()

	hRunes, nRunes := []rune(haystack.Value()), []rune(needle.Value())
	if i := findNeedle(hRunes, nRunes, 0, caseSensitive, true); i >= 0 {
		return types.Ok(types.NewInt(int64(i + 1)))
	}
	return types.Ok(types.NewInt(0))
}

func builtinStrcmp(ctx *types.TaskContext, args []types.Value) types.Result {
	if len(args) != 2 {
		return types.Err(types.E_ARGS)
	}
	str1, ok := args[0].(types.StrValue)
	if !ok {
		return types.Err(types.E_TYPE)
	}
	str2, ok := args[1].(types.StrValue)
	if !ok {
		return types.Err(types.E_TYPE)
	}
	return types.Ok(types.NewInt(int64(strings.Compare(str1.Value(), str2.Value()))))
}

// stringUnary implements a single-string-argument builtin like
// upcase/downcase/capitalize that transforms and returns a string.
func stringUnary(args []types.Value, fn func(string) string) types.Result {
	if len(args) != 1 {
		return types.Err(types.E_ARGS)
	}
	str, ok := args[0].(types.StrValue)
	if !ok {
		return types.Err(types.E_TYPE)
	}
	return types.Ok(types.NewStr(fn(str.Value())))
}

func builtinUpcase(ctx *types.TaskContext, args []types.Value) types.Result {
	return stringUnary(args, strings.ToUpper)
}

func builtinDowncase(ctx *types.TaskContext, args []types.Value) types.Result {
	return stringUnary(args, strings.ToLower)
}

func builtinCapitalize(ctx *types.TaskContext, args []types.Value) types.Result {
	return stringUnary(args, strings.Title)
}

// builtinExplode implements explode(str [, delimiter]); with no delimiter
// it splits on runs of whitespace.
func builtinExplode(ctx *types.TaskContext, args []types.Value) types.Result {
	if len(args) < 1 || len(args) > 2 {
		return types.Err(types.E_ARGS)
	}
	str, ok := args[0].(types.StrValue)
	if !ok {
		return types.Err(types.E_TYPE)
	}

	var parts []string
	if len(args) == 1 {
		parts = strings.Fields(str.Value())
	} else {
		delim, ok := args[1].(types.StrValue)
		if !ok {
			return types.Err(types.E_TYPE)
		}
		parts = strings.Split(str.Value(), delim.Value())
	}

	values := make([]types.Value, len(parts))
	for i, part := range parts {
		values[i] = types.NewStr(part)
	}
	return types.Ok(types.NewList(values))
}

// builtinImplode implements implode(list [, delimiter]).
func builtinImplode(ctx *types.TaskContext, args []types.Value) types.Result {
	if len(args) < 1 || len(args) > 2 {
		return types.Err(types.E_ARGS)
	}
	list, ok := args[0].(types.ListValue)
	if !ok {
		return types.Err(types.E_TYPE)
	}
	delimiter := ""
	if len(args) == 2 {
		delim, ok := args[1].(types.StrValue)
		if !ok {
			return types.Err(types.E_TYPE)
		}
		delimiter = delim.Value()
	}

	parts := make([]string, list.Len())
	for i := 1; i <= list.Len(); i++ {
		str, ok := list.Get(i).(types.StrValue)
		if !ok {
			return types.Err(types.E_TYPE)
		}
		parts[i-1] = str.Value()
	}
	return types.Ok(types.NewStr(strings.Join(parts, delimiter)))
}

// trimBuiltin implements trim/ltrim/rtrim: whitespaceFn trims runs matched
// by unicode.IsSpace when no explicit character set is given, charsFn trims
// the caller-supplied set.
func trimBuiltin(args []types.Value, whitespaceFn func(string, func(rune) bool) string, charsFn func(string, string) string) types.Result {
	if len(args) < 1 || len(args) > 2 {
		return types.Err(types.E_ARGS)
	}
	str, ok := args[0].(types.StrValue)
	if !ok {
		return types.Err(types.E_TYPE)
	}
	if len(args) == 1 {
		return types.Ok(types.NewStr(whitespaceFn(str.Value(), unicode.IsSpace)))
	}
	chars, ok := args[1].(types.StrValue)
	if !ok {
		return types.Err(types.E_TYPE)
	}
	return types.Ok(types.NewStr(charsFn(str.Value(), chars.Value())))
}

func builtinTrim(ctx *types.TaskContext, args []types.Value) types.Result {
	return trimBuiltin(args, func(s string, _ func(rune) bool) string { return strings.TrimSpace(s) }, strings.Trim)
}

func builtinLtrim(ctx *types.TaskContext, args []types.Value) types.Result {
	return trimBuiltin(args, strings.TrimLeftFunc, strings.TrimLeft)
}

func builtinRtrim(ctx *types.TaskContext, args []types.Value) types.Result {
	return trimBuiltin(args, strings.TrimRightFunc, strings.TrimRight)
}

// ============================================================================
// HELPER FUNCTIONS
// ============================================================================

// lastMatchIndex returns the index within fromRunes of the last rune equal
// to ch (duplicates: later entries in from win), or -1 if none match.
func lastMatchIndex(ch rune, fromRunes []rune, caseSensitive bool) int {
	matchIdx := -1
	for i, fc := range fromRunes {
		if runesEqual(ch, fc, caseSensitive) {
			matchIdx = i
		}
	}
	return matchIdx
}

// builtinStrtr implements strtr(str, from, to [, case_matters]): each
// character in str matching a character in from is replaced by the
// corresponding character in to (by position); characters whose position in
// from has no counterpart in to are deleted entirely.
func builtinStrtr(ctx *types.TaskContext, args []types.Value) types.Result {
	if len(args) < 3 || len(args) > 4 {
		return types.Err(types.E_ARGS)
	}
	str, ok := args[0].(types.StrValue)
	if !ok {
		return types.Err(types.E_TYPE)
	}
	from, ok := args[1].(types.StrValue)
	if !ok {
		return types.Err(types.E_TYPE)
	}
	to, ok := args[2].(types.StrValue)
	if !ok {
		return types.Err(types.E_TYPE)
	}
	caseSensitive := len(args) == 4 && args[3].Truthy()

	fromRunes := []rune(from.Value())
	if len(fromRunes) == 0 {
		return types.Ok(str)
	}
	toRunes := []rune(to.Value())

	var result []rune
	for _, ch := range str.Value() {
		idx := lastMatchIndex(ch, fromRunes, caseSensitive)
		switch {
		case idx < 0:
			result = append(result, ch)
		case idx < len(toRunes):
			replacement := toRunes[idx]
			if !caseSensitive {
				switch {
				case unicode.IsUpper(ch):
					replacement = unicode.ToUpper(replacement)
				case unicode.IsLower(ch):
					replacement = unicode.ToLower(replacement)
				}
			}
			result = append(result, replacement)
		default:
			// to is shorter than from at this position: delete the character.
		}
	}
	return types.Ok(types.NewStr(string(result)))
}

// replaceAllCaseInsensitive replaces every non-overlapping, case-insensitive
// occurrence of old in s with replacement.
func replaceAllCaseInsensitive(s, old, replacement string) string {
	sRunes, oldRunes := []rune(s), []rune(old)
	if len(oldRunes) == 0 {
		return s
	}

	var out []rune
	i := 0
	for i < len(sRunes) {
		if match := findNeedle(sRunes, oldRunes, i, false, false); match == i {
			out = append(out, []rune(replacement)...)
			i += len(oldRunes)
			continue
		}
		out = append(out, sRunes[i])
		i++
	}
	return string(out)
}

// ============================================================================
// PATTERN MATCHING: match, rmatch, substitute
// ============================================================================
//
// match/rmatch/substitute use the classic MOO pattern dialect rather than
// PCRE (that's pcre_match/pcre_replace in compat_extensions.go): parentheses
// and '|' are literal characters unless escaped with '%', and '%(' / '%)' /
// '%|' mark grouping and alternation instead.

// translateMOOPattern converts a MOO pattern into an RE2 expression.
// Backreferences (%1-%9) inside the pattern itself are not representable in
// RE2; they degrade to "any character" rather than failing to compile.
func translateMOOPattern(pattern string, caseMatters bool) (*regexp.Regexp, error) {
	var out strings.Builder
	runes := []rune(pattern)
	for i := 0; i < len(runes); {
		switch c := runes[i]; c {
		case '%':
			i++
			if i >= len(runes) {
				out.WriteString(`%`)
				break
			}
			switch e := runes[i]; {
			case e == '(':
				out.WriteString("(")
			case e == ')':
				out.WriteString(")")
			case e == '|':
				out.WriteString("|")
			case e == 'b':
				out.WriteString(`\b`)
			case e == 'B':
				out.WriteString(`\B`)
			case e == 'w':
				out.WriteString(`\w`)
			case e == 'W':
				out.WriteString(`\W`)
			case e >= '1' && e <= '9':
				out.WriteString(`.`)
			default:
				out.WriteString(regexp.QuoteMeta(string(e)))
			}
			i++
		case '(', ')', '|', '{', '}':
			out.WriteString(regexp.QuoteMeta(string(c)))
			i++
		case '[':
			j := i + 1
			if j < len(runes) && runes[j] == '^' {
				j++
			}
			if j < len(runes) && runes[j] == ']' {
				j++
			}
			for j < len(runes) && runes[j] != ']' {
				j++
			}
			if j < len(runes) {
				out.WriteString(string(runes[i : j+1]))
				i = j + 1
			} else {
				out.WriteString(`\[`)
				i++
			}
		case '.', '*', '+', '?', '^', '$':
			out.WriteRune(c)
			i++
		default:
			out.WriteString(regexp.QuoteMeta(string(c)))
			i++
		}
	}
	expr := out.String()
	if !caseMatters {
		expr = "(?i)" + expr
	}
	return regexp.Compile(expr)
}

// runeOffset returns the number of runes in s[:byteOffset].
func runeOffset(s string, byteOffset int) int {
	return len([]rune(s[:byteOffset]))
}

// buildMatchResult assembles the {start, end, replacements, subject} list
// match()/rmatch() return for a regexp submatch location (byte offsets, as
// produced by (*regexp.Regexp).FindStringSubmatchIndex).
func buildMatchResult(subject string, loc []int) types.Value {
	start := runeOffset(subject, loc[0]) + 1
	end := runeOffset(subject, loc[1])

	groups := make([]types.Value, 9)
	for g := 1; g <= 9; g++ {
		idx := g * 2
		if idx+1 < len(loc) && loc[idx] >= 0 {
			gs := runeOffset(subject, loc[idx]) + 1
			ge := runeOffset(subject, loc[idx+1])
			groups[g-1] = types.NewList([]types.Value{types.NewInt(int64(gs)), types.NewInt(int64(ge))})
		} else {
			groups[g-1] = types.NewList([]types.Value{types.NewInt(0), types.NewInt(-1)})
		}
	}

	return types.NewList([]types.Value{
		types.NewInt(int64(start)),
		types.NewInt(int64(end)),
		types.NewList(groups),
		types.NewStr(subject),
	})
}

func parseMatchArgs(args []types.Value) (subject, pattern types.StrValue, caseMatters bool, errc types.ErrorCode) {
	if len(args) < 2 || len(args) > 3 {
		errc = types.E_ARGS
		return
	}
	var ok bool
	subject, ok = args[0].(types.StrValue)
	if !ok {
		errc = types.E_TYPE
		return
	}
	pattern, ok = args[1].(types.StrValue)
	if !ok {
		errc = types.E_TYPE
		return
	}
	caseMatters = len(args) == 3 && args[2].Truthy()
	return
}

// builtinMatch implements match(subject, pattern [, case_matters]),
// returning the leftmost match or {} if none is found.
func builtinMatch(ctx *types.TaskContext, args []types.Value) types.Result {
	subject, pattern, caseMatters, errc := parseMatchArgs(args)
	if errc != types.E_NONE {
		return types.Err(errc)
	}
	re, err := translateMOOPattern(pattern.Value(), caseMatters)
	if err != nil {
		return types.Err(types.E_INVARG)
	}
	loc := re.FindStringSubmatchIndex(subject.Value())
	if loc == nil {
		return types.Ok(types.NewList([]types.Value{}))
	}
	return types.Ok(buildMatchResult(subject.Value(), loc))
}

// builtinRmatch implements rmatch(subject, pattern [, case_matters]),
// returning the rightmost match or {} if none is found.
func builtinRmatch(ctx *types.TaskContext, args []types.Value) types.Result {
	subject, pattern, caseMatters, errc := parseMatchArgs(args)
	if errc != types.E_NONE {
		return types.Err(errc)
	}
	re, err := translateMOOPattern(pattern.Value(), caseMatters)
	if err != nil {
		return types.Err(types.E_INVARG)
	}
	all := re.FindAllStringSubmatchIndex(subject.Value(), -1)
	if len(all) == 0 {
		return types.Ok(types.NewList([]types.Value{}))
	}
	return types.Ok(buildMatchResult(subject.Value(), all[len(all)-1]))
}

// runeSliceInclusive returns the 1-based inclusive rune range [start, end]
// of s, or "" if the range is empty or invalid.
func runeSliceInclusive(s string, start, end int) string {
	if start < 1 || end < start {
		return ""
	}
	runes := []rune(s)
	if start > len(runes) {
		return ""
	}
	if end > len(runes) {
		end = len(runes)
	}
	return string(runes[start-1 : end])
}

// builtinSubstitute implements substitute(template, match_result), replacing
// %1-%9 with the corresponding captured substring, %0 with the whole match,
// and %% with a literal percent sign.
func builtinSubstitute(ctx *types.TaskContext, args []types.Value) types.Result {
	if len(args) != 2 {
		return types.Err(types.E_ARGS)
	}
	tmpl, ok := args[0].(types.StrValue)
	if !ok {
		return types.Err(types.E_TYPE)
	}
	matchResult, ok := args[1].(types.ListValue)
	if !ok || matchResult.Len() != 4 {
		return types.Err(types.E_INVARG)
	}
	start, ok1 := matchResult.Get(1).(types.IntValue)
	end, ok2 := matchResult.Get(2).(types.IntValue)
	repls, ok3 := matchResult.Get(3).(types.ListValue)
	subject, ok4 := matchResult.Get(4).(types.StrValue)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return types.Err(types.E_INVARG)
	}

	t := []rune(tmpl.Value())
	var out strings.Builder
	for i := 0; i < len(t); i++ {
		if t[i] != '%' || i+1 >= len(t) {
			out.WriteRune(t[i])
			continue
		}
		switch d := t[i+1]; {
		case d == '%':
			out.WriteRune('%')
			i++
		case d >= '0' && d <= '9':
			n := int(d - '0')
			if n == 0 {
				out.WriteString(runeSliceInclusive(subject.Value(), int(start.Val), int(end.Val)))
			} else {
				if n > repls.Len() {
					return types.Err(types.E_INVARG)
				}
				pair, ok := repls.Get(n).(types.ListValue)
				if !ok || pair.Len() != 2 {
					return types.Err(types.E_INVARG)
				}
				ps, okp1 := pair.Get(1).(types.IntValue)
				pe, okp2 := pair.Get(2).(types.IntValue)
				if !okp1 || !okp2 {
					return types.Err(types.E_INVARG)
				}
				out.WriteString(runeSliceInclusive(subject.Value(), int(ps.Val), int(pe.Val)))
			}
			i++
		default:
			return types.Err(types.E_INVARG)
		}
	}
	return types.Ok(types.NewStr(out.String()))
}
