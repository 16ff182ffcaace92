package builtins

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	"silo/types"
)

func builtinGenerateJson(ctx *types.TaskContext, args []types.Value) types.Result {
	if len(args) < 1 || len(args) > 2 {
		return types.Err(types.E_ARGS)
	}

	value := args[0]
	pretty := false
	embeddedTypes := false

	if len(args) > 1 {
		optsVal, ok := args[1].(types.StrValue)
		if !ok {
			return types.Err(types.E_TYPE)
		}
		opts := optsVal.Value()
		if opts != "" && opts != "common-subset" && opts != "embedded-types" &&
			!strings.HasPrefix(opts, "pretty") && !strings.Contains(opts, "embedded") {
			return types.Err(types.E_INVARG)
		}
		pretty = strings.Contains(opts, "pretty")
		embeddedTypes = strings.Contains(opts, "embedded")
	}

	jsonValue, err := mooToJSON(value, embeddedTypes, false)
	if err != types.E_NONE {
		return types.Err(err)
	}

	var data []byte
	var jsonErr error
	if pretty {
		data, jsonErr = json.MarshalIndent(jsonValue, "", "  ")
	} else {
		data, jsonErr = json.Marshal(jsonValue)
	}
	if jsonErr != nil {
		return types.Err(types.E_INVARG)
	}

	return types.Ok(types.NewStr(uppercaseUnicodeEscapes(string(data))))
}

// formatJSONFloat renders f the way MOO's JSON codec does: always with a
// decimal point or exponent, even for whole numbers.
func formatJSONFloat(f float64) string {
	s := fmt.Sprintf("%g", f)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

// mooToJSON converts a MOO value into a value the encoding/json package can
// marshal. embeddedTypes appends a |type suffix so parse_json can recover
// the original MOO type; isKey marks that v is being rendered as a map key
// rather than a value (keys are always strings in JSON).
func mooToJSON(v types.Value, embeddedTypes bool, isKey bool) (interface{}, types.ErrorCode) {
	switch val := v.(type) {
	case types.IntValue:
		if embeddedTypes && isKey {
			return fmt.Sprintf("%d|int", val.Val), types.E_NONE
		}
		return val.Val, types.E_NONE

	case types.FloatValue:
		if math.IsNaN(val.Val) || math.IsInf(val.Val, 0) {
			return nil, types.E_FLOAT
		}
		s := formatJSONFloat(val.Val)
		if embeddedTypes && isKey {
			return s + "|float", types.E_NONE
		}
		return json.Number(s), types.E_NONE

	case types.StrValue:
		return decodeBinaryEscapes(val.Value()), types.E_NONE

	case types.BoolValue:
		return val.Val, types.E_NONE

	case types.ObjValue:
		if embeddedTypes {
			return fmt.Sprintf("#%d|obj", val.ID()), types.E_NONE
		}
		return fmt.Sprintf("#%d", val.ID()), types.E_NONE

	case types.ErrValue:
		if embeddedTypes {
			return val.String() + "|err", types.E_NONE
		}
		return val.String(), types.E_NONE

	case types.ListValue:
		arr := make([]interface{}, val.Len())
		for i := 1; i <= val.Len(); i++ {
			elem, err := mooToJSON(val.Get(i), embeddedTypes, false)
			if err != types.E_NONE {
				return nil, err
			}
			arr[i-1] = elem
		}
		return arr, types.E_NONE

	case types.MapValue:
		return mapToOrderedJSON(val, embeddedTypes)

	default:
		return nil, types.E_TYPE
	}
}

func jsonKeyString(key types.Value, embeddedTypes bool) (string, types.ErrorCode) {
	if embeddedTypes {
		keyVal, err := mooToJSON(key, true, true)
		if err != types.E_NONE {
			return "", err
		}
		return fmt.Sprintf("%v", keyVal), types.E_NONE
	}
	if strKey, ok := key.(types.StrValue); ok {
		return strKey.Value(), types.E_NONE
	}
	return key.String(), types.E_NONE
}

func mapToOrderedJSON(m types.MapValue, embeddedTypes bool) (interface{}, types.ErrorCode) {
	pairs := append([][2]types.Value(nil), m.Pairs()...)
	sortMapPairsForJSON(pairs)

	om := &orderedMap{entries: make([]orderedMapEntry, len(pairs))}
	for i, pair := range pairs {
		keyStr, err := jsonKeyString(pair[0], embeddedTypes)
		if err != types.E_NONE {
			return nil, err
		}
		value, err := mooToJSON(pair[1], embeddedTypes, false)
		if err != types.E_NONE {
			return nil, err
		}
		om.entries[i] = orderedMapEntry{key: keyStr, value: value}
	}
	return om, types.E_NONE
}

// builtinParseJson parses parse_json(string [, mode]); mode may contain
// "embedded" to request type-annotated string decoding.
func builtinParseJson(ctx *types.TaskContext, args []types.Value) types.Result {
	if len(args) < 1 || len(args) > 2 {
		return types.Err(types.E_ARGS)
	}
	strVal, ok := args[0].(types.StrValue)
	if !ok {
		return types.Err(types.E_TYPE)
	}

	embeddedTypes := false
	if len(args) == 2 {
		modeVal, ok := args[1].(types.StrValue)
		if !ok {
			return types.Err(types.E_TYPE)
		}
		embeddedTypes = strings.Contains(modeVal.Value(), "embedded")
	}

	// A Decoder (rather than Unmarshal) stops at the first complete value,
	// so parse_json("12abc") yields 12 instead of erroring on trailing junk.
	var data interface{}
	decoder := json.NewDecoder(strings.NewReader(strVal.Value()))
	if err := decoder.Decode(&data); err != nil {
		return types.Err(types.E_INVARG)
	}
	return types.Ok(jsonToMOO(data, embeddedTypes))
}

func jsonToMOO(v interface{}, embeddedTypes bool) types.Value {
	switch val := v.(type) {
	case nil:
		return types.NewInt(0)

	case bool:
		return types.NewBool(val)

	case float64:
		if val == float64(int64(val)) && val >= float64(math.MinInt32) && val <= float64(math.MaxInt32) {
			return types.NewInt(int64(val))
		}
		return types.NewFloat(val)

	case string:
		if embeddedTypes {
			if parsed, ok := parseEmbeddedType(val); ok {
				return parsed
			}
		}
		return types.NewStr(encodeBinaryEscapes(val))

	case []interface{}:
		elements := make([]types.Value, len(val))
		for i, item := range val {
			elements[i] = jsonToMOO(item, embeddedTypes)
		}
		return types.NewList(elements)

	case map[string]interface{}:
		pairs := make([][2]types.Value, 0, len(val))
		for k, v := range val {
			keyVal := types.Value(types.NewStr(k))
			if embeddedTypes {
				if parsed, ok := parseEmbeddedType(k); ok {
					keyVal = parsed
				}
			}
			pairs = append(pairs, [2]types.Value{keyVal, jsonToMOO(v, embeddedTypes)})
		}
		return types.NewMap(pairs)

	default:
		return types.NewInt(0)
	}
}

// parseEmbeddedType decodes a type-annotated string like "123|int" or
// "#5|obj" back into the MOO value it came from. An empty prefix is valid
// and yields that type's zero value.
func parseEmbeddedType(s string) (types.Value, bool) {
	switch {
	case strings.HasSuffix(s, "|int"):
		numStr := s[:len(s)-4]
		if numStr == "" {
			return types.NewInt(0), true
		}
		var n int64
		if _, err := fmt.Sscanf(numStr, "%d", &n); err == nil {
			return types.NewInt(n), true
		}

	case strings.HasSuffix(s, "|float"):
		numStr := s[:len(s)-6]
		if numStr == "" {
			return types.NewFloat(0.0), true
		}
		var f float64
		if _, err := fmt.Sscanf(numStr, "%f", &f); err == nil {
			return types.NewFloat(f), true
		}

	case strings.HasSuffix(s, "|str"):
		return types.NewStr(s[:len(s)-4]), true

	case strings.HasSuffix(s, "|obj"):
		objStr := s[:len(s)-4]
		if objStr == "" {
			return types.NewObj(0), true
		}
		if strings.HasPrefix(objStr, "#") {
			var id int64
			if _, err := fmt.Sscanf(objStr[1:], "%d", &id); err == nil {
				return types.NewObj(types.ObjID(id)), true
			}
		}

	case strings.HasSuffix(s, "|err"):
		errStr := s[:len(s)-4]
		if errStr == "" {
			return types.NewErr(types.E_NONE), true
		}
		if errCode, ok := types.ErrorFromString(errStr); ok {
			return types.NewErr(errCode), true
		}
	}
	return nil, false
}

func uppercaseUnicodeEscapes(s string) string {
	var result strings.Builder
	i := 0
	for i < len(s) {
		if i+5 < len(s) && s[i] == '\\' && s[i+1] == 'u' {
			result.WriteString("\\u")
			result.WriteString(strings.ToUpper(s[i+2 : i+6]))
			i += 6
			continue
		}
		result.WriteByte(s[i])
		i++
	}
	return result.String()
}

// encodeBinaryEscapes converts non-printable and non-ASCII bytes to ~XX
// form, the inverse of decodeBinaryEscapes.
func encodeBinaryEscapes(s string) string {
	const hexDigits = "0123456789ABCDEF"
	var result strings.Builder
	for _, b := range []byte(s) {
		switch {
		case b == '~':
			result.WriteString("~7E")
		case b < 32 || b > 126:
			result.WriteByte('~')
			result.WriteByte(hexDigits[b>>4])
			result.WriteByte(hexDigits[b&0xF])
		default:
			result.WriteByte(b)
		}
	}
	return result.String()
}

// decodeBinaryEscapes decodes only the ~XX escapes that represent control
// characters (0x00-0x1F), leaving ~20-~7F and ~80-~FF as literal text so
// encoding/json can render the control characters as \uXXXX itself.
func decodeBinaryEscapes(s string) string {
	var result strings.Builder
	i := 0
	for i < len(s) {
		if i+2 < len(s) && s[i] == '~' {
			if hi, ok1 := hexDigit(s[i+1]); ok1 {
				if lo, ok2 := hexDigit(s[i+2]); ok2 {
					if b := byte(hi<<4 | lo); b < 0x20 {
						result.WriteByte(b)
						i += 3
						continue
					}
				}
			}
		}
		result.WriteByte(s[i])
		i++
	}
	return result.String()
}

func hexDigit(c byte) (int, bool) {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0'), true
	case c >= 'A' && c <= 'F':
		return int(c-'A') + 10, true
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10, true
	default:
		return 0, false
	}
}

// orderedMap marshals to a JSON object preserving the entry order it was
// built with, instead of Go map's randomized iteration order.
type orderedMapEntry struct {
	key   string
	value interface{}
}

type orderedMap struct {
	entries []orderedMapEntry
}

func (om *orderedMap) MarshalJSON() ([]byte, error) {
	var buf strings.Builder
	buf.WriteByte('{')
	for i, entry := range om.entries {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyJSON, err := json.Marshal(entry.key)
		if err != nil {
			return nil, err
		}
		buf.Write(keyJSON)
		buf.WriteByte(':')
		valJSON, err := json.Marshal(entry.value)
		if err != nil {
			return nil, err
		}
		buf.Write(valJSON)
	}
	buf.WriteByte('}')
	return []byte(buf.String()), nil
}

func sortMapPairsForJSON(pairs [][2]types.Value) {
	sort.Slice(pairs, func(i, j int) bool {
		return compareJSONKeys(pairs[i][0], pairs[j][0]) < 0
	})
}

func jsonKeyRank(v types.Value) int {
	switch v.(type) {
	case types.IntValue:
		return 0
	case types.ObjValue:
		return 1
	case types.FloatValue:
		return 2
	case types.ErrValue:
		return 3
	case types.StrValue:
		return 4
	default:
		return 5
	}
}

// compareJSONKeys orders MOO map keys the way the reference server does:
// INT < OBJ < FLOAT < ERR < STR, strings compared case-insensitively.
func compareJSONKeys(a, b types.Value) int {
	if ra, rb := jsonKeyRank(a), jsonKeyRank(b); ra != rb {
		return ra - rb
	}
	switch av := a.(type) {
	case types.IntValue:
		bv := b.(types.IntValue)
		switch {
		case av.Val < bv.Val:
			return -1
		case av.Val > bv.Val:
			return 1
		default:
			return 0
		}
	case types.FloatValue:
		bv := b.(types.FloatValue)
		switch {
		case av.Val < bv.Val:
			return -1
		case av.Val > bv.Val:
			return 1
		default:
			return 0
		}
	case types.ObjValue:
		bv := b.(types.ObjValue)
		switch {
		case av.ID() < bv.ID():
			return -1
		case av.ID() > bv.ID():
			return 1
		default:
			return 0
		}
	case types.ErrValue:
		bv := b.(types.ErrValue)
		switch {
		case av.Code() < bv.Code():
			return -1
		case av.Code() > bv.Code():
			return 1
		default:
			return 0
		}
	case types.StrValue:
		return strings.Compare(strings.ToLower(av.Value()), strings.ToLower(b.(types.StrValue).Value()))
	default:
		return 0
	}
}
