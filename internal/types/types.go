// Package types implements the engine's declared-type coercion: parsing
// strings or native values into the attribute/parameter types that a
// QueryDefinition declares.
package types

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/queryreg/engine/internal/queryerr"
)

// Kind is a declared attribute/parameter type.
type Kind string

const (
	KindString        Kind = "string"
	KindInteger       Kind = "integer"
	KindLong          Kind = "long"
	KindDecimal       Kind = "decimal"
	KindBoolean       Kind = "boolean"
	KindLocalDate     Kind = "local-date"
	KindLocalDateTime Kind = "local-date-time"
	KindStringList    Kind = "string-list"
	KindIntegerList   Kind = "integer-list"
)

const (
	dateLayout     = "2006-01-02"
	dateTimeLayout = "2006-01-02T15:04:05"
)

// IsList reports whether k denotes a homogeneous list type.
func (k Kind) IsList() bool {
	return strings.HasSuffix(string(k), "-list")
}

// ElementKind returns the scalar element type backing a list kind.
func (k Kind) ElementKind() Kind {
	switch k {
	case KindStringList:
		return KindString
	case KindIntegerList:
		return KindInteger
	default:
		return KindString
	}
}

// Coerce converts raw (a string from a URL/JSON, or a native Go value
// already of a compatible type) into the declared Kind. Null and empty
// string map to nil so that ParamDef defaults can apply.
func Coerce(kind Kind, raw interface{}) (interface{}, error) {
	if raw == nil {
		return nil, nil
	}
	if s, ok := raw.(string); ok && strings.TrimSpace(s) == "" {
		return nil, nil
	}

	if kind.IsList() {
		return coerceList(kind, raw)
	}

	switch kind {
	case KindString:
		return coerceString(raw)
	case KindInteger:
		return coerceInt(raw)
	case KindLong:
		return coerceLong(raw)
	case KindDecimal:
		return coerceDecimal(raw)
	case KindBoolean:
		return coerceBool(raw)
	case KindLocalDate:
		return coerceDate(raw)
	case KindLocalDateTime:
		return coerceDateTime(raw)
	default:
		return raw, nil
	}
}

func invalid(kind Kind, raw interface{}, cause error) error {
	return queryerr.Wrap(queryerr.CodeValidationErr,
		fmt.Sprintf("cannot coerce %v to %s", raw, kind), cause)
}

func coerceString(raw interface{}) (interface{}, error) {
	switch v := raw.(type) {
	case string:
		return v, nil
	case fmt.Stringer:
		return v.String(), nil
	default:
		return fmt.Sprintf("%v", v), nil
	}
}

func coerceInt(raw interface{}) (interface{}, error) {
	switch v := raw.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return nil, invalid(KindInteger, raw, err)
		}
		return n, nil
	default:
		return nil, invalid(KindInteger, raw, nil)
	}
}

func coerceLong(raw interface{}) (interface{}, error) {
	switch v := raw.(type) {
	case int:
		return int64(v), nil
	case int64:
		return v, nil
	case float64:
		return int64(v), nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return nil, invalid(KindLong, raw, err)
		}
		return n, nil
	default:
		return nil, invalid(KindLong, raw, nil)
	}
}

func coerceDecimal(raw interface{}) (interface{}, error) {
	switch v := raw.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, invalid(KindDecimal, raw, err)
		}
		return f, nil
	default:
		return nil, invalid(KindDecimal, raw, nil)
	}
}

func coerceBool(raw interface{}) (interface{}, error) {
	switch v := raw.(type) {
	case bool:
		return v, nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return nil, invalid(KindBoolean, raw, err)
		}
		return b, nil
	default:
		return nil, invalid(KindBoolean, raw, nil)
	}
}

func coerceDate(raw interface{}) (interface{}, error) {
	switch v := raw.(type) {
	case time.Time:
		return v, nil
	case string:
		t, err := time.Parse(dateLayout, strings.TrimSpace(v))
		if err != nil {
			return nil, invalid(KindLocalDate, raw, err)
		}
		return t, nil
	default:
		return nil, invalid(KindLocalDate, raw, nil)
	}
}

func coerceDateTime(raw interface{}) (interface{}, error) {
	switch v := raw.(type) {
	case time.Time:
		return v, nil
	case string:
		s := strings.TrimSpace(v)
		if t, err := time.Parse(dateTimeLayout, s); err == nil {
			return t, nil
		}
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return nil, invalid(KindLocalDateTime, raw, err)
		}
		return t, nil
	default:
		return nil, invalid(KindLocalDateTime, raw, nil)
	}
}

func coerceList(kind Kind, raw interface{}) (interface{}, error) {
	elem := kind.ElementKind()

	var items []interface{}
	switch v := raw.(type) {
	case []interface{}:
		items = v
	case []string:
		for _, s := range v {
			items = append(items, s)
		}
	case string:
		for _, part := range strings.Split(v, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			items = append(items, part)
		}
	default:
		return nil, invalid(kind, raw, nil)
	}

	out := make([]interface{}, 0, len(items))
	for _, item := range items {
		v, err := Coerce(elem, item)
		if err != nil {
			return nil, err
		}
		if v != nil {
			out = append(out, v)
		}
	}
	return out, nil
}

// sqlTypeKinds maps a driver-advertised DatabaseTypeName (already
// upper-cased by callers) to the declared Kind it should back when a
// column is discovered rather than statically declared. Unrecognized
// names fall back to KindString.
var sqlTypeKinds = map[string]Kind{
	"NUMERIC":         KindDecimal,
	"DECIMAL":         KindDecimal,
	"FLOAT":           KindDecimal,
	"DOUBLE":          KindDecimal,
	"REAL":            KindDecimal,
	"INT":             KindInteger,
	"INT4":            KindInteger,
	"INTEGER":         KindInteger,
	"SMALLINT":        KindInteger,
	"TINYINT":         KindInteger,
	"BIGINT":          KindLong,
	"INT8":            KindLong,
	"BOOL":            KindBoolean,
	"BOOLEAN":         KindBoolean,
	"BIT":             KindBoolean,
	"DATE":            KindLocalDate,
	"TIMESTAMP":       KindLocalDateTime,
	"DATETIME":        KindLocalDateTime,
	"DATETIME2":       KindLocalDateTime,
	"TIMESTAMPTZ":     KindLocalDateTime,
	"VARCHAR":         KindString,
	"VARCHAR2":        KindString,
	"NVARCHAR":        KindString,
	"CHAR":            KindString,
	"TEXT":            KindString,
	"CLOB":            KindString,
	"UUID":            KindString,
}

// KindFromSQLType resolves the declared Kind a dynamically discovered
// column should use, per the table above. Matching is case-insensitive
// and tolerant of a driver appending a size suffix (e.g. "VARCHAR(255)").
func KindFromSQLType(sqlType string) Kind {
	name := strings.ToUpper(strings.TrimSpace(sqlType))
	if i := strings.IndexByte(name, '('); i >= 0 {
		name = name[:i]
	}
	if k, ok := sqlTypeKinds[name]; ok {
		return k
	}
	return KindString
}

// ParseHeuristic is the fallback chain for request values with no
// declared type: boolean -> integer -> decimal -> ISO date -> ISO
// date-time -> string.
func ParseHeuristic(raw string) interface{} {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t
	}
	if t, err := time.Parse(dateTimeLayout, s); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	return s
}
