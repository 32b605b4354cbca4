// Package types provides shared value conversion helpers for gopromote.
package types

import (
	"database/sql"
	"fmt"
	"strconv"
)

// ToInt64 converts a scanned database value to int64. Unconvertible values
// yield 0.
func ToInt64(v interface{}) int64 {
	switch i := v.(type) {
	case int64:
		return i
	case int:
		return int64(i)
	case int32:
		return int64(i)
	case int16:
		return int64(i)
	case int8:
		return int64(i)
	case uint:
		return int64(i)
	case uint64:
		return int64(i)
	case uint32:
		return int64(i)
	case uint16:
		return int64(i)
	case uint8:
		return int64(i)
	case float64:
		return int64(i)
	case float32:
		return int64(i)
	case []byte:
		n, _ := strconv.ParseInt(string(i), 10, 64)
		return n
	case string:
		n, _ := strconv.ParseInt(i, 10, 64)
		return n
	case sql.NullInt64:
		if i.Valid {
			return i.Int64
		}
		return 0
	default:
		return 0
	}
}

// ToString converts a scanned database value to its string form.
// Nil values return the empty string; IsNull distinguishes the two.
func ToString(v interface{}) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case []byte:
		return string(s)
	case int64:
		return strconv.FormatInt(s, 10)
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(s)
	case sql.NullString:
		if s.Valid {
			return s.String
		}
		return ""
	default:
		return fmt.Sprintf("%v", s)
	}
}

// IsNull reports whether a scanned database value is a true NULL.
func IsNull(v interface{}) bool {
	switch s := v.(type) {
	case nil:
		return true
	case sql.NullString:
		return !s.Valid
	case sql.NullInt64:
		return !s.Valid
	case sql.NullFloat64:
		return !s.Valid
	default:
		return false
	}
}
