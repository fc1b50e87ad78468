package pgconn

import (
	"fmt"
	"strconv"
)

// encodeParams converts caller-supplied Go values to PostgreSQL text-format
// parameter bytes. Rich, type-driven SQL value mapping is explicitly out of
// core (spec.md §1) — this covers the primitive scalars a caller needs to
// drive a query, nothing more; anything else is a to_sql error the caller
// can work around by passing pre-encoded []byte directly.
func encodeParams(params []any) ([][]byte, error) {
	out := make([][]byte, len(params))
	for i, p := range params {
		b, err := encodeParam(p)
		if err != nil {
			return nil, wrapErr(KindToSQL, fmt.Sprintf("encoding parameter %d", i), err)
		}
		out[i] = b
	}
	return out, nil
}

func encodeParam(v any) ([]byte, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case []byte:
		return x, nil
	case string:
		return []byte(x), nil
	case bool:
		if x {
			return []byte("t"), nil
		}
		return []byte("f"), nil
	case int:
		return []byte(strconv.FormatInt(int64(x), 10)), nil
	case int8:
		return []byte(strconv.FormatInt(int64(x), 10)), nil
	case int16:
		return []byte(strconv.FormatInt(int64(x), 10)), nil
	case int32:
		return []byte(strconv.FormatInt(int64(x), 10)), nil
	case int64:
		return []byte(strconv.FormatInt(x, 10)), nil
	case uint:
		return []byte(strconv.FormatUint(uint64(x), 10)), nil
	case uint32:
		return []byte(strconv.FormatUint(uint64(x), 10)), nil
	case uint64:
		return []byte(strconv.FormatUint(x, 10)), nil
	case float32:
		return []byte(strconv.FormatFloat(float64(x), 'g', -1, 32)), nil
	case float64:
		return []byte(strconv.FormatFloat(x, 'g', -1, 64)), nil
	default:
		return nil, fmt.Errorf("unsupported parameter type %T", v)
	}
}
