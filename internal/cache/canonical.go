package cache

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// KV is one named argument in an ordered call-site argument list. Callers
// build cache keys from a []KV rather than a map so property order is the
// literal call-site order, not Go's randomized map iteration (spec §9
// "cache keying": order must be preserved bit-exactly).
type KV struct {
	Key   string
	Value interface{}
}

// canonicalize renders v as a stable, type-distinguishing, property-order-
// preserving string suitable for hashing (spec §4.C2, §9 "cache keying").
// Every scalar is tagged with its kind (string, bool, integer, float) so
// `"1"` and `1` never collide; int and int64 share the integer tag.
func canonicalize(v interface{}) string {
	var b strings.Builder
	writeCanonical(&b, v)
	return b.String()
}

func writeCanonical(b *strings.Builder, v interface{}) {
	switch t := v.(type) {
	case nil:
		b.WriteString("n:")
	case string:
		b.WriteString("s:")
		b.WriteString(strconv.Quote(t))
	case bool:
		b.WriteString("b:")
		b.WriteString(strconv.FormatBool(t))
	case int:
		b.WriteString("i:")
		b.WriteString(strconv.Itoa(t))
	case int64:
		b.WriteString("i:")
		b.WriteString(strconv.FormatInt(t, 10))
	case float64:
		b.WriteString("f:")
		b.WriteString(strconv.FormatFloat(t, 'g', -1, 64))
	case []string:
		b.WriteString("a[")
		for i, s := range t {
			if i > 0 {
				b.WriteString(",")
			}
			writeCanonical(b, s)
		}
		b.WriteString("]")
	case []interface{}:
		b.WriteString("a[")
		for i, e := range t {
			if i > 0 {
				b.WriteString(",")
			}
			writeCanonical(b, e)
		}
		b.WriteString("]")
	case []KV:
		b.WriteString("o{")
		for i, kv := range t {
			if i > 0 {
				b.WriteString(",")
			}
			b.WriteString(strconv.Quote(kv.Key))
			b.WriteString(":")
			writeCanonical(b, kv.Value)
		}
		b.WriteString("}")
	case map[string]interface{}:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString("o{")
		for i, k := range keys {
			if i > 0 {
				b.WriteString(",")
			}
			b.WriteString(strconv.Quote(k))
			b.WriteString(":")
			writeCanonical(b, t[k])
		}
		b.WriteString("}")
	default:
		fmt.Fprintf(b, "x:%v", t)
	}
}
