package tree

// ScrubIPv6 returns a copy of v where every array element that is an object
// with an "ipAddress" and an "ipType" of "IPv6" has been dropped. The input
// is not modified.
func ScrubIPv6(v Value) Value {
	return Value{v: scrubIPv6(v.v)}
}

func scrubIPv6(x any) any {
	switch t := x.(type) {
	case []any:
		out := make([]any, 0, len(t))
		for _, item := range t {
			if m, ok := item.(map[string]any); ok && isIPv6Entry(m) {
				continue
			}
			out = append(out, scrubIPv6(item))
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = scrubIPv6(val)
		}
		return out
	default:
		return x
	}
}

func isIPv6Entry(m map[string]any) bool {
	if _, ok := m["ipAddress"]; !ok {
		return false
	}
	typ, _ := m["ipType"].(string)
	return typ == "IPv6"
}
