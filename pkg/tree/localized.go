package tree

// Localized picks the entry of a localized content list whose "locale"
// matches language. It falls back to the first entry and returns null for
// an empty or non-array list.
func Localized(language string, list Value) Value {
	entries := list.Array()
	if len(entries) == 0 {
		return Value{}
	}
	for _, e := range entries {
		if e.Get("locale").Str() == language {
			return e
		}
	}
	return entries[0]
}
