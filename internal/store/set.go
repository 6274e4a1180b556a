package store

import "slices"

// ContainsID reports whether id is a member of ids
func ContainsID(ids []string, id string) bool {
	return slices.Contains(ids, id)
}

// ToggleID adds id when absent and removes it when present.
// It reports whether id is a member afterwards.
func ToggleID(ids []string, id string) ([]string, bool) {
	if i := slices.Index(ids, id); i >= 0 {
		return slices.Delete(ids, i, i+1), false
	}
	return append(ids, id), true
}

// RemoveID removes every occurrence of id
func RemoveID(ids []string, id string) []string {
	return slices.DeleteFunc(ids, func(v string) bool { return v == id })
}
