package asset

import "fmt"

// Describe looks up typeName's asset at index and formats it with
// format, for log lines and admin introspection (§12.5) — a direct
// generalization of the teacher's standalone numeric-mob-ID-to-name
// lookup tool to any indexed asset type, as a pure function over the
// sealed registry rather than a separate CLI.
func Describe[T any](reg *Registry, typeName string, index int, format func(T) string) string {
	value, ok := ByIndex[T](reg, typeName, index)
	if !ok {
		return fmt.Sprintf("%s#%d <unknown>", typeName, index)
	}
	return format(value)
}
