package utils

import "strings"

func NewTrue() *bool {
	b := true
	return &b
}

func DereferencePtr[T any](ptr *T, defaultValue T) T {
	if ptr == nil {
		return defaultValue
	}
	return *ptr
}

// TrimmedOrNil returns nil for a nil or blank string, otherwise the trimmed value.
func TrimmedOrNil(s *string) *string {
	if s == nil {
		return nil
	}
	t := strings.TrimSpace(*s)
	if t == "" {
		return nil
	}
	return &t
}

func StringPtrEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func MaxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
