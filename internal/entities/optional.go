package entities

// Optional holds a value that may be unavailable. Callers branch on Ok
// instead of comparing against the zero value.
type Optional[T any] struct {
	value T
	ok    bool
}

func Some[T any](v T) Optional[T] {
	return Optional[T]{value: v, ok: true}
}

func None[T any]() Optional[T] {
	return Optional[T]{}
}

func (o Optional[T]) Get() (T, bool) {
	return o.value, o.ok
}

func (o Optional[T]) Ok() bool {
	return o.ok
}

// OrElse returns the value, or fallback when unavailable.
func (o Optional[T]) OrElse(fallback T) T {
	if o.ok {
		return o.value
	}
	return fallback
}

// Resolve picks the tenant-specific value, then the process-wide default.
// Empty strings count as unset.
func Resolve(tenantValue, globalDefault string) Optional[string] {
	if tenantValue != "" {
		return Some(tenantValue)
	}
	if globalDefault != "" {
		return Some(globalDefault)
	}
	return None[string]()
}
