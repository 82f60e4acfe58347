package domain

import (
	"context"
	"sort"
)

// Messages holds human-readable validation messages per field.
type Messages map[string][]string

// Add appends a message for field.
func (m Messages) Add(field, message string) {
	m[field] = append(m[field], message)
}

// Empty reports whether there are no messages.
func (m Messages) Empty() bool {
	return len(m) == 0
}

// Fields returns the field names in sorted order.
func (m Messages) Fields() []string {
	fields := make([]string, 0, len(m))
	for f := range m {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}

// Form binds raw input onto an entity and validates the result.
//
// Call order is Bind, SetData, IsValid. Object returns the bound entity with the
// data applied; Messages is only meaningful after IsValid returned false.
type Form[T any] interface {
	Bind(entity T)
	SetData(data map[string]any)
	IsValid(ctx context.Context) bool
	Object() T
	Messages() Messages
}

// FormFactory returns a fresh form for one create/update call.
type FormFactory[T any] func() Form[T]
