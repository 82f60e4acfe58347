// Package form provides StructForm, the default domain.Form: it assigns raw
// input onto "db"/"form" tagged struct fields and validates the result with the
// entity's ozzo-validation rules plus optional CEL rules.
package form

import (
	"context"
	"errors"
	"sort"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"crudkit/internal/core/structmap"
	"crudkit/internal/domain"
	"crudkit/pkg/logger"
)

// GeneralField collects messages not tied to one field.
const GeneralField = "_"

type options struct {
	rules    []*Rule
	readOnly map[string]bool
	strict   bool
}

// Option configures a StructForm.
type Option func(*options)

// WithRules adds CEL rules checked after the struct's own validation.
func WithRules(rules ...*Rule) Option {
	return func(o *options) { o.rules = append(o.rules, rules...) }
}

// WithReadOnly names fields that input may not set; they are silently skipped.
func WithReadOnly(fields ...string) Option {
	return func(o *options) {
		for _, f := range fields {
			o.readOnly[f] = true
		}
	}
}

// Strict reports input keys that match no field instead of ignoring them.
func Strict() Option {
	return func(o *options) { o.strict = true }
}

// StructForm binds map data onto a struct entity (T is a pointer to struct).
type StructForm[T any] struct {
	opts     *options
	entity   T
	data     map[string]any
	messages domain.Messages
}

var _ domain.Form[*struct{}] = (*StructForm[*struct{}])(nil)

// New creates an unbound form.
func New[T any](opts ...Option) *StructForm[T] {
	o := &options{readOnly: map[string]bool{}}
	for _, opt := range opts {
		opt(o)
	}
	return &StructForm[T]{opts: o}
}

// Factory returns a domain.FormFactory producing fresh forms with the same options.
func Factory[T any](opts ...Option) domain.FormFactory[T] {
	return func() domain.Form[T] {
		return New[T](opts...)
	}
}

// Bind sets the entity the data is applied to.
func (f *StructForm[T]) Bind(entity T) {
	f.entity = entity
	f.messages = nil
}

// SetData stores the raw input. Values are applied by IsValid.
func (f *StructForm[T]) SetData(data map[string]any) {
	f.data = make(map[string]any, len(data))
	for k, v := range data {
		f.data[k] = v
	}
}

// IsValid applies the data and validates. Fields are assigned in sorted key order.
func (f *StructForm[T]) IsValid(ctx context.Context) bool {
	f.messages = domain.Messages{}

	keys := make([]string, 0, len(f.data))
	for k := range f.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if f.opts.readOnly[k] {
			continue
		}
		if !structmap.Has(f.entity, k) {
			if f.opts.strict {
				f.messages.Add(k, "unknown field")
			}
			continue
		}
		if err := structmap.Assign(f.entity, k, f.data[k]); err != nil {
			f.messages.Add(k, err.Error())
		}
	}

	if v, ok := any(f.entity).(validation.Validatable); ok {
		f.addValidation(v.Validate())
	}

	for _, r := range f.opts.rules {
		ok, err := r.Check(ctx, f.entity)
		if err != nil {
			logger.Warn(ctx, "form rule failed", "rule", r.Expr, "error", err)
		}
		if !ok {
			f.messages.Add(r.Field, r.Message)
		}
	}

	return f.messages.Empty()
}

func (f *StructForm[T]) addValidation(err error) {
	if err == nil {
		return
	}
	var errs validation.Errors
	if !errors.As(err, &errs) {
		f.messages.Add(GeneralField, err.Error())
		return
	}
	for field, e := range errs {
		if f.alreadyReported(field) {
			continue
		}
		f.messages.Add(field, e.Error())
	}
}

// alreadyReported is true when assignment already failed for field.
func (f *StructForm[T]) alreadyReported(field string) bool {
	_, ok := f.messages[field]
	return ok
}

// Object returns the bound entity with the data applied.
func (f *StructForm[T]) Object() T {
	return f.entity
}

// Messages returns the messages of the last IsValid call.
func (f *StructForm[T]) Messages() domain.Messages {
	return f.messages
}
