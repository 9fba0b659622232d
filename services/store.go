package services

import (
	"context"
	"errors"
	"strings"

	"anniversary_server/apperrors"
)

// ErrConditionFailed is returned by UpdateFields when the item exists but a
// field condition did not hold. Services translate it into a domain error.
var ErrConditionFailed = errors.New("conditional write failed")

// KeyAttribute is the partition key every collection is stored under.
const KeyAttribute = "id"

// KeyPathStore is the storage substrate the core is written against.
// Paths are "collection/id". Single-path writes are atomic; nothing spans
// paths. Values are (un)marshalled with their dynamodbav tags.
type KeyPathStore interface {
	Put(ctx context.Context, path string, value any) error
	// Get decodes the item into out and reports whether it existed.
	Get(ctx context.Context, path string, out any) (bool, error)
	// Query decodes every item in collection whose field equals value into
	// out, which must point to a slice.
	Query(ctx context.Context, collection, field string, equals any, out any) error
	// UpdateFields sets the given fields, removing those mapped to nil.
	UpdateFields(ctx context.Context, path string, fields map[string]any, opts ...UpdateOption) error
	Delete(ctx context.Context, path string) error
	// Subscribe signals after every write under prefix. Signals coalesce:
	// receivers re-read instead of expecting one signal per write.
	Subscribe(prefix string) (<-chan struct{}, func())
}

// Condition holds when the field equals one of OneOf, or is absent and
// AllowMissing is set.
type Condition struct {
	Field        string
	OneOf        []any
	AllowMissing bool
}

type UpdateOptions struct {
	MustExist  bool
	Conditions []Condition
	// Defaults are written only when the field is absent.
	Defaults map[string]any
}

type UpdateOption func(*UpdateOptions)

// MustExist makes the update fail with apperrors.ErrNotFound instead of
// creating the item.
func MustExist() UpdateOption {
	return func(o *UpdateOptions) { o.MustExist = true }
}

// IfField adds a compare-and-swap guard on field.
func IfField(field string, allowMissing bool, oneOf ...any) UpdateOption {
	return func(o *UpdateOptions) {
		o.Conditions = append(o.Conditions, Condition{Field: field, OneOf: oneOf, AllowMissing: allowMissing})
	}
}

// WithDefaults writes fields only where the item does not have them yet.
func WithDefaults(fields map[string]any) UpdateOption {
	return func(o *UpdateOptions) {
		if o.Defaults == nil {
			o.Defaults = make(map[string]any, len(fields))
		}
		for k, v := range fields {
			o.Defaults[k] = v
		}
	}
}

func collectOptions(opts []UpdateOption) UpdateOptions {
	var o UpdateOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// ItemPath joins a collection and an id.
func ItemPath(collection, id string) string {
	return collection + "/" + id
}

// CollectionPrefix is the subscription prefix covering a whole collection.
func CollectionPrefix(collection string) string {
	return collection + "/"
}

// SplitPath separates a path into collection and id.
func SplitPath(path string) (string, string, error) {
	collection, id, ok := strings.Cut(path, "/")
	if !ok || collection == "" || id == "" || strings.Contains(id, "/") {
		return "", "", apperrors.Validation("path", "malformed path %q", path)
	}
	return collection, id, nil
}
