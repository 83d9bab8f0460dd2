package collection

import (
	"fmt"
)

const PrimaryIndex = "id"

type Options[T any] struct {
	Name    string
	TypeID  uint16
	Indexes []*IndexOptions[T]

	// Cache enables the forward-only cache queue used to build checkpoint
	// images.
	Cache bool

	// CacheDepth is the number of cache frames kept by a checkpoint push.
	CacheDepth int
}

type IndexOptions[T any] struct {
	Name   string
	Unique bool
	Less   func(a, b *T) bool
}

func (o *Options[T]) validate() error {
	if o.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidOptions)
	}
	seen := map[string]bool{PrimaryIndex: true}
	for _, index := range o.Indexes {
		if index == nil || index.Less == nil {
			return fmt.Errorf("%w: index without ordering in '%s'", ErrInvalidOptions, o.Name)
		}
		if seen[index.Name] {
			return fmt.Errorf("%w: index '%s' already defined in '%s'", ErrInvalidOptions, index.Name, o.Name)
		}
		seen[index.Name] = true
	}
	return nil
}
