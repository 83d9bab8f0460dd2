package segment

import (
	"fmt"
	"hash/crc32"
	"reflect"
	"strings"
)

// Signature describes the geometry of a stored collection. A block written
// by a binary with a different record layout must not be loaded.
type Signature struct {
	Name       string
	TypeID     uint16
	RecordSize uint32
	IndexSize  uint32
	Layout     string
}

func NewSignature(name string, typeID uint16, record reflect.Type, indexSize uintptr) *Signature {
	return &Signature{
		Name:       name,
		TypeID:     typeID,
		RecordSize: uint32(record.Size()),
		IndexSize:  uint32(indexSize),
		Layout:     fmt.Sprintf("%08x", crc32.Checksum([]byte(describe(record, map[reflect.Type]bool{})), crcTable)),
	}
}

func (s *Signature) Check(stored *Signature) error {
	if *s == *stored {
		return nil
	}
	return fmt.Errorf("%w: '%s' stored as %+v, expected %+v", ErrIncompatibleLayout, s.Name, *stored, *s)
}

func describe(t reflect.Type, visited map[reflect.Type]bool) string {
	switch t.Kind() {
	case reflect.Pointer, reflect.Slice, reflect.Array:
		prefix := t.Kind().String()
		if t.Kind() == reflect.Array {
			prefix = fmt.Sprintf("array%d", t.Len())
		}
		return prefix + "(" + describe(t.Elem(), visited) + ")"
	case reflect.Map:
		return "map(" + describe(t.Key(), visited) + "," + describe(t.Elem(), visited) + ")"
	case reflect.Struct:
		if visited[t] {
			return t.String()
		}
		visited[t] = true
		fields := make([]string, 0, t.NumField())
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			fields = append(fields, fmt.Sprintf("%s@%d:%s", f.Name, f.Offset, describe(f.Type, visited)))
		}
		return "struct{" + strings.Join(fields, ";") + "}"
	}
	return t.Kind().String()
}
