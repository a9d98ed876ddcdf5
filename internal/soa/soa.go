// Package soa stores per-entity state column by column. A Model declares its
// neuron and synapse fields once in a Schema; the engine allocates one Store
// per entity kind and every column is resized together.
package soa

import (
	"fmt"
	"unsafe"
)

// Elem is the set of column element types.
type Elem interface {
	~float32 | ~float64 | ~int8 | ~uint8 | ~int16 | ~uint16 | ~int32 | ~uint32 | ~int64 | ~uint64 | ~bool
}

type fieldDesc struct {
	name string
	size uintptr
	make func() column
}

// Schema is an ordered list of typed fields. Fields are added once, before
// any Store is created from the Schema.
type Schema struct {
	fields []fieldDesc
}

// Field is a typed handle to one column of stores built from its Schema.
type Field[T Elem] struct {
	schema *Schema
	index  int
	name   string
}

func (f Field[T]) Name() string { return f.name }

// Define appends a field of element type T to s.
func Define[T Elem](s *Schema, name string) Field[T] {
	for _, fd := range s.fields {
		if fd.name == name {
			panic(fmt.Sprintf("soa: duplicate field %q", name))
		}
	}
	var zero T
	s.fields = append(s.fields, fieldDesc{
		name: name,
		size: unsafe.Sizeof(zero),
		make: func() column { return &vec[T]{} },
	})
	return Field[T]{schema: s, index: len(s.fields) - 1, name: name}
}

func Float32(s *Schema, name string) Field[float32] { return Define[float32](s, name) }
func Int32(s *Schema, name string) Field[int32]     { return Define[int32](s, name) }
func Uint32(s *Schema, name string) Field[uint32]   { return Define[uint32](s, name) }
func Bool(s *Schema, name string) Field[bool]       { return Define[bool](s, name) }

func (s *Schema) NumFields() int { return len(s.fields) }

func (s *Schema) Names() []string {
	names := make([]string, len(s.fields))
	for i, fd := range s.fields {
		names[i] = fd.name
	}
	return names
}

// RowBytes is the size of one entity across all columns.
func (s *Schema) RowBytes() uint64 {
	var total uint64
	for _, fd := range s.fields {
		total += uint64(fd.size)
	}
	return total
}

type column interface {
	resize(n int)
	at(i int) any
	copyTo(dst column, dstAt, srcAt, n int)
}

type vec[T Elem] struct {
	data []T
}

func (v *vec[T]) resize(n int) {
	old := len(v.data)
	if n <= cap(v.data) {
		v.data = v.data[:n]
		if n > old {
			clear(v.data[old:n])
		}
		return
	}
	grown := make([]T, n, max(n, 2*cap(v.data)))
	copy(grown, v.data)
	v.data = grown
}

func (v *vec[T]) at(i int) any { return v.data[i] }

func (v *vec[T]) copyTo(dst column, dstAt, srcAt, n int) {
	copy(dst.(*vec[T]).data[dstAt:dstAt+n], v.data[srcAt:srcAt+n])
}

// Store holds n entities of one Schema.
type Store struct {
	schema *Schema
	cols   []column
	n      int
}

func New(s *Schema, n int) *Store {
	st := &Store{schema: s, cols: make([]column, len(s.fields))}
	for i, fd := range s.fields {
		st.cols[i] = fd.make()
	}
	st.Resize(n)
	return st
}

// Resize resizes every column to n. Entries below min(old, n) are kept and
// new entries are zero.
func (s *Store) Resize(n int) {
	if n < 0 {
		panic(fmt.Sprintf("soa: negative size %d", n))
	}
	for _, c := range s.cols {
		c.resize(n)
	}
	s.n = n
}

func (s *Store) Len() int { return s.n }

func (s *Store) Schema() *Schema { return s.schema }

func (s *Store) Bytes() uint64 { return uint64(s.n) * s.schema.RowBytes() }

// Row returns a copy of entity i across all columns, in field order.
func (s *Store) Row(i int) []any {
	row := make([]any, len(s.cols))
	for j, c := range s.cols {
		row[j] = c.at(i)
	}
	return row
}

// CopyRows copies entities [srcAt, srcAt+n) of src over entities
// [dstAt, dstAt+n) of dst, across every column. Both stores must share a
// Schema.
func CopyRows(dst *Store, dstAt int, src *Store, srcAt, n int) {
	if dst.schema != src.schema {
		panic("soa: copy between stores of different schemas")
	}
	if n == 0 {
		return
	}
	if srcAt < 0 || srcAt+n > src.n || dstAt < 0 || dstAt+n > dst.n {
		panic(fmt.Sprintf("soa: copy of %d rows from %d/%d to %d/%d out of range", n, srcAt, src.n, dstAt, dst.n))
	}
	for i, c := range src.cols {
		c.copyTo(dst.cols[i], dstAt, srcAt, n)
	}
}

// Col returns the column of f in s. The slice aliases the store and stays
// valid until the next Resize.
func Col[T Elem](s *Store, f Field[T]) []T {
	if f.schema != s.schema {
		panic(fmt.Sprintf("soa: field %q does not belong to this store", f.name))
	}
	return s.cols[f.index].(*vec[T]).data
}
