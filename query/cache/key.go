package cache

import (
	"bytes"
	"crypto/sha256"
	"database/sql/driver"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"hash"
	"math"
	"reflect"
	"sort"
	"time"
)

// Key identifies one query invocation. Keys are comparable and may be used
// directly as map keys.
type Key struct {
	sum   [sha256.Size]byte
	count int
}

// String returns a short hexadecimal form for logs.
func (k Key) String() string {
	return hex.EncodeToString(k.sum[:8])
}

// IsZero reports whether k was never built.
func (k Key) IsZero() bool { return k == Key{} }

// Value tags. A tag precedes every encoded value so that values of
// different kinds never encode to the same bytes.
const (
	tagNil byte = iota + 1
	tagBool
	tagInt
	tagUint
	tagFloat
	tagString
	tagBytes
	tagTime
	tagList
	tagMap
	tagStruct
	tagPart
)

// KeyBuilder folds values into a Key. The zero value is not usable; call
// NewKeyBuilder.
type KeyBuilder struct {
	h     hash.Hash
	count int
	err   error
	buf   [binary.MaxVarintLen64]byte
}

// NewKeyBuilder returns an empty builder.
func NewKeyBuilder() *KeyBuilder {
	return &KeyBuilder{h: sha256.New()}
}

// Update folds v into the key. Values are compared by content: integers of
// any width fold to the same bytes when equal, pointers are followed,
// driver.Valuer values are resolved and maps are folded in key order.
func (b *KeyBuilder) Update(v any) *KeyBuilder {
	if b.err != nil {
		return b
	}
	b.h.Write([]byte{tagPart})
	b.count++
	b.err = b.encode(reflect.ValueOf(v), 0)
	return b
}

// Key returns the built key, or the first value that could not be folded.
func (b *KeyBuilder) Key() (Key, error) {
	if b.err != nil {
		return Key{}, b.err
	}
	var k Key
	copy(k.sum[:], b.h.Sum(nil))
	k.count = b.count
	return k, nil
}

// NewKey builds the key of a query invocation from its statement identity,
// compiled SQL, ordered argument values, row bounds and database id.
func NewKey(statementID, sql string, args []any, offset, limit int, databaseID string) (Key, error) {
	b := NewKeyBuilder().Update(statementID).Update(sql)
	b.Update(len(args))
	for _, a := range args {
		b.Update(a)
	}
	return b.Update(offset).Update(limit).Update(databaseID).Key()
}

const maxDepth = 32

var timeType = reflect.TypeOf(time.Time{})

func (b *KeyBuilder) encode(v reflect.Value, depth int) error {
	if depth > maxDepth {
		return fmt.Errorf("cache key: value nested deeper than %d levels", maxDepth)
	}
	if !v.IsValid() {
		b.h.Write([]byte{tagNil})
		return nil
	}
	if v.Type().Implements(valuerType) && (v.Kind() != reflect.Pointer || !v.IsNil()) {
		dv, err := v.Interface().(driver.Valuer).Value()
		if err != nil {
			return fmt.Errorf("cache key: %w", err)
		}
		if _, same := dv.(driver.Valuer); !same {
			return b.encode(reflect.ValueOf(dv), depth+1)
		}
	}
	if v.Type() == timeType {
		t := v.Interface().(time.Time)
		b.writeBytes(tagTime, []byte(t.UTC().Format(time.RFC3339Nano)))
		return nil
	}
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface:
		if v.IsNil() {
			b.h.Write([]byte{tagNil})
			return nil
		}
		return b.encode(v.Elem(), depth+1)
	case reflect.Bool:
		if v.Bool() {
			b.writeUint(tagBool, 1)
		} else {
			b.writeUint(tagBool, 0)
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		b.writeUint(tagInt, uint64(v.Int()))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := v.Uint()
		if u <= math.MaxInt64 {
			b.writeUint(tagInt, u)
		} else {
			b.writeUint(tagUint, u)
		}
	case reflect.Float32, reflect.Float64:
		b.writeUint(tagFloat, math.Float64bits(v.Float()))
	case reflect.String:
		b.writeBytes(tagString, []byte(v.String()))
	case reflect.Slice:
		if v.IsNil() {
			b.h.Write([]byte{tagNil})
			return nil
		}
		if v.Type().Elem().Kind() == reflect.Uint8 {
			b.writeBytes(tagBytes, v.Bytes())
			return nil
		}
		return b.encodeList(v, depth)
	case reflect.Array:
		return b.encodeList(v, depth)
	case reflect.Map:
		if v.IsNil() {
			b.h.Write([]byte{tagNil})
			return nil
		}
		return b.encodeMap(v, depth)
	case reflect.Struct:
		return b.encodeStruct(v, depth)
	default:
		return fmt.Errorf("cache key: cannot fold value of type %s", v.Type())
	}
	return nil
}

var valuerType = reflect.TypeOf((*driver.Valuer)(nil)).Elem()

func (b *KeyBuilder) encodeList(v reflect.Value, depth int) error {
	b.writeUint(tagList, uint64(v.Len()))
	for i := 0; i < v.Len(); i++ {
		if err := b.encode(v.Index(i), depth+1); err != nil {
			return err
		}
	}
	return nil
}

// encodeMap folds entries ordered by the bytes of their encoded keys, so the
// result does not depend on map iteration order.
func (b *KeyBuilder) encodeMap(v reflect.Value, depth int) error {
	type entry struct{ k, v []byte }
	entries := make([]entry, 0, v.Len())
	iter := v.MapRange()
	for iter.Next() {
		kb, err := encodeAlone(iter.Key(), depth+1)
		if err != nil {
			return err
		}
		vb, err := encodeAlone(iter.Value(), depth+1)
		if err != nil {
			return err
		}
		entries = append(entries, entry{kb, vb})
	}
	sort.Slice(entries, func(i, j int) bool { return bytes.Compare(entries[i].k, entries[j].k) < 0 })
	b.writeUint(tagMap, uint64(len(entries)))
	for _, e := range entries {
		b.writeBytes(tagPart, e.k)
		b.writeBytes(tagPart, e.v)
	}
	return nil
}

func (b *KeyBuilder) encodeStruct(v reflect.Value, depth int) error {
	t := v.Type()
	b.writeBytes(tagStruct, []byte(t.String()))
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		b.writeBytes(tagPart, []byte(f.Name))
		if err := b.encode(v.Field(i), depth+1); err != nil {
			return err
		}
	}
	return nil
}

// encodeAlone encodes v on a scratch hash and returns the digest, used to
// order map entries.
func encodeAlone(v reflect.Value, depth int) ([]byte, error) {
	scratch := &KeyBuilder{h: sha256.New()}
	if err := scratch.encode(v, depth); err != nil {
		return nil, err
	}
	return scratch.h.Sum(nil), nil
}

func (b *KeyBuilder) writeUint(tag byte, u uint64) {
	b.h.Write([]byte{tag})
	var word [8]byte
	binary.BigEndian.PutUint64(word[:], u)
	b.h.Write(word[:])
}

func (b *KeyBuilder) writeBytes(tag byte, p []byte) {
	b.h.Write([]byte{tag})
	n := binary.PutUvarint(b.buf[:], uint64(len(p)))
	b.h.Write(b.buf[:n])
	b.h.Write(p)
}
