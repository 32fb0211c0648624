package vm

import (
	"fmt"
	"strconv"
)

// Value represents a VM value.
//
// Values are small tagged structs. Heap objects are held by pointer so the
// Go garbage collector owns every restored or freshly allocated object.
//
// Encoding scheme:
//   - Nil: the zero Value
//   - SmallInt: tag plus signed payload
//   - Boolean: tag plus 0/1 payload
//   - String: tag plus immutable string payload
//   - Object: tag plus *Object
type Value struct {
	tag  Tag
	bits int64
	str  string
	obj  *Object
}

// Tag identifies the kind of a Value.
type Tag uint8

const (
	TagNil Tag = iota
	TagInt
	TagBool
	TagString
	TagObject
)

// String returns the tag name.
func (t Tag) String() string {
	switch t {
	case TagNil:
		return "nil"
	case TagInt:
		return "int"
	case TagBool:
		return "bool"
	case TagString:
		return "string"
	case TagObject:
		return "object"
	default:
		return "Tag(" + strconv.Itoa(int(t)) + ")"
	}
}

// Pre-defined special values
var (
	Nil   = Value{}
	True  = Value{tag: TagBool, bits: 1}
	False = Value{tag: TagBool, bits: 0}
)

// ---------------------------------------------------------------------------
// Constructors
// ---------------------------------------------------------------------------

// FromSmallInt boxes an integer.
func FromSmallInt(n int64) Value {
	return Value{tag: TagInt, bits: n}
}

// FromBool boxes a boolean.
func FromBool(b bool) Value {
	if b {
		return True
	}
	return False
}

// FromString boxes a string.
func FromString(s string) Value {
	return Value{tag: TagString, str: s}
}

// FromObject boxes an object reference. A nil object yields Nil.
func FromObject(obj *Object) Value {
	if obj == nil {
		return Nil
	}
	return Value{tag: TagObject, obj: obj}
}

// ---------------------------------------------------------------------------
// Type checking and extraction
// ---------------------------------------------------------------------------

// Tag returns the value's tag.
func (v Value) Tag() Tag { return v.tag }

// IsNil returns true if v is nil.
func (v Value) IsNil() bool { return v.tag == TagNil }

// IsSmallInt returns true if v holds an integer.
func (v Value) IsSmallInt() bool { return v.tag == TagInt }

// IsBool returns true if v holds a boolean.
func (v Value) IsBool() bool { return v.tag == TagBool }

// IsString returns true if v holds a string.
func (v Value) IsString() bool { return v.tag == TagString }

// IsObject returns true if v references a heap object.
func (v Value) IsObject() bool { return v.tag == TagObject }

// SmallInt returns the integer payload. Panics if v is not an integer.
func (v Value) SmallInt() int64 {
	if v.tag != TagInt {
		panic("Value.SmallInt: not an integer")
	}
	return v.bits
}

// Bool returns the boolean payload. Panics if v is not a boolean.
func (v Value) Bool() bool {
	if v.tag != TagBool {
		panic("Value.Bool: not a boolean")
	}
	return v.bits != 0
}

// Str returns the string payload. Panics if v is not a string.
func (v Value) Str() string {
	if v.tag != TagString {
		panic("Value.Str: not a string")
	}
	return v.str
}

// Object returns the referenced object, or nil if v is not an object.
func (v Value) Object() *Object {
	if v.tag != TagObject {
		return nil
	}
	return v.obj
}

// Identical reports whether a and b are the same value. Objects compare by
// identity, everything else by payload.
func Identical(a, b Value) bool {
	if a.tag != b.tag {
		return false
	}
	switch a.tag {
	case TagNil:
		return true
	case TagInt, TagBool:
		return a.bits == b.bits
	case TagString:
		return a.str == b.str
	case TagObject:
		return a.obj == b.obj
	}
	return false
}

// String formats the value for diagnostics.
func (v Value) String() string {
	switch v.tag {
	case TagNil:
		return "nil"
	case TagInt:
		return strconv.FormatInt(v.bits, 10)
	case TagBool:
		if v.bits != 0 {
			return "true"
		}
		return "false"
	case TagString:
		return strconv.Quote(v.str)
	case TagObject:
		return fmt.Sprintf("a %s", v.obj.ClassName())
	}
	return "?"
}
