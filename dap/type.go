package dap

import "fmt"

// Type tags the closed set of value variants.
type Type uint8

const (
	TypeNull Type = iota
	TypeByte
	TypeInt16
	TypeUInt16
	TypeInt32
	TypeUInt32
	TypeFloat32
	TypeFloat64
	TypeString
	TypeURL
	TypeArray
	TypeList
	TypeStructure
	TypeSequence
	TypeGrid
)

var typeNames = [...]string{
	TypeNull:      "Null",
	TypeByte:      "Byte",
	TypeInt16:     "Int16",
	TypeUInt16:    "UInt16",
	TypeInt32:     "Int32",
	TypeUInt32:    "UInt32",
	TypeFloat32:   "Float32",
	TypeFloat64:   "Float64",
	TypeString:    "String",
	TypeURL:       "Url",
	TypeArray:     "Array",
	TypeList:      "List",
	TypeStructure: "Structure",
	TypeSequence:  "Sequence",
	TypeGrid:      "Grid",
}

func (t Type) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return fmt.Sprintf("Type(%d)", uint8(t))
}

// Valid reports whether t is one of the known variants.
func (t Type) Valid() bool {
	return t > TypeNull && t <= TypeGrid
}

// Class groups element types by the storage strategy a Vector uses for them.
type Class uint8

const (
	ClassNone      Class = iota
	ClassNumeric         // packed native buffer
	ClassText            // string slice
	ClassAggregate       // owned child values
)

func (t Type) Class() Class {
	switch t {
	case TypeByte, TypeInt16, TypeUInt16, TypeInt32, TypeUInt32, TypeFloat32, TypeFloat64:
		return ClassNumeric
	case TypeString, TypeURL:
		return ClassText
	case TypeArray, TypeList, TypeStructure, TypeSequence, TypeGrid:
		return ClassAggregate
	default:
		return ClassNone
	}
}

// Width is the native size in bytes of a numeric type, 0 for anything else.
func (t Type) Width() int {
	switch t {
	case TypeByte:
		return 1
	case TypeInt16, TypeUInt16:
		return 2
	case TypeInt32, TypeUInt32, TypeFloat32:
		return 4
	case TypeFloat64:
		return 8
	default:
		return 0
	}
}
