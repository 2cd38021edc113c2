package field

import (
	"reflect"
	"time"
)

// Kind is the coarse runtime type inferred from a field's recorded initial
// value. Batch updates are checked against it at the boundary; inside the
// engine values are trusted.
type Kind string

const (
	KindUnknown Kind = "unknown"
	KindString  Kind = "string"
	KindBool    Kind = "bool"
	KindNumber  Kind = "number"
	KindList    Kind = "list"
	KindMap     Kind = "map"
	KindTime    Kind = "time"
)

// KindOf infers the coarse kind of a runtime value. All integer and float
// widths collapse into KindNumber, making numeric types mutually
// compatible by construction.
func KindOf(value interface{}) Kind {
	if value == nil {
		return KindUnknown
	}
	if _, ok := value.(time.Time); ok {
		return KindTime
	}
	switch reflect.TypeOf(value).Kind() {
	case reflect.String:
		return KindString
	case reflect.Bool:
		return KindBool
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return KindNumber
	case reflect.Slice, reflect.Array:
		return KindList
	case reflect.Map:
		return KindMap
	default:
		return KindUnknown
	}
}

// Compatible reports whether a value of kind other may be assigned to a
// field of kind k. Unknown kinds accept anything; nil values (KindUnknown)
// are always accepted.
func (k Kind) Compatible(other Kind) bool {
	if k == KindUnknown || other == KindUnknown {
		return true
	}
	return k == other
}
