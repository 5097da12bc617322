// tensortype.go - TFLite TensorType Definitionen
// Enthält: TensorType Konstanten und Element-Groessen

package tflite

import "fmt"

// TensorType ist der Element-Typ eines Tensors im TFLite-Schema
type TensorType int8

const (
	TensorTypeFloat32 TensorType = iota
	TensorTypeFloat16
	TensorTypeInt32
	TensorTypeUint8
	TensorTypeInt64
	TensorTypeString
	TensorTypeBool
	TensorTypeInt16
	TensorTypeComplex64
	TensorTypeInt8
	TensorTypeFloat64
	TensorTypeComplex128
	TensorTypeUint64
	tensorTypeResource // nicht unterstützt
	tensorTypeVariant  // nicht unterstützt
	TensorTypeUint32
	TensorTypeUint16
	TensorTypeInt4
)

var tensorTypeNames = [...]string{
	TensorTypeFloat32:    "FLOAT32",
	TensorTypeFloat16:    "FLOAT16",
	TensorTypeInt32:      "INT32",
	TensorTypeUint8:      "UINT8",
	TensorTypeInt64:      "INT64",
	TensorTypeString:     "STRING",
	TensorTypeBool:       "BOOL",
	TensorTypeInt16:      "INT16",
	TensorTypeComplex64:  "COMPLEX64",
	TensorTypeInt8:       "INT8",
	TensorTypeFloat64:    "FLOAT64",
	TensorTypeComplex128: "COMPLEX128",
	TensorTypeUint64:     "UINT64",
	tensorTypeResource:   "RESOURCE",
	tensorTypeVariant:    "VARIANT",
	TensorTypeUint32:     "UINT32",
	TensorTypeUint16:     "UINT16",
	TensorTypeInt4:       "INT4",
}

// String gibt den Schema-Namen zurueck
func (t TensorType) String() string {
	if t >= 0 && int(t) < len(tensorTypeNames) {
		return tensorTypeNames[t]
	}
	return fmt.Sprintf("TYPE_%d", int8(t))
}

// Size gibt die Byte-Groesse eines Elements zurueck.
// Typen ohne feste Breite (STRING, INT4, RESOURCE, VARIANT) liefern 0.
func (t TensorType) Size() int {
	switch t {
	case TensorTypeUint8, TensorTypeInt8, TensorTypeBool:
		return 1
	case TensorTypeFloat16, TensorTypeInt16, TensorTypeUint16:
		return 2
	case TensorTypeFloat32, TensorTypeInt32, TensorTypeUint32:
		return 4
	case TensorTypeInt64, TensorTypeUint64, TensorTypeFloat64, TensorTypeComplex64:
		return 8
	case TensorTypeComplex128:
		return 16
	default:
		return 0
	}
}
