// buffer.go - Inhalt von datapath- und shape-Buffern umschreiben
// Hauptfunktionen: TileBuffer, PatchShapeParam
package transform

import (
	"bytes"
	"encoding/binary"
	"math"
	"slices"

	"github.com/mltools/mltools/fs/tflite"
)

// maxBufferSize ist die groesste Buffer-Laenge innerhalb eines Flatbuffers
const maxBufferSize = math.MaxInt32

// TileBuffer gibt n aneinandergehaengte Kopien von data zurueck.
// Kopie k liegt bei [k*len(data), (k+1)*len(data)).
func TileBuffer(data []byte, n int) ([]byte, error) {
	if n < 1 {
		return nil, usagef("batch size %d must be at least 1", n)
	}
	if len(data) == 0 {
		return slices.Clone(data), nil
	}
	if len(data) > maxBufferSize/n {
		return nil, structuralf("buffer of %d bytes replicated %d times exceeds %d bytes", len(data), n, maxBufferSize)
	}
	return bytes.Repeat(data, n), nil
}

// ShapeParamEncoding beschreibt, welches Element eines shape-Buffers die
// Batch-Dimension haelt und wie breit es ist
type ShapeParamEncoding struct {
	// Width ist die Breite eines Elements in Bytes (1, 2, 4 oder 8,
	// little-endian). 0 leitet die Breite aus dem Tensortyp ab.
	Width int

	// Index ist der Index des Elements, nicht der Byte-Offset
	Index int
}

// DefaultShapeParamEncoding ueberschreibt Byte 0 mit der Batch-Groesse
var DefaultShapeParamEncoding = ShapeParamEncoding{Width: 1, Index: 0}

// Validate prueft Width und Index
func (e ShapeParamEncoding) Validate() error {
	switch e.Width {
	case 0, 1, 2, 4, 8:
	default:
		return usagef("shape parameter width %d, want 0, 1, 2, 4 or 8", e.Width)
	}
	if e.Index < 0 {
		return usagef("shape parameter index %d must not be negative", e.Index)
	}
	return nil
}

// resolve setzt eine fehlende Breite aus dem Elementtyp des shape-Tensors
func (e ShapeParamEncoding) resolve(t tflite.TensorType) (ShapeParamEncoding, error) {
	if e.Width != 0 {
		return e, nil
	}
	switch size := t.Size(); size {
	case 1, 2, 4, 8:
		e.Width = size
		return e, nil
	default:
		return e, structuralf("cannot derive shape parameter width from tensor type %s", t)
	}
}

// PatchShapeParam gibt eine Kopie von data zurueck, in der das Element
// enc.Index gleich n ist. Breite 1 ist ein vorzeichenloses Byte, breitere
// Elemente sind vorzeichenbehaftet. Ein leerer Buffer wird erst zur Laufzeit
// gefuellt und bleibt unveraendert.
func PatchShapeParam(data []byte, n int, enc ShapeParamEncoding) ([]byte, error) {
	if len(data) == 0 {
		return slices.Clone(data), nil
	}

	var limit uint64
	switch enc.Width {
	case 1:
		limit = math.MaxUint8
	case 2:
		limit = math.MaxInt16
	case 4:
		limit = math.MaxInt32
	case 8:
		limit = math.MaxInt64
	default:
		return nil, usagef("shape parameter width %d, want 1, 2, 4 or 8", enc.Width)
	}
	if n < 0 || uint64(n) > limit {
		return nil, structuralf("batch size %d does not fit in a %d byte shape element", n, enc.Width)
	}

	off := enc.Index * enc.Width
	if enc.Index < 0 || off+enc.Width > len(data) {
		return nil, structuralf("shape element %d (width %d) outside buffer of %d bytes", enc.Index, enc.Width, len(data))
	}

	out := slices.Clone(data)
	switch enc.Width {
	case 1:
		out[off] = byte(n)
	case 2:
		binary.LittleEndian.PutUint16(out[off:], uint16(n))
	case 4:
		binary.LittleEndian.PutUint32(out[off:], uint32(n))
	case 8:
		binary.LittleEndian.PutUint64(out[off:], uint64(n))
	}
	return out, nil
}
