// simplify.go - Quantisierung vereinfachen
//
//   - per-Achse Quantisierung wird zu per-Tensor: konstante INT8-, UINT8- und
//     INT32-Daten werden auf den groessten Scale umquantisiert
//   - quantisierte INT8-Tensoren werden zu UINT8 (zero_point +128, Bytes XOR 0x80)
//
// Von mehreren Tensoren geteilte Buffer werden je Schritt nur einmal
// umgeschrieben.
package transform

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/mltools/mltools/fs/tflite"
)

// Simplify vereinfacht die Quantisierungsparameter eines Modells
type Simplify struct{}

func (Simplify) Name() string { return "simplify" }

func (Simplify) Apply(m *tflite.Model) (*tflite.Model, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}

	out := m.Clone()
	requantized := make(map[uint32]bool)
	shifted := make(map[uint32]bool)
	var collapsed, converted int

	for si, sg := range out.Subgraphs {
		for ti, t := range sg.Tensors {
			if t.Quantization.PerAxis() {
				if err := collapsePerAxis(out, t, requantized); err != nil {
					return nil, fmt.Errorf("subgraph %d: tensor %d (%q): %w", si, ti, t.Name, err)
				}
				collapsed++
			}
			if t.Type == tflite.TensorTypeInt8 && t.Quantization != nil && len(t.Quantization.Scale) > 0 {
				toUint8(out, t, shifted)
				converted++
			}
		}
	}

	slog.Debug("simplified model", "collapsed_per_axis", collapsed, "int8_to_uint8", converted)
	return out, nil
}

func float64s(s []float32) []float64 {
	out := make([]float64, len(s))
	for i, v := range s {
		out[i] = float64(v)
	}
	return out
}

// collapsePerAxis ersetzt die Scales je Kanal durch den groessten Scale
func collapsePerAxis(m *tflite.Model, t *tflite.Tensor, done map[uint32]bool) error {
	q := t.Quantization
	axis := int(q.QuantizedDimension)
	if axis < 0 || axis >= len(t.Shape) {
		return structuralf("quantized dimension %d out of range for shape %v", axis, t.Shape)
	}
	channels := int(t.Shape[axis])
	if len(q.Scale) != channels {
		return structuralf("%d scales for %d channels", len(q.Scale), channels)
	}

	var zp int64
	if len(q.ZeroPoint) > 0 {
		zp = q.ZeroPoint[0]
		for _, z := range q.ZeroPoint[1:] {
			if z != zp {
				return structuralf("per-axis zero points %v differ", q.ZeroPoint)
			}
		}
	}

	scale := float32(floats.Max(float64s(q.Scale)))
	if scale <= 0 {
		return structuralf("per-axis scales %v have no positive maximum", q.Scale)
	}

	b := m.Buffers[t.Buffer]
	if len(b.Data) > 0 && !done[t.Buffer] {
		data, err := requantize(t, b.Data, q.Scale, zp, scale, axis)
		if err != nil {
			return err
		}
		b.Data = data
		done[t.Buffer] = true
	}

	q.Scale = []float32{scale}
	q.ZeroPoint = []int64{zp}
	q.QuantizedDimension = 0
	if len(q.Min) > 1 {
		q.Min = []float32{float32(floats.Min(float64s(q.Min)))}
	}
	if len(q.Max) > 1 {
		q.Max = []float32{float32(floats.Max(float64s(q.Max)))}
	}
	return nil
}

// requantize rechnet jedes Element von seinem Kanal-Scale auf scale um
func requantize(t *tflite.Tensor, data []byte, scales []float32, zp int64, scale float32, axis int) ([]byte, error) {
	var lo, hi int64
	switch t.Type {
	case tflite.TensorTypeInt8:
		lo, hi = math.MinInt8, math.MaxInt8
	case tflite.TensorTypeUint8:
		lo, hi = 0, math.MaxUint8
	case tflite.TensorTypeInt32:
		lo, hi = math.MinInt32, math.MaxInt32
	default:
		return nil, structuralf("cannot requantize %s data", t.Type)
	}

	size := t.Type.Size()
	n := t.Elements()
	if n*int64(size) != int64(len(data)) {
		return nil, structuralf("buffer of %d bytes does not hold %d %s elements", len(data), n, t.Type)
	}

	stride := 1
	for _, d := range t.Shape[axis+1:] {
		stride *= int(d)
	}
	channels := int(t.Shape[axis])

	out := make([]byte, len(data))
	for e := range int(n) {
		c := (e / stride) % channels
		off := e * size

		var v int64
		switch t.Type {
		case tflite.TensorTypeInt8:
			v = int64(int8(data[off]))
		case tflite.TensorTypeUint8:
			v = int64(data[off])
		case tflite.TensorTypeInt32:
			v = int64(int32(binary.LittleEndian.Uint32(data[off:])))
		}

		x := float64(v-zp) * float64(scales[c])
		nv := min(max(int64(math.Round(x/float64(scale)))+zp, lo), hi)

		switch t.Type {
		case tflite.TensorTypeInt8, tflite.TensorTypeUint8:
			out[off] = byte(nv)
		case tflite.TensorTypeInt32:
			binary.LittleEndian.PutUint32(out[off:], uint32(int32(nv)))
		}
	}
	return out, nil
}

// toUint8 verschiebt einen INT8-Tensor in den UINT8-Wertebereich
func toUint8(m *tflite.Model, t *tflite.Tensor, done map[uint32]bool) {
	q := t.Quantization
	if len(q.ZeroPoint) == 0 {
		q.ZeroPoint = make([]int64, len(q.Scale))
	}
	for i := range q.ZeroPoint {
		q.ZeroPoint[i] += 128
	}
	t.Type = tflite.TensorTypeUint8

	b := m.Buffers[t.Buffer]
	if len(b.Data) == 0 || done[t.Buffer] {
		return
	}
	for i := range b.Data {
		b.Data[i] ^= 0x80
	}
	done[t.Buffer] = true
}
