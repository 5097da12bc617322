// quantize.go - Quantisierungsparameter ergaenzen
//
// Fuer jeden Gleitkomma-Tensor, der Ein- oder Ausgang eines Operators ist:
//   - fehlen min/max und hat der Tensor konstante Daten, werden sie aus dem
//     Buffer bestimmt
//   - sind min/max vorhanden aber keine Scales, werden asymmetrische
//     uint8-Parameter (scale, zero_point) berechnet
//
// Tensortypen und Buffer-Inhalte bleiben unveraendert.
package transform

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"

	"github.com/x448/float16"
	"gonum.org/v1/gonum/floats"

	"github.com/mltools/mltools/fs/tflite"
)

const (
	quantMin = 0
	quantMax = math.MaxUint8
)

// Quantize ergaenzt uint8-Quantisierungsparameter aus min/max
type Quantize struct{}

func (Quantize) Name() string { return "quantize" }

func (Quantize) Apply(m *tflite.Model) (*tflite.Model, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}

	out := m.Clone()
	var derived, quantized int
	for si, sg := range out.Subgraphs {
		for _, ti := range operatorTensors(sg) {
			t := sg.Tensors[ti]
			if t.Type != tflite.TensorTypeFloat32 && t.Type != tflite.TensorTypeFloat16 {
				continue
			}

			q := t.Quantization
			if q == nil || len(q.Min) == 0 || len(q.Max) == 0 {
				values, err := floatValues(t.Type, out.Buffers[t.Buffer].Data)
				if err != nil {
					return nil, fmt.Errorf("subgraph %d: tensor %d (%q): %w", si, ti, t.Name, err)
				}
				if len(values) == 0 {
					continue
				}
				if q == nil {
					q = &tflite.QuantizationParameters{}
					t.Quantization = q
				}
				q.Min = []float32{float32(floats.Min(values))}
				q.Max = []float32{float32(floats.Max(values))}
				derived++
			}

			if len(q.Scale) > 0 {
				continue
			}
			if len(q.Min) != len(q.Max) {
				return nil, structuralf("subgraph %d: tensor %d (%q): %d min values but %d max values", si, ti, t.Name, len(q.Min), len(q.Max))
			}
			q.Scale = make([]float32, len(q.Min))
			q.ZeroPoint = make([]int64, len(q.Min))
			for i := range q.Min {
				q.Scale[i], q.ZeroPoint[i] = asymmetricParams(q.Min[i], q.Max[i])
			}
			quantized++
		}
	}

	slog.Debug("quantized model", "derived_ranges", derived, "quantized_tensors", quantized)
	return out, nil
}

// operatorTensors gibt die Indizes aller Tensoren zurueck, die Ein- oder
// Ausgang eines Operators sind, in Reihenfolge ihres ersten Auftretens
func operatorTensors(sg *tflite.Subgraph) []int {
	seen := make(map[int32]bool)
	var indices []int
	for _, op := range sg.Operators {
		for _, list := range [][]int32{op.Inputs, op.Outputs} {
			for _, idx := range list {
				if idx == -1 || seen[idx] {
					continue
				}
				seen[idx] = true
				indices = append(indices, int(idx))
			}
		}
	}
	return indices
}

// floatValues dekodiert einen FLOAT32- oder FLOAT16-Buffer. NaN wird
// ausgelassen.
func floatValues(t tflite.TensorType, data []byte) ([]float64, error) {
	size := t.Size()
	if len(data)%size != 0 {
		return nil, structuralf("buffer of %d bytes is not a multiple of %s", len(data), t)
	}

	values := make([]float64, 0, len(data)/size)
	for i := 0; i < len(data); i += size {
		var v float64
		switch t {
		case tflite.TensorTypeFloat32:
			v = float64(math.Float32frombits(binary.LittleEndian.Uint32(data[i:])))
		case tflite.TensorTypeFloat16:
			v = float64(float16.Frombits(binary.LittleEndian.Uint16(data[i:])).Float32())
		}
		if !math.IsNaN(v) {
			values = append(values, v)
		}
	}
	return values, nil
}

// asymmetricParams berechnet scale und zero_point fuer [quantMin, quantMax].
// Der Bereich wird um 0 erweitert, damit 0 exakt darstellbar ist.
func asymmetricParams(lo, hi float32) (float32, int64) {
	rmin := math.Min(float64(lo), 0)
	rmax := math.Max(float64(hi), 0)
	if rmax == rmin {
		return 1, 0
	}

	scale := (rmax - rmin) / (quantMax - quantMin)
	zp := quantMin - rmin/scale
	switch {
	case zp < quantMin:
		return float32(scale), quantMin
	case zp > quantMax:
		return float32(scale), quantMax
	default:
		return float32(scale), int64(math.Round(zp))
	}
}
