package transform

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mltools/mltools/fs/tflite"
)

func opcode(op tflite.BuiltinOperator) *tflite.OperatorCode {
	return &tflite.OperatorCode{BuiltinCode: op, DeprecatedBuiltinCode: int8(min(op, 127)), Version: 1}
}

func options(t *testing.T, typ tflite.OptionsType, kv tflite.OptionsKV) *tflite.BuiltinOptions {
	t.Helper()
	opts, err := tflite.NewBuiltinOptions(typ)
	require.NoError(t, err)
	for k, v := range kv {
		opts.KV[k] = v
	}
	return opts
}

func seq(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i)
	}
	return b
}

// roundtrip kodiert und dekodiert m, damit Tests den Flatbuffer-Pfad nutzen
func roundtrip(t *testing.T, m *tflite.Model) *tflite.Model {
	t.Helper()
	buf, err := m.Encode()
	require.NoError(t, err)
	out, err := tflite.Decode(buf)
	require.NoError(t, err)
	return out
}

// convModel: input[1,224,224,3], filter, bias -> CONV_2D -> output[1,224,224,3]
func convModel(t *testing.T) *tflite.Model {
	t.Helper()
	return roundtrip(t, &tflite.Model{
		Version:       3,
		OperatorCodes: []*tflite.OperatorCode{opcode(tflite.OpConv2D)},
		Description:   "conv",
		Subgraphs: []*tflite.Subgraph{{
			Name: "main",
			Tensors: []*tflite.Tensor{
				{Shape: []int32{1, 224, 224, 3}, Type: tflite.TensorTypeFloat32, Buffer: 1, Name: "input"},
				{Shape: []int32{3, 3, 3, 3}, Type: tflite.TensorTypeInt8, Buffer: 2, Name: "filter"},
				{Shape: []int32{3}, Type: tflite.TensorTypeInt32, Buffer: 3, Name: "bias"},
				{Shape: []int32{1, 224, 224, 3}, Type: tflite.TensorTypeFloat32, Buffer: 4, Name: "output", ShapeSignature: []int32{-1, 224, 224, 3}},
			},
			Inputs:  []int32{0},
			Outputs: []int32{3},
			Operators: []*tflite.Operator{{
				OpcodeIndex:    0,
				Inputs:         []int32{0, 1, 2},
				Outputs:        []int32{3},
				BuiltinOptions: options(t, tflite.OptionsConv2D, tflite.OptionsKV{"padding": int8(0), "stride_w": int32(1), "stride_h": int32(1)}),
			}},
		}},
		Buffers: []*tflite.Buffer{
			{},
			{Data: []byte{1, 2, 3, 4, 5, 6, 7, 8}},
			{Data: seq(3 * 3 * 3 * 3)},
			{Data: seq(3 * 4)},
			{Data: []byte{9, 8, 7, 6}},
		},
	})
}

// reshapeModel: input[1,16,16] -> RESHAPE(shape) -> [1,256] -> LOGISTIC -> output
func reshapeModel(t *testing.T) *tflite.Model {
	t.Helper()
	return roundtrip(t, &tflite.Model{
		Version:       3,
		OperatorCodes: []*tflite.OperatorCode{opcode(tflite.OpReshape), opcode(tflite.OpLogistic)},
		Subgraphs: []*tflite.Subgraph{{
			Name: "main",
			Tensors: []*tflite.Tensor{
				{Shape: []int32{1, 16, 16}, Type: tflite.TensorTypeFloat32, Buffer: 0, Name: "input"},
				{Shape: []int32{2}, Type: tflite.TensorTypeInt32, Buffer: 1, Name: "shape"},
				{Shape: []int32{1, 256}, Type: tflite.TensorTypeFloat32, Buffer: 0, Name: "flat", ShapeSignature: []int32{1, 256}},
				{Shape: []int32{1, 256}, Type: tflite.TensorTypeFloat32, Buffer: 0, Name: "output"},
			},
			Inputs:  []int32{0},
			Outputs: []int32{3},
			Operators: []*tflite.Operator{
				{
					OpcodeIndex:    0,
					Inputs:         []int32{0, 1},
					Outputs:        []int32{2},
					BuiltinOptions: options(t, tflite.OptionsReshape, tflite.OptionsKV{"new_shape": []int32{1, 256}}),
				},
				{OpcodeIndex: 1, Inputs: []int32{2}, Outputs: []int32{3}},
			},
		}},
		Buffers: []*tflite.Buffer{
			{},
			{Data: []byte{1, 0, 0, 0, 0, 1, 0, 0}},
		},
	})
}
