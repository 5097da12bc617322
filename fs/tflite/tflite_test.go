// tflite_test.go - Tests fuer Dekodierung, Kodierung und Validierung
package tflite

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	flatbuffers "github.com/google/flatbuffers/go"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustOptions(t *testing.T, typ OptionsType, kv OptionsKV) *BuiltinOptions {
	t.Helper()
	opts, err := NewBuiltinOptions(typ)
	require.NoError(t, err)
	for k, v := range kv {
		opts.KV[k] = v
	}
	return opts
}

func ptr(v int32) *int32 { return &v }

func testModel(t *testing.T) *Model {
	t.Helper()
	return &Model{
		Version: 3,
		OperatorCodes: []*OperatorCode{
			{BuiltinCode: OpConv2D, DeprecatedBuiltinCode: int8(OpConv2D), Version: 1},
			{BuiltinCode: OpReshape, DeprecatedBuiltinCode: int8(OpReshape), Version: 1},
			{BuiltinCode: OpCustom, DeprecatedBuiltinCode: int8(OpCustom), CustomCode: "TFLite_Detection_PostProcess", Version: 1},
		},
		Description: "converted",
		Subgraphs: []*Subgraph{
			{
				Name: "main",
				Tensors: []*Tensor{
					{Shape: []int32{1, 8, 8, 3}, Type: TensorTypeFloat32, Buffer: 0, Name: "input"},
					{Shape: []int32{4, 3, 3, 3}, Type: TensorTypeInt8, Buffer: 1, Name: "filter", Quantization: &QuantizationParameters{
						Scale:              []float32{0.1, 0.2, 0.3, 0.4},
						ZeroPoint:          []int64{0, 0, 0, 0},
						QuantizedDimension: 0,
					}},
					{Shape: []int32{4}, Type: TensorTypeInt32, Buffer: 2, Name: "bias"},
					{Shape: []int32{1, 8, 8, 4}, Type: TensorTypeFloat32, Buffer: 0, Name: "conv", ShapeSignature: []int32{-1, 8, 8, 4}},
					{Shape: []int32{2}, Type: TensorTypeInt32, Buffer: 3, Name: "shape"},
					{Shape: []int32{1, 256}, Type: TensorTypeFloat32, Buffer: 0, Name: "output", Quantization: &QuantizationParameters{
						Min:    []float32{-1},
						Max:    []float32{1},
						Custom: []byte{1, 2, 3},
					}},
					{Shape: []int32{}, Type: TensorTypeFloat32, Buffer: 0, Name: "scalar", IsVariable: true, HasRank: true},
					{Shape: []int32{}, Type: tensorTypeVariant, Buffer: 0, Name: "list", VariantTensors: []*VariantSubType{
						{Shape: []int32{2, 2}, Type: TensorTypeFloat32, HasRank: true},
					}},
				},
				Inputs:  []int32{0},
				Outputs: []int32{5},
				Operators: []*Operator{
					{
						OpcodeIndex:    0,
						Inputs:         []int32{0, 1, 2},
						Outputs:        []int32{3},
						BuiltinOptions: mustOptions(t, OptionsConv2D, OptionsKV{"padding": int8(1), "stride_w": int32(1), "stride_h": int32(1)}),
					},
					{
						OpcodeIndex:    1,
						Inputs:         []int32{3, 4},
						Outputs:        []int32{5},
						BuiltinOptions: mustOptions(t, OptionsReshape, OptionsKV{"new_shape": []int32{1, 256}}),
					},
					{
						OpcodeIndex:            2,
						Inputs:                 []int32{5, -1},
						Outputs:                []int32{6},
						CustomOptions:          []byte{0xde, 0xad},
						MutatingVariableInputs: []bool{false, true},
						LargeCustomOptionsSize: 2,
						DebugMetadataIndex:     ptr(42),
					},
				},
				DebugMetadataIndex: ptr(0),
			},
			{
				Name:    "empty",
				Tensors: []*Tensor{},
			},
		},
		Buffers: []*Buffer{
			{},
			{Data: make([]byte, 4*3*3*3)},
			{Data: []byte{1, 0, 0, 0, 2, 0, 0, 0, 3, 0, 0, 0, 4, 0, 0, 0}},
			{Data: []byte{1, 0, 0, 0, 0, 1, 0, 0}},
			{Data: []byte("{\"min_runtime\": \"1.5.0\"}")},
		},
		Metadata:       []*Metadata{{Name: "min_runtime_version", Buffer: 4}},
		MetadataBuffer: []int32{4},
		SignatureDefs: []*SignatureDef{{
			Inputs:       []*TensorMap{{Name: "input", TensorIndex: 0}},
			Outputs:      []*TensorMap{{Name: "output", TensorIndex: 5}},
			SignatureKey: "serving_default",
		}},
	}
}

func TestEncodeDecode(t *testing.T) {
	m := testModel(t)
	require.NoError(t, m.Validate())

	buf, err := m.Encode()
	require.NoError(t, err)
	assert.Equal(t, FileIdentifier, string(buf[4:8]))

	got, err := Decode(buf)
	require.NoError(t, err)

	if diff := cmp.Diff(m, got); diff != "" {
		t.Errorf("Modell nach Roundtrip unterschiedlich (-want +got):\n%s", diff)
	}
}

func TestEncodeAlignsBufferData(t *testing.T) {
	m := &Model{
		Version: 3,
		Buffers: []*Buffer{{}, {Data: []byte{1, 2, 3, 4, 5}}, {Data: []byte{9, 9, 9}}},
	}

	buf, err := m.Encode()
	require.NoError(t, err)

	got, err := Decode(buf)
	require.NoError(t, err)
	require.Len(t, got.Buffers, 3)

	for i, want := range [][]byte{{1, 2, 3, 4, 5}, {9, 9, 9}} {
		data := got.Buffers[i+1].Data
		assert.Equal(t, want, data)

		// Die Daten muessen relativ zum Buffer-Anfang auf 16 Bytes liegen
		idx := indexOf(buf, want)
		require.GreaterOrEqual(t, idx, 0)
		assert.Zero(t, idx%bufferAlignment, "buffer %d liegt bei Offset %d", i+1, idx)
	}
}

func indexOf(haystack, needle []byte) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if string(haystack[i:i+len(needle)]) == string(needle) {
			return i
		}
	}
	return -1
}

func TestDecodeErrors(t *testing.T) {
	valid, err := testModel(t).Encode()
	require.NoError(t, err)

	cases := []struct {
		name string
		buf  []byte
	}{
		{"Leerer Buffer", nil},
		{"Zu kurz", []byte{0, 0, 0, 0}},
		{"Falscher Identifier", append([]byte{8, 0, 0, 0}, []byte("GGUF0000")...)},
		{"Abgeschnitten", valid[:len(valid)/2]},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.buf)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestEncodeUnknownOptions(t *testing.T) {
	m := testModel(t)
	m.Subgraphs[0].Operators[0].BuiltinOptions = &BuiltinOptions{Type: 200, KV: OptionsKV{}}

	_, err := m.Encode()
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestEncodeOptionsWrongType(t *testing.T) {
	m := testModel(t)
	m.Subgraphs[0].Operators[1].BuiltinOptions.KV["new_shape"] = []int64{1, 256}

	_, err := m.Encode()
	assert.ErrorContains(t, err, "new_shape")
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Model)
	}{
		{"Buffer-Index", func(m *Model) { m.Subgraphs[0].Tensors[1].Buffer = 99 }},
		{"Opcode-Index", func(m *Model) { m.Subgraphs[0].Operators[0].OpcodeIndex = 7 }},
		{"Operator-Input", func(m *Model) { m.Subgraphs[0].Operators[0].Inputs[1] = 42 }},
		{"Operator-Output optional nicht erlaubt", func(m *Model) { m.Subgraphs[0].Operators[0].Outputs[0] = -1 }},
		{"Subgraph-Output", func(m *Model) { m.Subgraphs[0].Outputs[0] = 7 }},
		{"Metadata-Buffer", func(m *Model) { m.Metadata[0].Buffer = 5 }},
		{"Signatur-Subgraph", func(m *Model) { m.SignatureDefs[0].SubgraphIndex = 2 }},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			m := testModel(t)
			tt.mutate(m)
			assert.ErrorIs(t, m.Validate(), ErrMalformed)
		})
	}
}

func TestOperatorCodeKind(t *testing.T) {
	cases := []struct {
		code OperatorCode
		want BuiltinOperator
	}{
		{OperatorCode{DeprecatedBuiltinCode: int8(OpLogistic)}, OpLogistic},
		{OperatorCode{BuiltinCode: OpReshape, DeprecatedBuiltinCode: int8(OpReshape)}, OpReshape},
		{OperatorCode{BuiltinCode: 150, DeprecatedBuiltinCode: 127}, 150},
	}

	for _, tt := range cases {
		t.Run(tt.want.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.code.Kind())
		})
	}
}

func TestCloneIsDeep(t *testing.T) {
	m := testModel(t)
	c := m.Clone()
	require.Empty(t, cmp.Diff(m, c))

	c.Subgraphs[0].Tensors[0].Shape[0] = 9
	c.Buffers[2].Data[0] = 0xff
	c.Subgraphs[0].Operators[1].BuiltinOptions.KV.Int32s("new_shape")[0] = 9
	*c.Subgraphs[0].Operators[2].DebugMetadataIndex = 7
	c.Subgraphs[0].Tensors[7].VariantTensors[0].Shape[0] = 9

	assert.Equal(t, int32(1), m.Subgraphs[0].Tensors[0].Shape[0])
	assert.Equal(t, byte(1), m.Buffers[2].Data[0])
	assert.Equal(t, int32(1), m.Subgraphs[0].Operators[1].BuiltinOptions.KV.Int32s("new_shape")[0])
	assert.Equal(t, int32(42), *m.Subgraphs[0].Operators[2].DebugMetadataIndex)
	assert.Equal(t, int32(2), m.Subgraphs[0].Tensors[7].VariantTensors[0].Shape[0])
}

func lstmModel(t *testing.T) *Model {
	t.Helper()
	return &Model{
		Version:       3,
		OperatorCodes: []*OperatorCode{{BuiltinCode: OpLstm, DeprecatedBuiltinCode: int8(OpLstm), Version: 1}},
		Subgraphs: []*Subgraph{{
			Tensors: []*Tensor{},
			Operators: []*Operator{{
				OpcodeIndex: 0,
				BuiltinOptions: mustOptions(t, OptionsLSTM, OptionsKV{
					"fused_activation_function":  int8(1),
					"cell_clip":                  float32(0.5),
					"proj_clip":                  float32(0.25),
					"kernel_type":                int8(1),
					"asymmetric_quantize_inputs": true,
				}),
			}},
		}},
		Buffers: []*Buffer{{}},
	}
}

func TestOptionsWithoutSchema(t *testing.T) {
	m := lstmModel(t)
	buf, err := m.Encode()
	require.NoError(t, err)

	// Ein Leser mit aelterem Schema kennt LSTM nicht
	fields := optionsSchema[OptionsLSTM]
	delete(optionsSchema, OptionsLSTM)
	t.Cleanup(func() { optionsSchema[OptionsLSTM] = fields })

	raw, err := Decode(buf)
	require.NoError(t, err)
	opts := raw.Subgraphs[0].Operators[0].BuiltinOptions
	require.NotNil(t, opts)
	assert.Equal(t, OptionsLSTM, opts.Type)
	assert.Nil(t, opts.KV)
	require.Len(t, opts.Raw, len(fields))

	copied, err := raw.Clone().Encode()
	require.NoError(t, err)

	optionsSchema[OptionsLSTM] = fields
	got, err := Decode(copied)
	require.NoError(t, err)

	if diff := cmp.Diff(m, got); diff != "" {
		t.Errorf("Options nach Rohkopie unterschiedlich (-want +got):\n%s", diff)
	}
}

func TestRawOptionsStable(t *testing.T) {
	m := lstmModel(t)
	m.Subgraphs[0].Operators[0].BuiltinOptions = &BuiltinOptions{Type: 200, Raw: []RawField{
		{Slot: 0, Data: []byte{7, 0, 0, 0}},
		{Slot: 3, Data: []byte{1, 2, 3, 4, 5, 6, 7, 8}},
	}}

	want := m.Subgraphs[0].Operators[0].BuiltinOptions
	for range 3 {
		buf, err := m.Encode()
		require.NoError(t, err)
		m, err = Decode(buf)
		require.NoError(t, err)
		assert.Equal(t, want, m.Subgraphs[0].Operators[0].BuiltinOptions)
	}
}

func TestOptionsKinds(t *testing.T) {
	m := lstmModel(t)
	m.Subgraphs[0].Operators = []*Operator{
		{BuiltinOptions: mustOptions(t, OptionsCall, OptionsKV{"subgraph": uint32(3)})},
		{BuiltinOptions: mustOptions(t, OptionsRandom, OptionsKV{"seed": int64(1) << 40, "seed2": int64(-5)})},
		{BuiltinOptions: mustOptions(t, OptionsBucketize, OptionsKV{"boundaries": []float32{0.5, 1.5}})},
		{BuiltinOptions: mustOptions(t, OptionsVarHandle, OptionsKV{"container": "c", "shared_name": "state"})},
	}

	buf, err := m.Encode()
	require.NoError(t, err)
	got, err := Decode(buf)
	require.NoError(t, err)

	if diff := cmp.Diff(m, got); diff != "" {
		t.Errorf("Options unterschiedlich (-want +got):\n%s", diff)
	}
}

func TestUnknownSlotsWarnOnce(t *testing.T) {
	b := flatbuffers.NewBuilder(0)
	b.StartObject(6)
	b.PrependInt32Slot(0, 1, 0)
	b.PrependInt32Slot(5, 42, 0)
	b.Finish(b.EndObject())
	data := b.FinishedBytes()
	tbl := &flatbuffers.Table{Bytes: data, Pos: flatbuffers.GetUOffsetT(data)}

	var logs bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&logs, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	var d decoder
	d.unknownSlots(tbl, 3, "Buffer")
	d.unknownSlots(tbl, 3, "Buffer")
	d.unknownSlots(tbl, 6, "Operator")

	assert.Equal(t, 1, strings.Count(logs.String(), "dropping unknown schema field"))
	assert.Contains(t, logs.String(), "table=Buffer slot=5")
}

func TestDecodeRejectsExternalCustomOptions(t *testing.T) {
	m := testModel(t)
	m.Subgraphs[0].Operators[2].LargeCustomOptionsOffset = 4096

	buf, err := m.Encode()
	require.NoError(t, err)

	_, err = Decode(buf)
	assert.ErrorIs(t, err, ErrMalformed)
	assert.ErrorContains(t, err, "outside the flatbuffer")
}
