package transform

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mltools/mltools/fs/tflite"
)

func TestReplicateConv2D(t *testing.T) {
	m := convModel(t)

	out, err := NewReplicator(4).Apply(m)
	require.NoError(t, err)
	out = roundtrip(t, out)

	tensors := out.Subgraphs[0].Tensors
	assert.Equal(t, []int32{4, 224, 224, 3}, tensors[0].Shape)
	assert.Equal(t, []int32{4, 224, 224, 3}, tensors[3].Shape)
	assert.Equal(t, []int32{-1, 224, 224, 3}, tensors[3].ShapeSignature, "dynamische Batch-Dimension bleibt")

	// filter und bias unveraendert
	for _, i := range []int{1, 2} {
		assert.Equal(t, m.Subgraphs[0].Tensors[i].Shape, tensors[i].Shape)
		b := m.Subgraphs[0].Tensors[i].Buffer
		assert.Equal(t, m.Buffers[b].Data, out.Buffers[b].Data)
	}

	// input und output vierfach gekachelt
	for _, i := range []int{0, 3} {
		b := m.Subgraphs[0].Tensors[i].Buffer
		in := m.Buffers[b].Data
		require.Len(t, out.Buffers[b].Data, 4*len(in))
		for k := range 4 {
			assert.Equal(t, in, out.Buffers[b].Data[k*len(in):(k+1)*len(in)], "Kopie %d", k)
		}
	}

	assert.Empty(t, out.Buffers[0].Data)
}

func TestReplicateIndexStability(t *testing.T) {
	for name, m := range map[string]*tflite.Model{"conv": convModel(t), "reshape": reshapeModel(t)} {
		t.Run(name, func(t *testing.T) {
			out, err := NewReplicator(3).Apply(m)
			require.NoError(t, err)

			require.Len(t, out.Buffers, len(m.Buffers))
			require.Len(t, out.Subgraphs, len(m.Subgraphs))
			for si, sg := range m.Subgraphs {
				osg := out.Subgraphs[si]
				require.Len(t, osg.Tensors, len(sg.Tensors))
				require.Len(t, osg.Operators, len(sg.Operators))
				assert.Equal(t, sg.Inputs, osg.Inputs)
				assert.Equal(t, sg.Outputs, osg.Outputs)
				for i, op := range sg.Operators {
					assert.Equal(t, op.OpcodeIndex, osg.Operators[i].OpcodeIndex)
					assert.Equal(t, op.Inputs, osg.Operators[i].Inputs)
					assert.Equal(t, op.Outputs, osg.Operators[i].Outputs)
				}
				for i, tensor := range sg.Tensors {
					assert.Equal(t, tensor.Name, osg.Tensors[i].Name)
					assert.Equal(t, tensor.Buffer, osg.Tensors[i].Buffer)
					assert.Equal(t, tensor.Type, osg.Tensors[i].Type)
				}
			}
			assert.Equal(t, m.OperatorCodes, out.OperatorCodes)
			assert.Equal(t, m.Description, out.Description)
		})
	}
}

func TestReplicateIdentityAtOne(t *testing.T) {
	for name, m := range map[string]*tflite.Model{"conv": convModel(t), "reshape": reshapeModel(t)} {
		t.Run(name, func(t *testing.T) {
			want, err := Clone{}.Apply(m)
			require.NoError(t, err)

			got, err := NewReplicator(1).Apply(m)
			require.NoError(t, err)

			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("N=1 unterscheidet sich von clone (-want +got):\n%s", diff)
			}

			wantBuf, err := want.Encode()
			require.NoError(t, err)
			gotBuf, err := got.Encode()
			require.NoError(t, err)
			assert.True(t, bytes.Equal(wantBuf, gotBuf), "kodierte Modelle unterscheiden sich")
		})
	}
}

func TestReplicateBatchSizeIsAbsolute(t *testing.T) {
	m := convModel(t)
	in := m.Buffers[1].Data

	direct, err := NewReplicator(3).Apply(m)
	require.NoError(t, err)

	twice, err := NewReplicator(2).Apply(m)
	require.NoError(t, err)
	twice, err = NewReplicator(3).Apply(twice)
	require.NoError(t, err)

	// Die Form ist in beiden Faellen 3, nicht 2*3
	assert.Equal(t, int32(3), direct.Subgraphs[0].Tensors[0].Shape[0])
	assert.Equal(t, int32(3), twice.Subgraphs[0].Tensors[0].Shape[0])

	// Nur die direkte Anwendung ergibt 3 Kopien der Eingabe
	assert.Len(t, direct.Buffers[1].Data, 3*len(in))
	assert.Len(t, twice.Buffers[1].Data, 6*len(in))
	assert.NotEqual(t, direct.Buffers[1].Data, twice.Buffers[1].Data)

	again, err := NewReplicator(3).Apply(m)
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(direct, again))
}

func TestReplicateReshape(t *testing.T) {
	cases := []struct {
		name  string
		n     int
		enc   ShapeParamEncoding
		shape []byte
	}{
		{"Byte 0", 4, DefaultShapeParamEncoding, []byte{4, 0, 0, 0, 0, 1, 0, 0}},
		{"Breite aus Tensortyp", 300, ShapeParamEncoding{}, []byte{0x2c, 0x01, 0, 0, 0, 1, 0, 0}},
		{"Breite 4", 2, ShapeParamEncoding{Width: 4}, []byte{2, 0, 0, 0, 0, 1, 0, 0}},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			m := reshapeModel(t)
			r := NewReplicator(tt.n)
			r.ShapeParam = tt.enc

			out, err := r.Apply(m)
			require.NoError(t, err)
			out = roundtrip(t, out)

			sg := out.Subgraphs[0]
			n := int32(tt.n)
			assert.Equal(t, []int32{n, 16, 16}, sg.Tensors[0].Shape)
			assert.Equal(t, []int32{2}, sg.Tensors[1].Shape, "shape-Tensor behaelt seine Form")
			assert.Equal(t, []int32{n, 256}, sg.Tensors[2].Shape)
			assert.Equal(t, []int32{n, 256}, sg.Tensors[2].ShapeSignature)
			assert.Equal(t, []int32{n, 256}, sg.Tensors[3].Shape)
			assert.Equal(t, []int32{n, 256}, sg.Operators[0].BuiltinOptions.KV.Int32s("new_shape"))
			assert.Nil(t, sg.Operators[1].BuiltinOptions)
			assert.Equal(t, tt.shape, out.Buffers[1].Data)
		})
	}
}

func TestReplicateShapeParamOverflow(t *testing.T) {
	_, err := NewReplicator(300).Apply(reshapeModel(t))
	assert.ErrorIs(t, err, tflite.ErrMalformed)
	assert.ErrorContains(t, err, "buffer 1")
}

func TestReplicateUnsupported(t *testing.T) {
	m := convModel(t)
	m.OperatorCodes = append(m.OperatorCodes, opcode(tflite.OpAdd))
	sg := m.Subgraphs[0]
	sg.Tensors = append(sg.Tensors, &tflite.Tensor{Shape: []int32{1, 224, 224, 3}, Type: tflite.TensorTypeFloat32, Buffer: 0, Name: "sum"})
	sg.Operators = append(sg.Operators, &tflite.Operator{OpcodeIndex: 1, Inputs: []int32{3, 3}, Outputs: []int32{4}})
	sg.Outputs = []int32{4}

	t.Run("ignore", func(t *testing.T) {
		out, err := NewReplicator(2).Apply(m)
		require.NoError(t, err)
		tensors := out.Subgraphs[0].Tensors
		assert.Equal(t, []int32{2, 224, 224, 3}, tensors[3].Shape, "von CONV_2D markiert")
		assert.Equal(t, []int32{1, 224, 224, 3}, tensors[4].Shape, "ADD hat keine Policy")
	})

	t.Run("fail", func(t *testing.T) {
		r := NewReplicator(2)
		r.Unsupported = UnsupportedFail
		_, err := r.Apply(m)
		assert.ErrorIs(t, err, ErrUnsupportedOperator)
		assert.ErrorContains(t, err, "ADD")
	})

	t.Run("eigene Policy", func(t *testing.T) {
		r := NewReplicator(2)
		r.Unsupported = UnsupportedFail
		r.Policies = DefaultPolicies()
		r.Policies[tflite.OpAdd] = AllDatapathPolicy()
		out, err := r.Apply(m)
		require.NoError(t, err)
		assert.Equal(t, []int32{2, 224, 224, 3}, out.Subgraphs[0].Tensors[4].Shape)
	})
}

func TestReplicateMultipleSubgraphs(t *testing.T) {
	m := convModel(t)
	m.OperatorCodes = append(m.OperatorCodes, opcode(tflite.OpAdd))
	m.Buffers = append(m.Buffers, &tflite.Buffer{Data: []byte{5, 5}})
	m.Subgraphs = append(m.Subgraphs, &tflite.Subgraph{
		Name: "side",
		Tensors: []*tflite.Tensor{
			{Shape: []int32{1, 10}, Type: tflite.TensorTypeFloat32, Buffer: 5, Name: "a"},
			{Shape: []int32{1, 10}, Type: tflite.TensorTypeFloat32, Buffer: 0, Name: "b"},
		},
		Inputs:    []int32{0},
		Outputs:   []int32{1},
		Operators: []*tflite.Operator{{OpcodeIndex: 1, Inputs: []int32{0, 0}, Outputs: []int32{1}}},
	})

	out, err := NewReplicator(2).Apply(roundtrip(t, m))
	require.NoError(t, err)

	// Tensor 0 ist nur im ersten Subgraph datapath
	assert.Equal(t, []int32{2, 224, 224, 3}, out.Subgraphs[0].Tensors[0].Shape)
	assert.Equal(t, []int32{1, 10}, out.Subgraphs[1].Tensors[0].Shape)
	assert.Equal(t, []byte{5, 5}, out.Buffers[5].Data)
}

func TestReplicateConflictingRoles(t *testing.T) {
	m := reshapeModel(t)
	m.OperatorCodes = append(m.OperatorCodes, opcode(tflite.OpConcatenation))
	sg := m.Subgraphs[0]
	sg.Tensors = append(sg.Tensors, &tflite.Tensor{Shape: []int32{4}, Type: tflite.TensorTypeInt32, Buffer: 0, Name: "concat"})
	// shape-Tensor zusaetzlich als datapath-Eingang
	sg.Operators = append(sg.Operators, &tflite.Operator{OpcodeIndex: 2, Inputs: []int32{1, 1}, Outputs: []int32{4}})

	_, err := NewReplicator(2).Apply(m)
	assert.ErrorIs(t, err, tflite.ErrMalformed)
	assert.ErrorContains(t, err, "operator 2 (CONCATENATION)")
}

func TestReplicateSharedBufferConflict(t *testing.T) {
	m := reshapeModel(t)
	// datapath-Tensor teilt den Buffer des shape-Tensors
	m.Subgraphs[0].Tensors[0].Buffer = 1

	_, err := NewReplicator(2).Apply(m)
	assert.ErrorIs(t, err, tflite.ErrMalformed)
	assert.ErrorContains(t, err, "buffer 1")
}

func TestReplicateOptionalInput(t *testing.T) {
	m := convModel(t)
	m.Subgraphs[0].Operators[0].Inputs = []int32{0, 1, -1}

	out, err := NewReplicator(2).Apply(m)
	require.NoError(t, err)
	assert.Equal(t, []int32{0, 1, -1}, out.Subgraphs[0].Operators[0].Inputs)
	assert.Equal(t, []int32{3}, out.Subgraphs[0].Tensors[2].Shape)
}

func TestReplicateDoesNotMutateInput(t *testing.T) {
	m := reshapeModel(t)
	before := m.Clone()

	_, err := NewReplicator(5).Apply(m)
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(before, m))
}

func TestReplicateErrors(t *testing.T) {
	cases := []struct {
		name string
		r    *Replicator
		m    func(*testing.T) *tflite.Model
		err  error
	}{
		{"Batch 0", NewReplicator(0), convModel, ErrUsage},
		{"Batch negativ", NewReplicator(-2), convModel, ErrUsage},
		{"Breite 3", &Replicator{BatchSize: 2, ShapeParam: ShapeParamEncoding{Width: 3}}, convModel, ErrUsage},
		{"Index negativ", &Replicator{BatchSize: 2, ShapeParam: ShapeParamEncoding{Width: 1, Index: -1}}, convModel, ErrUsage},
		{"Buffer-Index", NewReplicator(2), func(t *testing.T) *tflite.Model {
			m := convModel(t)
			m.Subgraphs[0].Tensors[1].Buffer = 42
			return m
		}, tflite.ErrMalformed},
		{"Leere Form", NewReplicator(2), func(t *testing.T) *tflite.Model {
			m := convModel(t)
			m.Subgraphs[0].Tensors[0].Shape = []int32{}
			return m
		}, tflite.ErrMalformed},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.r.Apply(tt.m(t))
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestRun(t *testing.T) {
	m := convModel(t)

	out, err := Run(m, Clone{}, NewReplicator(2), Quantize{})
	require.NoError(t, err)
	assert.Equal(t, int32(2), out.Subgraphs[0].Tensors[0].Shape[0])

	_, err = Run(m, Clone{}, NewReplicator(0))
	assert.ErrorIs(t, err, ErrUsage)
	assert.ErrorContains(t, err, "replicate: ")
}

func TestCloneReplicateKeepsRawOptions(t *testing.T) {
	m := convModel(t)
	m.OperatorCodes = append(m.OperatorCodes, opcode(tflite.OpAbs))
	sg := m.Subgraphs[0]
	sg.Tensors = append(sg.Tensors, &tflite.Tensor{Shape: []int32{1, 224, 224, 3}, Type: tflite.TensorTypeFloat32, Buffer: 0, Name: "act"})
	// Options-Typ, den dieser Leser nicht kennt
	raw := &tflite.BuiltinOptions{Type: 200, Raw: []tflite.RawField{
		{Slot: 0, Data: []byte{7, 0, 0, 0}},
		{Slot: 2, Data: []byte{1, 0, 0, 0, 0, 0, 0, 0}},
	}}
	sg.Operators = append(sg.Operators, &tflite.Operator{OpcodeIndex: 1, Inputs: []int32{3}, Outputs: []int32{4}, BuiltinOptions: raw})
	sg.Outputs = []int32{4}

	out, err := Run(roundtrip(t, m), Clone{}, NewReplicator(2))
	require.NoError(t, err)
	out = roundtrip(t, out)

	assert.Equal(t, raw, out.Subgraphs[0].Operators[1].BuiltinOptions)
	assert.Equal(t, []int32{2, 224, 224, 3}, out.Subgraphs[0].Tensors[3].Shape)
}
