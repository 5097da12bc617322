// Package tflite - Flatbuffer Schreib-Funktionen
//
// Dieses Modul enthaelt die Kodierung jeder Schema-Tabelle:
// - encoder.model, subgraph, tensor, operator, options, buffer, ...
// - Vektor-Helfer fuer Skalare, Offsets und ausgerichtete Byte-Daten
//
// Flatbuffers werden von hinten nach vorne gebaut: alle Kinder einer
// Tabelle (Strings, Vektoren, Untertabellen) muessen vor StartObject
// fertig sein.
package tflite

import (
	flatbuffers "github.com/google/flatbuffers/go"
)

// bufferAlignment ist die Ausrichtung von Buffer.data im Schema (force_align)
const bufferAlignment = 16

type encoder struct {
	b *flatbuffers.Builder
}

func vector[T any](b *flatbuffers.Builder, v []T, size int, prepend func(T)) flatbuffers.UOffsetT {
	b.StartVector(size, len(v), size)
	for i := len(v) - 1; i >= 0; i-- {
		prepend(v[i])
	}
	return b.EndVector(len(v))
}

func (e *encoder) int32s(v []int32) flatbuffers.UOffsetT {
	if v == nil {
		return 0
	}
	return vector(e.b, v, flatbuffers.SizeInt32, e.b.PrependInt32)
}

func (e *encoder) float32s(v []float32) flatbuffers.UOffsetT {
	if v == nil {
		return 0
	}
	return vector(e.b, v, flatbuffers.SizeFloat32, e.b.PrependFloat32)
}

func (e *encoder) int64s(v []int64) flatbuffers.UOffsetT {
	if v == nil {
		return 0
	}
	return vector(e.b, v, flatbuffers.SizeInt64, e.b.PrependInt64)
}

func (e *encoder) bools(v []bool) flatbuffers.UOffsetT {
	if v == nil {
		return 0
	}
	return vector(e.b, v, flatbuffers.SizeBool, e.b.PrependBool)
}

func (e *encoder) optionalInt32(slot int, v *int32) {
	if v == nil {
		return
	}
	e.b.PrependInt32(*v)
	e.b.Slot(slot)
}

func (e *encoder) offsets(v []flatbuffers.UOffsetT) flatbuffers.UOffsetT {
	if v == nil {
		return 0
	}
	return vector(e.b, v, flatbuffers.SizeUOffsetT, e.b.PrependUOffsetT)
}

// bytes schreibt einen [ubyte]-Vektor mit der angegebenen Ausrichtung
func (e *encoder) bytes(v []byte, alignment int) flatbuffers.UOffsetT {
	if v == nil {
		return 0
	}
	e.b.StartVector(flatbuffers.SizeByte, len(v), alignment)
	for i := len(v) - 1; i >= 0; i-- {
		e.b.PlaceByte(v[i])
	}
	return e.b.EndVector(len(v))
}

func (e *encoder) string(s string) flatbuffers.UOffsetT {
	if s == "" {
		return 0
	}
	return e.b.CreateSharedString(s)
}

func (e *encoder) model(m *Model) (flatbuffers.UOffsetT, error) {
	var opcodes, subgraphs, buffers, metadata, signatures []flatbuffers.UOffsetT

	if m.OperatorCodes != nil {
		opcodes = make([]flatbuffers.UOffsetT, len(m.OperatorCodes))
		for i, c := range m.OperatorCodes {
			opcodes[i] = e.operatorCode(c)
		}
	}

	if m.Subgraphs != nil {
		subgraphs = make([]flatbuffers.UOffsetT, len(m.Subgraphs))
		for i, sg := range m.Subgraphs {
			off, err := e.subgraph(sg)
			if err != nil {
				return 0, err
			}
			subgraphs[i] = off
		}
	}

	if m.Buffers != nil {
		buffers = make([]flatbuffers.UOffsetT, len(m.Buffers))
		for i, buf := range m.Buffers {
			buffers[i] = e.buffer(buf)
		}
	}

	if m.Metadata != nil {
		metadata = make([]flatbuffers.UOffsetT, len(m.Metadata))
		for i, md := range m.Metadata {
			name := e.string(md.Name)
			e.b.StartObject(2)
			e.b.PrependUOffsetTSlot(0, name, 0)
			e.b.PrependUint32Slot(1, md.Buffer, 0)
			metadata[i] = e.b.EndObject()
		}
	}

	if m.SignatureDefs != nil {
		signatures = make([]flatbuffers.UOffsetT, len(m.SignatureDefs))
		for i, sd := range m.SignatureDefs {
			signatures[i] = e.signatureDef(sd)
		}
	}

	opcodesOff := e.offsets(opcodes)
	subgraphsOff := e.offsets(subgraphs)
	description := e.string(m.Description)
	buffersOff := e.offsets(buffers)
	metadataBuffer := e.int32s(m.MetadataBuffer)
	metadataOff := e.offsets(metadata)
	signaturesOff := e.offsets(signatures)

	e.b.StartObject(8)
	e.b.PrependUint32Slot(0, m.Version, 0)
	e.b.PrependUOffsetTSlot(1, opcodesOff, 0)
	e.b.PrependUOffsetTSlot(2, subgraphsOff, 0)
	e.b.PrependUOffsetTSlot(3, description, 0)
	e.b.PrependUOffsetTSlot(4, buffersOff, 0)
	e.b.PrependUOffsetTSlot(5, metadataBuffer, 0)
	e.b.PrependUOffsetTSlot(6, metadataOff, 0)
	e.b.PrependUOffsetTSlot(7, signaturesOff, 0)
	return e.b.EndObject(), nil
}

func (e *encoder) operatorCode(c *OperatorCode) flatbuffers.UOffsetT {
	custom := e.string(c.CustomCode)
	e.b.StartObject(4)
	e.b.PrependInt8Slot(0, c.DeprecatedBuiltinCode, 0)
	e.b.PrependUOffsetTSlot(1, custom, 0)
	e.b.PrependInt32Slot(2, c.Version, 1)
	e.b.PrependInt32Slot(3, int32(c.BuiltinCode), 0)
	return e.b.EndObject()
}

func (e *encoder) signatureDef(sd *SignatureDef) flatbuffers.UOffsetT {
	tensorMaps := func(maps []*TensorMap) flatbuffers.UOffsetT {
		if maps == nil {
			return 0
		}
		offs := make([]flatbuffers.UOffsetT, len(maps))
		for i, tm := range maps {
			name := e.string(tm.Name)
			e.b.StartObject(2)
			e.b.PrependUOffsetTSlot(0, name, 0)
			e.b.PrependUint32Slot(1, tm.TensorIndex, 0)
			offs[i] = e.b.EndObject()
		}
		return e.offsets(offs)
	}

	inputs := tensorMaps(sd.Inputs)
	outputs := tensorMaps(sd.Outputs)
	key := e.string(sd.SignatureKey)

	e.b.StartObject(5)
	e.b.PrependUOffsetTSlot(0, inputs, 0)
	e.b.PrependUOffsetTSlot(1, outputs, 0)
	e.b.PrependUOffsetTSlot(2, key, 0)
	e.b.PrependUint32Slot(4, sd.SubgraphIndex, 0)
	return e.b.EndObject()
}

func (e *encoder) subgraph(sg *Subgraph) (flatbuffers.UOffsetT, error) {
	var tensors, operators []flatbuffers.UOffsetT

	if sg.Tensors != nil {
		tensors = make([]flatbuffers.UOffsetT, len(sg.Tensors))
		for i, t := range sg.Tensors {
			tensors[i] = e.tensor(t)
		}
	}

	if sg.Operators != nil {
		operators = make([]flatbuffers.UOffsetT, len(sg.Operators))
		for i, op := range sg.Operators {
			off, err := e.operator(op)
			if err != nil {
				return 0, err
			}
			operators[i] = off
		}
	}

	tensorsOff := e.offsets(tensors)
	inputs := e.int32s(sg.Inputs)
	outputs := e.int32s(sg.Outputs)
	operatorsOff := e.offsets(operators)
	name := e.string(sg.Name)

	e.b.StartObject(6)
	e.b.PrependUOffsetTSlot(0, tensorsOff, 0)
	e.b.PrependUOffsetTSlot(1, inputs, 0)
	e.b.PrependUOffsetTSlot(2, outputs, 0)
	e.b.PrependUOffsetTSlot(3, operatorsOff, 0)
	e.b.PrependUOffsetTSlot(4, name, 0)
	e.optionalInt32(5, sg.DebugMetadataIndex)
	return e.b.EndObject(), nil
}

func (e *encoder) tensor(t *Tensor) flatbuffers.UOffsetT {
	shape := e.int32s(t.Shape)
	name := e.string(t.Name)
	quant := e.quantization(t.Quantization)
	signature := e.int32s(t.ShapeSignature)

	var variants flatbuffers.UOffsetT
	if t.VariantTensors != nil {
		offs := make([]flatbuffers.UOffsetT, len(t.VariantTensors))
		for i, v := range t.VariantTensors {
			vshape := e.int32s(v.Shape)
			e.b.StartObject(3)
			e.b.PrependUOffsetTSlot(0, vshape, 0)
			e.b.PrependInt8Slot(1, int8(v.Type), 0)
			e.b.PrependBoolSlot(2, v.HasRank, false)
			offs[i] = e.b.EndObject()
		}
		variants = e.offsets(offs)
	}

	e.b.StartObject(10)
	e.b.PrependUOffsetTSlot(0, shape, 0)
	e.b.PrependInt8Slot(1, int8(t.Type), 0)
	e.b.PrependUint32Slot(2, t.Buffer, 0)
	e.b.PrependUOffsetTSlot(3, name, 0)
	e.b.PrependUOffsetTSlot(4, quant, 0)
	e.b.PrependBoolSlot(5, t.IsVariable, false)
	e.b.PrependUOffsetTSlot(7, signature, 0)
	e.b.PrependBoolSlot(8, t.HasRank, false)
	e.b.PrependUOffsetTSlot(9, variants, 0)
	return e.b.EndObject()
}

func (e *encoder) quantization(q *QuantizationParameters) flatbuffers.UOffsetT {
	if q == nil {
		return 0
	}

	var details flatbuffers.UOffsetT
	if q.Custom != nil {
		custom := e.bytes(q.Custom, 1)
		e.b.StartObject(1)
		e.b.PrependUOffsetTSlot(0, custom, 0)
		details = e.b.EndObject()
	}

	minOff := e.float32s(q.Min)
	maxOff := e.float32s(q.Max)
	scale := e.float32s(q.Scale)
	zeroPoint := e.int64s(q.ZeroPoint)

	e.b.StartObject(7)
	e.b.PrependUOffsetTSlot(0, minOff, 0)
	e.b.PrependUOffsetTSlot(1, maxOff, 0)
	e.b.PrependUOffsetTSlot(2, scale, 0)
	e.b.PrependUOffsetTSlot(3, zeroPoint, 0)
	if details != 0 {
		e.b.PrependByteSlot(4, 1, 0)
		e.b.PrependUOffsetTSlot(5, details, 0)
	}
	e.b.PrependInt32Slot(6, q.QuantizedDimension, 0)
	return e.b.EndObject()
}

func (e *encoder) operator(op *Operator) (flatbuffers.UOffsetT, error) {
	inputs := e.int32s(op.Inputs)
	outputs := e.int32s(op.Outputs)

	var optsType OptionsType
	var opts flatbuffers.UOffsetT
	if op.BuiltinOptions != nil {
		var err error
		optsType = op.BuiltinOptions.Type
		opts, err = e.options(op.BuiltinOptions)
		if err != nil {
			return 0, err
		}
	}

	custom := e.bytes(op.CustomOptions, 1)
	mutating := e.bools(op.MutatingVariableInputs)
	intermediates := e.int32s(op.Intermediates)

	e.b.StartObject(14)
	e.b.PrependUint32Slot(0, op.OpcodeIndex, 0)
	e.b.PrependUOffsetTSlot(1, inputs, 0)
	e.b.PrependUOffsetTSlot(2, outputs, 0)
	e.b.PrependByteSlot(3, byte(optsType), 0)
	e.b.PrependUOffsetTSlot(4, opts, 0)
	e.b.PrependUOffsetTSlot(5, custom, 0)
	e.b.PrependInt8Slot(6, op.CustomOptionsFormat, 0)
	e.b.PrependUOffsetTSlot(7, mutating, 0)
	e.b.PrependUOffsetTSlot(8, intermediates, 0)
	e.b.PrependUint64Slot(9, op.LargeCustomOptionsOffset, 0)
	e.b.PrependUint64Slot(10, op.LargeCustomOptionsSize, 0)
	e.optionalInt32(13, op.DebugMetadataIndex)
	return e.b.EndObject(), nil
}

// options kodiert eine Options-Tabelle anhand von optionsSchema.
// Fehlende Skalare werden mit ihrem Default geschrieben (also weggelassen).
func (e *encoder) options(opts *BuiltinOptions) (flatbuffers.UOffsetT, error) {
	if opts.Raw != nil {
		return e.rawOptions(opts.Raw), nil
	}

	fields, ok := optionsSchema[opts.Type]
	if !ok {
		return 0, malformedf("builtin options type %d has no schema", opts.Type)
	}

	children := make([]flatbuffers.UOffsetT, len(fields))
	for i, f := range fields {
		v, ok := opts.KV[f.name]
		if !ok || v == nil {
			continue
		}
		if err := f.checkValue(v); err != nil {
			return 0, err
		}
		switch f.kind {
		case fieldInt32s:
			children[i] = e.int32s(v.([]int32))
		case fieldFloat32s:
			children[i] = e.float32s(v.([]float32))
		case fieldString:
			children[i] = e.b.CreateSharedString(v.(string))
		}
	}

	e.b.StartObject(len(fields))
	for i, f := range fields {
		v, ok := opts.KV[f.name]
		if !ok || v == nil {
			continue
		}
		switch f.kind {
		case fieldBool:
			e.b.PrependBoolSlot(i, v.(bool), f.def.(bool))
		case fieldInt8:
			e.b.PrependInt8Slot(i, v.(int8), f.def.(int8))
		case fieldInt32:
			e.b.PrependInt32Slot(i, v.(int32), f.def.(int32))
		case fieldFloat32:
			e.b.PrependFloat32Slot(i, v.(float32), f.def.(float32))
		case fieldUint32:
			e.b.PrependUint32Slot(i, v.(uint32), f.def.(uint32))
		case fieldInt64:
			e.b.PrependInt64Slot(i, v.(int64), f.def.(int64))
		case fieldInt32s, fieldFloat32s, fieldString:
			e.b.PrependUOffsetTSlot(i, children[i], 0)
		}
	}
	return e.b.EndObject(), nil
}

// rawOptions schreibt die Felder einer Tabelle ohne Schema unveraendert,
// jedes auf seine Breite ausgerichtet (hoechstens 8).
func (e *encoder) rawOptions(raw []RawField) flatbuffers.UOffsetT {
	var n int
	for _, f := range raw {
		n = max(n, f.Slot+1)
	}

	e.b.StartObject(n)
	for _, f := range raw {
		if len(f.Data) == 0 {
			continue
		}
		align := 1
		for align < len(f.Data) && align < 8 {
			align *= 2
		}
		e.b.Prep(align, len(f.Data))
		for i := len(f.Data) - 1; i >= 0; i-- {
			e.b.PlaceByte(f.Data[i])
		}
		e.b.Slot(f.Slot)
	}
	return e.b.EndObject()
}

func (e *encoder) buffer(buf *Buffer) flatbuffers.UOffsetT {
	data := e.bytes(buf.Data, bufferAlignment)
	e.b.StartObject(3)
	e.b.PrependUOffsetTSlot(0, data, 0)
	e.b.PrependUint64Slot(1, buf.Offset, 0)
	e.b.PrependUint64Slot(2, buf.Size, 0)
	return e.b.EndObject()
}
