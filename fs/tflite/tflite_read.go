// Package tflite - Flatbuffer Lese-Funktionen
//
// Dieses Modul enthaelt die Dekodierung jeder Schema-Tabelle:
// - decoder.model, subgraph, tensor, operator, options, buffer, ...
// - Generische Helfer fuer Slots, Untertabellen und Skalar-Vektoren
//
// Slot i einer Tabelle liegt an vtable-Offset 4+2*i.
package tflite

import (
	"fmt"
	"log/slog"
	"slices"

	flatbuffers "github.com/google/flatbuffers/go"
)

type decoder struct {
	buf []byte

	// bereits gemeldete unbekannte Felder, je Tabelle und Slot
	warned map[string]bool
}

func slot(i int) flatbuffers.VOffsetT {
	return flatbuffers.VOffsetT(4 + 2*i)
}

// field gibt den relativen Offset eines Slots zurueck, 0 wenn nicht vorhanden
func field(t *flatbuffers.Table, i int) flatbuffers.UOffsetT {
	return flatbuffers.UOffsetT(t.Offset(slot(i)))
}

// subTable liest eine Untertabelle
func subTable(t *flatbuffers.Table, i int) *flatbuffers.Table {
	o := field(t, i)
	if o == 0 {
		return nil
	}
	return &flatbuffers.Table{Bytes: t.Bytes, Pos: t.Indirect(o + t.Pos)}
}

// tableVector liest einen Vektor von Untertabellen
func tableVector(t *flatbuffers.Table, i int) []*flatbuffers.Table {
	o := field(t, i)
	if o == 0 {
		return nil
	}
	n := t.VectorLen(o)
	start := t.Vector(o)
	ts := make([]*flatbuffers.Table, n)
	for j := range n {
		x := start + flatbuffers.UOffsetT(j)*flatbuffers.SizeUOffsetT
		ts[j] = &flatbuffers.Table{Bytes: t.Bytes, Pos: t.Indirect(x)}
	}
	return ts
}

// scalarVector liest einen Vektor fester Elementbreite
func scalarVector[T any](t *flatbuffers.Table, i int, size int, get func(flatbuffers.UOffsetT) T) []T {
	o := field(t, i)
	if o == 0 {
		return nil
	}
	n := t.VectorLen(o)
	start := t.Vector(o)
	vs := make([]T, n)
	for j := range n {
		vs[j] = get(start + flatbuffers.UOffsetT(j*size))
	}
	return vs
}

func int32Vector(t *flatbuffers.Table, i int) []int32 {
	return scalarVector(t, i, flatbuffers.SizeInt32, t.GetInt32)
}

func float32Vector(t *flatbuffers.Table, i int) []float32 {
	return scalarVector(t, i, flatbuffers.SizeFloat32, t.GetFloat32)
}

func int64Vector(t *flatbuffers.Table, i int) []int64 {
	return scalarVector(t, i, flatbuffers.SizeInt64, t.GetInt64)
}

func boolVector(t *flatbuffers.Table, i int) []bool {
	return scalarVector(t, i, flatbuffers.SizeBool, t.GetBool)
}

// byteVector kopiert einen [ubyte]-Vektor aus dem Eingabe-Buffer
func byteVector(t *flatbuffers.Table, i int) []byte {
	o := field(t, i)
	if o == 0 {
		return nil
	}
	return slices.Clone(t.ByteVector(o + t.Pos))
}

// optionalInt32 liest einen Skalar, dessen Fehlen sich vom Default unterscheidet
func optionalInt32(t *flatbuffers.Table, i int) *int32 {
	o := field(t, i)
	if o == 0 {
		return nil
	}
	v := t.GetInt32(t.Pos + o)
	return &v
}

// vtable gibt die Position der vtable von t zurueck
func vtable(t *flatbuffers.Table) flatbuffers.UOffsetT {
	return flatbuffers.UOffsetT(flatbuffers.SOffsetT(t.Pos) - t.GetSOffsetT(t.Pos))
}

// slots gibt die Anzahl der Slots in der vtable von t zurueck
func slots(t *flatbuffers.Table) int {
	return (int(t.GetVOffsetT(vtable(t))) - 4) / 2
}

// unknownSlots meldet gesetzte Felder ab Slot known. Sie stammen aus einem
// neueren Schema und gehen beim Kopieren verloren.
func (d *decoder) unknownSlots(t *flatbuffers.Table, known int, table string) {
	for i := known; i < slots(t); i++ {
		if field(t, i) == 0 {
			continue
		}
		key := fmt.Sprintf("%s/%d", table, i)
		if d.warned[key] {
			continue
		}
		if d.warned == nil {
			d.warned = make(map[string]bool)
		}
		d.warned[key] = true
		slog.Warn("dropping unknown schema field", "table", table, "slot", i)
	}
}

func stringField(t *flatbuffers.Table, i int) string {
	o := field(t, i)
	if o == 0 {
		return ""
	}
	return string(t.ByteVector(o + t.Pos))
}

func (d *decoder) model(t *flatbuffers.Table) (*Model, error) {
	d.unknownSlots(t, 8, "Model")
	m := &Model{
		Version:        t.GetUint32Slot(slot(0), 0),
		Description:    stringField(t, 3),
		MetadataBuffer: int32Vector(t, 5),
	}

	if ts := tableVector(t, 1); ts != nil {
		m.OperatorCodes = make([]*OperatorCode, len(ts))
		for i, ot := range ts {
			d.unknownSlots(ot, 4, "OperatorCode")
			m.OperatorCodes[i] = &OperatorCode{
				DeprecatedBuiltinCode: ot.GetInt8Slot(slot(0), 0),
				CustomCode:            stringField(ot, 1),
				Version:               ot.GetInt32Slot(slot(2), 1),
				BuiltinCode:           BuiltinOperator(ot.GetInt32Slot(slot(3), 0)),
			}
		}
	}

	if ts := tableVector(t, 2); ts != nil {
		m.Subgraphs = make([]*Subgraph, len(ts))
		for i, st := range ts {
			sg, err := d.subgraph(st)
			if err != nil {
				return nil, err
			}
			m.Subgraphs[i] = sg
		}
	}

	if ts := tableVector(t, 4); ts != nil {
		m.Buffers = make([]*Buffer, len(ts))
		for i, bt := range ts {
			d.unknownSlots(bt, 3, "Buffer")
			b := &Buffer{
				Data:   byteVector(bt, 0),
				Offset: bt.GetUint64Slot(slot(1), 0),
				Size:   bt.GetUint64Slot(slot(2), 0),
			}
			if b.Offset > 1 {
				return nil, malformedf("buffer %d: data stored outside the flatbuffer (offset %d) is not supported", i, b.Offset)
			}
			m.Buffers[i] = b
		}
	}

	if ts := tableVector(t, 6); ts != nil {
		m.Metadata = make([]*Metadata, len(ts))
		for i, mt := range ts {
			d.unknownSlots(mt, 2, "Metadata")
			m.Metadata[i] = &Metadata{
				Name:   stringField(mt, 0),
				Buffer: mt.GetUint32Slot(slot(1), 0),
			}
		}
	}

	if ts := tableVector(t, 7); ts != nil {
		m.SignatureDefs = make([]*SignatureDef, len(ts))
		for i, st := range ts {
			d.unknownSlots(st, 5, "SignatureDef")
			m.SignatureDefs[i] = &SignatureDef{
				Inputs:        d.tensorMaps(st, 0),
				Outputs:       d.tensorMaps(st, 1),
				SignatureKey:  stringField(st, 2),
				SubgraphIndex: st.GetUint32Slot(slot(4), 0),
			}
		}
	}

	return m, nil
}

func (d *decoder) tensorMaps(t *flatbuffers.Table, i int) []*TensorMap {
	ts := tableVector(t, i)
	if ts == nil {
		return nil
	}
	maps := make([]*TensorMap, len(ts))
	for j, mt := range ts {
		d.unknownSlots(mt, 2, "TensorMap")
		maps[j] = &TensorMap{
			Name:        stringField(mt, 0),
			TensorIndex: mt.GetUint32Slot(slot(1), 0),
		}
	}
	return maps
}

func (d *decoder) subgraph(t *flatbuffers.Table) (*Subgraph, error) {
	d.unknownSlots(t, 6, "SubGraph")
	sg := &Subgraph{
		Inputs:             int32Vector(t, 1),
		Outputs:            int32Vector(t, 2),
		Name:               stringField(t, 4),
		DebugMetadataIndex: optionalInt32(t, 5),
	}

	if ts := tableVector(t, 0); ts != nil {
		sg.Tensors = make([]*Tensor, len(ts))
		for i, tt := range ts {
			tensor, err := d.tensor(tt)
			if err != nil {
				return nil, err
			}
			sg.Tensors[i] = tensor
		}
	}

	if ts := tableVector(t, 3); ts != nil {
		sg.Operators = make([]*Operator, len(ts))
		for i, ot := range ts {
			op, err := d.operator(ot)
			if err != nil {
				return nil, err
			}
			sg.Operators[i] = op
		}
	}

	return sg, nil
}

func (d *decoder) tensor(t *flatbuffers.Table) (*Tensor, error) {
	d.unknownSlots(t, 10, "Tensor")
	tensor := &Tensor{
		Shape:          int32Vector(t, 0),
		Type:           TensorType(t.GetInt8Slot(slot(1), 0)),
		Buffer:         t.GetUint32Slot(slot(2), 0),
		Name:           stringField(t, 3),
		IsVariable:     t.GetBoolSlot(slot(5), false),
		ShapeSignature: int32Vector(t, 7),
		HasRank:        t.GetBoolSlot(slot(8), false),
	}

	if ts := tableVector(t, 9); ts != nil {
		tensor.VariantTensors = make([]*VariantSubType, len(ts))
		for i, vt := range ts {
			d.unknownSlots(vt, 3, "VariantSubType")
			tensor.VariantTensors[i] = &VariantSubType{
				Shape:   int32Vector(vt, 0),
				Type:    TensorType(vt.GetInt8Slot(slot(1), 0)),
				HasRank: vt.GetBoolSlot(slot(2), false),
			}
		}
	}

	if field(t, 6) != 0 {
		return nil, malformedf("tensor %q: sparse tensors are not supported", tensor.Name)
	}

	if qt := subTable(t, 4); qt != nil {
		d.unknownSlots(qt, 7, "QuantizationParameters")
		q := &QuantizationParameters{
			Min:                float32Vector(qt, 0),
			Max:                float32Vector(qt, 1),
			Scale:              float32Vector(qt, 2),
			ZeroPoint:          int64Vector(qt, 3),
			QuantizedDimension: qt.GetInt32Slot(slot(6), 0),
		}

		// details: Union mit CustomQuantization als einziger Variante
		switch qt.GetByteSlot(slot(4), 0) {
		case 0:
		case 1:
			if ct := subTable(qt, 5); ct != nil {
				d.unknownSlots(ct, 1, "CustomQuantization")
				q.Custom = byteVector(ct, 0)
			}
		default:
			return nil, malformedf("tensor %q: unknown quantization details type %d", tensor.Name, qt.GetByteSlot(slot(4), 0))
		}

		tensor.Quantization = q
	}

	return tensor, nil
}

func (d *decoder) operator(t *flatbuffers.Table) (*Operator, error) {
	d.unknownSlots(t, 14, "Operator")
	op := &Operator{
		OpcodeIndex:              t.GetUint32Slot(slot(0), 0),
		Inputs:                   int32Vector(t, 1),
		Outputs:                  int32Vector(t, 2),
		CustomOptions:            byteVector(t, 5),
		CustomOptionsFormat:      t.GetInt8Slot(slot(6), 0),
		MutatingVariableInputs:   boolVector(t, 7),
		Intermediates:            int32Vector(t, 8),
		LargeCustomOptionsOffset: t.GetUint64Slot(slot(9), 0),
		LargeCustomOptionsSize:   t.GetUint64Slot(slot(10), 0),
		DebugMetadataIndex:       optionalInt32(t, 13),
	}

	if op.LargeCustomOptionsOffset > 1 {
		return nil, malformedf("operator custom options stored outside the flatbuffer (offset %d) are not supported", op.LargeCustomOptionsOffset)
	}
	if typ := t.GetByteSlot(slot(11), 0); typ != 0 {
		return nil, malformedf("operator builtin_options_2 type %d is not supported", typ)
	}

	if typ := OptionsType(t.GetByteSlot(slot(3), 0)); typ != OptionsNone {
		ot := subTable(t, 4)
		if ot == nil {
			return nil, malformedf("operator options type %d without options table", typ)
		}
		opts, err := d.options(typ, ot)
		if err != nil {
			return nil, err
		}
		op.BuiltinOptions = opts
	}

	return op, nil
}

// options dekodiert eine Options-Tabelle anhand von optionsSchema. Typen ohne
// Schema werden roh uebernommen.
func (d *decoder) options(typ OptionsType, t *flatbuffers.Table) (*BuiltinOptions, error) {
	fields, ok := optionsSchema[typ]
	if !ok {
		return d.rawOptions(typ, t), nil
	}

	opts, err := NewBuiltinOptions(typ)
	if err != nil {
		return nil, err
	}

	for i, f := range fields {
		s := slot(i)
		switch f.kind {
		case fieldBool:
			opts.KV[f.name] = t.GetBoolSlot(s, f.def.(bool))
		case fieldInt8:
			opts.KV[f.name] = t.GetInt8Slot(s, f.def.(int8))
		case fieldInt32:
			opts.KV[f.name] = t.GetInt32Slot(s, f.def.(int32))
		case fieldFloat32:
			opts.KV[f.name] = t.GetFloat32Slot(s, f.def.(float32))
		case fieldUint32:
			opts.KV[f.name] = t.GetUint32Slot(s, f.def.(uint32))
		case fieldInt64:
			opts.KV[f.name] = t.GetInt64Slot(s, f.def.(int64))
		case fieldString:
			if field(t, i) != 0 {
				opts.KV[f.name] = stringField(t, i)
			}
		case fieldInt32s:
			if v := int32Vector(t, i); v != nil {
				opts.KV[f.name] = v
			}
		case fieldFloat32s:
			if v := float32Vector(t, i); v != nil {
				opts.KV[f.name] = v
			}
		}
	}

	d.unknownSlots(t, len(fields), fmt.Sprintf("BuiltinOptions(%d)", typ))
	return opts, nil
}

// rawOptions kopiert die Felder einer Tabelle ohne Schema. Die Breite eines
// Feldes ergibt sich aus dem Abstand zum naechsten Feld bzw. zum Tabellenende
// und aus seiner Ausrichtung.
func (d *decoder) rawOptions(typ OptionsType, t *flatbuffers.Table) *BuiltinOptions {
	size := int(t.GetVOffsetT(vtable(t) + 2))

	raw := make([]RawField, 0, slots(t))
	for i := range slots(t) {
		if field(t, i) != 0 {
			raw = append(raw, RawField{Slot: i})
		}
	}

	offset := func(f RawField) int { return int(field(t, f.Slot)) }
	slices.SortFunc(raw, func(a, b RawField) int { return offset(a) - offset(b) })
	for j := range raw {
		end := size
		if j+1 < len(raw) {
			end = offset(raw[j+1])
		}
		// Skalare sind hoechstens 8 Bytes breit und auf ihre Breite ausgerichtet
		start := int(t.Pos) + offset(raw[j])
		n := 8
		for n > 1 && (n > end-offset(raw[j]) || start%n != 0) {
			n /= 2
		}
		raw[j].Data = slices.Clone(t.Bytes[start : start+n])
	}
	slices.SortFunc(raw, func(a, b RawField) int { return a.Slot - b.Slot })

	if key := fmt.Sprintf("BuiltinOptions(%d)", typ); !d.warned[key] {
		if d.warned == nil {
			d.warned = make(map[string]bool)
		}
		d.warned[key] = true
		slog.Warn("builtin options without schema, copying fields as raw scalars", "type", typ, "fields", len(raw))
	}
	return &BuiltinOptions{Type: typ, Raw: raw}
}
