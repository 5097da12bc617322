// tflite_clone.go - Tiefe Kopien der Schema-Tabellen
// Hauptfunktionen: Model.Clone, Subgraph.Clone, Tensor.Clone, Operator.Clone, ...
//
// Die Transformationen bauen immer ein neues Modell. Unveraenderte Felder
// werden mit diesen Funktionen aus dem Eingabemodell uebernommen, sodass
// Ein- und Ausgabe keinen Speicher teilen.
package tflite

import (
	"maps"
	"slices"
)

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneAll[T any](s []*T, clone func(*T) *T) []*T {
	if s == nil {
		return nil
	}
	out := make([]*T, len(s))
	for i, v := range s {
		out[i] = clone(v)
	}
	return out
}

// Clone gibt eine tiefe Kopie des Modells zurueck
func (m *Model) Clone() *Model {
	c := m.CloneHeader()
	c.Subgraphs = cloneAll(m.Subgraphs, (*Subgraph).Clone)
	c.Buffers = cloneAll(m.Buffers, (*Buffer).Clone)
	return c
}

// CloneHeader kopiert alle Felder ausser Subgraphs und Buffers
func (m *Model) CloneHeader() *Model {
	return &Model{
		Version:        m.Version,
		OperatorCodes:  cloneAll(m.OperatorCodes, (*OperatorCode).Clone),
		Description:    m.Description,
		MetadataBuffer: slices.Clone(m.MetadataBuffer),
		Metadata:       cloneAll(m.Metadata, (*Metadata).Clone),
		SignatureDefs:  cloneAll(m.SignatureDefs, (*SignatureDef).Clone),
	}
}

func (c *OperatorCode) Clone() *OperatorCode {
	n := *c
	return &n
}

func (md *Metadata) Clone() *Metadata {
	n := *md
	return &n
}

func (sd *SignatureDef) Clone() *SignatureDef {
	clone := func(tm *TensorMap) *TensorMap {
		n := *tm
		return &n
	}
	return &SignatureDef{
		Inputs:        cloneAll(sd.Inputs, clone),
		Outputs:       cloneAll(sd.Outputs, clone),
		SignatureKey:  sd.SignatureKey,
		SubgraphIndex: sd.SubgraphIndex,
	}
}

// Clone gibt eine tiefe Kopie des Subgraphs zurueck
func (sg *Subgraph) Clone() *Subgraph {
	c := sg.CloneHeader()
	c.Tensors = cloneAll(sg.Tensors, (*Tensor).Clone)
	c.Operators = cloneAll(sg.Operators, (*Operator).Clone)
	return c
}

// CloneHeader kopiert alle Felder ausser Tensors und Operators
func (sg *Subgraph) CloneHeader() *Subgraph {
	return &Subgraph{
		Inputs:             slices.Clone(sg.Inputs),
		Outputs:            slices.Clone(sg.Outputs),
		Name:               sg.Name,
		DebugMetadataIndex: clonePtr(sg.DebugMetadataIndex),
	}
}

func (t *Tensor) Clone() *Tensor {
	return &Tensor{
		Shape:          slices.Clone(t.Shape),
		Type:           t.Type,
		Buffer:         t.Buffer,
		Name:           t.Name,
		Quantization:   t.Quantization.Clone(),
		IsVariable:     t.IsVariable,
		ShapeSignature: slices.Clone(t.ShapeSignature),
		HasRank:        t.HasRank,
		VariantTensors: cloneAll(t.VariantTensors, (*VariantSubType).Clone),
	}
}

func (v *VariantSubType) Clone() *VariantSubType {
	return &VariantSubType{
		Shape:   slices.Clone(v.Shape),
		Type:    v.Type,
		HasRank: v.HasRank,
	}
}

func (q *QuantizationParameters) Clone() *QuantizationParameters {
	if q == nil {
		return nil
	}
	return &QuantizationParameters{
		Min:                slices.Clone(q.Min),
		Max:                slices.Clone(q.Max),
		Scale:              slices.Clone(q.Scale),
		ZeroPoint:          slices.Clone(q.ZeroPoint),
		Custom:             slices.Clone(q.Custom),
		QuantizedDimension: q.QuantizedDimension,
	}
}

func (op *Operator) Clone() *Operator {
	return &Operator{
		OpcodeIndex:              op.OpcodeIndex,
		Inputs:                   slices.Clone(op.Inputs),
		Outputs:                  slices.Clone(op.Outputs),
		BuiltinOptions:           op.BuiltinOptions.Clone(),
		CustomOptions:            slices.Clone(op.CustomOptions),
		CustomOptionsFormat:      op.CustomOptionsFormat,
		MutatingVariableInputs:   slices.Clone(op.MutatingVariableInputs),
		Intermediates:            slices.Clone(op.Intermediates),
		LargeCustomOptionsOffset: op.LargeCustomOptionsOffset,
		LargeCustomOptionsSize:   op.LargeCustomOptionsSize,
		DebugMetadataIndex:       clonePtr(op.DebugMetadataIndex),
	}
}

func (o *BuiltinOptions) Clone() *BuiltinOptions {
	if o == nil {
		return nil
	}
	kv := maps.Clone(o.KV)
	for k, v := range kv {
		switch s := v.(type) {
		case []int32:
			kv[k] = slices.Clone(s)
		case []float32:
			kv[k] = slices.Clone(s)
		}
	}

	var raw []RawField
	if o.Raw != nil {
		raw = make([]RawField, len(o.Raw))
		for i, f := range o.Raw {
			raw[i] = RawField{Slot: f.Slot, Data: slices.Clone(f.Data)}
		}
	}
	return &BuiltinOptions{Type: o.Type, KV: kv, Raw: raw}
}

func (b *Buffer) Clone() *Buffer {
	return &Buffer{
		Data:   slices.Clone(b.Data),
		Offset: b.Offset,
		Size:   b.Size,
	}
}
