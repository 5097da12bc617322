// Package tflite - Objektmodell eines TFLite-Modells
//
// Dieses Modul enthaelt die dekodierten Schema-Tabellen:
// - Model: Wurzel mit OperatorCodes, Subgraphs, Buffers und Metadaten
// - Subgraph, Tensor, Operator, OperatorCode, Buffer
// - QuantizationParameters, Metadata, SignatureDef, TensorMap
//
// Nicht vorhandene Vektoren sind nil, vorhandene aber leere Vektoren sind
// leere Slices ungleich nil. Der Encoder erhaelt diesen Unterschied.
package tflite

import "fmt"

// Model ist die Wurzel-Tabelle eines TFLite-Flatbuffers
type Model struct {
	Version       uint32
	OperatorCodes []*OperatorCode
	Subgraphs     []*Subgraph
	Description   string

	// Buffers[0] ist per Konvention der leere Buffer
	Buffers        []*Buffer
	MetadataBuffer []int32
	Metadata       []*Metadata
	SignatureDefs  []*SignatureDef
}

// OperatorCode identifiziert eine Operator-Art
type OperatorCode struct {
	BuiltinCode           BuiltinOperator
	DeprecatedBuiltinCode int8
	CustomCode            string
	Version               int32
}

// Kind gibt die effektive Operator-Art zurueck.
// Aeltere Modelle setzen nur deprecated_builtin_code, neuere beide Felder.
func (c *OperatorCode) Kind() BuiltinOperator {
	return max(c.BuiltinCode, BuiltinOperator(c.DeprecatedBuiltinCode))
}

// Subgraph ist ein einzelner Berechnungsgraph
type Subgraph struct {
	Tensors   []*Tensor
	Inputs    []int32
	Outputs   []int32
	Operators []*Operator
	Name      string

	// nil wenn nicht gesetzt (Schema-Default -1)
	DebugMetadataIndex *int32
}

// Tensor referenziert einen Buffer ueber seinen Index
type Tensor struct {
	Shape          []int32
	Type           TensorType
	Buffer         uint32
	Name           string
	Quantization   *QuantizationParameters
	IsVariable     bool
	ShapeSignature []int32
	HasRank        bool
	VariantTensors []*VariantSubType
}

// VariantSubType beschreibt einen Tensor innerhalb eines Variant-Tensors
type VariantSubType struct {
	Shape   []int32
	Type    TensorType
	HasRank bool
}

// Elements gibt die Anzahl der Elemente zurueck
func (t *Tensor) Elements() int64 {
	n := int64(1)
	for _, d := range t.Shape {
		n *= int64(d)
	}
	return n
}

// QuantizationParameters enthaelt per-Tensor oder per-Achse Parameter
type QuantizationParameters struct {
	Min                []float32
	Max                []float32
	Scale              []float32
	ZeroPoint          []int64
	Custom             []byte
	QuantizedDimension int32
}

// PerAxis meldet, ob mehr als ein Scale vorhanden ist
func (q *QuantizationParameters) PerAxis() bool {
	return q != nil && len(q.Scale) > 1
}

// Operator ist eine Instanz einer Operator-Art
type Operator struct {
	OpcodeIndex            uint32
	Inputs                 []int32
	Outputs                []int32
	BuiltinOptions         *BuiltinOptions
	CustomOptions          []byte
	CustomOptionsFormat    int8
	MutatingVariableInputs []bool
	Intermediates          []int32

	// Custom-Optionen hinter dem Flatbuffer; Offset > 1 wird nicht unterstuetzt
	LargeCustomOptionsOffset uint64
	LargeCustomOptionsSize   uint64

	// nil wenn nicht gesetzt (Schema-Default -1)
	DebugMetadataIndex *int32
}

// Buffer ist ein opaker Byte-Block
type Buffer struct {
	Data []byte

	// Offset/Size verweisen auf Daten hinter dem Flatbuffer (Modelle > 2GB)
	Offset uint64
	Size   uint64
}

// Metadata verknuepft einen Namen mit einem Buffer
type Metadata struct {
	Name   string
	Buffer uint32
}

// SignatureDef beschreibt eine Signatur eines Subgraphs
type SignatureDef struct {
	Inputs        []*TensorMap
	Outputs       []*TensorMap
	SignatureKey  string
	SubgraphIndex uint32
}

// TensorMap bildet einen Signatur-Namen auf einen Tensor-Index ab
type TensorMap struct {
	Name        string
	TensorIndex uint32
}

// OperatorKind loest den OperatorCode eines Operators auf
func (m *Model) OperatorKind(op *Operator) (BuiltinOperator, error) {
	if int(op.OpcodeIndex) >= len(m.OperatorCodes) {
		return 0, malformedf("opcode index %d out of range [0, %d)", op.OpcodeIndex, len(m.OperatorCodes))
	}
	return m.OperatorCodes[op.OpcodeIndex].Kind(), nil
}

// Validate prueft die strukturellen Invarianten des Modells:
// alle OperatorCode-, Tensor- und Buffer-Indizes muessen gueltig sein.
func (m *Model) Validate() error {
	for si, sg := range m.Subgraphs {
		if err := m.validateSubgraph(sg); err != nil {
			return fmt.Errorf("subgraph %d: %w", si, err)
		}
	}
	for i, md := range m.Metadata {
		if int(md.Buffer) >= len(m.Buffers) {
			return malformedf("metadata %d: buffer index %d out of range [0, %d)", i, md.Buffer, len(m.Buffers))
		}
	}
	for i, sd := range m.SignatureDefs {
		if int(sd.SubgraphIndex) >= len(m.Subgraphs) {
			return malformedf("signature %d: subgraph index %d out of range [0, %d)", i, sd.SubgraphIndex, len(m.Subgraphs))
		}
	}
	return nil
}

func (m *Model) validateSubgraph(sg *Subgraph) error {
	n := len(sg.Tensors)
	for ti, t := range sg.Tensors {
		if int(t.Buffer) >= len(m.Buffers) {
			return malformedf("tensor %d: buffer index %d out of range [0, %d)", ti, t.Buffer, len(m.Buffers))
		}
	}

	checkIndices := func(what string, indices []int32, optional bool) error {
		for _, idx := range indices {
			if optional && idx == -1 {
				continue
			}
			if idx < 0 || int(idx) >= n {
				return malformedf("%s: tensor index %d out of range [0, %d)", what, idx, n)
			}
		}
		return nil
	}

	if err := checkIndices("inputs", sg.Inputs, false); err != nil {
		return err
	}
	if err := checkIndices("outputs", sg.Outputs, false); err != nil {
		return err
	}

	for oi, op := range sg.Operators {
		if _, err := m.OperatorKind(op); err != nil {
			return fmt.Errorf("operator %d: %w", oi, err)
		}
		if err := checkIndices(fmt.Sprintf("operator %d inputs", oi), op.Inputs, true); err != nil {
			return err
		}
		if err := checkIndices(fmt.Sprintf("operator %d outputs", oi), op.Outputs, false); err != nil {
			return err
		}
		if err := checkIndices(fmt.Sprintf("operator %d intermediates", oi), op.Intermediates, false); err != nil {
			return err
		}
	}
	return nil
}
