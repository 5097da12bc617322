// replicate.go - Batch-Replikation eines Modells
//
// Ein Modell mit Batch-Groesse 1 wird in ein Modell mit Batch-Groesse N
// umgeschrieben. Achse 0 ist im ganzen Modell die Batch-Dimension.
//
// Ablauf je Subgraph: Klassifizieren -> Operatoren -> Tensoren,
// danach einmal fuer das Modell: Buffer.
// Alle Tabellen behalten Reihenfolge und Indizes der Eingabe.
package transform

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/mltools/mltools/fs/tflite"
)

// Replicator setzt die Batch-Dimension aller datapath-Tensoren auf BatchSize.
// BatchSize ist absolut, nicht ein Faktor.
type Replicator struct {
	BatchSize   int
	ShapeParam  ShapeParamEncoding
	Unsupported UnsupportedPolicy

	// Policies je Operator-Art, nil bedeutet DefaultPolicies
	Policies map[tflite.BuiltinOperator]Policy
}

// NewReplicator erstellt einen Replicator mit Default-Einstellungen
func NewReplicator(n int) *Replicator {
	return &Replicator{
		BatchSize:  n,
		ShapeParam: DefaultShapeParamEncoding,
	}
}

func (r *Replicator) Name() string { return "replicate" }

// Apply gibt ein neues Modell zurueck, m bleibt unveraendert
func (r *Replicator) Apply(m *tflite.Model) (*tflite.Model, error) {
	if r.BatchSize < 1 || r.BatchSize > math.MaxInt32 {
		return nil, usagef("batch size %d out of range [1, %d]", r.BatchSize, math.MaxInt32)
	}
	if err := r.ShapeParam.Validate(); err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}

	c := newClassifier(r.Policies, r.Unsupported)
	plan := newBufferPlan(len(m.Buffers))

	out := m.CloneHeader()
	if m.Subgraphs != nil {
		out.Subgraphs = make([]*tflite.Subgraph, len(m.Subgraphs))
	}
	for si, sg := range m.Subgraphs {
		osg, err := r.subgraph(c, m, sg, plan)
		if err != nil {
			return nil, fmt.Errorf("subgraph %d: %w", si, err)
		}
		out.Subgraphs[si] = osg
	}

	buffers, err := plan.emit(m.Buffers, r.BatchSize)
	if err != nil {
		return nil, err
	}
	out.Buffers = buffers

	slog.Debug("replicated model", "batch_size", r.BatchSize,
		"datapath_buffers", plan.roles.Count(RoleDatapath),
		"shape_buffers", plan.roles.Count(RoleShapeParam))
	return out, nil
}

// subgraph schreibt einen Subgraph um. Die Rollen der Tensoren leben nur
// waehrend dieses Aufrufs, die Buffer-Rollen in plan gelten modellweit.
func (r *Replicator) subgraph(c *classifier, m *tflite.Model, sg *tflite.Subgraph, plan *bufferPlan) (*tflite.Subgraph, error) {
	roles, err := c.classify(m, sg)
	if err != nil {
		return nil, err
	}

	out := sg.CloneHeader()
	n := int32(r.BatchSize)

	if sg.Operators != nil {
		out.Operators = make([]*tflite.Operator, len(sg.Operators))
	}
	for i, op := range sg.Operators {
		oop := op.Clone()
		policy, kind, err := c.policy(m, op)
		if err != nil {
			return nil, fmt.Errorf("operator %d: %w", i, err)
		}
		if rw, ok := policy.(optionsRewriter); ok {
			if oop.BuiltinOptions, err = rw.RewriteOptions(op.BuiltinOptions, n); err != nil {
				return nil, fmt.Errorf("operator %d (%s): %w", i, kind, err)
			}
		}
		out.Operators[i] = oop
	}

	if sg.Tensors != nil {
		out.Tensors = make([]*tflite.Tensor, len(sg.Tensors))
	}
	for i, t := range sg.Tensors {
		ot := t.Clone()
		role, err := roles.Get(i)
		if err != nil {
			return nil, err
		}
		if role == RoleDatapath {
			if ot.Shape, err = ReplicateShape(t.Shape, n); err != nil {
				return nil, fmt.Errorf("tensor %d (%q): %w", i, t.Name, err)
			}
			ot.ShapeSignature = replicateSignature(t.ShapeSignature, n)
		}
		if err := plan.project(m, t, role, r.ShapeParam); err != nil {
			return nil, fmt.Errorf("tensor %d (%q): %w", i, t.Name, err)
		}
		out.Tensors[i] = ot
	}

	slog.Debug("replicated subgraph", "name", sg.Name, "tensors", len(sg.Tensors),
		"datapath", roles.Count(RoleDatapath), "shape", roles.Count(RoleShapeParam))
	return out, nil
}

// bufferPlan sammelt die Rollen der Buffer ueber alle Subgraphs
type bufferPlan struct {
	roles *Roles

	// aufgeloeste Kodierung je shape-Buffer
	encodings map[int]ShapeParamEncoding
}

func newBufferPlan(n int) *bufferPlan {
	return &bufferPlan{
		roles:     NewRoles(n),
		encodings: make(map[int]ShapeParamEncoding),
	}
}

// project uebertraegt die Rolle eines Tensors auf seinen Buffer. Leere Buffer
// bleiben unter jeder Rolle leer und werden uebersprungen.
func (p *bufferPlan) project(m *tflite.Model, t *tflite.Tensor, role Role, enc ShapeParamEncoding) error {
	if role == RoleStatic || len(m.Buffers[t.Buffer].Data) == 0 {
		return nil
	}

	b := int(t.Buffer)
	if err := p.roles.Set(b, role); err != nil {
		return fmt.Errorf("buffer %d: %w", b, err)
	}

	if role == RoleShapeParam {
		enc, err := enc.resolve(t.Type)
		if err != nil {
			return err
		}
		if prev, ok := p.encodings[b]; ok && prev != enc {
			return structuralf("buffer %d: shape parameter read as width %d and %d", b, prev.Width, enc.Width)
		}
		p.encodings[b] = enc
	}
	return nil
}

func (p *bufferPlan) emit(buffers []*tflite.Buffer, n int) ([]*tflite.Buffer, error) {
	if buffers == nil {
		return nil, nil
	}

	out := make([]*tflite.Buffer, len(buffers))
	for i, b := range buffers {
		ob := b.Clone()
		role, err := p.roles.Get(i)
		if err != nil {
			return nil, err
		}

		switch role {
		case RoleDatapath:
			ob.Data, err = TileBuffer(b.Data, n)
		case RoleShapeParam:
			ob.Data, err = PatchShapeParam(b.Data, n, p.encodings[i])
		}
		if err != nil {
			return nil, fmt.Errorf("buffer %d: %w", i, err)
		}
		out[i] = ob
	}
	return out, nil
}
