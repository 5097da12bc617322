// classify.go - Rollen der Tensoren eines Subgraphs
// Hauptfunktionen: Classify, DefaultPolicies, Roles.Set
//
// Jeder Operator-Art ist eine Policy zugeordnet, die die Rollen seiner Ein-
// und Ausgaenge festlegt:
// - datapath: Inhalt je Inferenz, wird ueber die Batch-Achse repliziert
// - shape: Tensor kodiert eine Form inklusive Batch-Dimension
// - static: Gewichte, Bias, Konstanten (Default, keine Rolle)
package transform

import (
	"fmt"
	"log/slog"

	"github.com/mltools/mltools/fs/tflite"
	"github.com/mltools/mltools/logutil"
)

// Role ist die Rolle eines Tensors oder Buffers
type Role uint8

const (
	RoleStatic Role = iota
	RoleDatapath
	RoleShapeParam
)

var roleNames = [...]string{
	RoleStatic:     "static",
	RoleDatapath:   "datapath",
	RoleShapeParam: "shape",
}

func (r Role) String() string {
	if int(r) < len(roleNames) {
		return roleNames[r]
	}
	return fmt.Sprintf("ROLE_%d", r)
}

// Roles ordnet jedem Index einer Tabelle eine Rolle zu.
// Alle Zugriffe sind grenzgeprueft.
type Roles struct {
	roles []Role

	// Operator, der die Rolle vergeben hat, -1 ohne Operator
	by []int
	op int
}

func NewRoles(n int) *Roles {
	by := make([]int, n)
	for i := range by {
		by[i] = -1
	}
	return &Roles{roles: make([]Role, n), by: by, op: -1}
}

func (r *Roles) Len() int {
	return len(r.roles)
}

func (r *Roles) Get(i int) (Role, error) {
	if i < 0 || i >= len(r.roles) {
		return RoleStatic, structuralf("index %d out of range [0, %d)", i, len(r.roles))
	}
	return r.roles[i], nil
}

// Set weist Index i die Rolle role zu. RoleStatic loescht keine bestehende
// Rolle, zwei verschiedene Rollen fuer denselben Index sind ein Fehler.
func (r *Roles) Set(i int, role Role) error {
	cur, err := r.Get(i)
	if err != nil {
		return err
	}
	switch {
	case role == RoleStatic, cur == role:
	case cur == RoleStatic:
		r.roles[i] = role
		r.by[i] = r.op
	case r.by[i] >= 0 && r.op >= 0:
		slog.Debug("conflicting tensor roles", "index", i, "first", cur, "first_operator", r.by[i], "second", role, "operator", r.op)
		return structuralf("index %d is %s for operator %d and %s for operator %d", i, cur, r.by[i], role, r.op)
	default:
		return structuralf("index %d is both %s and %s", i, cur, role)
	}
	return nil
}

// Count gibt die Anzahl der Indizes mit Rolle role zurueck
func (r *Roles) Count(role Role) int {
	var n int
	for _, v := range r.roles {
		if v == role {
			n++
		}
	}
	return n
}

// Policy legt die Rollen der Tensoren eines Operators fest
type Policy interface {
	Classify(op *tflite.Operator, roles *Roles) error
}

// optionsRewriter wird von Policies implementiert, deren Operator die
// Batch-Groesse in den BuiltinOptions traegt
type optionsRewriter interface {
	RewriteOptions(opts *tflite.BuiltinOptions, n int32) (*tflite.BuiltinOptions, error)
}

type fixedPolicy struct {
	inputs, outputs []Role
}

// FixedPolicy weist den Ein- und Ausgaengen Rollen nach Position zu.
// Positionen ohne Eintrag bleiben static.
func FixedPolicy(inputs, outputs []Role) Policy {
	return fixedPolicy{inputs: inputs, outputs: outputs}
}

func (p fixedPolicy) Classify(op *tflite.Operator, roles *Roles) error {
	if err := assign(roles, op.Inputs, p.inputs); err != nil {
		return fmt.Errorf("inputs: %w", err)
	}
	if err := assign(roles, op.Outputs, p.outputs); err != nil {
		return fmt.Errorf("outputs: %w", err)
	}
	return nil
}

func assign(roles *Roles, indices []int32, want []Role) error {
	for i, idx := range indices {
		if i >= len(want) {
			break
		}
		// optionaler Eingang
		if idx == -1 {
			continue
		}
		if err := roles.Set(int(idx), want[i]); err != nil {
			return err
		}
	}
	return nil
}

type allDatapathPolicy struct{}

// AllDatapathPolicy markiert alle Ein- und Ausgaenge als datapath
func AllDatapathPolicy() Policy {
	return allDatapathPolicy{}
}

func (allDatapathPolicy) Classify(op *tflite.Operator, roles *Roles) error {
	for _, indices := range [][]int32{op.Inputs, op.Outputs} {
		for _, idx := range indices {
			if idx == -1 {
				continue
			}
			if err := roles.Set(int(idx), RoleDatapath); err != nil {
				return err
			}
		}
	}
	return nil
}

// reshapePolicy ersetzt zusaetzlich die Batch-Dimension in new_shape
type reshapePolicy struct {
	fixedPolicy
}

func (reshapePolicy) RewriteOptions(opts *tflite.BuiltinOptions, n int32) (*tflite.BuiltinOptions, error) {
	out := opts.Clone()
	if out == nil || out.Type != tflite.OptionsReshape {
		return out, nil
	}
	newShape := out.KV.Int32s("new_shape")
	if len(newShape) == 0 {
		return out, nil
	}
	shape, err := ReplicateShape(newShape, n)
	if err != nil {
		return nil, fmt.Errorf("new_shape: %w", err)
	}
	out.KV["new_shape"] = shape
	return out, nil
}

// DefaultPolicies gibt die Policies der unterstuetzten Operator-Arten zurueck
func DefaultPolicies() map[tflite.BuiltinOperator]Policy {
	conv := fixedPolicy{
		inputs:  []Role{RoleDatapath, RoleStatic, RoleStatic},
		outputs: []Role{RoleDatapath},
	}

	return map[tflite.BuiltinOperator]Policy{
		tflite.OpConv2D:          conv,
		tflite.OpDepthwiseConv2D: conv,
		tflite.OpReshape: reshapePolicy{fixedPolicy{
			inputs:  []Role{RoleDatapath, RoleShapeParam},
			outputs: []Role{RoleDatapath},
		}},
		tflite.OpConcatenation: allDatapathPolicy{},
		tflite.OpLogistic: fixedPolicy{
			inputs:  []Role{RoleDatapath},
			outputs: []Role{RoleDatapath},
		},
	}
}

// UnsupportedPolicy bestimmt den Umgang mit Operatoren ohne Policy
type UnsupportedPolicy int

const (
	// UnsupportedIgnore laesst die Tensoren unmarkiert und warnt einmal je Art
	UnsupportedIgnore UnsupportedPolicy = iota

	// UnsupportedFail bricht mit ErrUnsupportedOperator ab
	UnsupportedFail
)

func (p UnsupportedPolicy) String() string {
	switch p {
	case UnsupportedIgnore:
		return "ignore"
	case UnsupportedFail:
		return "fail"
	default:
		return fmt.Sprintf("UnsupportedPolicy(%d)", int(p))
	}
}

type classifier struct {
	policies    map[tflite.BuiltinOperator]Policy
	unsupported UnsupportedPolicy

	// bereits gewarnte Operator-Arten
	warned map[string]bool
}

func newClassifier(policies map[tflite.BuiltinOperator]Policy, unsupported UnsupportedPolicy) *classifier {
	if policies == nil {
		policies = DefaultPolicies()
	}
	return &classifier{
		policies:    policies,
		unsupported: unsupported,
		warned:      make(map[string]bool),
	}
}

// Classify bestimmt die Rollen aller Tensoren von sg. Die Operatoren werden in
// ihrer Reihenfolge im Modell besucht. Ist policies nil, gilt DefaultPolicies.
func Classify(m *tflite.Model, sg *tflite.Subgraph, policies map[tflite.BuiltinOperator]Policy, unsupported UnsupportedPolicy) (*Roles, error) {
	return newClassifier(policies, unsupported).classify(m, sg)
}

func (c *classifier) classify(m *tflite.Model, sg *tflite.Subgraph) (*Roles, error) {
	roles := NewRoles(len(sg.Tensors))
	for i, op := range sg.Operators {
		policy, kind, err := c.policy(m, op)
		if err != nil {
			return nil, fmt.Errorf("operator %d: %w", i, err)
		}
		if policy == nil {
			logutil.Trace("operator left unclassified", "operator", i, "kind", kind)
			continue
		}
		roles.op = i
		if err := policy.Classify(op, roles); err != nil {
			return nil, fmt.Errorf("operator %d (%s): %w", i, kind, err)
		}
		logutil.Trace("classified operator", "operator", i, "kind", kind, "inputs", op.Inputs, "outputs", op.Outputs)
	}
	return roles, nil
}

// policy sucht die Policy eines Operators. Ohne Policy und mit
// UnsupportedIgnore ist das Ergebnis nil.
func (c *classifier) policy(m *tflite.Model, op *tflite.Operator) (Policy, string, error) {
	kind, err := m.OperatorKind(op)
	if err != nil {
		return nil, "", err
	}

	name := kind.String()
	if code := m.OperatorCodes[op.OpcodeIndex].CustomCode; kind == tflite.OpCustom && code != "" {
		name = code
	}

	if p, ok := c.policies[kind]; ok {
		return p, name, nil
	}

	if c.unsupported == UnsupportedFail {
		return nil, name, fmt.Errorf("%w: %s", ErrUnsupportedOperator, name)
	}
	if !c.warned[name] {
		c.warned[name] = true
		slog.Warn("operator kind not supported, its tensors keep their batch size", "kind", name)
	}
	return nil, name, nil
}
