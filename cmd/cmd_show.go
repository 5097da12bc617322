// cmd_show.go - Show Command und Modell-Info Anzeige
// Hauptfunktionen: ShowHandler, showInfo
package cmd

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"slices"
	"strings"

	"github.com/mattn/go-runewidth"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/mltools/mltools/fs/tflite"
	"github.com/mltools/mltools/transform"
)

type showOptions struct {
	roles   bool
	buffers bool
}

// ShowHandler - Zeigt Subgraphs, Tensoren und Operatoren der Modelle an
func ShowHandler(cmd *cobra.Command, args []string) error {
	var opts showOptions
	var err error
	if opts.roles, err = cmd.Flags().GetBool("roles"); err != nil {
		return err
	}
	if opts.buffers, err = cmd.Flags().GetBool("buffers"); err != nil {
		return err
	}

	models := make([]*tflite.Model, len(args))
	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, path := range args {
		g.Go(func() error {
			m, err := readModel(path)
			if err != nil {
				return err
			}
			models[i] = m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	for i, m := range models {
		if err := showInfo(w, args[i], m, opts); err != nil {
			return fmt.Errorf("%s: %w", args[i], err)
		}
	}
	return nil
}

// colWidth - Spaltenbreite fuer tablewriter, im Terminal ein Drittel der Breite
func colWidth(w io.Writer) int {
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		if width, _, err := term.GetSize(int(f.Fd())); err == nil {
			return max(30, width/3)
		}
	}
	return 120
}

// showInfo - Gibt ein Modell als Tabellen aus
func showInfo(w io.Writer, path string, m *tflite.Model, opts showOptions) error {
	p := message.NewPrinter(language.English)
	width := colWidth(w)

	tableRender := func(header string, columns []string, rows func() ([][]string, error)) error {
		data, err := rows()
		if err != nil {
			return err
		}

		fmt.Fprintln(w, " ", header)
		table := tablewriter.NewWriter(w)
		if columns != nil {
			table.SetHeader(columns)
			table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
			table.SetHeaderLine(false)
			table.SetAutoFormatHeaders(false)
		}
		table.SetAlignment(tablewriter.ALIGN_LEFT)
		table.SetBorder(false)
		table.SetNoWhiteSpace(true)
		table.SetTablePadding("    ")
		table.SetColWidth(width)
		table.AppendBulk(data)
		table.Render()
		fmt.Fprintln(w)
		return nil
	}

	fmt.Fprintln(w, path)

	if err := tableRender("Model", nil, func() (rows [][]string, _ error) {
		var size int
		for _, b := range m.Buffers {
			size += len(b.Data)
		}

		opcodes := make([]string, len(m.OperatorCodes))
		for i, c := range m.OperatorCodes {
			opcodes[i] = fmt.Sprintf("%s v%d", opcodeName(c), c.Version)
		}

		rows = append(rows, []string{"", "version", fmt.Sprint(m.Version)})
		if m.Description != "" {
			rows = append(rows, []string{"", "description", m.Description})
		}
		rows = append(rows, []string{"", "subgraphs", fmt.Sprint(len(m.Subgraphs))})
		rows = append(rows, []string{"", "buffers", p.Sprintf("%d (%d bytes)", len(m.Buffers), size)})
		rows = append(rows, []string{"", "operators", formatListValue(opcodes, width)})
		for _, sd := range m.SignatureDefs {
			rows = append(rows, []string{"", "signature", fmt.Sprintf("%s (subgraph %d)", sd.SignatureKey, sd.SubgraphIndex)})
		}
		for _, md := range m.Metadata {
			rows = append(rows, []string{"", "metadata", fmt.Sprintf("%s (buffer %d)", md.Name, md.Buffer)})
		}
		return rows, nil
	}); err != nil {
		return err
	}

	for si, sg := range m.Subgraphs {
		var roles *transform.Roles
		if opts.roles {
			var err error
			if roles, err = transform.Classify(m, sg, nil, transform.UnsupportedIgnore); err != nil {
				return fmt.Errorf("subgraph %d: %w", si, err)
			}
		}

		title := fmt.Sprintf("Subgraph %d", si)
		if sg.Name != "" {
			title += fmt.Sprintf(" %q", sg.Name)
		}
		fmt.Fprintf(w, "%s  inputs %v  outputs %v\n", title, sg.Inputs, sg.Outputs)

		columns := []string{"", "INDEX", "NAME", "TYPE", "SHAPE", "BUFFER", "QUANTIZATION"}
		if opts.roles {
			columns = append(columns, "ROLE")
		}
		if err := tableRender("Tensors", columns, func() (rows [][]string, _ error) {
			for i, t := range sg.Tensors {
				row := []string{"", fmt.Sprint(i), t.Name, t.Type.String(), formatShape(t), fmt.Sprint(t.Buffer), formatQuantization(t.Quantization)}
				if roles != nil {
					role, err := roles.Get(i)
					if err != nil {
						return nil, err
					}
					row = append(row, role.String())
				}
				rows = append(rows, row)
			}
			return rows, nil
		}); err != nil {
			return err
		}

		if err := tableRender("Operators", []string{"", "INDEX", "KIND", "INPUTS", "OUTPUTS", "OPTIONS"}, func() (rows [][]string, _ error) {
			for i, op := range sg.Operators {
				kind := fmt.Sprint("OPCODE_", op.OpcodeIndex)
				if int(op.OpcodeIndex) < len(m.OperatorCodes) {
					kind = opcodeName(m.OperatorCodes[op.OpcodeIndex])
				}
				rows = append(rows, []string{"", fmt.Sprint(i), kind, fmt.Sprint(op.Inputs), fmt.Sprint(op.Outputs), formatOptions(op.BuiltinOptions, width)})
			}
			return rows, nil
		}); err != nil {
			return err
		}
	}

	if opts.buffers {
		if err := tableRender("Buffers", []string{"", "INDEX", "SIZE"}, func() (rows [][]string, _ error) {
			for i, b := range m.Buffers {
				rows = append(rows, []string{"", fmt.Sprint(i), p.Sprintf("%d", len(b.Data))})
			}
			return rows, nil
		}); err != nil {
			return err
		}
	}

	return nil
}

func opcodeName(c *tflite.OperatorCode) string {
	if c.Kind() == tflite.OpCustom && c.CustomCode != "" {
		return c.CustomCode
	}
	return c.Kind().String()
}

func formatShape(t *tflite.Tensor) string {
	s := fmt.Sprint(t.Shape)
	if t.ShapeSignature != nil && !slices.Equal(t.ShapeSignature, t.Shape) {
		s += fmt.Sprintf(" sig %v", t.ShapeSignature)
	}
	return s
}

func formatQuantization(q *tflite.QuantizationParameters) string {
	switch {
	case q == nil:
		return "-"
	case q.PerAxis():
		return fmt.Sprintf("per-axis %d scales, dim %d", len(q.Scale), q.QuantizedDimension)
	case len(q.Scale) == 1 && len(q.ZeroPoint) == 1:
		return fmt.Sprintf("scale %g, zero point %d", q.Scale[0], q.ZeroPoint[0])
	case len(q.Scale) == 1:
		return fmt.Sprintf("scale %g", q.Scale[0])
	case len(q.Min) == 1 && len(q.Max) == 1:
		return fmt.Sprintf("range [%g, %g]", q.Min[0], q.Max[0])
	default:
		return "-"
	}
}

func formatOptions(o *tflite.BuiltinOptions, width int) string {
	if o == nil {
		return ""
	}
	if o.Raw != nil {
		return fmt.Sprintf("type %d, %d raw fields", o.Type, len(o.Raw))
	}
	keys := make([]string, 0, len(o.KV))
	for k := range o.KV {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	items := make([]string, len(keys))
	for i, k := range keys {
		items[i] = fmt.Sprintf("%s=%v", k, o.KV[k])
	}
	return formatListValue(items, width)
}

// formatListValue - Kuerzt eine Liste auf targetWidth Zeichen
func formatListValue(items []string, targetWidth int) string {
	var itemsToShow int
	totalWidth := 0

	for i, item := range items {
		width := runewidth.StringWidth(item)
		if i > 0 {
			width += 2
		}

		if totalWidth+width > targetWidth && i > 0 {
			break
		}

		totalWidth += width
		itemsToShow++
	}

	v := strings.Join(items[:itemsToShow], ", ")
	if itemsToShow < len(items) {
		v += fmt.Sprintf(" ...+%d more", len(items)-itemsToShow)
	}
	return v
}
