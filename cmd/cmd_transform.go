// cmd_transform.go - replicate, clone, quantize und simplify Commands
// Hauptfunktionen: ReplicateHandler, PassHandler
package cmd

import (
	"fmt"
	"log/slog"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/mltools/mltools/fs/tflite"
	"github.com/mltools/mltools/transform"
)

// ReplicateHandler - replicate IN_FILE N OUT_FILE
func ReplicateHandler(cmd *cobra.Command, args []string) error {
	n, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("%w: batch size %q is not an integer", transform.ErrUsage, args[1])
	}

	r, err := replicatorFromFlags(cmd, n)
	if err != nil {
		return err
	}

	return runPass(args[0], args[2], r)
}

// replicatorFromFlags - Baut den Replicator aus den Flags des Commands
func replicatorFromFlags(cmd *cobra.Command, n int) (*transform.Replicator, error) {
	strict, err := cmd.Flags().GetBool("strict")
	if err != nil {
		return nil, err
	}
	width, err := cmd.Flags().GetUint("shape-width")
	if err != nil {
		return nil, err
	}
	index, err := cmd.Flags().GetUint("shape-index")
	if err != nil {
		return nil, err
	}
	ops, err := cmd.Flags().GetStringSlice("datapath-ops")
	if err != nil {
		return nil, err
	}

	r := transform.NewReplicator(n)
	r.ShapeParam = transform.ShapeParamEncoding{Width: int(width), Index: int(index)}
	if strict {
		r.Unsupported = transform.UnsupportedFail
	}

	if len(ops) > 0 {
		r.Policies = transform.DefaultPolicies()
		for _, s := range ops {
			op, err := tflite.ParseBuiltinOperator(s)
			if err != nil {
				return nil, fmt.Errorf("%w: --datapath-ops: %w", transform.ErrUsage, err)
			}
			if _, ok := r.Policies[op]; ok {
				slog.Warn("operator already has a policy, keeping it", "op", op)
				continue
			}
			r.Policies[op] = transform.AllDatapathPolicy()
		}
	}

	return r, nil
}

// PassHandler - IN_FILE OUT_FILE fuer clone, quantize und simplify
func PassHandler(cmd *cobra.Command, args []string, pass transform.Pass) error {
	return runPass(args[0], args[1], pass)
}

// runPass - Liest das Modell, wendet pass an und schreibt das Ergebnis
func runPass(in, out string, pass transform.Pass) error {
	m, err := readModel(in)
	if err != nil {
		return err
	}

	result, err := transform.Run(m, pass)
	if err != nil {
		return fmt.Errorf("%s: %w", in, err)
	}

	if err := writeModel(out, result); err != nil {
		return err
	}

	slog.Info("wrote model", "pass", pass.Name(), "in", in, "out", out)
	return nil
}
