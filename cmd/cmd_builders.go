// cmd_builders.go - Command-Builder Funktionen
// Hauptfunktionen: newReplicateCmd, newPassCmd, newShowCmd
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mltools/mltools/envconfig"
	"github.com/mltools/mltools/transform"
)

// exactArgs - Wie cobra.ExactArgs, gibt aber die Usage aus und meldet einen
// Bedienfehler
func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) != n {
			cmd.PrintErr(cmd.UsageString())
			return fmt.Errorf("%w: accepts %d arg(s), received %d", transform.ErrUsage, n, len(args))
		}
		return nil
	}
}

// minimumArgs - Wie cobra.MinimumNArgs mit Usage-Ausgabe
func minimumArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) < n {
			cmd.PrintErr(cmd.UsageString())
			return fmt.Errorf("%w: requires at least %d arg(s), only received %d", transform.ErrUsage, n, len(args))
		}
		return nil
	}
}

// newReplicateCmd - Erstellt den replicate Command
func newReplicateCmd() *cobra.Command {
	replicateCmd := &cobra.Command{
		Use:   "replicate IN_FILE N OUT_FILE",
		Short: "Write an N-batch copy of a single-batch model",
		Long: `Replicates the model stored at IN_FILE and writes an N-batch model into OUT_FILE.

Axis 0 is the batch dimension throughout the model. Tensors on the datapath of
CONV_2D, DEPTHWISE_CONV_2D, RESHAPE, CONCATENATION and LOGISTIC get batch size N
and their constant data is repeated N times. Other operators keep their tensors
unchanged unless --strict is set.`,
		Args: exactArgs(3),
		RunE: ReplicateHandler,
	}

	replicateCmd.Flags().Bool("strict", envconfig.StrictOps(), "Fail on operators without a replication policy")
	replicateCmd.Flags().Uint("shape-width", envconfig.ShapeParamWidth(), "Byte width of a reshape shape element (1, 2, 4, 8; 0 derives it from the tensor type)")
	replicateCmd.Flags().Uint("shape-index", envconfig.ShapeParamIndex(), "Element of a reshape shape holding the batch dimension")
	replicateCmd.Flags().StringSlice("datapath-ops", nil, "Additional operators whose inputs and outputs are all on the datapath (e.g. ADD,MUL)")

	return replicateCmd
}

// newPassCmd - Erstellt einen Command IN_FILE OUT_FILE fuer einen Pass
func newPassCmd(use, short string, pass transform.Pass) *cobra.Command {
	return &cobra.Command{
		Use:   use + " IN_FILE OUT_FILE",
		Short: short,
		Args:  exactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return PassHandler(cmd, args, pass)
		},
	}
}

// newShowCmd - Erstellt den show Command
func newShowCmd() *cobra.Command {
	showCmd := &cobra.Command{
		Use:   "show MODEL [MODEL...]",
		Short: "Show subgraphs, tensors and operators of models",
		Args:  minimumArgs(1),
		RunE:  ShowHandler,
	}

	showCmd.Flags().Bool("roles", false, "Show the replication role of each tensor")
	showCmd.Flags().Bool("buffers", false, "Show the buffer table")

	return showCmd
}
