// cmd.go - Haupt-CLI Setup und Root Command
// Hauptfunktionen: NewCLI, appendEnvDocs
package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"

	"github.com/containerd/console"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/mltools/mltools/envconfig"
	"github.com/mltools/mltools/logutil"
	"github.com/mltools/mltools/transform"
)

// appendEnvDocs - Fuegt Umgebungsvariablen-Dokumentation zum Command hinzu
func appendEnvDocs(cmd *cobra.Command, envs []envconfig.EnvVar) {
	if len(envs) == 0 {
		return
	}

	envUsage := `
Environment Variables:
`
	for _, e := range envs {
		envUsage += fmt.Sprintf("      %-26s   %s\n", e.Name, e.Description)
	}

	cmd.SetUsageTemplate(cmd.UsageTemplate() + envUsage)
}

// NewCLI - Erstellt das Haupt-CLI mit allen Commands
func NewCLI() *cobra.Command {
	cobra.EnableCommandSorting = false

	if runtime.GOOS == "windows" && term.IsTerminal(int(os.Stdout.Fd())) {
		console.ConsoleFromFile(os.Stdin) //nolint:errcheck
	}

	rootCmd := &cobra.Command{
		Use:           "mltools",
		Short:         "Graph transforms for TFLite models",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			slog.SetDefault(logutil.NewLogger(cmd.ErrOrStderr(), envconfig.LogLevel()))
		},
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Print(cmd.UsageString())
		},
	}

	// Flag-Fehler sind Bedienfehler
	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		cmd.PrintErr(cmd.UsageString())
		return fmt.Errorf("%w: %w", transform.ErrUsage, err)
	})

	// Commands erstellen
	replicateCmd := newReplicateCmd()
	cloneCmd := newPassCmd("clone", "Copy a model without changes", transform.Clone{})
	quantizeCmd := newPassCmd("quantize", "Fill in uint8 quantization parameters from min/max ranges", transform.Quantize{})
	simplifyCmd := newPassCmd("simplify", "Convert int8 to uint8 and collapse per-axis quantization", transform.Simplify{})
	showCmd := newShowCmd()

	// Environment-Dokumentation hinzufuegen
	envVars := envconfig.AsMap()
	envs := []envconfig.EnvVar{envVars["MLTOOLS_DEBUG"]}

	for _, cmd := range []*cobra.Command{
		replicateCmd,
		cloneCmd,
		quantizeCmd,
		simplifyCmd,
		showCmd,
	} {
		switch cmd {
		case replicateCmd:
			appendEnvDocs(cmd, []envconfig.EnvVar{
				envVars["MLTOOLS_DEBUG"],
				envVars["MLTOOLS_STRICT_OPS"],
				envVars["MLTOOLS_SHAPE_PARAM_WIDTH"],
				envVars["MLTOOLS_SHAPE_PARAM_INDEX"],
			})
		default:
			appendEnvDocs(cmd, envs)
		}
	}

	rootCmd.AddCommand(
		replicateCmd,
		cloneCmd,
		quantizeCmd,
		simplifyCmd,
		showCmd,
	)

	return rootCmd
}
