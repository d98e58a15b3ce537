package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/pragmatic-rustacean/symposium/internal/modloader"
	"github.com/pragmatic-rustacean/symposium/internal/modsource"
)

var elizaCmd = &cobra.Command{
	Use:   "eliza",
	Short: "Run the built-in eliza test agent directly, with no proxy chain",
	Long: `eliza speaks raw ACP over this process's stdio with no Symposium
wrapping at all: no proxies, no trace directory, no mod resolution
beyond the single builtin itself. It exists for exercising an editor
integration against a known-good agent with zero external dependencies.`,
	RunE: runEliza,
}

func init() {
	rootCmd.AddCommand(elizaCmd)
}

func runEliza(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	runnable, err := modloader.Resolve(ctx, modsource.Source{
		Kind:    modsource.KindBuiltin,
		Builtin: &modsource.BuiltinSource{Name: "eliza"},
	}, modloader.Options{})
	if err != nil {
		return fmt.Errorf("resolve eliza: %w", err)
	}
	if runnable.InProcess == nil {
		return fmt.Errorf("eliza: expected an in-process runnable")
	}
	defer runnable.InProcess.Close()

	errc := make(chan error, 2)
	go func() {
		_, err := io.Copy(runnable.InProcess, stdio{})
		errc <- err
	}()
	go func() {
		_, err := io.Copy(stdio{}, runnable.InProcess)
		errc <- err
	}()

	if err := <-errc; err != nil && err != io.EOF {
		return err
	}
	return nil
}
