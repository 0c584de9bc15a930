package cli

import (
	"bufio"
	"fmt"
	"os"

	"github.com/rwtastool/rwtas/pkg/core"
	"github.com/rwtastool/rwtas/pkg/frame"
	"github.com/spf13/cobra"
)

func warnCorruption(cmd *cobra.Command) frame.Reporter {
	return func(fe *frame.FormatError) {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", fe)
	}
}

func newGetCmd(ep *endpoint) *cobra.Command {
	var header bool

	cmd := &cobra.Command{
		Use:   "get <file>",
		Short: "Download the engine's input queue to a .rwi file",
		Example: `  rwtasctl get run.rwi
  rwtasctl get --header run.rwi`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := ep.client()
			c.Report = warnCorruption(cmd)
			records, err := c.GetInputs(cmd.Context())
			if err != nil {
				return err
			}

			f, err := os.Create(args[0])
			if err != nil {
				return fmt.Errorf("creating file: %w", err)
			}
			w := bufio.NewWriter(f)
			if err := frame.WriteFile(w, records, header); err != nil {
				f.Close()
				return err
			}
			if err := w.Flush(); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved %d entries to %s\n", len(records), args[0])
			return nil
		},
	}

	cmd.Flags().BoolVar(&header, "header", false, "write the RWTI file header")
	return cmd
}

func newSetCmd(ep *endpoint) *cobra.Command {
	return &cobra.Command{
		Use:     "set <file>",
		Short:   "Replace the engine's input queue with a .rwi file",
		Example: `  rwtasctl set run.rwi`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("opening file: %w", err)
			}
			defer f.Close()

			records, err := frame.ReadFile(bufio.NewReader(f), warnCorruption(cmd))
			if err != nil {
				return fmt.Errorf("reading %s: %w", args[0], err)
			}
			if err := ep.client().SetInputs(cmd.Context(), records); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Sent %d entries\n", len(records))
			return nil
		},
	}
}

func newShowCmd(ep *endpoint) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the engine's input queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := ep.client()
			c.Report = warnCorruption(cmd)
			records, err := c.GetInputs(cmd.Context())
			if err != nil {
				return err
			}
			printRecords(cmd, records)
			return nil
		},
	}
}

func printRecords(cmd *cobra.Command, records []core.RecordedInput) {
	out := cmd.OutOrStdout()
	frames := 0
	for i, r := range records {
		fmt.Fprintf(out, "%5d  %s\n", i, r)
		frames += r.Frames()
	}
	fmt.Fprintf(out, "%d entries, %d frames\n", len(records), frames)
}

func newPingCmd(ep *endpoint) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check that the engine answers the handshake",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := ep.client().Ping(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok (protocol %s)\n", v)
			return nil
		},
	}
}
