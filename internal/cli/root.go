// Package cli implements rwtasctl, the command-line editor client.
package cli

import (
	"time"

	"github.com/rwtastool/rwtas/pkg/ipc"
	"github.com/spf13/cobra"
)

// endpoint holds the connection flags shared by every subcommand.
type endpoint struct {
	network string
	address string
	version string
	timeout time.Duration
}

func (e *endpoint) client() *ipc.Client {
	return &ipc.Client{
		Network: e.network,
		Address: e.address,
		Version: e.version,
		Timeout: e.timeout,
	}
}

// NewRootCmd creates the root rwtasctl command.
func NewRootCmd() *cobra.Command {
	ep := &endpoint{}
	root := &cobra.Command{
		Use:   "rwtasctl",
		Short: "Edit a running TAS engine's input queue",
		Long: `rwtasctl talks to a running engine over its local IPC endpoint.
It can download the input queue to a .rwi file, upload a file to replace the
queue, print the queue, or just check that the engine answers.`,
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&ep.network, "network", ipc.DefaultNetwork, "endpoint network (unix or tcp)")
	pf.StringVar(&ep.address, "address", ipc.DefaultAddress(), "endpoint address")
	pf.StringVar(&ep.version, "version", ipc.Version, "protocol version to announce")
	pf.DurationVar(&ep.timeout, "timeout", 10*time.Second, "per-request timeout")

	root.AddCommand(
		newGetCmd(ep),
		newSetCmd(ep),
		newShowCmd(ep),
		newPingCmd(ep),
	)

	return root
}
