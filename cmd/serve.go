package cmd

import (
	"fmt"
	"net"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/xoflow/internal/fakehost"
	"github.com/xkilldash9x/xoflow/internal/observability"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the local checkout host used by `xoflow run`",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}

			ln, err := net.Listen("tcp", cfg.Host().Addr)
			if err != nil {
				return fmt.Errorf("listen on %s: %w", cfg.Host().Addr, err)
			}
			host := fakehost.New(cfg.Host(), observability.GetLogger())
			return host.Serve(cmd.Context(), ln)
		},
	}
	cmd.Flags().String("addr", "127.0.0.1:8089", "listen address")
	return cmd
}
