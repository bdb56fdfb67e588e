package commands

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/iniwex5/shaiya-go/pkg/client"
	"github.com/iniwex5/shaiya-go/pkg/logger"
	"github.com/iniwex5/shaiya-go/pkg/packet"
)

func dialCmd() *cobra.Command {
	var (
		addr     string
		username string
		password string
		timeout  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "dial",
		Short: "Log in to a server and print its server list",
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				addr = cfg.Client.Address
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			c, err := client.Dial(ctx, addr, client.Config{
				Suite:          cfg.CryptoSuite(),
				MaxFrameSize:   cfg.Server.MaxFrameSize,
				LockMemory:     cfg.Client.LockMemory,
				RequestTimeout: cfg.Client.RequestTimeout.Duration,
				Logger:         logger.Named("dial"),
			})
			if err != nil {
				return err
			}
			defer c.Close()

			resp, err := c.Login(username, password)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if resp.Status != packet.LoginSuccess {
				return fmt.Errorf("login refused: %s", resp.Status)
			}
			fmt.Fprintf(out, "logged in as user %d (privilege %d)\n", resp.UserID, resp.Privilege)

			servers, err := c.ServerList()
			if err != nil {
				return err
			}
			return printServers(out, servers)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "server address (default Client.Address)")
	cmd.Flags().StringVarP(&username, "user", "u", "", "account name")
	cmd.Flags().StringVarP(&password, "password", "p", "", "account password")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "connect and handshake deadline")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func printServers(w io.Writer, servers []packet.ServerEntry) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSTATUS\tPLAYERS")
	for _, s := range servers {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d/%d\n", s.ID, s.Name, s.Status, s.Players, s.Capacity)
	}
	return tw.Flush()
}
