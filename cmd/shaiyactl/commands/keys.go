package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/iniwex5/shaiya-go/pkg/config"
	"github.com/iniwex5/shaiya-go/pkg/crypto"
	"github.com/iniwex5/shaiya-go/pkg/server"
)

// keygen writes a static server key usable as Server.PrivateKeyFile.
func keygenCmd() *cobra.Command {
	var (
		out      string
		exchange string
		bits     int
	)
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a server key pair as PEM",
		RunE: func(cmd *cobra.Command, args []string) error {
			s := cfg.CryptoSuite()
			if exchange != "" {
				ex, err := crypto.ParseExchange(exchange)
				if err != nil {
					return err
				}
				s.Exchange = ex
			}
			if bits != 0 {
				s.ExchangeBits = bits
			}
			if err := s.Validate(); err != nil {
				return err
			}
			pub, priv, err := crypto.GenerateKeyPair(s, nil)
			if err != nil {
				return err
			}
			defer priv.Zeroize()

			pem, err := crypto.MarshalPrivateKeyPEM(priv)
			if err != nil {
				return err
			}
			defer crypto.Wipe(pem)
			if err := os.WriteFile(out, pem, 0o600); err != nil {
				return err
			}
			fmt.Printf("wrote %s key to %s\nfingerprint: %s\n", s.Exchange, out, pub.Fingerprint())
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "server.pem", "output file")
	cmd.Flags().StringVar(&exchange, "exchange", "", "rsa-oaep or x25519-box (default from config)")
	cmd.Flags().IntVar(&bits, "bits", 0, "RSA modulus size (default from config)")
	return cmd
}

func hashpwCmd() *cobra.Command {
	var cost int
	cmd := &cobra.Command{
		Use:   "hashpw <password>",
		Short: "Print a bcrypt hash for an [[Accounts]] entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := server.HashPassword(args[0], cost)
			if err != nil {
				return err
			}
			fmt.Println(string(h))
			return nil
		},
	}
	cmd.Flags().IntVar(&cost, "cost", bcrypt.DefaultCost, "bcrypt cost")
	return cmd
}

func genconfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "genconfig",
		Short: "Print the effective configuration as TOML",
		RunE: func(cmd *cobra.Command, args []string) error {
			return config.Store(cfg, cmd.OutOrStdout())
		},
	}
}
