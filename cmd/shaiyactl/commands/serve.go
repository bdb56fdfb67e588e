package commands

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/iniwex5/shaiya-go/pkg/accountdb"
	"github.com/iniwex5/shaiya-go/pkg/crypto"
	"github.com/iniwex5/shaiya-go/pkg/logger"
	"github.com/iniwex5/shaiya-go/pkg/metrics"
	"github.com/iniwex5/shaiya-go/pkg/server"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the login server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServer(ctx)
		},
	}
}

func loadServerKey(path string) (*crypto.PrivateKey, error) {
	if path == "" {
		return nil, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	defer crypto.Wipe(b)
	return crypto.ParsePrivateKeyPEM(b)
}

func runServer(ctx context.Context) error {
	log := logger.With(logger.String("address", cfg.Server.Address)).Named("shaiyactl")

	var auth server.Authenticator
	if path := cfg.Server.AccountsDB; path != "" {
		db, err := accountdb.Open(path)
		if err != nil {
			return err
		}
		defer db.Close()
		auth = db
	} else {
		sa, err := cfg.Authenticator()
		if err != nil {
			return err
		}
		auth = sa
	}
	key, err := loadServerKey(cfg.Server.PrivateKeyFile)
	if err != nil {
		return err
	}
	if key != nil {
		defer key.Zeroize()
		log.Info("loaded server key", logger.String("fingerprint", key.Public().Fingerprint()))
	} else {
		logger.Warn("no Server.PrivateKeyFile, generating a key pair per connection")
	}

	scfg := cfg.ServerConfig()
	if addr := cfg.Server.MetricsAddress; addr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector())
		col, err := metrics.NewCollector(reg)
		if err != nil {
			return err
		}
		scfg.Observer = col
		go func() {
			if err := metrics.Serve(ctx, addr, reg, log); err != nil {
				log.Error("metrics server", logger.Err(err))
			}
		}()
	}

	srv, err := server.New(scfg, key, auth, log)
	if err != nil {
		return err
	}
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", cfg.Server.Address)
	if err != nil {
		return err
	}
	return srv.Serve(ctx, ln)
}
