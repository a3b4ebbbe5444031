package main

import (
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"

	"panstwa-miasta/internal/config"
	"panstwa-miasta/internal/db"
	"panstwa-miasta/internal/identity"
	"panstwa-miasta/internal/server"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func main() {
	cobra.CheckErr(newCmd().Execute())
}

func newCmd() *cobra.Command {
	base := config.Default()

	v := viper.New()
	v.SetEnvPrefix("PANSTWA")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "panstwa-miasta",
		Short:         "Multiplayer letter-game server: rooms, timed rounds, uniqueness scoring.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(base.Bind, base.Port)
		},
	}

	fs := cmd.Flags()
	fs.StringVarP(&base.Bind, "bind", "b", base.Bind, "address to bind to (env: PANSTWA_BIND)")
	fs.IntVarP(&base.Port, "port", "p", base.Port, "port to listen on (env: PANSTWA_PORT)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	return cmd
}

func serve(bind string, port int) error {
	if err := config.LoadDotEnv(".env"); err != nil {
		log.Printf("failed to load .env: %v", err)
	}
	cfg := config.Load()
	cfg.Bind = bind
	cfg.Port = port

	logger, err := zap.NewProduction()
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	srv, err := buildServer(cfg, logger)
	if err != nil {
		return err
	}

	addr := net.JoinHostPort(cfg.Bind, fmt.Sprintf("%d", cfg.Port))
	logger.Info("server listening", zap.String("addr", addr))
	return http.ListenAndServe(addr, srv.Handler())
}

func buildServer(cfg config.Config, logger *zap.Logger) (*server.Server, error) {
	ids := identity.NewJWTProvider(cfg.JWTSecret)

	if cfg.DatabaseURL == "" {
		logger.Warn("DATABASE_URL not set, running without persistence")
		return server.New(nil, cfg, ids, logger), nil
	}

	conn, err := db.Open(cfg.DatabaseURL, db.PoolConfig{
		MaxOpenConns:           cfg.DBMaxOpenConns,
		MaxIdleConns:           cfg.DBMaxIdleConns,
		ConnMaxLifetimeSeconds: cfg.DBConnMaxLifetimeSeconds,
		ConnMaxIdleTimeSeconds: cfg.DBConnMaxIdleTimeSeconds,
	})
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(conn); err != nil {
		return nil, err
	}

	srv := server.New(conn, cfg, ids, logger)
	if err := srv.RestoreActiveRooms(); err != nil {
		logger.Warn("restore failed", zap.Error(err))
	}
	return srv, nil
}
