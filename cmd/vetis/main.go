// Command vetis runs a standalone instance of the vetis HTTP server
// driven entirely by a TOML configuration file, in the spirit of caddy's
// cmd/caddy2 entry point.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/vetis/vetis"
	"github.com/vetis/vetis/config"
	"github.com/vetis/vetis/reverseproxy"
	"github.com/vetis/vetis/staticfiles"
)

var version = "0.1.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:     "vetis",
		Short:   "Run an embeddable HTTP reverse-proxy / origin server",
		Version: version,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultConfigPath, "path to the TOML configuration file")
	cmd.Flags().BoolP("version", "V", false, "print the version and exit")
	cmd.SetVersionTemplate("vetis {{.Version}}\n")
	return cmd
}

func run(configPath string) error {
	serverConfig, vhostConfigs, staticPathConfigs, proxyPathConfigs, logConfig, err := config.LoadFile(configPath)
	if err != nil {
		return fmt.Errorf("loading %s: %w", configPath, err)
	}

	logger, err := newLogger(logConfig)
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	defer logger.Sync()

	srv := vetis.NewServer(serverConfig)
	srv.SetLogger(logger)

	for _, vhc := range vhostConfigs {
		vh := vetis.NewVirtualHost(vhc)
		key := fmt.Sprintf("%s:%d", vhc.Hostname, vhc.Port)

		for _, spc := range staticPathConfigs[key] {
			sp, err := staticfiles.New(spc)
			if err != nil {
				return fmt.Errorf("static path %s on %s: %w", spc.URI, key, err)
			}
			sp.SetLogger(logger)
			vh.AddPath(sp)
		}
		for _, ppc := range proxyPathConfigs[key] {
			pp := reverseproxy.New(ppc)
			pp.SetLogger(logger)
			vh.AddPath(pp)
		}

		if err := srv.AddVirtualHost(vh); err != nil {
			return err
		}
	}

	logger.Info("starting vetis", zap.String("config", configPath), zap.Int("virtual_hosts", len(vhostConfigs)))
	return srv.Run()
}

func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	var zcfg zap.Config
	if cfg.Format == "json" {
		zcfg = zap.NewProductionConfig()
	} else {
		zcfg = zap.NewDevelopmentConfig()
	}

	if cfg.Level != "" {
		level, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("log level %q: %w", cfg.Level, err)
		}
		zcfg.Level = zap.NewAtomicLevelAt(level)
	}

	return zcfg.Build()
}
