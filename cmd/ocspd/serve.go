package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/verapki/ocspd/internal/api/router"
	"github.com/verapki/ocspd/internal/api/server"
	"github.com/verapki/ocspd/internal/audit"
	"github.com/verapki/ocspd/internal/config"
	"github.com/verapki/ocspd/internal/responder"
)

// Serve command flags
var (
	serveConfigPath string
	serveHost       string
	servePort       int
	serveDebug      bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP OCSP responder",
	Long: `Start the HTTP OCSP responder (RFC 6960).

The server answers both request forms:
  - GET:  /ocsp/{base64-encoded-request}
  - POST: binary request body with Content-Type: application/ocsp-request

Transport errors aside, every answer is an HTTP 200 carrying an
application/ocsp-response body; protocol failures are reported in the
OCSP response status, not the HTTP status.

Environment variables:
  OCSPD_CONFIG  Path to the configuration file
  OCSPD_HOST    Listen host (overrides the config file)
  OCSPD_PORT    Listen port (overrides the config file)

Examples:
  # Start with a config file
  ocspd serve --config ocspd.yaml

  # Override the listen address
  ocspd serve --config ocspd.yaml --host 0.0.0.0 --port 8080

  # Start with debug logging
  ocspd serve --config ocspd.yaml --debug`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveConfigPath, "config", "", "Path to configuration file (required)")
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Listen host (overrides config file)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Listen port (overrides config file)")
	serveCmd.Flags().BoolVar(&serveDebug, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	if serveConfigPath == "" {
		serveConfigPath = os.Getenv("OCSPD_CONFIG")
	}
	if serveConfigPath == "" {
		return fmt.Errorf("--config is required")
	}

	logger, err := newLogger(serveDebug)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	cfgFile, err := config.Load(serveConfigPath)
	if err != nil {
		return err
	}

	configs, oracle, err := cfgFile.Build()
	if err != nil {
		return err
	}

	var auditLog audit.Writer = audit.NopWriter{}
	if cfgFile.AuditLog != "" {
		fw, err := audit.NewFileWriter(cfgFile.AuditLog)
		if err != nil {
			return fmt.Errorf("failed to open audit log: %w", err)
		}
		defer fw.Close() //nolint:errcheck
		auditLog = fw
	}

	resp, err := responder.New(configs, oracle, responder.Options{
		CopyNonce:               cfgFile.CopyNonce,
		RequireRequestSignature: cfgFile.RequireSignedRequests,
	}, logger, auditLog)
	if err != nil {
		return err
	}

	handler := router.New(&router.Config{
		Responder: resp,
		Logger:    logger,
		Version:   version,
	})

	srvCfg := serverConfig(cfgFile.Listen)
	applyListenOverrides(srvCfg)
	srv := server.New(srvCfg, handler, logger)

	logger.Info("starting OCSP responder",
		zap.String("addr", srvCfg.Address()),
		zap.Int("cas", len(configs)),
		zap.String("version", version))

	if err := auditLog.Write(audit.NewStartedEvent(srvCfg.Address())); err != nil {
		return fmt.Errorf("failed to write audit event: %w", err)
	}

	err = srv.Start()

	if werr := auditLog.Write(audit.NewStoppedEvent(srvCfg.Address())); werr != nil {
		logger.Warn("failed to write audit event", zap.Error(werr))
	}
	return err
}

// applyListenOverrides applies --host/--port flags, or their OCSPD_HOST
// and OCSPD_PORT environment fallbacks, over the config file values.
func applyListenOverrides(cfg *server.Config) {
	host := serveHost
	if host == "" {
		host = os.Getenv("OCSPD_HOST")
	}
	if host != "" {
		cfg.Host = host
	}

	port := servePort
	if port == 0 {
		if p, err := strconv.Atoi(os.Getenv("OCSPD_PORT")); err == nil {
			port = p
		}
	}
	if port != 0 {
		cfg.Port = port
	}
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func serverConfig(listen config.ListenConfig) *server.Config {
	cfg := server.DefaultConfig()
	if listen.Host != "" {
		cfg.Host = listen.Host
	}
	if listen.Port != 0 {
		cfg.Port = listen.Port
	}
	if listen.ReadTimeoutSeconds != 0 {
		cfg.ReadTimeout = time.Duration(listen.ReadTimeoutSeconds) * time.Second
	}
	if listen.WriteTimeoutSeconds != 0 {
		cfg.WriteTimeout = time.Duration(listen.WriteTimeoutSeconds) * time.Second
	}
	if listen.IdleTimeoutSeconds != 0 {
		cfg.IdleTimeout = time.Duration(listen.IdleTimeoutSeconds) * time.Second
	}
	if listen.ShutdownTimeoutSeconds != 0 {
		cfg.ShutdownTimeout = time.Duration(listen.ShutdownTimeoutSeconds) * time.Second
	}
	return cfg
}
