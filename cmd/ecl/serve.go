package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"erynoa/eclvm/pkg/cli"
	"erynoa/eclvm/pkg/server"
	"erynoa/eclvm/pkg/telemetry/health"
)

var serveFlags struct {
	addr      string
	facts     string
	minRealms int
}

var serveCmd = &cobra.Command{
	Use:   "serve [policy-dir]",
	Short: "Serve the realm gateway over HTTP",
	Long: `Load a policy set and serve admission decisions, Prometheus metrics and
health probes. The directory defaults to policies.dir from the config; it
is reloaded on change when policies.watch is set.

Endpoints:
  POST /v1/entry                  {"did", "realm", "trust"?}
  POST /v1/crossing               {"did", "from", "to", "trust"?}
  GET  /v1/realms
  GET  /v1/realms/{realm}/policies
  GET  /v1/mana/{did}             managed mode only
  GET  /v1/audit                  audit.enabled only; filters: kind, policy,
                                  realm, entity, outcome, allowed, range,
                                  limit, offset, order
  GET  /v1/entrypoints
  POST /v1/entrypoints/{kind}/{key} {"caller", "realm"}
  GET  /metrics, /health, /ready, /version

Identity facts (trust, credentials, balances) are read from the --facts
JSON file, in the same format as the run --context file.`,
	Args: cobra.MaximumNArgs(1),
	RunE: serveGateway,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveFlags.addr, "addr", "", "listen address (default server.listen_address)")
	serveCmd.Flags().StringVar(&serveFlags.facts, "facts", "", "JSON file with known identities")
	serveCmd.Flags().IntVar(&serveFlags.minRealms, "min-realms", 1, "realms required before /ready succeeds")
}

func serveGateway(cmd *cobra.Command, args []string) error {
	cfg := runtimeConfig()
	logger := runtimeLogger()
	dir := cfg.Policies.Dir
	if len(args) == 1 {
		dir = args[0]
	}
	httpCfg := cfg.HTTP()
	if serveFlags.addr != "" {
		httpCfg.ListenAddress = serveFlags.addr
	}

	rc, err := loadRunContext(serveFlags.facts)
	if err != nil {
		return err
	}
	facts, err := rc.stubHost()
	if err != nil {
		return err
	}

	ctx, stop := cli.SetupSignalHandler(commandContext(cmd))
	defer stop()

	n, err := newNode(ctx, cfg, dir, facts, logger)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := n.Close(closeCtx); err != nil {
			logger.Error("shutdown failed", "error", err)
		}
	}()
	if err := n.Start(ctx, cfg.Policies.Watch); err != nil {
		return fmt.Errorf("failed to load policy set %s: %w", dir, err)
	}

	checker := health.New(2 * time.Second)
	checker.RegisterCheck("storage", health.StorageCheck(n.backend))
	checker.RegisterCheck("realms", health.GatewayCheck(n.gateway, serveFlags.minRealms))
	checker.RegisterCheck("policy_set", n.policySetCheck)
	if n.recorder != nil {
		checker.RegisterCheck("audit", n.auditCheck)
	}

	mux := http.NewServeMux()
	checker.Mount(mux, Version)
	n.collector.Mount(mux, cfg.Telemetry.Metrics.Path)
	api := &gatewayAPI{
		gateway: n.gateway,
		facts:   facts,
		audit:   n.auditStore,
		entry:   n.entry.Load,
		hosts:   n.requestHost,
		limits:  cfg.Engine.Limits(),
	}
	api.Mount(mux)

	if n.tracer.Enabled() {
		httpCfg.Tracer = n.tracer.Tracer()
	}
	logger.Info("gateway starting",
		"addr", httpCfg.ListenAddress,
		"policies", dir,
		"mode", n.gateway.Mode(),
		"audit", n.recorder != nil,
	)
	return server.New(httpCfg, mux, logger).Run(ctx)
}
