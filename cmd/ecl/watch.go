package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"erynoa/eclvm/pkg/cli"
	"erynoa/eclvm/pkg/ecl/gateway"
	"erynoa/eclvm/pkg/ecl/policyset"
)

var watchFlags struct {
	context string
}

var watchCmd = &cobra.Command{
	Use:   "watch <dir>",
	Short: "Reload a policy set on every change",
	Long: `Watch a policy set directory and report the outcome of every reload.
Each successful reload also evaluates the entry policy of every realm for
the caller of the --context file.

Examples:
  ecl watch policies/
  ecl watch policies/ --context alice.json`,
	Args: cobra.ExactArgs(1),
	RunE: watchPolicies,
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().StringVar(&watchFlags.context, "context", "", "JSON file with the caller and known identities")
}

func watchPolicies(cmd *cobra.Command, args []string) error {
	cfg := runtimeConfig()
	logger := runtimeLogger()

	rc, err := loadRunContext(watchFlags.context)
	if err != nil {
		return err
	}
	h, err := rc.stubHost()
	if err != nil {
		return err
	}
	trust, err := rc.callerTrust()
	if err != nil {
		return err
	}

	ctx, stop := cli.SetupSignalHandler(commandContext(cmd))
	defer stop()

	gw := gateway.New(h, gateway.WithLimits(cfg.Engine.Limits()), gateway.WithLogger(logger))
	loader := policyset.NewLoader(cfg.Loader(), logger)
	w, err := policyset.NewWatcher(args[0], loader, gw, cfg.Policies.Debounce, logger)
	if err != nil {
		return err
	}
	defer w.Stop()

	out := cmd.OutOrStdout()
	w.OnReload = func(set *policyset.Set, err error) {
		if err != nil {
			fmt.Fprintf(out, "✗ reload failed:\n%s\n", err)
			return
		}
		fmt.Fprintf(out, "✓ %d policies, %d realms\n", len(set.Policies), len(set.Realms))
		realms := gw.Realms()
		sort.Strings(realms)
		for _, realm := range realms {
			d, err := gw.ValidateEntry(ctx, rc.Caller, trust, realm)
			if err != nil {
				fmt.Fprintf(out, "  %s: %v\n", realm, err)
				continue
			}
			verdict := "denied"
			if d.Allowed {
				verdict = "allowed"
			}
			line := fmt.Sprintf("  %s: %s by %s (gas %d)", realm, verdict, d.PolicyName, d.GasUsed)
			if d.Message != "" {
				line += " " + strings.TrimSpace(d.Message)
			}
			fmt.Fprintln(out, line)
		}
	}
	return w.Watch(ctx)
}
