package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/Beyond-Better/bb"
	"github.com/Beyond-Better/bb/internal/logger"
	"github.com/Beyond-Better/bb/internal/metrics"
	"github.com/Beyond-Better/bb/internal/server"
	"github.com/Beyond-Better/bb/internal/service"
	"github.com/Beyond-Better/bb/pkg/client"
)

const defaultAPIURL = "http://localhost:3163/api/v1"

type globalFlags struct {
	APIUrl  string
	Timeout time.Duration
}

func buildRoot() *cobra.Command {
	gf := &globalFlags{}
	root := &cobra.Command{
		Use:           "bb-dui",
		Short:         "Control plane for the Beyond Better desktop services",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&gf.APIUrl, "api-url", defaultAPIURL, "control API base URL")
	root.PersistentFlags().DurationVar(&gf.Timeout, "timeout", 30*time.Second, "control API request timeout")

	root.AddCommand(buildServe())
	root.AddCommand(buildStatus(gf))
	root.AddCommand(buildStart(gf))
	root.AddCommand(buildStop(gf))
	root.AddCommand(buildReconcile(gf))
	root.AddCommand(buildProxy(gf))
	root.AddCommand(buildConfig(gf))
	return root
}

func buildServe() *cobra.Command {
	var addr, configDir, logLevel string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the supervisor, proxy, and control API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			closer, err := logger.Setup(service.DefaultLogDir(), logLevel)
			if err != nil {
				return fmt.Errorf("set up logging: %w", err)
			}
			defer func() { _ = closer.Close() }()
			if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
				slog.Warn("metrics registration failed", "error", err)
			}

			app, err := bb.NewApp(configDir)
			if err != nil {
				return err
			}
			defer app.Close()

			ctx := cmd.Context()
			if err := app.StartServices(ctx); err != nil {
				slog.Warn("service startup incomplete", "error", err)
			}
			if err := app.StartProxyIfNeeded(); err != nil {
				slog.Error("proxy start failed", "error", err)
			}

			srv := server.NewServer(addr, app.Router("/api/v1"))
			slog.Info("control API listening", "addr", addr)

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			select {
			case sig := <-sigCh:
				slog.Info("shutting down", "signal", sig.String())
			case <-ctx.Done():
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "localhost:3163", "control API listen address")
	cmd.Flags().StringVar(&configDir, "config-dir", "", "configuration directory (defaults per OS)")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	return cmd
}

func buildStatus(gf *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:       "status <service>",
		Short:     "Show the layered status of a managed service",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{service.API, service.BUI},
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := reachableClient(cmd.Context(), gf)
			if err != nil {
				return err
			}
			st, err := c.ServiceStatus(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printJSON(st)
			return nil
		},
	}
}

func buildStart(gf *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:       "start <service>",
		Short:     "Start a managed service",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{service.API, service.BUI},
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := reachableClient(cmd.Context(), gf)
			if err != nil {
				return err
			}
			res, err := c.StartService(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printJSON(res)
			if res.RequiresSettings {
				return fmt.Errorf("%s is not installed; configure its install location first", args[0])
			}
			if !res.Success {
				return fmt.Errorf("start %s failed: %s", args[0], res.Error)
			}
			return nil
		},
	}
}

func buildStop(gf *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:       "stop <service>",
		Short:     "Stop every running instance of a managed service",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{service.API, service.BUI},
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := reachableClient(cmd.Context(), gf)
			if err != nil {
				return err
			}
			stopped, err := c.StopService(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !stopped {
				return fmt.Errorf("some %s processes are still running", args[0])
			}
			fmt.Printf("%s stopped\n", args[0])
			return nil
		},
	}
}

func buildReconcile(gf *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Repair supervisor bookkeeping for all services",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := reachableClient(cmd.Context(), gf)
			if err != nil {
				return err
			}
			if err := c.Reconcile(cmd.Context()); err != nil {
				return err
			}
			fmt.Println("reconciled")
			return nil
		},
	}
}

func buildProxy(gf *globalFlags) *cobra.Command {
	proxyCmd := &cobra.Command{
		Use:   "proxy",
		Short: "Inspect and control the embedded reverse proxy",
	}
	proxyCmd.AddCommand(&cobra.Command{
		Use:   "info",
		Short: "Show proxy port, target, and running state",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := reachableClient(cmd.Context(), gf)
			if err != nil {
				return err
			}
			info, err := c.ProxyInfo(cmd.Context())
			if err != nil {
				return err
			}
			printJSON(info)
			return nil
		},
	})
	proxyCmd.AddCommand(&cobra.Command{
		Use:   "start",
		Short: "Start the proxy",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := reachableClient(cmd.Context(), gf)
			if err != nil {
				return err
			}
			return c.StartProxy(cmd.Context())
		},
	})
	proxyCmd.AddCommand(&cobra.Command{
		Use:   "stop",
		Short: "Stop the proxy",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := reachableClient(cmd.Context(), gf)
			if err != nil {
				return err
			}
			return c.StopProxy(cmd.Context())
		},
	})
	proxyCmd.AddCommand(&cobra.Command{
		Use:   "target <https-url>",
		Short: "Point the proxy at a new HTTPS upstream",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := reachableClient(cmd.Context(), gf)
			if err != nil {
				return err
			}
			return c.SetProxyTarget(cmd.Context(), args[0])
		},
	})
	proxyCmd.AddCommand(&cobra.Command{
		Use:   "debug <on|off>",
		Short: "Toggle proxy access logging of successful requests",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var enabled bool
			switch args[0] {
			case "on", "true":
				enabled = true
			case "off", "false":
			default:
				return fmt.Errorf("expected on or off, got %q", args[0])
			}
			c, err := reachableClient(cmd.Context(), gf)
			if err != nil {
				return err
			}
			return c.SetProxyDebug(cmd.Context(), enabled)
		},
	})
	return proxyCmd
}

func buildConfig(gf *globalFlags) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Read and change the persisted configuration",
	}
	configCmd.AddCommand(&cobra.Command{
		Use:   "get",
		Short: "Print the full configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := reachableClient(cmd.Context(), gf)
			if err != nil {
				return err
			}
			cfg, err := c.GetConfig(cmd.Context())
			if err != nil {
				return err
			}
			printJSON(cfg)
			return nil
		},
	})
	configCmd.AddCommand(&cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set one configuration key (e.g. api.port 3162)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := reachableClient(cmd.Context(), gf)
			if err != nil {
				return err
			}
			return c.SetConfig(cmd.Context(), args[0], args[1])
		},
	})
	return configCmd
}

func reachableClient(ctx context.Context, gf *globalFlags) (*client.Client, error) {
	c := client.New(client.Config{BaseURL: gf.APIUrl, Timeout: gf.Timeout})
	if !c.IsReachable(ctx) {
		return nil, fmt.Errorf("control server not reachable at %s - start it with 'bb-dui serve'", gf.APIUrl)
	}
	return c, nil
}

func printJSON(v any) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Printf("%+v\n", v)
		return
	}
	fmt.Println(string(b))
}
