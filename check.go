package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/lancaster971/pilotproOS-sub003/internal/docker"
	"github.com/lancaster971/pilotproOS-sub003/internal/inspector"
	"github.com/lancaster971/pilotproOS-sub003/internal/model"
	"github.com/lancaster971/pilotproOS-sub003/internal/monitor"
	"github.com/lancaster971/pilotproOS-sub003/internal/registry"
	"github.com/lancaster971/pilotproOS-sub003/internal/web"
)

var errDegraded = fmt.Errorf("system is %s", model.OverallDegraded)

func checkCmd() *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Poll every registered service once and print the overview",
		RunE: func(cmd *cobra.Command, args []string) error {
			return check(cmd.Context(), timeout)
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "timeout for the poll")
	return cmd
}

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the service registry and print the dependency start order",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer logger.Sync()

			reg, err := registry.Load(cfg.Registry.Path)
			if err != nil {
				return err
			}
			fmt.Printf("%d services, start order: %s\n", reg.Len(), strings.Join(reg.StartOrder(), " -> "))
			return nil
		},
	}
}

// check 只做一次只读轮询, 不启动后台任务, 也不重启任何容器
func check(ctx context.Context, timeout time.Duration) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	reg, err := registry.Load(cfg.Registry.Path)
	if err != nil {
		return err
	}
	runtime, err := docker.NewRuntimeFromEnv(logger)
	if err != nil {
		return err
	}
	defer runtime.Close()

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	insp := inspector.New(reg, runtime, logger, inspector.Options{
		HealthCheckAttempts: cfg.Monitor.HealthCheckAttempts,
		HealthCheckInterval: cfg.Monitor.HealthCheckInterval,
	})
	mon := monitor.New(reg, insp, logger, monitor.Options{
		EventCapacity:   cfg.Monitor.EventCapacity,
		DisableRecovery: true,
	})

	snap := mon.Poll(ctx)
	printSnapshot(snap)

	if snap.Overall == model.OverallDegraded {
		return errDegraded
	}
	return nil
}

func printSnapshot(snap model.Snapshot) {
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SERVICE\tCONTAINER\tSTATUS\tHEALTH\tCPU%\tMEM%\tUPTIME")
	for _, s := range snap.Services {
		view := web.NewServiceView(s)
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%.1f\t%.1f\t%s\n",
			view.ID, view.Container, view.Status, view.Health,
			view.Metrics.CPUPercent, view.Metrics.MemoryPercent, view.Uptime)
	}
	tw.Flush()

	o := web.NewOverview(snap)
	fmt.Printf("\noverall: %s (%d operational, %d warning, %d error of %d)\n",
		o.Overall, o.Operational, o.Warning, o.Error, o.Total)
}
