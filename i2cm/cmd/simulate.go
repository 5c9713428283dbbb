package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/sarchlab/i2cm/coordinator"
	"github.com/sarchlab/i2cm/scenario"
	"github.com/sarchlab/i2cm/simulation"
	"github.com/spf13/cobra"
)

var simulateCmd = &cobra.Command{
	Use:   "simulate [scenario.yaml]",
	Short: "Run a scenario on a simulated bus.",
	Long: "`simulate` runs the requests of a scenario file against simulated " +
		"peripherals in virtual time and prints every outcome. Without a " +
		"file, a built-in ping-pong scenario runs.",
	Args: cobra.MaximumNArgs(1),
	RunE: runSimulate,
}

func init() {
	rootCmd.AddCommand(simulateCmd)

	simulateCmd.Flags().String("record", "",
		"Record transactions into <path>.sqlite3. Defaults to $"+envRecord+".")
	simulateCmd.Flags().Bool("monitor", false,
		"Serve the simulation over HTTP.")
	simulateCmd.Flags().Int("monitor-port", 0,
		"Port of the monitor. Defaults to $"+envMonitorPort+" or a random port.")
	simulateCmd.Flags().Bool("open-browser", false,
		"Open the monitor in a browser.")
	simulateCmd.Flags().Bool("hold", false,
		"Keep serving monitor requests after the scenario finished.")
}

func loadScenario(args []string) (*scenario.Scenario, error) {
	if len(args) == 0 {
		return scenario.Default(), nil
	}

	return scenario.Load(args[0])
}

func buildSimulation(
	cmd *cobra.Command,
	sc *scenario.Scenario,
) (*simulation.Simulation, error) {
	builder := simulation.MakeBuilder().
		WithScenario(sc).
		WithLogger(newLogger())

	if record := flagOrEnv(cmd, "record", envRecord, ""); record != "" {
		builder = builder.WithRecording(record)
	}

	monitorOn, _ := cmd.Flags().GetBool("monitor")
	if monitorOn {
		port, _ := cmd.Flags().GetInt("monitor-port")
		if !cmd.Flags().Changed("monitor-port") {
			var err error

			port, err = envInt(envMonitorPort, 0)
			if err != nil {
				return nil, err
			}
		}

		builder = builder.WithMonitoring().WithMonitorPort(port)
	}

	return builder.Build()
}

func runSimulate(cmd *cobra.Command, args []string) error {
	sc, err := loadScenario(args)
	if err != nil {
		return err
	}

	sim, err := buildSimulation(cmd, sc)
	if err != nil {
		return err
	}
	defer sim.Terminate()

	openBrowser, _ := cmd.Flags().GetBool("open-browser")
	if openBrowser && sim.GetMonitor() != nil {
		err = sim.GetMonitor().OpenInBrowser()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Cannot open browser: %v\n", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	out := cmd.OutOrStdout()

	err = sim.Run(ctx, func(
		msg scenario.Message,
		rsp coordinator.Response,
		err error,
	) {
		printOutcome(out, msg, rsp, err)
	})
	if err != nil {
		return err
	}

	printStats(out, sim)

	hold, _ := cmd.Flags().GetBool("hold")
	if hold && sim.GetMonitor() != nil {
		fmt.Fprintf(os.Stderr, "Holding for monitor requests, press Ctrl-C to stop\n")

		err = sim.Hold(ctx)
		if !errors.Is(err, context.Canceled) {
			return err
		}
	}

	return nil
}

func printOutcome(
	w io.Writer,
	msg scenario.Message,
	rsp coordinator.Response,
	err error,
) {
	switch {
	case err == nil && rsp.Truncated():
		fmt.Fprintf(w, "%s %q -> %d bytes in %s, %d dropped\n",
			msg.Address, msg.Data, rsp.Len(), rsp.Elapsed, rsp.Dropped)
	case err == nil:
		fmt.Fprintf(w, "%s %q -> %q in %s\n",
			msg.Address, msg.Data, rsp.Data, rsp.Elapsed)
	case errors.Is(err, coordinator.ErrTimedOut):
		fmt.Fprintf(w, "%s %q -> timed out after %s\n",
			msg.Address, msg.Data, rsp.Elapsed)
	default:
		fmt.Fprintf(w, "%s %q -> error: %v (code %d)\n",
			msg.Address, msg.Data, err, coordinator.Code(err))
	}
}

func printStats(w io.Writer, sim *simulation.Simulation) {
	stats := sim.Stats()
	bus := sim.Bus().Stats()

	fmt.Fprintf(w,
		"\n%d replies, %d timeouts, %d truncated, %d bus faults\n",
		stats.Completed, stats.Expired, stats.Truncated, stats.BusFaults)

	if stats.Completed > 0 {
		fmt.Fprintf(w, "latency min %s, avg %.0fus, max %s\n",
			stats.MinLatency, stats.AvgLatency, stats.MaxLatency)
	}

	fmt.Fprintf(w, "bus: %d transmissions, %d reads, %d NACKs, %d bytes delivered\n",
		bus.Transmissions, bus.Requests, bus.NACKs, bus.BytesDelivered)
}
