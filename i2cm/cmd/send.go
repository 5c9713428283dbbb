package cmd

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/sarchlab/i2cm/coordinator"
	"github.com/sarchlab/i2cm/hooking"
	"github.com/sarchlab/i2cm/runner"
	"github.com/sarchlab/i2cm/scenario"
	"github.com/sarchlab/i2cm/timing"
	"github.com/sarchlab/i2cm/twowire"
	"github.com/sarchlab/i2cm/twowire/devfs"
	"github.com/spf13/cobra"
)

var sendCmd = &cobra.Command{
	Use:   "send MESSAGE",
	Short: "Send one request on a real bus and print the reply.",
	Long: "`send --bus 1 --addr 0x08 PING` writes PING to the peripheral at " +
		"0x08 on /dev/i2c-1 and prints what it answers, or that it timed out.",
	Args: cobra.ExactArgs(1),
	RunE: runSend,
}

func init() {
	rootCmd.AddCommand(sendCmd)

	sendCmd.Flags().String("bus", "",
		"Bus number. Defaults to $"+envBus+" or 1.")
	sendCmd.Flags().String("addr", "", "Peripheral address, e.g. 0x08.")
	sendCmd.Flags().String("timeout", "",
		"Reply timeout. Defaults to $"+envTimeout+" or 100ms.")
	sendCmd.Flags().String("interval", "",
		"Poll interval. Defaults to $"+envPollInterval+" or 1ms.")
	sendCmd.Flags().String("freq", "",
		"Bus frequency. Defaults to $"+envBusFreq+" or 100kHz.")
	sendCmd.Flags().Bool("hex", false, "MESSAGE is hex encoded.")

	_ = sendCmd.MarkFlagRequired("addr")
}

type sendOptions struct {
	bus      int
	addr     twowire.Address
	timeout  time.Duration
	interval time.Duration
	freq     timing.Freq
	msg      []byte
}

func parseSendOptions(cmd *cobra.Command, args []string) (sendOptions, error) {
	var (
		opts sendOptions
		err  error
	)

	if cmd.Flags().Changed("bus") {
		v, _ := cmd.Flags().GetString("bus")
		opts.bus, err = strconv.Atoi(v)
	} else {
		opts.bus, err = envInt(envBus, 1)
	}

	if err != nil {
		return opts, fmt.Errorf("bus: %w", err)
	}

	addrFlag, _ := cmd.Flags().GetString("addr")

	opts.addr, err = twowire.ParseAddress(addrFlag)
	if err != nil {
		return opts, err
	}

	opts.timeout, err = durationOption(cmd, "timeout", envTimeout,
		coordinator.DefaultTimeout)
	if err != nil {
		return opts, err
	}

	opts.interval, err = durationOption(cmd, "interval", envPollInterval,
		time.Millisecond)
	if err != nil {
		return opts, err
	}

	opts.freq, err = timing.ParseFreq(
		flagOrEnv(cmd, "freq", envBusFreq, twowire.StandardMode.String()))
	if err != nil {
		return opts, err
	}

	opts.msg = []byte(args[0])

	isHex, _ := cmd.Flags().GetBool("hex")
	if isHex {
		opts.msg, err = hex.DecodeString(args[0])
		if err != nil {
			return opts, fmt.Errorf("message: %w", err)
		}
	}

	return opts, nil
}

func durationOption(
	cmd *cobra.Command,
	flag, env string,
	def time.Duration,
) (time.Duration, error) {
	if !cmd.Flags().Changed(flag) {
		return envDuration(env, def)
	}

	v, _ := cmd.Flags().GetString(flag)

	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", flag, err)
	}

	return d, nil
}

func runSend(cmd *cobra.Command, args []string) error {
	opts, err := parseSendOptions(cmd, args)
	if err != nil {
		return err
	}

	driver := devfs.New(opts.bus)
	defer driver.Close()

	coord := coordinator.MakeBuilder().
		WithDriver(driver).
		WithTimeout(opts.timeout).
		Build("Coordinator")
	coord.AcceptHook(hooking.NewLogHook(newLogger(), 1))

	err = coord.Setup(opts.freq)
	if err != nil {
		return err
	}

	r := runner.MakeBuilder().
		WithCoordinator(coord).
		WithInterval(opts.interval).
		WithMailboxSize(1).
		Build()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	loopCtx, stopLoop := context.WithCancel(ctx)
	defer stopLoop()

	go func() {
		_ = r.Run(loopCtx)
	}()

	rsp, err := r.Do(ctx, opts.addr, opts.msg)

	printOutcome(cmd.OutOrStdout(),
		scenario.Message{Address: opts.addr, Data: opts.msg}, rsp, err)

	if errors.Is(err, coordinator.ErrTimedOut) {
		if readErr := driver.Err(); readErr != nil {
			fmt.Fprintf(os.Stderr, "Last read failed: %v\n", readErr)
		}
	}

	return err
}
