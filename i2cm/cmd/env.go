package cmd

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

// Environment variables that provide flag defaults.
const (
	envBus          = "I2CM_BUS"
	envTimeout      = "I2CM_TIMEOUT"
	envPollInterval = "I2CM_POLL_INTERVAL"
	envBusFreq      = "I2CM_BUS_FREQ"
	envMonitorPort  = "I2CM_MONITOR_PORT"
	envRecord       = "I2CM_RECORD"
)

// The environment is read when flags are resolved, after the .env file has
// been loaded, so every lookup goes through these helpers.

func envString(name, def string) string {
	if v, ok := os.LookupEnv(name); ok && v != "" {
		return v
	}

	return def
}

func envInt(name string, def int) (int, error) {
	v, ok := os.LookupEnv(name)
	if !ok || v == "" {
		return def, nil
	}

	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}

	return n, nil
}

func envDuration(name string, def time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(name)
	if !ok || v == "" {
		return def, nil
	}

	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}

	return d, nil
}

// flagOrEnv returns the flag value when it was given on the command line and
// the environment value, or def, otherwise.
func flagOrEnv(cmd *cobra.Command, flag, env, def string) string {
	if cmd.Flags().Changed(flag) {
		v, _ := cmd.Flags().GetString(flag)
		return v
	}

	return envString(env, def)
}
