// Package cmd provides the command-line interface for i2cm.
package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"

	"github.com/go-logr/logr"
	"github.com/go-logr/stdr"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"
)

var verbosity int

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "i2cm",
	Short: "i2cm sends requests to peripherals on a two-wire bus.",
	Long: `i2cm sends requests to peripherals on a two-wire bus and waits for ` +
		`their replies without blocking. It can drive a real bus through ` +
		`i2c-dev or run scripted scenarios on a simulated bus.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags
// appropriately.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		atexit.Exit(1)
	}

	atexit.Exit(0)
}

func init() {
	cobra.OnInitialize(loadEnvFile)

	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v",
		"Log bus events, repeat for more detail.")
}

// loadEnvFile reads defaults from a .env file in the working directory, if
// there is one. Variables already set in the environment win.
func loadEnvFile() {
	err := godotenv.Load()
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Ignoring .env: %v\n", err)
	}
}

func newLogger() logr.Logger {
	if verbosity == 0 {
		return logr.Discard()
	}

	stdr.SetVerbosity(verbosity)

	return stdr.New(log.New(os.Stderr, "", log.LstdFlags|log.Lmicroseconds))
}
