package cmd

import (
	"fmt"

	"github.com/sarchlab/i2cm/timing"
	"github.com/sarchlab/i2cm/twowire"
	"github.com/spf13/cobra"
)

var divisorCmd = &cobra.Command{
	Use:   "divisor",
	Short: "Compute the bit-rate divisor for a bus frequency.",
	Long: "`divisor --cpu 16MHz --freq 100kHz` prints the value the " +
		"controller's bit-rate register needs and the resulting bus clock.",
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cpuFlag, _ := cmd.Flags().GetString("cpu")

		cpu, err := timing.ParseFreq(cpuFlag)
		if err != nil {
			return err
		}

		bus, err := timing.ParseFreq(
			flagOrEnv(cmd, "freq", envBusFreq, twowire.StandardMode.String()))
		if err != nil {
			return err
		}

		div, err := twowire.ClockDivisor(cpu, bus)
		if err != nil {
			return err
		}

		actual := cpu / timing.Freq(16+2*int(div))

		fmt.Fprintf(cmd.OutOrStdout(), "divisor %d (bus runs at %s, %s per bit)\n",
			div, actual, actual.Period())

		return nil
	},
}

func init() {
	rootCmd.AddCommand(divisorCmd)
	divisorCmd.Flags().String("cpu", "16MHz", "Controller clock frequency.")
	divisorCmd.Flags().String("freq", "",
		"Bus frequency. Defaults to $"+envBusFreq+" or 100kHz.")
}
