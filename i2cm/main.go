// Command i2cm talks to peripherals on a two-wire bus, for real or in
// simulation.
package main

import "github.com/sarchlab/i2cm/i2cm/cmd"

func main() {
	cmd.Execute()
}
