package timing

// A Ticker is an object that updates its state when it is ticked. Tick
// reports whether the state changed, so that a scheduler can tell idle
// components from busy ones.
type Ticker interface {
	Tick() bool
}
