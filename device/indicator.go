package device

// Indicator drives the status LED:
// off = disconnected, blink = network joined, solid = session established.
type Indicator struct {
	out       OutputWriter
	line      uint32
	activeLow bool
}

func NewIndicator(out OutputWriter, line uint32, activeLow bool) Indicator {
	return Indicator{out: out, line: line, activeLow: activeLow}
}

// Next returns electrical level for state, given current level.
// NetworkJoined has no blink phase of its own, it inverts whatever is on the pin.
func (i Indicator) Next(state ConnectionState, prevLevel bool) bool {
	switch state {
	case SessionEstablished:
		return i.onLevel()
	case NetworkJoined:
		return !prevLevel
	}
	return !i.onLevel()
}

// Update reads current output level, then writes the next one.
func (i Indicator) Update(state ConnectionState) (bool, error) {
	level := i.Next(state, i.out.OutputLevel(i.line))
	return level, i.out.WriteOutput(i.line, level)
}

// Lit reports whether LED is shining at electrical level.
func (i Indicator) Lit(level bool) bool { return level == i.onLevel() }

func (i Indicator) onLevel() bool { return !i.activeLow }
