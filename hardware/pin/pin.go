// Package pin implements device.InputReader and device.OutputWriter
// on Linux GPIO character device, periph.io registry, input event device and memory.
package pin

import (
	"sync"

	"github.com/juju/errors"
	"github.com/temoto/btnreport/device"
)

// compile-time interface compliance test
var (
	_ device.InputReader  = new(Cdev)
	_ device.OutputWriter = new(Cdev)
	_ device.InputReader  = new(Periph)
	_ device.OutputWriter = new(Periph)
	_ device.InputReader  = new(InputEvent)
	_ device.InputReader  = new(Mock)
	_ device.OutputWriter = new(Mock)
)

const maxLine = 63

func checkLines(lines []uint32) error {
	seen := make(map[uint32]struct{}, len(lines))
	for _, line := range lines {
		if line > maxLine {
			return errors.NotValidf("line=%d above %d", line, maxLine)
		}
		if _, ok := seen[line]; ok {
			return errors.NotValidf("line=%d duplicate", line)
		}
		seen[line] = struct{}{}
	}
	return nil
}

// outputLevels remembers last written output level per line.
type outputLevels struct {
	mu     sync.Mutex
	levels map[uint32]bool
}

func (o *outputLevels) set(line uint32, level bool) {
	o.mu.Lock()
	if o.levels == nil {
		o.levels = make(map[uint32]bool)
	}
	o.levels[line] = level
	o.mu.Unlock()
}

func (o *outputLevels) get(line uint32) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.levels[line]
}

// Mock is in-memory pins for simulation and tests.
type Mock struct {
	outputLevels
	inputs  uint64
	readErr error
}

func NewMock() *Mock { return &Mock{} }

func (m *Mock) ReadInputs() (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inputs, m.readErr
}

func (m *Mock) SetInputs(levels uint64) {
	m.mu.Lock()
	m.inputs = levels
	m.mu.Unlock()
}

// SetInput changes one line, keeps others.
func (m *Mock) SetInput(line uint32, level bool) {
	m.mu.Lock()
	if level {
		m.inputs |= 1 << line
	} else {
		m.inputs &^= 1 << line
	}
	m.mu.Unlock()
}

func (m *Mock) SetReadError(err error) {
	m.mu.Lock()
	m.readErr = err
	m.mu.Unlock()
}

func (m *Mock) WriteOutput(line uint32, level bool) error {
	m.set(line, level)
	return nil
}

func (m *Mock) OutputLevel(line uint32) bool { return m.get(line) }
