package pin

import (
	"github.com/juju/errors"
	"periph.io/x/periph/conn/gpio"
	"periph.io/x/periph/conn/gpio/gpioreg"
	"periph.io/x/periph/host"
)

// Periph resolves pins by name in periph.io registry, e.g. "GPIO12".
// Names are bound to logical lines used by device.
type Periph struct {
	outputLevels
	inputs  map[uint32]gpio.PinIO
	outputs map[uint32]gpio.PinIO
}

func OpenPeriph(inputNames, outputNames map[uint32]string) (*Periph, error) {
	if _, err := host.Init(); err != nil {
		return nil, errors.Annotate(err, "periph/init")
	}
	return NewPeriph(gpioreg.ByName, inputNames, outputNames)
}

// NewPeriph configures inputs without pull or edge detection, outputs low.
func NewPeriph(byName func(string) gpio.PinIO, inputNames, outputNames map[uint32]string) (*Periph, error) {
	p := &Periph{
		inputs:  make(map[uint32]gpio.PinIO, len(inputNames)),
		outputs: make(map[uint32]gpio.PinIO, len(outputNames)),
	}
	for line, name := range inputNames {
		if line > maxLine {
			return nil, errors.NotValidf("periph line=%d above %d", line, maxLine)
		}
		pin := byName(name)
		if pin == nil {
			return nil, errors.NotFoundf("periph pin=%s", name)
		}
		if err := pin.In(gpio.PullNoChange, gpio.NoEdge); err != nil {
			return nil, errors.Annotatef(err, "periph pin=%s input", name)
		}
		p.inputs[line] = pin
	}
	for line, name := range outputNames {
		pin := byName(name)
		if pin == nil {
			return nil, errors.NotFoundf("periph pin=%s", name)
		}
		if err := pin.Out(gpio.Low); err != nil {
			return nil, errors.Annotatef(err, "periph pin=%s output", name)
		}
		p.outputs[line] = pin
	}
	return p, nil
}

func (p *Periph) ReadInputs() (uint64, error) {
	var levels uint64
	for line, pin := range p.inputs {
		if pin.Read() == gpio.High {
			levels |= 1 << line
		}
	}
	return levels, nil
}

func (p *Periph) WriteOutput(line uint32, level bool) error {
	pin, ok := p.outputs[line]
	if !ok {
		return errors.NotFoundf("periph output line=%d", line)
	}
	if err := pin.Out(gpio.Level(level)); err != nil {
		return errors.Annotatef(err, "periph pin=%s write", pin.Name())
	}
	p.set(line, level)
	return nil
}

func (p *Periph) OutputLevel(line uint32) bool { return p.get(line) }
