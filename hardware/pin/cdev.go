package pin

import (
	"io"

	"github.com/juju/errors"
	"github.com/temoto/btnreport/helpers"
	"github.com/temoto/gpio-cdev-go"
)

const consumerLabel = "btnreport"

// Cdev uses Linux GPIO character device, one request for inputs, one for outputs.
type Cdev struct {
	outputLevels
	chip        gpio.Chiper
	inputs      gpio.Lineser
	inputLines  []uint32
	outputs     gpio.Lineser
	outputFuncs map[uint32]gpio.LineSetFunc
}

func OpenCdev(chipPath string, inputLines, outputLines []uint32) (*Cdev, error) {
	chip, err := gpio.Open(chipPath, consumerLabel)
	if err != nil {
		return nil, errors.Annotatef(err, "gpio open chip=%s", chipPath)
	}
	c, err := NewCdev(chip, inputLines, outputLines)
	if err != nil {
		_ = chip.Close()
		return nil, err
	}
	return c, nil
}

// NewCdev takes ownership of chip, it is closed by Close().
// Output lines start low.
func NewCdev(chip gpio.Chiper, inputLines, outputLines []uint32) (*Cdev, error) {
	if err := checkLines(append(append([]uint32{}, inputLines...), outputLines...)); err != nil {
		return nil, errors.Annotate(err, "gpio")
	}
	c := &Cdev{
		chip:        chip,
		inputLines:  inputLines,
		outputFuncs: make(map[uint32]gpio.LineSetFunc, len(outputLines)),
	}
	var err error
	if len(inputLines) != 0 {
		c.inputs, err = chip.OpenLines(gpio.GPIOHANDLE_REQUEST_INPUT, consumerLabel, inputLines...)
		if err != nil {
			return nil, errors.Annotatef(err, "gpio request inputs=%v", inputLines)
		}
	}
	if len(outputLines) != 0 {
		c.outputs, err = chip.OpenLines(gpio.GPIOHANDLE_REQUEST_OUTPUT, consumerLabel, outputLines...)
		if err != nil {
			if c.inputs != nil {
				_ = c.inputs.Close()
			}
			return nil, errors.Annotatef(err, "gpio request outputs=%v", outputLines)
		}
		for _, line := range outputLines {
			c.outputFuncs[line] = c.outputs.SetFunc(line)
		}
	}
	return c, nil
}

// ReadInputs returns bit N set when line N is high.
func (c *Cdev) ReadInputs() (uint64, error) {
	if c.inputs == nil {
		return 0, nil
	}
	data, err := c.inputs.Read()
	if err != nil {
		return 0, errors.Annotate(err, "gpio read")
	}
	var levels uint64
	// values are in request order
	for i, line := range c.inputLines {
		if data.Values[i] != 0 {
			levels |= 1 << line
		}
	}
	return levels, nil
}

func (c *Cdev) WriteOutput(line uint32, level bool) error {
	f, ok := c.outputFuncs[line]
	if !ok {
		return errors.NotFoundf("gpio output line=%d", line)
	}
	var b byte
	if level {
		b = 1
	}
	f(b)
	if err := c.outputs.Flush(); err != nil {
		return errors.Annotatef(err, "gpio write line=%d", line)
	}
	c.set(line, level)
	return nil
}

func (c *Cdev) OutputLevel(line uint32) bool { return c.get(line) }

func (c *Cdev) Close() error {
	closers := make([]io.Closer, 0, 3)
	if c.inputs != nil {
		closers = append(closers, c.inputs)
	}
	if c.outputs != nil {
		closers = append(closers, c.outputs)
	}
	closers = append(closers, c.chip)
	return helpers.CloseAll(closers...)
}
