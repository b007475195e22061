package device

import (
	"fmt"
	"strconv"

	"github.com/juju/errors"
)

const ButtonCount = 3

// Buttons holds pin levels in bits 0..2, 1 = pushed.
type Buttons uint8

func (b Buttons) String() string { return fmt.Sprintf("%03b", uint8(b)) }

// Payload is the wire format: decimal text, e.g. 0b101 -> "5".
func (b Buttons) Payload() []byte { return []byte(strconv.Itoa(int(b))) }

type Sampler struct {
	in    InputReader
	lines [ButtonCount]uint32
}

func NewSampler(in InputReader, lines [ButtonCount]uint32) Sampler {
	return Sampler{in: in, lines: lines}
}

func (s Sampler) Sample() (Buttons, error) {
	levels, err := s.in.ReadInputs()
	if err != nil {
		return 0, errors.Annotate(err, "read buttons")
	}
	return PackButtons(levels, s.lines), nil
}

// PackButtons right-aligns levels of lines into a mask in lines order.
func PackButtons(levels uint64, lines [ButtonCount]uint32) Buttons {
	var b Buttons
	for i, line := range lines {
		if line < 64 && levels&(1<<line) != 0 {
			b |= 1 << uint(i)
		}
	}
	return b
}
