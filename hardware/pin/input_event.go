package pin

import (
	"io"
	"os"
	"sync"

	"github.com/juju/errors"
	"github.com/temoto/btnreport/log2"
	"github.com/temoto/inputevent-go"
)

// linux/input-event-codes.h
const evKey = 0x01

// InputEvent keeps button levels from key events, e.g. gpio-keys device.
// Keys are mapped to logical lines, unknown keys are ignored.
type InputEvent struct {
	log   *log2.Log
	f     io.ReadCloser
	keys  map[uint16]uint32
	mu    sync.Mutex
	bits  uint64
	err   error
	doneC chan struct{}
}

func OpenInputEvent(log *log2.Log, device string, keys map[uint16]uint32) (*InputEvent, error) {
	f, err := os.Open(device)
	if err != nil {
		return nil, errors.Annotatef(err, "input event open device=%s", device)
	}
	return NewInputEvent(log, f, keys)
}

// NewInputEvent starts reading r until error or Close.
func NewInputEvent(log *log2.Log, r io.ReadCloser, keys map[uint16]uint32) (*InputEvent, error) {
	for key, line := range keys {
		if line > maxLine {
			return nil, errors.NotValidf("input event key=%d line=%d above %d", key, line, maxLine)
		}
	}
	ie := &InputEvent{
		log:   log,
		f:     r,
		keys:  keys,
		doneC: make(chan struct{}),
	}
	go ie.readLoop()
	return ie, nil
}

func (ie *InputEvent) readLoop() {
	defer close(ie.doneC)
	for {
		e, err := inputevent.ReadOne(ie.f)
		if err != nil {
			ie.mu.Lock()
			ie.err = err
			ie.mu.Unlock()
			if err != io.EOF {
				ie.log.Errorf("input event read err=%v", err)
			}
			return
		}
		if e.Type != evKey {
			continue
		}
		line, ok := ie.keys[e.Code]
		if !ok {
			ie.log.Debugf("input event unknown key=%d", e.Code)
			continue
		}
		ie.mu.Lock()
		if e.Value == int32(inputevent.KeyStateUp) {
			ie.bits &^= 1 << line
		} else {
			ie.bits |= 1 << line
		}
		ie.mu.Unlock()
	}
}

// ReadInputs returns pressed keys as high lines.
// After reader stopped, returns its error.
func (ie *InputEvent) ReadInputs() (uint64, error) {
	ie.mu.Lock()
	defer ie.mu.Unlock()
	if ie.err != nil {
		return ie.bits, errors.Annotate(ie.err, "input event")
	}
	return ie.bits, nil
}

func (ie *InputEvent) Close() error {
	err := ie.f.Close()
	<-ie.doneC
	return err
}
