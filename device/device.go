// Package device reports button state to a fixed remote peer.
//
// All state is owned by Device and touched from one goroutine: Run() loop,
// or the test calling Poll()/Tick() directly. Transport callbacks only post
// events, which are handled between ticks, each to completion.
package device

import (
	"context"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/alive/v2"
	"github.com/temoto/btnreport/log2"
)

const eventBuffer = 16

type Options struct {
	Log     *log2.Log
	Network Network
	Dialer  Dialer
	Inputs  InputReader
	Outputs OutputWriter

	SSID         string
	Passphrase   string
	Remote       Endpoint
	Timing       Timing
	ButtonLines  [ButtonCount]uint32
	LedLine      uint32
	LedActiveLow bool

	// Called from device loop after state change was logged.
	OnTransition func(prev, next ConnectionState)
}

// DefaultOptions leaves collaborators and Log nil.
func DefaultOptions() Options {
	return Options{
		SSID:         DefaultSSID,
		Passphrase:   DefaultPassphrase,
		Remote:       DefaultEndpoint(),
		Timing:       DefaultTiming(),
		ButtonLines:  DefaultButtonLines,
		LedLine:      DefaultLedLine,
		LedActiveLow: DefaultLedActiveLow,
	}
}

type Device struct {
	log          *log2.Log
	opt          Options
	alive        *alive.Alive
	events       chan Event
	network      Network
	session      Session
	sampler      Sampler
	indicator    Indicator
	onTransition func(prev, next ConnectionState)
	stat         Stat

	tick          uint32
	state         ConnectionState
	buttons       Buttons
	networkStatus string
}

func New(opt Options) (*Device, error) {
	switch {
	case opt.Network == nil:
		return nil, errors.NotValidf("code error device Network=nil")
	case opt.Dialer == nil:
		return nil, errors.NotValidf("code error device Dialer=nil")
	case opt.Inputs == nil:
		return nil, errors.NotValidf("code error device Inputs=nil")
	case opt.Outputs == nil:
		return nil, errors.NotValidf("code error device Outputs=nil")
	}
	if err := opt.Timing.Validate(); err != nil {
		return nil, errors.Annotate(err, "device timing")
	}
	if opt.Remote.Addr == "" || opt.Remote.Port == 0 {
		return nil, errors.NotValidf("device remote=%s", opt.Remote)
	}

	d := &Device{
		log:          opt.Log,
		opt:          opt,
		alive:        alive.NewAlive(),
		events:       make(chan Event, eventBuffer),
		network:      opt.Network,
		sampler:      NewSampler(opt.Inputs, opt.ButtonLines),
		indicator:    NewIndicator(opt.Outputs, opt.LedLine, opt.LedActiveLow),
		onTransition: opt.OnTransition,
		state:        Disconnected,
	}
	d.session = Session{
		log:    opt.Log,
		dialer: opt.Dialer,
		remote: opt.Remote,
		post:   d.post,
		stat:   &d.stat,
	}
	d.log.SetErrorFunc(func(error) { d.stat.Error.Add(1) })
	return d, nil
}

func (d *Device) State() ConnectionState { return d.state }
func (d *Device) Buttons() Buttons       { return d.buttons }
func (d *Device) TickIndex() uint32      { return d.tick }
func (d *Device) Session() *Session      { return &d.session }
func (d *Device) Stat() *Stat            { return &d.stat }

// Join submits network join request unless already joined.
func (d *Device) Join() {
	if d.network.Joined() {
		d.log.Infof("network already joined ssid=%s", d.opt.SSID)
		return
	}
	d.log.Infof("joining network ssid=%s", d.opt.SSID)
	if err := d.network.Configure(d.opt.SSID, d.opt.Passphrase); err != nil {
		d.log.Error(errors.Annotate(err, "network configure"))
	}
	if d.network.RequestJoin() {
		d.log.Infof("network join request submitted")
	} else {
		d.log.Errorf("unable to submit network join request")
	}
}

// Run joins network and drives ticks until ctx is done or Stop().
// Session is released on return.
func (d *Device) Run(ctx context.Context) error {
	if !d.alive.Add(1) {
		return ErrStopped
	}
	defer d.alive.Done()
	defer d.session.Release()

	d.Join()
	d.log.Infof("device initialization completed tick=%s", d.opt.Timing.Tick)
	ticker := time.NewTicker(d.opt.Timing.Tick)
	defer ticker.Stop()
	stopCh := d.alive.StopChan()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stopCh:
			return nil
		case e := <-d.events:
			d.handle(e)
		case <-ticker.C:
			d.Poll()
			d.Tick()
		}
	}
}

// Stop returns after Run() exited.
func (d *Device) Stop() {
	d.alive.Stop()
	d.alive.Wait()
}
