// Package app builds device collaborators from config.
// Hardware, network and transport are created lazily, once, and closed together.
package app

import (
	"io"
	"sync"
	"sync/atomic"

	"github.com/juju/errors"
	"github.com/temoto/btnreport/config"
	"github.com/temoto/btnreport/device"
	"github.com/temoto/btnreport/hardware/pin"
	"github.com/temoto/btnreport/helpers"
	"github.com/temoto/btnreport/log2"
	"github.com/temoto/btnreport/network"
	mqtt_transport "github.com/temoto/btnreport/transport/mqtt"
	tcp_transport "github.com/temoto/btnreport/transport/tcp"
)

type App struct {
	Log    *log2.Log
	Config *config.Config

	pins struct {
		once
		in   device.InputReader
		out  device.OutputWriter
		mock *pin.Mock
	}
	network struct {
		once
		n device.Network
	}
	dialer struct {
		once
		d device.Dialer
	}

	mu      sync.Mutex
	closers []io.Closer
}

func New(log *log2.Log, c *config.Config) *App {
	return &App{Log: log, Config: c}
}

// Close releases everything created, in reverse order.
func (a *App) Close() error {
	a.mu.Lock()
	closers := a.closers
	a.closers = nil
	a.mu.Unlock()
	for i, j := 0, len(closers)-1; i < j; i, j = i+1, j-1 {
		closers[i], closers[j] = closers[j], closers[i]
	}
	return helpers.CloseAll(closers...)
}

func (a *App) addCloser(c io.Closer) {
	a.mu.Lock()
	a.closers = append(a.closers, c)
	a.mu.Unlock()
}

// UseMock replaces configured hardware driver with in-memory pins.
// Must be called before Pins().
func (a *App) UseMock() *pin.Mock {
	a.Config.Hardware.Driver = config.DriverMock
	_, _, _ = a.Pins()
	return a.pins.mock
}

func (a *App) Pins() (device.InputReader, device.OutputWriter, error) {
	x := &a.pins // short alias
	_ = x.do(func() error {
		cfg := &a.Config.Hardware
		opt := a.Config.DeviceOptions()
		switch cfg.Driver {
		case config.DriverCdev:
			c, err := pin.OpenCdev(cfg.PinChip, opt.ButtonLines[:], []uint32{opt.LedLine})
			if err != nil {
				return err
			}
			a.addCloser(c)
			x.in, x.out = c, c

		case config.DriverPeriph:
			inputs := make(map[uint32]string, device.ButtonCount)
			for i, name := range cfg.Buttons {
				inputs[opt.ButtonLines[i]] = name
			}
			p, err := pin.OpenPeriph(inputs, map[uint32]string{opt.LedLine: cfg.Led})
			if err != nil {
				return err
			}
			x.in, x.out = p, p

		case config.DriverInputEvent:
			codes, err := a.Config.KeyCodes()
			if err != nil {
				return err
			}
			keys := make(map[uint16]uint32, device.ButtonCount)
			for i, code := range codes {
				keys[code] = opt.ButtonLines[i]
			}
			ie, err := pin.OpenInputEvent(a.Log, cfg.InputEventDevice, keys)
			if err != nil {
				return err
			}
			a.addCloser(ie)
			led, err := pin.OpenCdev(cfg.PinChip, nil, []uint32{opt.LedLine})
			if err != nil {
				return err
			}
			a.addCloser(led)
			x.in, x.out = ie, led

		case config.DriverMock:
			x.mock = pin.NewMock()
			x.in, x.out = x.mock, x.mock

		default:
			return errors.NotValidf("config: hardware driver=%s", cfg.Driver)
		}
		return nil
	})
	return x.in, x.out, errors.Annotatef(x.err, "hardware driver=%s", a.Config.Hardware.Driver)
}

func (a *App) Network() (device.Network, error) {
	x := &a.network // short alias
	_ = x.do(func() error {
		cfg := &a.Config.Network
		switch cfg.Driver {
		case config.NetworkWPA:
			w := network.NewWPA(a.Log, network.NewIface(cfg.Interface), cfg.WpaCli, nil)
			a.addCloser(w)
			x.n = w
		case config.NetworkIface:
			x.n = network.NewIface(cfg.Interface)
		case config.NetworkStatic:
			x.n = network.Static{}
		default:
			return errors.NotValidf("config: network driver=%s", cfg.Driver)
		}
		return nil
	})
	return x.n, x.err
}

func (a *App) Dialer() (device.Dialer, error) {
	x := &a.dialer // short alias
	_ = x.do(func() error {
		cfg := &a.Config.Remote
		switch cfg.Transport {
		case config.TransportTCP:
			d := tcp_transport.NewDialer(tcp_transport.Options{
				Log:            a.Log,
				NetworkTimeout: a.Config.NetworkTimeout(),
			})
			a.addCloser(d)
			x.d = d
		case config.TransportMQTT:
			mqtt_transport.SetLogger(a.Log)
			x.d = mqtt_transport.NewDialer(mqtt_transport.Options{
				Log:            a.Log,
				ClientID:       cfg.MqttClientID,
				Topic:          cfg.MqttTopic,
				NetworkTimeout: a.Config.NetworkTimeout(),
			})
		default:
			return errors.NotValidf("config: remote transport=%s", cfg.Transport)
		}
		return nil
	})
	return x.d, x.err
}

// NewDevice builds every collaborator and the device.
func (a *App) NewDevice(onTransition func(prev, next device.ConnectionState)) (*device.Device, error) {
	in, out, err := a.Pins()
	if err != nil {
		return nil, err
	}
	n, err := a.Network()
	if err != nil {
		return nil, errors.Annotate(err, "network")
	}
	d, err := a.Dialer()
	if err != nil {
		return nil, errors.Annotate(err, "transport")
	}
	opt := a.Config.DeviceOptions()
	opt.Log = a.Log
	opt.Network = n
	opt.Dialer = d
	opt.Inputs = in
	opt.Outputs = out
	opt.OnTransition = onTransition
	return device.New(opt)
}

type once struct {
	sync.Mutex
	called uint32 // atomic bool
	err    error
}

func (o *once) done() bool {
	return atomic.LoadUint32(&o.called) == 1
}

func (o *once) do(f func() error) error {
	if o.done() { // fast path
		return o.err
	}
	o.Lock()
	defer o.Unlock()
	if o.done() {
		return o.err
	}
	o.err = f()
	atomic.StoreUint32(&o.called, 1)
	return o.err
}
