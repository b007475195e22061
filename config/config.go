// Package config reads HCL configuration once at startup.
// Every value has a default, empty file is valid configuration.
package config

import (
	"path/filepath"
	"strconv"
	"time"

	"github.com/hashicorp/hcl"
	"github.com/juju/errors"
	"github.com/temoto/btnreport/device"
	"github.com/temoto/btnreport/helpers"
	"github.com/temoto/btnreport/log2"
)

const (
	NetworkWPA    = "wpa"
	NetworkIface  = "iface"
	NetworkStatic = "static"

	TransportTCP  = "tcp"
	TransportMQTT = "mqtt"

	DriverCdev       = "cdev"
	DriverPeriph     = "periph"
	DriverInputEvent = "input_event"
	DriverMock       = "mock"

	DefaultInterface      = "wlan0"
	DefaultWpaCli         = "wpa_cli"
	DefaultPinChip        = "/dev/gpiochip0"
	DefaultMqttTopic      = "btnreport/buttons"
	DefaultNetworkTimeout = 10 * time.Second
)

type Config struct {
	// includeSeen contains absolute paths to prevent include loops
	includeSeen map[string]struct{}
	// only used for Unmarshal, do not access
	XXX_Include []Source `hcl:"include"`

	Network struct {
		Driver     string `hcl:"driver"`
		Interface  string `hcl:"interface"`
		SSID       string `hcl:"ssid"`
		Passphrase string `hcl:"passphrase"`
		WpaCli     string `hcl:"wpa_cli"`
	} `hcl:"network"`

	Remote struct {
		Addr             string `hcl:"addr"`
		Port             int    `hcl:"port"`
		Transport        string `hcl:"transport"`
		NetworkTimeoutMs int    `hcl:"network_timeout_ms"`
		MqttTopic        string `hcl:"mqtt_topic"`
		MqttClientID     string `hcl:"mqtt_client_id"`
	} `hcl:"remote"`

	Timing struct {
		TickMs           int `hcl:"tick_ms"`
		StateUpdateTicks int `hcl:"state_update_ticks"`
		IndicatorTicks   int `hcl:"indicator_ticks"`
		HeartbeatTicks   int `hcl:"heartbeat_ticks"`
		WrapTicks        int `hcl:"wrap_ticks"`
	} `hcl:"timing"`

	Hardware struct {
		Driver string `hcl:"driver"`
		// cdev: line offsets, periph: pin names, input_event: key codes
		Buttons          []string `hcl:"buttons"`
		Led              string   `hcl:"led"`
		LedActiveHigh    bool     `hcl:"led_active_high"`
		PinChip          string   `hcl:"pin_chip"`
		InputEventDevice string   `hcl:"input_event_device"`
	} `hcl:"hardware"`

	LogDebug bool `hcl:"log_debug"`
}

type Source struct {
	Name     string `hcl:"name,key"`
	Optional bool   `hcl:"optional"`
}

func (c *Config) read(log *log2.Log, fs FullReader, source Source, errs *[]error) {
	norm := fs.Normalize(source.Name)
	if _, ok := c.includeSeen[norm]; ok {
		*errs = append(*errs, errors.Errorf("config duplicate source=%s", source.Name))
		return
	}
	log.Debugf("config reading source='%s' path=%s", source.Name, norm)
	c.includeSeen[source.Name] = struct{}{}
	c.includeSeen[norm] = struct{}{}

	bs, err := fs.ReadAll(norm)
	if bs == nil && err == nil {
		if !source.Optional {
			*errs = append(*errs, errors.NotFoundf("config required name=%s path=%s", source.Name, norm))
		}
		return
	}
	if err != nil {
		*errs = append(*errs, errors.Annotatef(err, "config source=%s", source.Name))
		return
	}

	if err = hcl.Unmarshal(bs, c); err != nil {
		*errs = append(*errs, errors.Annotatef(err, "config unmarshal source=%s", source.Name))
		return
	}

	var includes []Source
	includes, c.XXX_Include = c.XXX_Include, nil
	for _, include := range includes {
		if _, ok := c.includeSeen[fs.Normalize(include.Name)]; ok {
			*errs = append(*errs, errors.Errorf("config include loop: from=%s include=%s", source.Name, include.Name))
			continue
		}
		c.read(log, fs, include, errs)
	}
}

// ReadConfig parses names in order, later values overwrite earlier.
// Defaults are applied after all sources, then result is validated.
func ReadConfig(log *log2.Log, fs FullReader, names ...string) (*Config, error) {
	if len(names) == 0 {
		return nil, errors.NotValidf("code error ReadConfig() without names")
	}

	if osfs, ok := fs.(*OsFullReader); ok {
		dir, name := filepath.Split(names[0])
		osfs.SetBase(dir)
		names[0] = name
	}
	c := &Config{
		includeSeen: make(map[string]struct{}),
	}
	errs := make([]error, 0, 8)
	for _, name := range names {
		c.read(log, fs, Source{Name: name}, &errs)
	}
	if err := helpers.FoldErrors(errs); err != nil {
		return nil, err
	}
	c.ApplyDefaults()
	if err := c.Validate(); err != nil {
		return nil, errors.Annotate(err, "config")
	}
	return c, nil
}

func MustReadConfig(log *log2.Log, fs FullReader, names ...string) *Config {
	c, err := ReadConfig(log, fs, names...)
	if err != nil {
		log.Fatal(errors.ErrorStack(err))
	}
	return c
}

func (c *Config) ApplyDefaults() {
	defaultString(&c.Network.Driver, NetworkWPA)
	defaultString(&c.Network.Interface, DefaultInterface)
	// ssid without passphrase is open network
	if c.Network.SSID == "" {
		c.Network.SSID = device.DefaultSSID
		defaultString(&c.Network.Passphrase, device.DefaultPassphrase)
	}
	defaultString(&c.Network.WpaCli, DefaultWpaCli)

	defaultString(&c.Remote.Addr, device.DefaultRemoteAddr)
	defaultInt(&c.Remote.Port, device.DefaultRemotePort)
	defaultString(&c.Remote.Transport, TransportTCP)
	defaultString(&c.Remote.MqttTopic, DefaultMqttTopic)

	defaultInt(&c.Timing.TickMs, int(device.DefaultTick/time.Millisecond))
	defaultInt(&c.Timing.StateUpdateTicks, device.DefaultStateUpdateTicks)
	defaultInt(&c.Timing.IndicatorTicks, device.DefaultIndicatorTicks)
	defaultInt(&c.Timing.HeartbeatTicks, device.DefaultHeartbeatTicks)
	defaultInt(&c.Timing.WrapTicks, device.DefaultWrapTicks)

	defaultString(&c.Hardware.Driver, DriverCdev)
	defaultString(&c.Hardware.PinChip, DefaultPinChip)
	if len(c.Hardware.Buttons) == 0 {
		c.Hardware.Buttons = make([]string, device.ButtonCount)
		for i, line := range device.DefaultButtonLines {
			c.Hardware.Buttons[i] = strconv.Itoa(int(line))
		}
	}
	defaultString(&c.Hardware.Led, strconv.Itoa(device.DefaultLedLine))
}

func (c *Config) Validate() error {
	switch c.Network.Driver {
	case NetworkWPA, NetworkIface, NetworkStatic:
	default:
		return errors.NotValidf("network driver=%s", c.Network.Driver)
	}
	if c.Remote.Port <= 0 || c.Remote.Port > 0xffff {
		return errors.NotValidf("remote port=%d", c.Remote.Port)
	}
	switch c.Remote.Transport {
	case TransportTCP, TransportMQTT:
	default:
		return errors.NotValidf("remote transport=%s", c.Remote.Transport)
	}
	switch c.Hardware.Driver {
	case DriverCdev, DriverPeriph, DriverMock:
	case DriverInputEvent:
		if c.Hardware.InputEventDevice == "" {
			return errors.NotValidf("hardware driver=%s without input_event_device", c.Hardware.Driver)
		}
	default:
		return errors.NotValidf("hardware driver=%s", c.Hardware.Driver)
	}
	if len(c.Hardware.Buttons) != device.ButtonCount {
		return errors.NotValidf("hardware buttons=%v expected %d", c.Hardware.Buttons, device.ButtonCount)
	}
	if c.numericButtons() {
		if _, err := c.ButtonLines(); err != nil {
			return err
		}
	}
	if c.Hardware.Driver == DriverInputEvent {
		if _, err := c.KeyCodes(); err != nil {
			return err
		}
	}
	if c.Hardware.Driver != DriverPeriph {
		if _, err := c.LedLine(); err != nil {
			return err
		}
	}
	return errors.Annotate(c.DeviceTiming().Validate(), "timing")
}

// cdev and mock use button names as device lines,
// other drivers map names to default lines.
func (c *Config) numericButtons() bool {
	return c.Hardware.Driver == DriverCdev || c.Hardware.Driver == DriverMock
}

// ButtonLines parses numeric button names.
func (c *Config) ButtonLines() ([device.ButtonCount]uint32, error) {
	var lines [device.ButtonCount]uint32
	for i, s := range c.Hardware.Buttons {
		if i >= device.ButtonCount {
			break
		}
		x, err := strconv.ParseUint(s, 10, 16)
		if err != nil {
			return lines, errors.NewNotValid(err, "hardware button="+s+" must be number")
		}
		lines[i] = uint32(x)
	}
	return lines, nil
}

// KeyCodes parses input_event button names.
func (c *Config) KeyCodes() ([device.ButtonCount]uint16, error) {
	var codes [device.ButtonCount]uint16
	for i, s := range c.Hardware.Buttons {
		if i >= device.ButtonCount {
			break
		}
		x, err := strconv.ParseUint(s, 10, 16)
		if err != nil {
			return codes, errors.NewNotValid(err, "hardware button="+s+" must be key code")
		}
		codes[i] = uint16(x)
	}
	return codes, nil
}

func (c *Config) LedLine() (uint32, error) {
	x, err := strconv.ParseUint(c.Hardware.Led, 10, 16)
	if err != nil {
		return 0, errors.NewNotValid(err, "hardware led="+c.Hardware.Led+" must be number")
	}
	return uint32(x), nil
}

func (c *Config) NetworkTimeout() time.Duration {
	return helpers.IntMillisecondDefault(c.Remote.NetworkTimeoutMs, DefaultNetworkTimeout)
}

func (c *Config) DeviceTiming() device.Timing {
	return device.Timing{
		Tick:        helpers.IntMillisecondDefault(c.Timing.TickMs, device.DefaultTick),
		StateUpdate: uint32(c.Timing.StateUpdateTicks),
		Indicator:   uint32(c.Timing.IndicatorTicks),
		Heartbeat:   uint32(c.Timing.HeartbeatTicks),
		Wrap:        uint32(c.Timing.WrapTicks),
	}
}

// DeviceOptions fills everything except collaborators and Log.
func (c *Config) DeviceOptions() device.Options {
	opt := device.DefaultOptions()
	opt.SSID = c.Network.SSID
	opt.Passphrase = c.Network.Passphrase
	opt.Remote = device.Endpoint{Addr: c.Remote.Addr, Port: uint16(c.Remote.Port)}
	opt.Timing = c.DeviceTiming()
	opt.LedActiveLow = !c.Hardware.LedActiveHigh
	if c.numericButtons() {
		if lines, err := c.ButtonLines(); err == nil {
			opt.ButtonLines = lines
		}
	}
	if c.Hardware.Driver != DriverPeriph {
		if line, err := c.LedLine(); err == nil {
			opt.LedLine = line
		}
	}
	return opt
}

func defaultString(s *string, def string) {
	if *s == "" {
		*s = def
	}
}

func defaultInt(x *int, def int) {
	if *x <= 0 {
		*x = def
	}
}
