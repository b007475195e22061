package config

import (
	"strings"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/btnreport/device"
	"github.com/temoto/btnreport/log2"
)

func TestReadConfig(t *testing.T) {
	t.Parallel()

	type Case struct {
		name      string
		input     string
		check     func(testing.TB, *Config)
		expectErr string
	}
	cases := []Case{
		{"empty", "", func(t testing.TB, c *Config) {
			assert.Equal(t, NetworkWPA, c.Network.Driver)
			assert.Equal(t, device.DefaultSSID, c.Network.SSID)
			assert.Equal(t, device.DefaultPassphrase, c.Network.Passphrase)
			assert.Equal(t, TransportTCP, c.Remote.Transport)
			assert.Equal(t, device.DefaultEndpoint(), c.DeviceOptions().Remote)
			assert.Equal(t, device.DefaultTiming(), c.DeviceTiming())
			assert.Equal(t, DriverCdev, c.Hardware.Driver)
			assert.Equal(t, []string{"12", "13", "14"}, c.Hardware.Buttons)
			opt := c.DeviceOptions()
			assert.Equal(t, device.DefaultButtonLines, opt.ButtonLines)
			assert.Equal(t, uint32(device.DefaultLedLine), opt.LedLine)
			assert.True(t, opt.LedActiveLow)
			assert.Equal(t, DefaultNetworkTimeout, c.NetworkTimeout())
			assert.False(t, c.LogDebug)
		}, ""},

		{"remote", `remote { addr = "192.168.4.1" port = 9000 network_timeout_ms = 1500 }`,
			func(t testing.TB, c *Config) {
				assert.Equal(t, device.Endpoint{Addr: "192.168.4.1", Port: 9000}, c.DeviceOptions().Remote)
				assert.Equal(t, 1500*time.Millisecond, c.NetworkTimeout())
			}, ""},

		{"network", `network { driver = "iface" interface = "eth1" ssid = "lab" passphrase = "secret" }`,
			func(t testing.TB, c *Config) {
				assert.Equal(t, NetworkIface, c.Network.Driver)
				assert.Equal(t, "eth1", c.Network.Interface)
				opt := c.DeviceOptions()
				assert.Equal(t, "lab", opt.SSID)
				assert.Equal(t, "secret", opt.Passphrase)
			}, ""},

		{"network-open", `network { ssid = "cafe" }`,
			func(t testing.TB, c *Config) {
				opt := c.DeviceOptions()
				assert.Equal(t, "cafe", opt.SSID)
				assert.Equal(t, "", opt.Passphrase)
			}, ""},

		{"network-passphrase-only", `network { passphrase = "longsecret" }`,
			func(t testing.TB, c *Config) {
				opt := c.DeviceOptions()
				assert.Equal(t, device.DefaultSSID, opt.SSID)
				assert.Equal(t, "longsecret", opt.Passphrase)
			}, ""},

		{"timing", `timing { tick_ms = 10 heartbeat_ticks = 30 }`,
			func(t testing.TB, c *Config) {
				timing := c.DeviceTiming()
				assert.Equal(t, 10*time.Millisecond, timing.Tick)
				assert.Equal(t, uint32(30), timing.Heartbeat)
				assert.Equal(t, uint32(device.DefaultStateUpdateTicks), timing.StateUpdate)
			}, ""},

		{"hardware", `
hardware {
	buttons = ["4", "5", "6"]
	led = "17"
	led_active_high = true
}`,
			func(t testing.TB, c *Config) {
				opt := c.DeviceOptions()
				assert.Equal(t, [device.ButtonCount]uint32{4, 5, 6}, opt.ButtonLines)
				assert.Equal(t, uint32(17), opt.LedLine)
				assert.False(t, opt.LedActiveLow)
			}, ""},

		{"periph-names", `hardware { driver = "periph" buttons = ["GPIO12", "GPIO13", "GPIO14"] led = "GPIO2" }`,
			func(t testing.TB, c *Config) {
				assert.Equal(t, DriverPeriph, c.Hardware.Driver)
				assert.Equal(t, device.DefaultButtonLines, c.DeviceOptions().ButtonLines)
			}, ""},

		{"mqtt", `remote { transport = "mqtt" port = 1883 mqtt_client_id = "btn1" }`,
			func(t testing.TB, c *Config) {
				assert.Equal(t, TransportMQTT, c.Remote.Transport)
				assert.Equal(t, DefaultMqttTopic, c.Remote.MqttTopic)
				assert.Equal(t, "btn1", c.Remote.MqttClientID)
			}, ""},

		{"include-normalize", `
remote { port = 1 }
include "./empty" {}`,
			nil, ""},

		{"include-optional", `
include "port-7" {}
include "non-exist" { optional = true }`,
			func(t testing.TB, c *Config) {
				assert.Equal(t, 7, c.Remote.Port)
			}, ""},

		{"include-overwrites", `
log_debug = false
include "debug" {}`,
			func(t testing.TB, c *Config) {
				assert.True(t, c.LogDebug)
			}, ""},

		{"include-loop", `include "loop-a" {}`, nil, "include loop"},
		{"include-required", `include "non-exist" {}`, nil, "config required name=non-exist"},
		{"syntax", `remote {`, nil, "config unmarshal"},
		{"invalid-port", `remote { port = 70000 }`, nil, "remote port=70000 not valid"},
		{"invalid-transport", `remote { transport = "udp" }`, nil, "remote transport=udp not valid"},
		{"invalid-network", `network { driver = "bluetooth" }`, nil, "network driver=bluetooth not valid"},
		{"invalid-buttons-count", `hardware { buttons = ["1", "2"] }`, nil, "expected 3"},
		{"invalid-button-name", `hardware { buttons = ["1", "2", "GPIO3"] }`, nil, "button=GPIO3 must be number"},
		{"input-event", `hardware { driver = "input_event" input_event_device = "/dev/input/event0" buttons = ["256", "257", "258"] }`,
			func(t testing.TB, c *Config) {
				codes, err := c.KeyCodes()
				require.NoError(t, err)
				assert.Equal(t, [device.ButtonCount]uint16{256, 257, 258}, codes)
				opt := c.DeviceOptions()
				assert.Equal(t, device.DefaultButtonLines, opt.ButtonLines)
				assert.Equal(t, uint32(device.DefaultLedLine), opt.LedLine)
			}, ""},
		{"invalid-input-event", `hardware { driver = "input_event" }`, nil, "without input_event_device"},
		{"invalid-key-code", `hardware { driver = "input_event" input_event_device = "/dev/input/event0" buttons = ["1", "2", "KEY_A"] }`, nil, "must be key code"},
		{"invalid-timing", `timing { wrap_ticks = 7 }`, nil, "timing"},
	}
	mkCheck := func(c Case) func(*testing.T) {
		return func(t *testing.T) {
			t.Parallel()
			log := log2.NewTest(t, log2.LDebug)
			fs := NewMockFullReader(map[string]string{
				"test-inline": c.input,
				"empty":       "",
				"port-7":      "remote { port = 7 }",
				"debug":       "log_debug = true",
				"loop-a":      `include "loop-b" {}`,
				"loop-b":      `include "loop-a" {}`,
			})
			cfg, err := ReadConfig(log, fs, "test-inline")
			if c.expectErr == "" {
				require.NoError(t, err, errors.ErrorStack(err))
				if c.check != nil {
					c.check(t, cfg)
				}
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), c.expectErr)
			}
		}
	}
	for _, c := range cases {
		t.Run(c.name, mkCheck(c))
	}
}

func TestReadConfigWithoutNames(t *testing.T) {
	t.Parallel()
	_, err := ReadConfig(nil, NewMockFullReader(nil))
	require.Error(t, err)
	assert.True(t, errors.IsNotValid(err))
}

func TestReadConfigLayers(t *testing.T) {
	t.Parallel()
	fs := NewMockFullReader(map[string]string{
		"base":  `remote { addr = "10.1.1.1" } timing { tick_ms = 50 }`,
		"local": `timing { tick_ms = 20 }`,
	})
	c, err := ReadConfig(log2.NewTest(t, log2.LDebug), fs, "base", "local")
	require.NoError(t, err)
	assert.Equal(t, "10.1.1.1", c.Remote.Addr)
	assert.Equal(t, 20*time.Millisecond, c.DeviceTiming().Tick)
}

func TestOsFullReader(t *testing.T) {
	t.Parallel()
	fs, err := NewOsFullReader("/etc/btnreport")
	require.NoError(t, err)
	assert.Equal(t, "/etc/btnreport/local.hcl", fs.Normalize("./local.hcl"))
	assert.Equal(t, "/tmp/x.hcl", fs.Normalize("/tmp/x.hcl"))
	fs.SetBase("conf.d")
	assert.Equal(t, "/etc/btnreport/conf.d/a.hcl", fs.Normalize("a.hcl"))

	b, err := fs.ReadAll("/nonexistent/" + strings.Repeat("x", 8))
	assert.NoError(t, err)
	assert.Nil(t, b)
}
