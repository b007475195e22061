package device

import (
	"net"
	"strconv"
	"time"

	"github.com/juju/errors"
)

const (
	DefaultSSID       = "ESP8266_AP_LED"
	DefaultPassphrase = "ap_test5"
	DefaultRemoteAddr = "10.0.0.1"
	DefaultRemotePort = 1010

	DefaultTick             = 100 * time.Millisecond
	DefaultStateUpdateTicks = 50      // 5s
	DefaultIndicatorTicks   = 5       // 0.5s
	DefaultHeartbeatTicks   = 300     // 30s
	DefaultWrapTicks        = 1000000 // ~27.8h

	DefaultLedLine         = 2
	DefaultLedActiveLow    = true
	DefaultButtonFirstLine = 12
)

// DefaultButtonLines are consecutive, so packing equals (inputs >> 12) & 7.
var DefaultButtonLines = [ButtonCount]uint32{DefaultButtonFirstLine, DefaultButtonFirstLine + 1, DefaultButtonFirstLine + 2}

var (
	ErrSessionBusy  = errors.New("transport session already connected or connecting")
	ErrNotConnected = errors.New("transport session is not connected")
	ErrNoConn       = errors.New("transport returned no connection")
	ErrStopped      = errors.New("device stopped")
)

// Network joins the predefined wireless network.
// RequestJoin is fire-and-forget, result is observed only by polling Joined.
type Network interface {
	Joined() bool
	Configure(ssid, passphrase string) error
	RequestJoin() bool
}

// Optional Network extension, status string is logged on change.
type NetworkStatuser interface {
	Status() string
}

// Dialer opens stream connections without blocking.
// Unless Open returns error, exactly one of onConnected or onFailed is called later,
// from any goroutine. Conn returned with error (may be nil) is closed by the caller.
type Dialer interface {
	Open(remote Endpoint, onConnected func(Conn), onFailed func(Conn, error)) (Conn, error)
}

type Conn interface {
	// Send must not block, delivery is best effort.
	Send(payload []byte) error
	// Callback on remote close or i/o failure, not on local Close.
	OnClose(func(Conn))
	// Idempotent.
	Close() error
	String() string
}

// InputReader returns input levels, bit N = line N.
type InputReader interface {
	ReadInputs() (uint64, error)
}

type OutputWriter interface {
	WriteOutput(line uint32, level bool) error
	// Last electrical level of output line.
	OutputLevel(line uint32) bool
}

type Endpoint struct {
	Addr string
	Port uint16
}

func (e Endpoint) String() string { return net.JoinHostPort(e.Addr, strconv.Itoa(int(e.Port))) }

func DefaultEndpoint() Endpoint { return Endpoint{Addr: DefaultRemoteAddr, Port: DefaultRemotePort} }

// Timing periods are in ticks.
type Timing struct {
	Tick        time.Duration
	StateUpdate uint32
	Indicator   uint32
	Heartbeat   uint32
	Wrap        uint32
}

func DefaultTiming() Timing {
	return Timing{
		Tick:        DefaultTick,
		StateUpdate: DefaultStateUpdateTicks,
		Indicator:   DefaultIndicatorTicks,
		Heartbeat:   DefaultHeartbeatTicks,
		Wrap:        DefaultWrapTicks,
	}
}

func (t Timing) Validate() error {
	if t.Tick <= 0 {
		return errors.NotValidf("tick=%s", t.Tick)
	}
	if t.StateUpdate == 0 || t.Indicator == 0 || t.Heartbeat == 0 {
		return errors.NotValidf("zero period state_update=%d indicator=%d heartbeat=%d",
			t.StateUpdate, t.Indicator, t.Heartbeat)
	}
	if t.Wrap < t.StateUpdate || t.Wrap < t.Indicator || t.Wrap < t.Heartbeat {
		return errors.NotValidf("wrap=%d shorter than period", t.Wrap)
	}
	return nil
}
