// Package mqtt publishes button payloads to a broker topic.
// One broker session stands for one device.Conn, reconnect is left to device session retry.
package mqtt

import (
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/juju/errors"
	"github.com/temoto/btnreport/device"
	"github.com/temoto/btnreport/helpers"
	"github.com/temoto/btnreport/log2"
)

const (
	DefaultTopic          = "btnreport/buttons"
	DefaultNetworkTimeout = 10 * time.Second
	disconnectQuiesceMs   = 250
)

var ErrClosing = errors.New("closing")

// compile-time interface compliance test
var (
	_ device.Dialer = new(Dialer)
	_ device.Conn   = new(Conn)
)

type Options struct {
	Log            *log2.Log
	ClientID       string
	Topic          string
	Qos            byte
	NetworkTimeout time.Duration
	// Test hook, default mqtt.NewClient.
	NewClient func(*mqtt.ClientOptions) mqtt.Client
}

type Dialer struct {
	log *log2.Log
	opt Options
}

func NewDialer(opt Options) *Dialer {
	if opt.Topic == "" {
		opt.Topic = DefaultTopic
	}
	if opt.NetworkTimeout <= 0 {
		opt.NetworkTimeout = DefaultNetworkTimeout
	}
	if opt.ClientID == "" {
		opt.ClientID = fmt.Sprintf("btnreport-%d", time.Now().UnixNano()%1e6)
	}
	if opt.NewClient == nil {
		opt.NewClient = mqtt.NewClient
	}
	return &Dialer{log: opt.Log, opt: opt}
}

// SetLogger routes paho errors to log.
// paho loggers are package globals, so call once from main.
func SetLogger(log *log2.Log) {
	mqtt.ERROR = log
	mqtt.CRITICAL = log
}

func (d *Dialer) Open(remote device.Endpoint, onConnected func(device.Conn), onFailed func(device.Conn, error)) (device.Conn, error) {
	if remote.Addr == "" || remote.Port == 0 {
		return nil, errors.NotValidf("mqtt remote=%s", remote)
	}
	c := &Conn{
		log:    d.log,
		remote: remote,
		topic:  d.opt.Topic,
		qos:    d.opt.Qos,
	}
	mopt := mqtt.NewClientOptions().
		AddBroker("tcp://" + remote.String()).
		SetClientID(d.opt.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(false).
		SetConnectTimeout(d.opt.NetworkTimeout).
		SetWriteTimeout(d.opt.NetworkTimeout).
		SetConnectionLostHandler(c.connectionLost)
	c.client = d.opt.NewClient(mopt)

	go func() {
		tok := c.client.Connect()
		if !tok.WaitTimeout(d.opt.NetworkTimeout) {
			err := errors.Timeoutf("mqtt connect remote=%s", remote)
			c.die(err)
			onFailed(c, err)
			return
		}
		if err := tok.Error(); err != nil {
			err = errors.Annotatef(err, "mqtt connect remote=%s", remote)
			c.die(err)
			onFailed(c, err)
			return
		}
		if !c.attach() {
			c.client.Disconnect(0)
			onFailed(c, ErrClosing)
			return
		}
		d.log.Debugf("mqtt connected broker=%s client_id=%s", remote, d.opt.ClientID)
		onConnected(c)
	}()
	return c, nil
}

type Conn struct {
	log       *log2.Log
	remote    device.Endpoint
	topic     string
	qos       byte
	client    mqtt.Client
	err       helpers.AtomicError
	mu        sync.Mutex
	connected bool
	onClose   func(device.Conn)
}

func (c *Conn) String() string { return "mqtt:" + c.remote.String() + "/" + c.topic }

// Send publishes without waiting for delivery.
func (c *Conn) Send(payload []byte) error {
	if err, closed := c.err.Load(); closed {
		return errors.Annotate(err, "mqtt send")
	}
	c.mu.Lock()
	connected := c.connected
	c.mu.Unlock()
	if !connected {
		return errors.Annotate(device.ErrNotConnected, "mqtt send")
	}
	tok := c.client.Publish(c.topic, c.qos, false, append([]byte(nil), payload...))
	if err := tok.Error(); err != nil {
		return errors.Annotatef(err, "mqtt publish topic=%s", c.topic)
	}
	return nil
}

func (c *Conn) OnClose(f func(device.Conn)) {
	c.mu.Lock()
	c.onClose = f
	err, closed := c.err.Load()
	c.mu.Unlock()
	if closed && err != ErrClosing && f != nil {
		f(c)
	}
}

func (c *Conn) Close() error {
	c.die(ErrClosing)
	return nil
}

func (c *Conn) attach() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, closed := c.err.Load(); closed {
		return false
	}
	c.connected = true
	return true
}

func (c *Conn) connectionLost(_ mqtt.Client, err error) {
	c.die(errors.Annotate(err, "mqtt connection lost"))
}

func (c *Conn) die(e error) {
	c.mu.Lock()
	if _, found := c.err.StoreOnce(e); found {
		c.mu.Unlock()
		return
	}
	connected, f := c.connected, c.onClose
	c.connected = false
	c.mu.Unlock()

	if e == ErrClosing {
		if connected {
			go c.client.Disconnect(disconnectQuiesceMs)
		}
		c.log.Debugf("mqtt %s closed locally", c)
		return
	}
	c.log.Debugf("mqtt %s die e=%v", c, e)
	if f != nil {
		f(c)
	}
}
