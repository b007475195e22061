// Package tcp is stream transport: payloads are written raw, without framing.
// Received data is counted and discarded.
package tcp

import (
	"context"
	"expvar"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/alive/v2"
	"github.com/temoto/btnreport/device"
	"github.com/temoto/btnreport/helpers"
	"github.com/temoto/btnreport/log2"
)

const (
	DefaultNetworkTimeout = 10 * time.Second
	DefaultSendQueue      = 4
	readBufferSize        = 512
)

var (
	ErrClosing   = errors.New("closing")
	ErrQueueFull = errors.New("send queue full")
)

// compile-time interface compliance test
var (
	_ device.Dialer = new(Dialer)
	_ device.Conn   = new(Conn)
)

type Options struct {
	Log            *log2.Log
	NetworkTimeout time.Duration
	SendQueue      int
}

type Stat struct {
	Dial      expvar.Int
	DialError expvar.Int
	SentBytes expvar.Int
	RecvBytes expvar.Int
}

func (s *Stat) String() string {
	return fmt.Sprintf("dial=%d dial_error=%d sent_bytes=%d recv_bytes=%d",
		s.Dial.Value(), s.DialError.Value(), s.SentBytes.Value(), s.RecvBytes.Value())
}

type Dialer struct {
	log    *log2.Log
	alive  *alive.Alive
	ctx    context.Context
	cancel context.CancelFunc
	dialer net.Dialer
	opt    Options
	stat   Stat
}

func NewDialer(opt Options) *Dialer {
	if opt.NetworkTimeout <= 0 {
		opt.NetworkTimeout = DefaultNetworkTimeout
	}
	if opt.SendQueue <= 0 {
		opt.SendQueue = DefaultSendQueue
	}
	d := &Dialer{
		log:    opt.Log,
		alive:  alive.NewAlive(),
		dialer: net.Dialer{Timeout: opt.NetworkTimeout},
		opt:    opt,
	}
	d.ctx, d.cancel = context.WithCancel(context.Background())
	return d
}

func (d *Dialer) Stat() *Stat { return &d.stat }

// Close aborts pending dials and waits for their callbacks.
// Established connections are left to their owner.
func (d *Dialer) Close() error {
	d.alive.Stop()
	d.cancel()
	d.alive.Wait()
	return nil
}

// Open validates remote and dials in background.
func (d *Dialer) Open(remote device.Endpoint, onConnected func(device.Conn), onFailed func(device.Conn, error)) (device.Conn, error) {
	if remote.Addr == "" || remote.Port == 0 {
		return nil, errors.NotValidf("tcp remote=%s", remote)
	}
	if !d.alive.Add(1) {
		return nil, ErrClosing
	}
	ctx, cancel := context.WithTimeout(d.ctx, d.opt.NetworkTimeout)
	c := &Conn{
		log:    d.log,
		remote: remote,
		cancel: cancel,
		sendq:  make(chan []byte, d.opt.SendQueue),
		done:   make(chan struct{}),
		stat:   &d.stat,
		opt:    &d.opt,
	}
	d.stat.Dial.Add(1)
	go func() {
		defer d.alive.Done()
		defer cancel()
		netConn, err := d.dialer.DialContext(ctx, "tcp", remote.String())
		if err != nil {
			d.stat.DialError.Add(1)
			c.die(err)
			onFailed(c, errors.Annotatef(err, "tcp connect remote=%s", remote))
			return
		}
		if !c.attach(netConn) {
			_ = netConn.Close()
			onFailed(c, ErrClosing)
			return
		}
		d.log.Debugf("tcp connected local=%s remote=%s", netConn.LocalAddr(), netConn.RemoteAddr())
		onConnected(c)
		go c.writeLoop()
		go c.readLoop()
	}()
	return c, nil
}

type Conn struct {
	log     *log2.Log
	remote  device.Endpoint
	cancel  context.CancelFunc
	sendq   chan []byte
	done    chan struct{}
	stat    *Stat
	opt     *Options
	err     helpers.AtomicError
	mu      sync.Mutex // protects net, onClose and err transition
	net     net.Conn
	onClose func(device.Conn)
}

func (c *Conn) String() string { return "tcp:" + c.remote.String() }

// Send queues payload copy for writer goroutine.
func (c *Conn) Send(payload []byte) error {
	if err, closed := c.err.Load(); closed {
		return errors.Annotate(err, "tcp send")
	}
	c.mu.Lock()
	attached := c.net != nil
	c.mu.Unlock()
	if !attached {
		return errors.Annotate(device.ErrNotConnected, "tcp send")
	}
	b := append([]byte(nil), payload...)
	select {
	case c.sendq <- b:
		return nil
	default:
		return ErrQueueFull
	}
}

// OnClose callback runs once, when remote closed connection or i/o failed.
// If that already happened, f runs immediately.
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

func (c *Conn) attach(netConn net.Conn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, closed := c.err.Load(); closed {
		return false
	}
	c.net = netConn
	return true
}

// die records first reason, closes socket and fires OnClose for remote reasons.
func (c *Conn) die(e error) {
	c.mu.Lock()
	if _, found := c.err.StoreOnce(e); found {
		c.mu.Unlock()
		return
	}
	netConn, f := c.net, c.onClose
	c.mu.Unlock()

	c.cancel()
	close(c.done)
	if netConn != nil {
		_ = netConn.Close()
	}
	if e == ErrClosing {
		c.log.Debugf("tcp %s closed locally", c)
		return
	}
	c.log.Debugf("tcp %s die e=%s", c, describe(e))
	if f != nil {
		f(c)
	}
}

func (c *Conn) writeLoop() {
	w := helpers.CountWriter{W: c.net, V: &c.stat.SentBytes}
	for {
		select {
		case b := <-c.sendq:
			if err := c.net.SetWriteDeadline(time.Now().Add(c.opt.NetworkTimeout)); err != nil {
				c.die(errors.Annotate(err, "SetWriteDeadline"))
				return
			}
			if err := helpers.WriteAll(w, b); err != nil {
				c.die(errors.Annotate(err, "write"))
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *Conn) readLoop() {
	r := helpers.CountReader{R: c.net, V: &c.stat.RecvBytes}
	buf := make([]byte, readBufferSize)
	for {
		if _, err := r.Read(buf); err != nil {
			c.die(errors.Annotate(err, "read"))
			return
		}
	}
}

// describe shortens well known errors for log reading.
func describe(e error) string {
	s := e.Error()
	if neterr, ok := errors.Cause(e).(net.Error); ok && neterr.Timeout() {
		return "timeout"
	}
	switch {
	case strings.HasSuffix(s, "i/o timeout"):
		return "timeout"
	case strings.HasSuffix(s, "connection reset by peer"), strings.HasSuffix(s, "EOF"):
		return "closed by remote"
	}
	return s
}
