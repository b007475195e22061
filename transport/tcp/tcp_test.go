package tcp

import (
	"io"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/btnreport/device"
	"github.com/temoto/btnreport/log2"
)

type callbacks struct {
	connected chan device.Conn
	failed    chan error
	closed    chan device.Conn
}

func newCallbacks() *callbacks {
	return &callbacks{
		connected: make(chan device.Conn, 1),
		failed:    make(chan error, 1),
		closed:    make(chan device.Conn, 1),
	}
}

func (cb *callbacks) onConnected(c device.Conn)        { cb.connected <- c }
func (cb *callbacks) onFailed(c device.Conn, err error) { cb.failed <- err }
func (cb *callbacks) onClosed(c device.Conn)            { cb.closed <- c }

func listen(t testing.TB) (net.Listener, device.Endpoint) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	_, portString, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	port, err := strconv.ParseUint(portString, 10, 16)
	require.NoError(t, err)
	return ln, device.Endpoint{Addr: "127.0.0.1", Port: uint16(port)}
}

func testDialer(t testing.TB) *Dialer {
	d := NewDialer(Options{Log: log2.NewTest(t, log2.LDebug), NetworkTimeout: 5 * time.Second})
	return d
}

func TestSendAndRemoteClose(t *testing.T) {
	t.Parallel()

	ln, remote := listen(t)
	defer ln.Close()
	d := testDialer(t)
	defer d.Close()
	cb := newCallbacks()

	conn, err := d.Open(remote, cb.onConnected, cb.onFailed)
	require.NoError(t, err)
	require.NotNil(t, conn)
	server, err := ln.Accept()
	require.NoError(t, err)
	select {
	case c := <-cb.connected:
		assert.Equal(t, conn, c)
	case err := <-cb.failed:
		t.Fatalf("unexpected failure err=%v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("connect timeout")
	}
	conn.OnClose(cb.onClosed)
	assert.Equal(t, "tcp:"+remote.String(), conn.String())

	require.NoError(t, conn.Send([]byte("5")))
	buf := make([]byte, 8)
	require.NoError(t, server.SetReadDeadline(time.Now().Add(5*time.Second)))
	n, err := server.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "5", string(buf[:n]))

	require.NoError(t, server.Close())
	select {
	case c := <-cb.closed:
		assert.Equal(t, conn, c)
	case <-time.After(5 * time.Second):
		t.Fatal("close event timeout")
	}
	assert.Error(t, conn.Send([]byte("0")))
	assert.NoError(t, conn.Close())
	assert.Equal(t, int64(1), d.Stat().SentBytes.Value())
	assert.Equal(t, int64(1), d.Stat().Dial.Value())
}

func TestLocalCloseSilent(t *testing.T) {
	t.Parallel()

	ln, remote := listen(t)
	defer ln.Close()
	d := testDialer(t)
	defer d.Close()
	cb := newCallbacks()

	conn, err := d.Open(remote, cb.onConnected, cb.onFailed)
	require.NoError(t, err)
	server, err := ln.Accept()
	require.NoError(t, err)
	defer server.Close()
	<-cb.connected
	conn.OnClose(cb.onClosed)

	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close())
	require.NoError(t, server.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, err = server.Read(make([]byte, 1))
	assert.Equal(t, io.EOF, err)
	select {
	case <-cb.closed:
		t.Error("OnClose after local Close")
	case <-time.After(50 * time.Millisecond):
	}
	assert.True(t, errors.Cause(conn.Send([]byte("1"))) == ErrClosing)
}

func TestConnectRefused(t *testing.T) {
	t.Parallel()

	ln, remote := listen(t)
	require.NoError(t, ln.Close())
	d := testDialer(t)
	defer d.Close()
	cb := newCallbacks()

	conn, err := d.Open(remote, cb.onConnected, cb.onFailed)
	require.NoError(t, err)
	select {
	case <-cb.connected:
		t.Fatal("unexpected connect")
	case err := <-cb.failed:
		assert.Contains(t, err.Error(), "tcp connect remote="+remote.String())
	case <-time.After(5 * time.Second):
		t.Fatal("failure timeout")
	}
	assert.Error(t, conn.Send([]byte("1")))
	assert.NoError(t, conn.Close())
	assert.Equal(t, int64(1), d.Stat().DialError.Value())
}

func TestInvalidEndpoint(t *testing.T) {
	t.Parallel()

	d := testDialer(t)
	defer d.Close()
	cb := newCallbacks()
	for _, remote := range []device.Endpoint{{Addr: "", Port: 1010}, {Addr: "10.0.0.1", Port: 0}} {
		conn, err := d.Open(remote, cb.onConnected, cb.onFailed)
		assert.Nil(t, conn)
		assert.True(t, errors.IsNotValid(err), "remote=%s err=%v", remote, err)
	}
}

func TestDialerClosed(t *testing.T) {
	t.Parallel()

	d := testDialer(t)
	require.NoError(t, d.Close())
	cb := newCallbacks()
	_, err := d.Open(device.DefaultEndpoint(), cb.onConnected, cb.onFailed)
	assert.Equal(t, ErrClosing, err)
}

func TestSendBeforeConnected(t *testing.T) {
	t.Parallel()

	c := &Conn{done: make(chan struct{}), sendq: make(chan []byte, 1), cancel: func() {}}
	assert.Equal(t, device.ErrNotConnected, errors.Cause(c.Send([]byte("1"))))
}
