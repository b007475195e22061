package device

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/temoto/btnreport/log2"
)

type fakeNetwork struct {
	joined     bool
	requestOK  bool
	ssid       string
	passphrase string
	requests   int
	polls      []uint32 // tick index of every Joined()
	tickIndex  func() uint32
}

func (n *fakeNetwork) Joined() bool {
	if n.tickIndex != nil {
		n.polls = append(n.polls, n.tickIndex())
	}
	return n.joined
}
func (n *fakeNetwork) Configure(ssid, passphrase string) error {
	n.ssid, n.passphrase = ssid, passphrase
	return nil
}
func (n *fakeNetwork) RequestJoin() bool { n.requests++; return n.requestOK }
func (n *fakeNetwork) Status() string {
	if n.joined {
		return "got_ip"
	}
	return "idle"
}

type fakeConn struct {
	id      int
	sent    []string
	closed  int
	onClose func(Conn)
	sendErr error
	dead    bool // OnClose runs callback immediately
}

func (c *fakeConn) Send(p []byte) error {
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, string(p))
	return nil
}
func (c *fakeConn) OnClose(f func(Conn)) {
	c.onClose = f
	if c.dead && f != nil {
		f(c)
	}
}
func (c *fakeConn) Close() error   { c.closed++; return nil }
func (c *fakeConn) String() string { return fmt.Sprintf("fake#%d", c.id) }

type fakeOpen struct {
	conn        *fakeConn
	onConnected func(Conn)
	onFailed    func(Conn, error)
	resolved    bool
}

func (o *fakeOpen) connect() { o.resolved = true; o.onConnected(o.conn) }
func (o *fakeOpen) fail(err error) {
	o.resolved = true
	o.onFailed(o.conn, err)
}

type fakeDialer struct {
	reject  error
	opens   []*fakeOpen
	onOpen  func()
	remotes []Endpoint
}

func (d *fakeDialer) Open(remote Endpoint, onConnected func(Conn), onFailed func(Conn, error)) (Conn, error) {
	if d.onOpen != nil {
		d.onOpen()
	}
	o := &fakeOpen{
		conn:        &fakeConn{id: len(d.opens) + 1},
		onConnected: onConnected,
		onFailed:    onFailed,
	}
	d.opens = append(d.opens, o)
	d.remotes = append(d.remotes, remote)
	if d.reject != nil {
		o.resolved = true
		return o.conn, d.reject
	}
	return o.conn, nil
}

func (d *fakeDialer) last() *fakeOpen { return d.opens[len(d.opens)-1] }

// count of connections not closed yet
func (d *fakeDialer) alive() int {
	n := 0
	for _, o := range d.opens {
		if o.conn.closed == 0 {
			n++
		}
	}
	return n
}

type fakePins struct {
	inputs  uint64
	readErr error
	levels  map[uint32]bool
	writes  []uint32 // tick index of every WriteOutput()
	tick    func() uint32
}

func (p *fakePins) ReadInputs() (uint64, error) { return p.inputs, p.readErr }
func (p *fakePins) WriteOutput(line uint32, level bool) error {
	if p.levels == nil {
		p.levels = make(map[uint32]bool)
	}
	p.levels[line] = level
	if p.tick != nil {
		p.writes = append(p.writes, p.tick())
	}
	return nil
}
func (p *fakePins) OutputLevel(line uint32) bool { return p.levels[line] }

func (p *fakePins) setButtons(b Buttons) {
	p.inputs = PackLevels(b, DefaultButtonLines)
}

// PackLevels is PackButtons inverse for tests.
func PackLevels(b Buttons, lines [ButtonCount]uint32) uint64 {
	var levels uint64
	for i, line := range lines {
		if b&(1<<uint(i)) != 0 {
			levels |= 1 << line
		}
	}
	return levels
}

type tenv struct {
	t           testing.TB
	dev         *Device
	network     *fakeNetwork
	dialer      *fakeDialer
	pins        *fakePins
	transitions []ConnectionState
}

func newTestEnv(t testing.TB, modify func(*Options)) *tenv {
	env := &tenv{
		t:       t,
		network: &fakeNetwork{requestOK: true},
		dialer:  &fakeDialer{},
		pins:    &fakePins{},
	}
	opt := DefaultOptions()
	opt.Log = log2.NewTest(t, log2.LDebug)
	opt.Network = env.network
	opt.Dialer = env.dialer
	opt.Inputs = env.pins
	opt.Outputs = env.pins
	opt.OnTransition = func(prev, next ConnectionState) {
		env.transitions = append(env.transitions, next)
	}
	if modify != nil {
		modify(&opt)
	}
	var err error
	env.dev, err = New(opt)
	require.NoError(t, err)
	env.network.tickIndex = env.dev.TickIndex
	env.pins.tick = env.dev.TickIndex
	return env
}

// Runs n ticks, handling pending events before each, like Run() loop.
func (env *tenv) ticks(n int) {
	for i := 0; i < n; i++ {
		env.dev.Poll()
		env.dev.Tick()
	}
}

// Runs ticks until next tick to execute has index target.
func (env *tenv) ticksUntil(target uint32) {
	for env.dev.TickIndex() != target {
		env.ticks(1)
	}
}

func (env *tenv) ledLevel() bool { return env.pins.levels[DefaultLedLine] }

// Joins network and establishes session, returns with tick index 51.
func (env *tenv) established() *fakeConn {
	env.network.joined = true
	env.ticks(1)
	require.Equal(env.t, NetworkJoined, env.dev.State())
	require.Len(env.t, env.dialer.opens, 1)
	env.dialer.last().connect()
	env.ticksUntil(51)
	require.Equal(env.t, SessionEstablished, env.dev.State())
	return env.dialer.last().conn
}
