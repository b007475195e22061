package device

import (
	"github.com/juju/errors"
	"github.com/temoto/btnreport/log2"
)

// Session manages the single transport connection to the fixed remote endpoint.
// Owned by Device, not safe for concurrent use: transport callbacks reach it
// only as events through the device loop.
type Session struct {
	log    *log2.Log
	dialer Dialer
	remote Endpoint
	post   func(Event)
	stat   *Stat

	conn       Conn
	connected  bool
	connecting bool
}

func (s *Session) Remote() Endpoint    { return s.remote }
func (s *Session) Connected() bool     { return s.connected }
func (s *Session) Connecting() bool    { return s.connecting }
func (s *Session) Conn() Conn          { return s.conn }
func (s *Session) busy() bool          { return s.connected || s.connecting }
func (s *Session) current(c Conn) bool { return c != nil && c == s.conn }

// Connect starts one connection attempt. Result arrives later as event.
func (s *Session) Connect() error {
	if s.busy() {
		return ErrSessionBusy
	}
	s.connecting = true
	s.stat.Connect.Add(1)
	s.log.Infof("establishing transport session remote=%s", s.remote)
	conn, err := s.dialer.Open(s.remote, s.postConnected, s.postConnectFailed)
	if err == nil && conn == nil {
		err = ErrNoConn
	}
	if err != nil {
		s.conn = conn
		s.Release()
		s.stat.ConnectFail.Add(1)
		err = errors.Annotatef(err, "connect remote=%s", s.remote)
		s.log.Error(err)
		return err
	}
	s.conn = conn
	return nil
}

func (s *Session) OnConnected(c Conn) {
	if !s.current(c) {
		s.log.Debugf("ignore connected stale conn=%s", c)
		if c != nil {
			_ = c.Close()
		}
		return
	}
	c.OnClose(s.postClosed)
	s.connected = true
	s.connecting = false
	s.log.Infof("transport session is established remote=%s", s.remote)
}

// OnConnectFailed is the retry trigger: after release, next state update
// observes NetworkJoined without attempt in flight and connects again.
func (s *Session) OnConnectFailed(c Conn, err error) {
	if !s.current(c) {
		s.log.Debugf("ignore connect failure stale conn=%s err=%v", c, err)
		return
	}
	s.stat.ConnectFail.Add(1)
	s.log.Errorf("transport session remote=%s err=%v", s.remote, err)
	s.Release()
}

func (s *Session) OnClosed(c Conn) {
	if !s.current(c) {
		s.log.Debugf("ignore close stale conn=%s", c)
		return
	}
	s.stat.Close.Add(1)
	s.log.Infof("transport session closed remote=%s", s.remote)
	s.Release()
}

// Release is idempotent. Conn.Close frees protocol resources, then the reference is dropped.
func (s *Session) Release() {
	if s.conn != nil {
		if err := s.conn.Close(); err != nil {
			s.log.Debugf("release conn=%s close err=%v", s.conn, err)
		}
		s.conn = nil
		s.log.Infof("transport session resources released")
	}
	s.connected = false
	s.connecting = false
}

func (s *Session) Send(payload []byte) error {
	if s.conn == nil || !s.connected {
		return ErrNotConnected
	}
	return errors.Annotatef(s.conn.Send(payload), "send conn=%s", s.conn)
}

func (s *Session) postConnected(c Conn) { s.post(Event{Kind: EventConnected, Conn: c}) }
func (s *Session) postConnectFailed(c Conn, err error) {
	s.post(Event{Kind: EventConnectFailed, Conn: c, Err: err})
}
func (s *Session) postClosed(c Conn) { s.post(Event{Kind: EventClosed, Conn: c}) }
