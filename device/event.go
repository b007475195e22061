package device

import "fmt"

type EventKind uint8

const (
	EventInvalid EventKind = iota
	EventConnected
	EventConnectFailed
	EventClosed
)

func (k EventKind) String() string {
	switch k {
	case EventConnected:
		return "Connected"
	case EventConnectFailed:
		return "ConnectFailed"
	case EventClosed:
		return "Closed"
	}
	return fmt.Sprintf("Invalid(%d)", uint8(k))
}

// Event carries a transport callback into the device loop.
type Event struct {
	Kind EventKind
	Conn Conn
	Err  error
}

func (e Event) String() string {
	conn := "nil"
	if e.Conn != nil {
		conn = e.Conn.String()
	}
	if e.Err != nil {
		return fmt.Sprintf("Event(%s conn=%s err=%v)", e.Kind, conn, e.Err)
	}
	return fmt.Sprintf("Event(%s conn=%s)", e.Kind, conn)
}

// Safe to call from any goroutine, device loop included:
// Conn.OnClose on dead conn runs callback inside Session.OnConnected.
// With full buffer, delivery continues in background. Dropped after Stop().
func (d *Device) post(e Event) {
	select {
	case d.events <- e:
		return
	default:
	}
	go d.postWait(e)
}

func (d *Device) postWait(e Event) {
	select {
	case d.events <- e:
	case <-d.alive.StopChan():
		d.log.Debugf("device stopped, drop %s", e)
	}
}

// Poll handles all pending events without blocking, returns count.
func (d *Device) Poll() int {
	n := 0
	for {
		select {
		case e := <-d.events:
			d.handle(e)
			n++
		default:
			return n
		}
	}
}

func (d *Device) handle(e Event) {
	d.log.Debugf("handle %s", e)
	switch e.Kind {
	case EventConnected:
		d.session.OnConnected(e.Conn)
	case EventConnectFailed:
		d.session.OnConnectFailed(e.Conn, e.Err)
	case EventClosed:
		d.session.OnClosed(e.Conn)
	default:
		d.log.Errorf("code error unknown %s", e)
	}
}
