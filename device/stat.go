package device

import (
	"expvar"
	"fmt"
	"time"

	"github.com/temoto/atomic_clock"
)

// Counters are read atomically, but not consistently with each other.
type Stat struct {
	Connect     expvar.Int
	ConnectFail expvar.Int
	Close       expvar.Int
	Send        expvar.Int
	SendError   expvar.Int
	Transition  expvar.Int
	Error       expvar.Int
	LastSend    atomic_clock.Clock
}

func (s *Stat) SinceLastSend() time.Duration {
	if s.LastSend.IsZero() {
		return 0
	}
	return atomic_clock.Since(&s.LastSend)
}

func (s *Stat) String() string {
	return fmt.Sprintf(`{"connect":%d,"connect_fail":%d,"close":%d,"send":%d,"send_error":%d,"transition":%d,"error":%d,"since_last_send":"%s"}`,
		s.Connect.Value(), s.ConnectFail.Value(), s.Close.Value(),
		s.Send.Value(), s.SendError.Value(), s.Transition.Value(), s.Error.Value(),
		s.SinceLastSend())
}
