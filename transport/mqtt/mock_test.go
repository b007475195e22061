package mqtt

import (
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/juju/errors"
)

type mockMsg struct {
	topic   string
	qos     byte
	payload []byte
}

type mockClient struct {
	sync.Mutex
	opt          *mqtt.ClientOptions
	connectErr   error
	publishErr   error
	pub          chan mockMsg
	disconnected chan uint
}

func newMockClient() *mockClient {
	return &mockClient{
		pub:          make(chan mockMsg, 32),
		disconnected: make(chan uint, 1),
	}
}

func (m *mockClient) newClient(opt *mqtt.ClientOptions) mqtt.Client {
	m.Lock()
	m.opt = opt
	m.Unlock()
	return m
}

func (m *mockClient) options() *mqtt.ClientOptions {
	m.Lock()
	defer m.Unlock()
	return m.opt
}

func (m *mockClient) Disconnect(quiesce uint) { m.disconnected <- quiesce }
func (m *mockClient) IsConnected() bool       { return true }
func (m *mockClient) IsConnectionOpen() bool  { return true }

func (m *mockClient) Connect() mqtt.Token { return mockToken{m.connectErr} }

func (m *mockClient) Publish(topic string, qos byte, retain bool, payload interface{}) mqtt.Token {
	if m.publishErr != nil {
		return mockToken{m.publishErr}
	}
	m.pub <- mockMsg{topic: topic, qos: qos, payload: payload.([]byte)}
	return mockToken{nil}
}

func (m *mockClient) Subscribe(string, byte, mqtt.MessageHandler) mqtt.Token {
	panic("not implemented")
}
func (m *mockClient) AddRoute(string, mqtt.MessageHandler) { panic("not implemented") }
func (m *mockClient) OptionsReader() mqtt.ClientOptionsReader {
	panic("not implemented")
}
func (m *mockClient) SubscribeMultiple(map[string]byte, mqtt.MessageHandler) mqtt.Token {
	panic("not implemented")
}
func (m *mockClient) Unsubscribe(...string) mqtt.Token { panic("not implemented") }

type mockToken struct{ error }

func (tok mockToken) Error() error { return tok.error }
func (tok mockToken) Wait() bool   { return !errors.IsTimeout(tok.error) }
func (tok mockToken) WaitTimeout(time.Duration) bool {
	return !errors.IsTimeout(tok.error)
}
