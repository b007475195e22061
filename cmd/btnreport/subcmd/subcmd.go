// Support sub-commands in btnreport application.
package subcmd

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/coreos/go-systemd/daemon"
	"github.com/juju/errors"
	"github.com/temoto/btnreport/config"
	"github.com/temoto/btnreport/log2"
)

type Mod struct {
	Name  string
	Usage string
	Main  func(context.Context, *log2.Log, *config.Config) error
}

func Parse(command string, modules []Mod) (*Mod, error) {
	if command == "" {
		return nil, fmt.Errorf("empty command")
	}

	var found *Mod
	for i := range modules {
		m := &modules[i]
		if m.Name == "" {
			panic(fmt.Sprintf("code error Name='' module=%#v", m))
		}
		if command == m.Name {
			found = m
			break
		}
	}
	if found == nil {
		return nil, fmt.Errorf("unknown command='%s'", command)
	}
	return found, nil
}

// SdNotify returns true under systemd.
func SdNotify(s string) bool {
	ok, err := daemon.SdNotify(false, s)
	if err != nil {
		log.Fatal("sdnotify: ", errors.ErrorStack(err))
	}
	return ok
}

// StopOnSignal calls stop once on first SIGINT, SIGTERM, SIGHUP or SIGQUIT.
// Second signal terminates process.
func StopOnSignal(log *log2.Log, stop func()) {
	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh,
		syscall.SIGHUP,
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGQUIT)
	go func() {
		s := <-signalCh
		log.Infof("received signal=%s, stopping", s)
		go stop()
		s = <-signalCh
		log.Errorf("received signal=%s during stop, exit", s)
		os.Exit(1)
	}()
}

// CloseLog is for defer, close error is logged with annotation.
func CloseLog(log *log2.Log, c io.Closer, what string) {
	if err := c.Close(); err != nil {
		log.Error(errors.Annotatef(err, "close %s", what))
	}
}
