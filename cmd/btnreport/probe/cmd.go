// Package probe checks configured hardware and network once and prints result.
package probe

import (
	"context"
	"fmt"

	"github.com/juju/errors"
	"github.com/temoto/btnreport/cmd/btnreport/subcmd"
	"github.com/temoto/btnreport/config"
	"github.com/temoto/btnreport/device"
	"github.com/temoto/btnreport/internal/app"
	"github.com/temoto/btnreport/log2"
)

var Mod = subcmd.Mod{Name: "probe", Usage: "sample buttons, show network status", Main: Main}

func Main(ctx context.Context, log *log2.Log, cfg *config.Config) error {
	a := app.New(log, cfg)
	defer subcmd.CloseLog(log, a, "app")

	opt := cfg.DeviceOptions()
	in, _, err := a.Pins()
	if err != nil {
		return errors.Annotate(err, "probe")
	}
	b, err := device.NewSampler(in, opt.ButtonLines).Sample()
	if err != nil {
		return errors.Annotate(err, "probe")
	}
	fmt.Printf("buttons=%s payload=%s\n", b, b.Payload())

	n, err := a.Network()
	if err != nil {
		return errors.Annotate(err, "probe")
	}
	fmt.Printf("network driver=%s joined=%t", cfg.Network.Driver, n.Joined())
	if s, ok := n.(device.NetworkStatuser); ok {
		fmt.Printf(" status=%s", s.Status())
	}
	fmt.Println()
	fmt.Printf("remote=%s transport=%s\n", opt.Remote, cfg.Remote.Transport)
	return nil
}
