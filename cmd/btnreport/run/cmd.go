// Package run is the production loop: join network, report buttons until signal.
package run

import (
	"context"

	"github.com/coreos/go-systemd/daemon"
	"github.com/juju/errors"
	"github.com/temoto/btnreport/cmd/btnreport/subcmd"
	"github.com/temoto/btnreport/config"
	"github.com/temoto/btnreport/device"
	"github.com/temoto/btnreport/internal/app"
	"github.com/temoto/btnreport/log2"
)

var Mod = subcmd.Mod{Name: "run", Usage: "report button state to remote", Main: Main}

func Main(ctx context.Context, log *log2.Log, cfg *config.Config) error {
	a := app.New(log, cfg)
	defer subcmd.CloseLog(log, a, "app")

	d, err := a.NewDevice(func(prev, next device.ConnectionState) {
		subcmd.SdNotify("STATUS=" + next.String())
	})
	if err != nil {
		return errors.Annotate(err, "run")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	subcmd.StopOnSignal(log, cancel)

	subcmd.SdNotify(daemon.SdNotifyReady)
	err = d.Run(ctx)
	subcmd.SdNotify(daemon.SdNotifyStopping)
	log.Infof("stat %s", d.Stat())
	if err != nil && errors.Cause(err) != context.Canceled {
		return errors.Annotate(err, "run")
	}
	return nil
}
