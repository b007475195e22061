// Package sim runs device with in-memory buttons controlled from prompt.
// Network and transport are real, as configured.
package sim

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/c-bata/go-prompt"
	"github.com/juju/errors"
	"github.com/temoto/btnreport/cmd/btnreport/subcmd"
	"github.com/temoto/btnreport/config"
	"github.com/temoto/btnreport/device"
	"github.com/temoto/btnreport/hardware/pin"
	"github.com/temoto/btnreport/helpers/cli"
	"github.com/temoto/btnreport/internal/app"
	"github.com/temoto/btnreport/log2"
)

const name = "sim"

var Mod = subcmd.Mod{Name: name, Usage: "interactive button simulator", Main: Main}

func Main(ctx context.Context, log *log2.Log, cfg *config.Config) error {
	a := app.New(log, cfg)
	defer subcmd.CloseLog(log, a, "app")

	s := &sim{
		w:     os.Stdout,
		mock:  a.UseMock(),
		lines: cfg.DeviceOptions().ButtonLines,
	}
	s.state.Store(device.Disconnected)
	d, err := a.NewDevice(func(prev, next device.ConnectionState) { s.state.Store(next) })
	if err != nil {
		return errors.Annotate(err, "sim")
	}
	s.stat = d.Stat()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	runErr := make(chan error, 1)
	go func() { runErr <- d.Run(ctx) }()
	subcmd.StopOnSignal(log, func() { cancel(); os.Stdin.Close() })

	s.quit = cancel
	if err := cli.MainLoop(name, s.exec, s.complete); err != nil {
		log.Error(err)
	}
	cancel()
	err = <-runErr
	log.Infof("stat %s", d.Stat())
	if err != nil && errors.Cause(err) != context.Canceled {
		return errors.Annotate(err, "sim")
	}
	return nil
}

type sim struct {
	w     io.Writer
	mock  *pin.Mock
	lines [device.ButtonCount]uint32
	state atomic.Value // device.ConnectionState
	stat  *device.Stat
	quit  func()
}

var suggests = []prompt.Suggest{
	{Text: "b", Description: "b <mask> set all buttons, mask 0-7"},
	{Text: "press", Description: "press <n> hold button n=0-2"},
	{Text: "release", Description: "release <n> release button n=0-2"},
	{Text: "state", Description: "connection state and pressed buttons"},
	{Text: "stat", Description: "counters"},
	{Text: "quit", Description: "stop device"},
	{Text: "help", Description: "show commands"},
}

func (s *sim) complete(d prompt.Document) []prompt.Suggest {
	return prompt.FilterFuzzy(suggests, d.GetWordBeforeCursor(), true)
}

func (s *sim) exec(line string) {
	if err := s.do(line); err != nil {
		fmt.Fprintf(s.w, "error: %v\n", err)
	}
}

func (s *sim) do(line string) error {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return nil
	}
	cmd, args := parts[0], parts[1:]
	switch cmd {
	case "b":
		if len(args) != 1 {
			return errors.NotValidf("usage: b <mask>")
		}
		x, err := strconv.ParseUint(args[0], 0, 8)
		if err != nil || x >= 1<<device.ButtonCount {
			return errors.NotValidf("mask=%s", args[0])
		}
		for i, l := range s.lines {
			s.mock.SetInput(l, x&(1<<uint(i)) != 0)
		}

	case "press", "release":
		if len(args) != 1 {
			return errors.NotValidf("usage: %s <n>", cmd)
		}
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 0 || n >= device.ButtonCount {
			return errors.NotValidf("button=%s", args[0])
		}
		s.mock.SetInput(s.lines[n], cmd == "press")

	case "state":
		levels, _ := s.mock.ReadInputs()
		b := device.PackButtons(levels, s.lines)
		fmt.Fprintf(s.w, "state=%s buttons=%s payload=%s\n", s.state.Load(), b, b.Payload())

	case "stat":
		fmt.Fprintln(s.w, s.stat.String())

	case "quit":
		s.quit()
		fmt.Fprintln(s.w, "stopping, press Ctrl-D to exit")

	case "help":
		for _, sg := range suggests {
			fmt.Fprintf(s.w, "%-8s %s\n", sg.Text, sg.Description)
		}

	default:
		return errors.NotFoundf("command=%s", cmd)
	}
	return nil
}
