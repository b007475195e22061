package network

import (
	"context"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/alive/v2"
	"github.com/temoto/btnreport/log2"
)

const DefaultCommandTimeout = 10 * time.Second

// RunFunc executes command and returns its stdout.
type RunFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

func ExecRun(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// WPA joins wireless network with wpa_supplicant through wpa_cli.
// Join result is observed by interface address polling.
type WPA struct {
	*Iface
	log     *log2.Log
	wpaCli  string
	run     RunFunc
	timeout time.Duration
	alive   *alive.Alive

	mu         sync.Mutex
	ssid       string
	passphrase string
	joining    bool
	joinErr    error
}

func NewWPA(log *log2.Log, iface *Iface, wpaCli string, run RunFunc) *WPA {
	if run == nil {
		run = ExecRun
	}
	return &WPA{
		Iface:   iface,
		log:     log,
		wpaCli:  wpaCli,
		run:     run,
		timeout: DefaultCommandTimeout,
		alive:   alive.NewAlive(),
	}
}

func (w *WPA) Configure(ssid, passphrase string) error {
	if ssid == "" {
		return errors.NotValidf("empty ssid")
	}
	if passphrase != "" && (len(passphrase) < 8 || len(passphrase) > 63) {
		return errors.NotValidf("passphrase length=%d", len(passphrase))
	}
	w.mu.Lock()
	w.ssid, w.passphrase = ssid, passphrase
	w.mu.Unlock()
	return nil
}

// RequestJoin starts wpa_cli commands in background.
// Returns false when not configured, stopped or previous request is still running.
func (w *WPA) RequestJoin() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.ssid == "" || w.joining {
		return false
	}
	if !w.alive.Add(1) {
		return false
	}
	w.joining = true
	w.joinErr = nil
	go w.join(w.ssid, w.passphrase)
	return true
}

func (w *WPA) Status() string {
	w.mu.Lock()
	joining, joinErr := w.joining, w.joinErr
	w.mu.Unlock()
	status := w.Iface.Status()
	switch {
	case status != StatusNoAddress && status != StatusNoInterface:
		return status
	case joining:
		return StatusJoining
	case joinErr != nil:
		return StatusJoinFailed
	}
	return status
}

// Close waits for running join request.
func (w *WPA) Close() error {
	w.alive.Stop()
	w.alive.Wait()
	return nil
}

func (w *WPA) join(ssid, passphrase string) {
	defer w.alive.Done()
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()
	go func() {
		select {
		case <-w.alive.StopChan():
			cancel()
		case <-ctx.Done():
		}
	}()

	err := w.joinCommands(ctx, ssid, passphrase)
	if err != nil {
		w.log.Error(errors.Annotatef(err, "wpa join ssid=%s", ssid))
	} else {
		w.log.Debugf("wpa join ssid=%s selected", ssid)
	}
	w.mu.Lock()
	w.joining = false
	w.joinErr = err
	w.mu.Unlock()
}

func (w *WPA) joinCommands(ctx context.Context, ssid, passphrase string) error {
	out, err := w.cli(ctx, "add_network")
	if err != nil {
		return err
	}
	id := strings.TrimSpace(out)
	if _, err := strconv.ParseUint(id, 10, 32); err != nil {
		return errors.Errorf("add_network unexpected output=%q", out)
	}
	commands := [][]string{{"set_network", id, "ssid", strconv.Quote(ssid)}}
	if passphrase == "" {
		commands = append(commands, []string{"set_network", id, "key_mgmt", "NONE"})
	} else {
		commands = append(commands, []string{"set_network", id, "psk", strconv.Quote(passphrase)})
	}
	commands = append(commands,
		[]string{"enable_network", id},
		[]string{"select_network", id},
	)
	for _, args := range commands {
		out, err := w.cli(ctx, args...)
		if err != nil {
			return err
		}
		if strings.TrimSpace(out) != "OK" {
			return errors.Errorf("%s unexpected output=%q", args[0], out)
		}
	}
	return nil
}

func (w *WPA) cli(ctx context.Context, args ...string) (string, error) {
	full := append([]string{"-i", w.Iface.Name()}, args...)
	b, err := w.run(ctx, w.wpaCli, full...)
	if err != nil {
		return "", errors.Annotatef(err, "%s %s", w.wpaCli, args[0])
	}
	return string(b), nil
}
