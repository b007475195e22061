package device

import "github.com/juju/errors"

// Tick runs one scheduler step. Check order is fixed:
// state update, indicator, per-tick sample, heartbeat.
// Nothing here blocks, transport Open/Send return immediately.
func (d *Device) Tick() {
	t := &d.opt.Timing
	if d.tick%t.StateUpdate == 0 {
		d.updateState()
	}
	if d.tick%t.Indicator == 0 {
		d.updateIndicator()
	}

	sent := false
	if d.state == SessionEstablished {
		sent = d.sendChanged()
	}

	// Change already sent this tick counts as heartbeat.
	if d.tick%t.Heartbeat == 0 && d.state == SessionEstablished && !sent {
		d.heartbeat()
	}

	d.tick++
	if d.tick >= t.Wrap {
		d.tick = 0
	}
}

func (d *Device) updateState() {
	joined := d.network.Joined()
	d.logNetworkStatus()

	next := Recompute(joined, d.session.Connected())
	if next != d.state {
		prev := d.state
		d.state = next
		d.stat.Transition.Add(1)
		d.log.Infof("%s", next.transitionMessage())
		if d.onTransition != nil {
			d.onTransition(prev, next)
		}
	}

	if d.state == NetworkJoined && !d.session.Connecting() {
		// failure is logged and counted inside, retry on next period
		_ = d.session.Connect()
	}
}

func (d *Device) logNetworkStatus() {
	statuser, ok := d.network.(NetworkStatuser)
	if !ok {
		return
	}
	if status := statuser.Status(); status != d.networkStatus {
		d.networkStatus = status
		d.log.Infof("network status: %s", status)
	}
}

func (d *Device) updateIndicator() {
	level, err := d.indicator.Update(d.state)
	if err != nil {
		d.log.Error(errors.Annotate(err, "indicator"))
		return
	}
	d.log.Debugf("indicator state=%s level=%t lit=%t", d.state, level, d.indicator.Lit(level))
}

func (d *Device) sendChanged() bool {
	current, err := d.sampler.Sample()
	if err != nil {
		d.log.Error(err)
		return false
	}
	if current == d.buttons {
		return false
	}
	d.buttons = current
	d.transmit()
	return true
}

// Heartbeat re-samples and sends regardless of change.
// With failed read, last known state is sent.
func (d *Device) heartbeat() {
	if current, err := d.sampler.Sample(); err != nil {
		d.log.Error(err)
	} else {
		d.buttons = current
	}
	d.log.Debugf("heartbeat buttons=%s", d.buttons)
	d.transmit()
}

// Fire-and-forget, nothing is queued for retry.
func (d *Device) transmit() {
	payload := d.buttons.Payload()
	if err := d.session.Send(payload); err != nil {
		d.stat.SendError.Add(1)
		d.log.Errorf("unable to transmit buttons state=%s: %v", payload, err)
		return
	}
	d.stat.Send.Add(1)
	d.stat.LastSend.SetNow()
	d.log.Infof("transmitted buttons state=%s", payload)
}
