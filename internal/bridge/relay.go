package bridge

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"laserlink/internal/logging"
	"laserlink/internal/serialport"
	"laserlink/internal/wire"
)

// holdPoint ends a testing chain: the SFC reply is not written back.
var holdPoint = regexp.MustCompile(`(?i)PASSED=[01]`)

// relay forwards one laser frame to the SFC and returns the resulting event.
func (b *Bridge) relay(ctx context.Context, pair *linkPair, settings Settings, line serialport.Line) string {
	frame := strings.TrimSpace(line.Text)
	b.mu.Lock()
	b.chain = true
	b.mu.Unlock()
	b.updateStatus(func(s *Status) {
		s.State = StateTesting
		s.LastRequest = frame
		s.LastResponse = ""
		s.LastStatus = ""
	})
	b.logger.Info("relay laser frame", logging.Payload(frame))

	resp, err := pair.sfc.Exchange(ctx, frame, serialport.ExchangeOptions{
		Clear: true,
		ReceiveOptions: serialport.ReceiveOptions{
			Timeout:  settings.SFCTimeout,
			Rules:    settings.Rules,
			IdleTail: settings.IdleTail,
			Tag:      "relay",
		},
	})
	if err != nil {
		event, status := EventSFCError, "SFC_ERROR"
		if errors.Is(err, serialport.ErrNoResponse) || errors.Is(err, serialport.ErrIncomplete) {
			event, status = EventSFCTimeout, "TIMEOUT"
		}
		logging.WarnWithContext(b.logger, "SFC did not answer relayed frame", "relay_"+event,
			logging.Error(err),
			logging.Payload(frame),
			logging.String(logging.FieldErrorHint, "check the SFC link and timeouts.sfc_tx_sec"),
			logging.String(logging.FieldImpact, "the testing chain was reset"),
		)
		b.endChain(event, status, resp.Text, err.Error())
		return event
	}

	reply := resp.Text
	status := string(wire.InferStatus(reply))
	if status == "" {
		status = "UNKNOWN"
	}
	if holdPoint.MatchString(reply) {
		b.logger.Info("hold point reached; reply kept from laser", logging.Payload(reply), logging.String("status", status))
		b.endChain(EventHold, status, reply, "")
		return EventHold
	}

	if err := pair.laser.Send(ctx, reply); err != nil {
		b.endChain(EventError, "ERROR", reply, err.Error())
		return EventError
	}
	b.logger.Info("relay SFC reply", logging.Payload(reply), logging.String("status", status))
	b.updateStatus(func(s *Status) {
		s.LastEvent = EventSFCOK
		s.LastStatus = status
		s.LastResponse = reply
	})
	return EventSFCOK
}

func (b *Bridge) endChain(event, status, response, errText string) {
	b.mu.Lock()
	b.chain = false
	b.mu.Unlock()
	b.updateStatus(func(s *Status) {
		s.State = StateListening
		s.LastEvent = event
		s.LastStatus = status
		s.LastResponse = response
		if errText != "" {
			s.LastError = errText
		}
	})
}

// Testing reports whether a relay testing chain is open.
func (b *Bridge) Testing() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.chain
}
