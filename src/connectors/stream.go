package connectors

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	logger "github.com/sirupsen/logrus"
)

// Stream consumes the venue's trade-update push feed. It is a latency
// optimization only: events nudge the reconciler to run an early cycle, and
// the polling loop remains the at-least-once delivery mechanism. Losing the
// stream therefore never loses data.
type Stream struct {
	url       string
	apiKey    string
	apiSecret string
	nudge     chan struct{}
}

// NewStream builds a trade-update stream consumer.
func NewStream(apiKey, apiSecret string) *Stream {
	config := GetConfig()
	return &Stream{
		url:       config.VenueStreamURL,
		apiKey:    apiKey,
		apiSecret: apiSecret,
		nudge:     make(chan struct{}, 1),
	}
}

// Nudges returns the channel pulsed whenever the venue reports an order
// update. The channel has capacity one; coalesced pulses are fine because a
// cycle reads everything since the cursor anyway.
func (s *Stream) Nudges() <-chan struct{} {
	return s.nudge
}

type streamMessage struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// Run dials the stream and consumes messages until ctx is done, redialing
// with a fixed backoff on any failure.
func (s *Stream) Run(ctx context.Context) {
	for {
		if err := s.consume(ctx); err != nil {
			logger.WithError(err).Warn("trade-update stream interrupted, will redial")
		}

		select {
		case <-ctx.Done():
			logger.Info("trade-update stream stopped")
			return
		case <-time.After(5 * time.Second):
		}
	}
}

func (s *Stream) consume(ctx context.Context) error {
	dialer := websocket.Dialer{
		HandshakeTimeout: 15 * time.Second,
		Proxy:            http.ProxyFromEnvironment,
	}

	conn, _, err := dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	auth := map[string]interface{}{
		"action": "authenticate",
		"data": map[string]string{
			"key_id":     s.apiKey,
			"secret_key": s.apiSecret,
		},
	}
	if err := conn.WriteJSON(auth); err != nil {
		return err
	}

	listen := map[string]interface{}{
		"action": "listen",
		"data": map[string][]string{
			"streams": {"trade_updates"},
		},
	}
	if err := conn.WriteJSON(listen); err != nil {
		return err
	}

	logger.Info("trade-update stream connected")

	// Unblock ReadMessage when the context is cancelled.
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		var base streamMessage
		if err := json.Unmarshal(msg, &base); err != nil {
			logger.WithError(err).Debug("trade-update stream: unparseable frame")
			continue
		}

		if base.Stream != "trade_updates" {
			continue
		}

		logger.Debug("trade-update stream: order event received")

		select {
		case s.nudge <- struct{}{}:
		default:
			// A nudge is already queued; coalesce.
		}
	}
}
