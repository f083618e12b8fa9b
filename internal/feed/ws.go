package feed

import (
	"context"
	"time"

	"github.com/gorilla/websocket"

	"corral/internal/fault"
	"corral/internal/logger"
)

const (
	wsMaxBackoff  = 30 * time.Second
	wsReadTimeout = 90 * time.Second
)

// WS streams feed events from a websocket endpoint, reconnecting with
// exponential backoff. Delivery order within a connection follows the wire;
// the upstream guarantees per-order ordering.
type WS struct {
	URL string
}

func NewWS(url string) *WS { return &WS{URL: url} }

func (w *WS) Run(ctx context.Context, dispatch Dispatch) error {
	backoff := time.Second
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := w.readLoop(ctx, dispatch)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Warnf("feed: websocket连接断开, reconnect in %s: %v", backoff, err)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
		backoff *= 2
		if backoff > wsMaxBackoff {
			backoff = wsMaxBackoff
		}
	}
}

func (w *WS) readLoop(ctx context.Context, dispatch Dispatch) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, w.URL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	logger.Infof("feed: websocket connected to %s", w.URL)

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		evt, derr := Decode(raw)
		if derr != nil {
			if fault.KindOf(derr) == fault.KindRecoverableProtocolAnomaly {
				logger.Warnf("feed: dropping websocket event: %v", derr)
				continue
			}
			return derr
		}
		if err := dispatch(evt); err != nil {
			return err
		}
	}
}
