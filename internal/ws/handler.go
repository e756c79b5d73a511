package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/hacksail-client/internal/dashboard"
)

// AskTimeout bounds one command, login handshake included.
const AskTimeout = 30 * time.Second

// Handler streams dashboard snapshots to a local UI and accepts its
// commands on the same socket.
func Handler(d *dashboard.Dashboard, log *zap.Logger) http.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: []string{"localhost:*", "127.0.0.1:*"},
		})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		clientID := uuid.NewString()
		clog := log.With(zap.String("client_id", clientID))
		out := dashboard.NewOutbox()
		if err := d.Send(r.Context(), dashboard.Join{ClientID: clientID, Outbox: out}); err != nil {
			return
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = d.Send(ctx, dashboard.Leave{ClientID: clientID})
		}()
		clog.Debug("ui connected")

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Writer goroutine. The outbox closes when the dashboard drops a slow
		// client or shuts down; either way the socket goes too.
		go func() {
			defer cancel()
			for {
				select {
				case <-ctx.Done():
					return
				case snap, ok := <-out:
					if !ok {
						return
					}
					if write(ctx, conn, ServerMessage{Type: TypeSnapshot, Version: snap.Version, State: &snap}) != nil {
						return
					}
				}
			}
		}()

		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
					clog.Debug("ui disconnected")
				default:
					clog.Debug("ui read ended", zap.Error(err))
				}
				return
			}

			var cm ClientMessage
			if err := json.Unmarshal(data, &cm); err != nil {
				_ = write(ctx, conn, ServerMessage{Type: TypeError, Error: "bad json"})
				continue
			}
			build, ok := ToMsg(cm)
			if !ok {
				_ = write(ctx, conn, ServerMessage{Type: TypeError, Ref: cm.Ref, Error: "unknown type"})
				continue
			}

			// Commands may wait on the network; the reader keeps going.
			go func(ref string) {
				actx, acancel := context.WithTimeout(ctx, AskTimeout)
				defer acancel()
				msg := ServerMessage{Type: TypeAck, Ref: ref}
				if err := d.Ask(actx, build); err != nil {
					msg.Error = err.Error()
				}
				_ = write(ctx, conn, msg)
			}(cm.Ref)
		}
	}
}

func write(ctx context.Context, conn *websocket.Conn, m ServerMessage) error {
	payload, err := json.Marshal(m)
	if err != nil {
		return err
	}
	wctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return conn.Write(wctx, websocket.MessageText, payload)
}
