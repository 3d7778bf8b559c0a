package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"cropdoc/internal/logging"
	"cropdoc/internal/pipeline"
	"cropdoc/internal/types"
)

const (
	streamWriteWait = 10 * time.Second
	streamReadWait  = 30 * time.Second
	streamPingEvery = 20 * time.Second
)

var streamUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

// streamOutbound is one server frame: a state transition, the final result,
// or an error.
type streamOutbound struct {
	Type    string                 `json:"type"`
	State   pipeline.State         `json:"state,omitempty"`
	Detail  string                 `json:"detail,omitempty"`
	Result  *types.DiagnosisResult `json:"result,omitempty"`
	Code    string                 `json:"code,omitempty"`
	Message string                 `json:"message,omitempty"`
}

// Stream accepts one request frame, pushes a "state" frame for each pipeline
// transition, then the "result" frame, and closes.
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	conn, err := streamUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	conn.SetReadLimit(h.maxUpload*4/3 + 64<<10)
	log := logging.For(r.Context(), h.log)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	writeCh := make(chan streamOutbound, 16)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		ticker := time.NewTicker(streamPingEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case out, ok := <-writeCh:
				if !ok {
					_ = conn.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done"),
						time.Now().Add(streamWriteWait))
					return
				}
				if err := conn.SetWriteDeadline(time.Now().Add(streamWriteWait)); err != nil {
					return
				}
				if err := conn.WriteJSON(out); err != nil {
					cancel()
					return
				}
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(streamWriteWait)); err != nil {
					cancel()
					return
				}
			}
		}
	}()
	finish := func() {
		close(writeCh)
		<-writerDone
	}

	_ = conn.SetReadDeadline(time.Now().Add(streamReadWait))
	var in jsonRequest
	if err := conn.ReadJSON(&in); err != nil {
		pushStream(ctx, writeCh, streamOutbound{Type: "error", Code: "invalid_argument", Message: "first frame must be a diagnosis request"})
		finish()
		return
	}
	req, err := in.toRequest()
	if err != nil {
		pushStream(ctx, writeCh, streamOutbound{Type: "error", Code: "invalid_argument", Message: err.Error()})
		finish()
		return
	}

	obs := pipeline.ObserverFunc(func(ctx context.Context, ev pipeline.Event) {
		pushStream(ctx, writeCh, streamOutbound{Type: "state", State: ev.State, Detail: ev.Detail})
	})
	res := h.diagnose(pipeline.WithObserver(ctx, obs), req)
	log.Info("streamed diagnosis", zap.String("result_id", res.ID))
	pushStream(ctx, writeCh, streamOutbound{Type: "result", Result: res})
	finish()
}

// pushStream blocks until the writer takes the frame or the connection is gone.
func pushStream(ctx context.Context, writeCh chan<- streamOutbound, out streamOutbound) {
	select {
	case writeCh <- out:
	case <-ctx.Done():
	}
}
