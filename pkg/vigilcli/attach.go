package vigilcli

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	cws "github.com/coder/websocket"

	"github.com/vigild/vigil/common"
)

// AttachHandlers receive push notifications while attached. Nil handlers
// are ignored.
type AttachHandlers struct {
	OnStatus    func(*common.StatusResult)
	OnExecution func(*common.ExecutionNotification)
	OnError     func(*common.ErrorNotification)
	OnComplete  func(*common.CompleteNotification)
}

// pushMessage is the wire shape of a JSON-RPC push notification.
type pushMessage struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

// Attach opens a WebSocket observer connection and dispatches push
// notifications to the handlers until ctx is canceled or the daemon closes
// the connection.
func (c *Client) Attach(ctx context.Context, h *AttachHandlers) error {
	if h == nil {
		h = &AttachHandlers{}
	}

	conn, _, err := cws.Dial(ctx, c.wsURL, &cws.DialOptions{
		HTTPClient: c.http,
		HTTPHeader: http.Header{
			"Authorization": []string{"Bearer " + c.secret},
		},
	})
	if err != nil {
		return err
	}
	defer conn.Close(cws.StatusNormalClosure, "")

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return ctx.Err()
			}
			if cws.CloseStatus(err) == cws.StatusNormalClosure {
				return nil
			}
			return err
		}
		var msg pushMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		dispatchNotification(&msg, h)
	}
}

func dispatchNotification(msg *pushMessage, h *AttachHandlers) {
	switch msg.Method {
	case common.NotifyStatus:
		if h.OnStatus == nil {
			return
		}
		var s common.StatusResult
		if err := json.Unmarshal(msg.Params, &s); err == nil {
			h.OnStatus(&s)
		}
	case common.NotifyExecution:
		if h.OnExecution == nil {
			return
		}
		var e common.ExecutionNotification
		if err := json.Unmarshal(msg.Params, &e); err == nil {
			h.OnExecution(&e)
		}
	case common.NotifyError:
		if h.OnError == nil {
			return
		}
		var e common.ErrorNotification
		if err := json.Unmarshal(msg.Params, &e); err == nil {
			h.OnError(&e)
		}
	case common.NotifyComplete:
		if h.OnComplete == nil {
			return
		}
		var n common.CompleteNotification
		if err := json.Unmarshal(msg.Params, &n); err == nil {
			h.OnComplete(&n)
		}
	}
}
