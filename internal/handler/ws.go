package handler

import (
	"context"
	"github.com/gorilla/websocket"
	"net/http"
	"sopr-stats-sol/internal/pkg/logger"
	"sopr-stats-sol/internal/sopr/types"
	"sync"
	"time"
)

const wsWriteWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// 无鉴权的只读接口，允许任意来源
	CheckOrigin: func(*http.Request) bool { return true },
}

type wsFrame struct {
	Type      string            `json:"type"` // progress / result / error
	Processed int               `json:"processed,omitempty"`
	Total     int               `json:"total,omitempty"`
	Result    *types.SoprResult `json:"result,omitempty"`
	Status    int               `json:"status,omitempty"`
	Error     string            `json:"error,omitempty"`
}

// wsConn 串行化写入
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsConn) write(f wsFrame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return c.conn.WriteJSON(f)
}

// SoprStream GET /ws/sopr?address=&session=
//
// 每处理完一个持有人推送一个 progress 帧，最后推送一个 result 或 error 帧后关闭。
// 客户端断开时取消计算。
func SoprStream(app SoprComputer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Debugf("[WsHandler] upgrade failed: %v", err)
			return
		}
		defer conn.Close()

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// 读循环只用于感知客户端断开
		go func() {
			defer cancel()
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		c := &wsConn{conn: conn}
		query := r.URL.Query()
		address := query.Get("address")

		res, err := app.Compute(ctx, address, query.Get("session"), func(processed, total int) {
			if werr := c.write(wsFrame{Type: "progress", Processed: processed, Total: total}); werr != nil {
				cancel()
			}
		})

		var final wsFrame
		if err != nil {
			final = wsFrame{Type: "error", Status: StatusOf(err), Error: err.Error()}
			if final.Status >= http.StatusInternalServerError {
				logger.Warnf("[WsHandler] sopr for %s failed: %v", address, err)
			}
		} else {
			final = wsFrame{Type: "result", Result: summarize(res, false)}
		}
		if err := c.write(final); err != nil {
			logger.Debugf("[WsHandler] write final frame failed: %v", err)
			return
		}

		c.mu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(wsWriteWait))
		c.mu.Unlock()
	}
}
