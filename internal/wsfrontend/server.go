package wsfrontend

import (
	"encoding/binary"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/websocket"

	"github.com/devyn/fai/internal/logging"
)

// SubProtocol is the WebSocket sub-protocol every session negotiates.
const SubProtocol = "v1.fai.devyn.me"

var upgrader = websocket.Upgrader{
	Subprotocols:    []string{SubProtocol},
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Handler serves one machine session per incoming WebSocket connection, each
// booted from the same program image.
type Handler struct {
	BinPath      string
	TickInterval time.Duration
	Config       Config
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Default.Warnf("wsfrontend: upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	program, err := loadProgram(h.BinPath)
	if err != nil {
		logging.Default.Warnf("wsfrontend: %v", err)
		return
	}

	handleSession(conn, h.Config, program, h.TickInterval)
}

func loadProgram(path string) ([]uint32, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading program image %q: %w", path, err)
	}
	words := make([]uint32, len(raw)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(raw[i*4:])
	}
	return words, nil
}

func handleSession(conn *websocket.Conn, cfg Config, program []uint32, tickInterval time.Duration) {
	keyboardInput := make(chan uint32, 16)
	done := make(chan struct{})

	sess := Boot(cfg, program, keyboardInput, func(offset, value uint32) {
		msg := fmt.Sprintf("%d,%d", offset, value)
		if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
			logging.Default.Debugf("wsfrontend: write failed: %v", err)
		}
	})

	go func() {
		defer close(done)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			for _, b := range data {
				select {
				case keyboardInput <- uint32(b):
				default:
				}
			}
		}
	}()

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if sess.Machine.Fault != nil {
				return
			}
			sess.Pool.Tick()
		}
	}
}
