package handler

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"coverscope/internal/push"
	"coverscope/internal/registry"
	"coverscope/internal/scanjob"
)

// ScanSocketHandler streams scan status pushes to websocket clients.
type ScanSocketHandler struct {
	hub      *push.Hub
	registry *registry.Store
}

func NewScanSocketHandler(hub *push.Hub, reg *registry.Store) *ScanSocketHandler {
	return &ScanSocketHandler{hub: hub, registry: reg}
}

const (
	scanWSWriteWait = 10 * time.Second
	scanWSPongWait  = 60 * time.Second
	scanWSPingEvery = (scanWSPongWait * 9) / 10
)

var scanWSUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

func (h *ScanSocketHandler) HandleScanWS(w http.ResponseWriter, r *http.Request) {
	projectID := strings.TrimSpace(r.URL.Query().Get("project_id"))
	if projectID == "" {
		http.Error(w, "project_id is required", http.StatusBadRequest)
		return
	}

	conn, err := scanWSUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	if err := conn.SetReadDeadline(time.Now().Add(scanWSPongWait)); err != nil {
		log.Printf("scan ws set read deadline failed: %v", err)
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(scanWSPongWait))
	})

	writeCh := make(chan scanjob.StatusUpdate, 32)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		ticker := time.NewTicker(scanWSPingEvery)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case out := <-writeCh:
				if err := conn.SetWriteDeadline(time.Now().Add(scanWSWriteWait)); err != nil {
					return
				}
				if err := conn.WriteJSON(out); err != nil {
					return
				}
			case <-ticker.C:
				if err := conn.SetWriteDeadline(time.Now().Add(scanWSWriteWait)); err != nil {
					return
				}
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	updates, unsubscribe := h.hub.Subscribe(ctx, projectID)
	defer unsubscribe()

	// An update published between the subscription and the snapshot read sits
	// buffered and would replay behind the newer snapshot. Track the last
	// forwarded rank and drop anything that does not advance it, so the client
	// stream never repeats or regresses.
	lastRank := -1
	forward := func(u scanjob.StatusUpdate) {
		if r := u.Status.Phase.Rank(); r > lastRank {
			lastRank = r
			pushUpdate(writeCh, u)
		}
	}

	// Snapshot first so a late subscriber sees the current phase.
	if state, ok := h.registry.Get(projectID); ok && state.Scan.Phase != "" {
		forward(scanjob.StatusUpdate{ProjectID: projectID, Status: state.Scan})
	}

	// Reader goroutine: inbound frames are ignored, but reading drives the
	// pong handler and detects the peer closing.
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-readerDone:
			return
		case <-writerDone:
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			forward(u)
		}
	}
}

func pushUpdate(ch chan scanjob.StatusUpdate, u scanjob.StatusUpdate) {
	select {
	case ch <- u:
	default:
	}
}
