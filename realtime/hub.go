// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package realtime pushes campaign events to websocket observers. Each
// connection joins at most one campaign room at a time.
package realtime

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/blinklabs-io/almoner/event"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/net/websocket"
)

const (
	FrameTypeJoin   = "join"
	FrameTypeLeave  = "leave"
	FrameTypeJoined = "joined"
	FrameTypeLeft   = "left"
	FrameTypeError  = "error"

	peerSendBuffer         = 64
	maxDecodeErrorsPerConn = 5
)

var ErrHubStopped = errors.New("realtime hub stopped")

// ClientFrame is sent by observers to select a campaign room
type ClientFrame struct {
	Type       string `json:"type"`
	CampaignID uint64 `json:"campaign_id,omitempty"`
}

// ServerFrame carries an event or a control reply to an observer
type ServerFrame struct {
	Type       string `json:"type"`
	CampaignID uint64 `json:"campaign_id,omitempty"`
	Payload    any    `json:"payload,omitempty"`
}

type errorPayload struct {
	Message string `json:"message"`
}

type HubConfig struct {
	Logger       *slog.Logger
	PromRegistry prometheus.Registerer
	EventBus     *event.EventBus
}

type hubMetrics struct {
	peers   prometheus.Gauge
	sent    *prometheus.CounterVec
	dropped prometheus.Counter
}

func (m *hubMetrics) init(promRegistry prometheus.Registerer) {
	promautoFactory := promauto.With(promRegistry)
	m.peers = promautoFactory.NewGauge(prometheus.GaugeOpts{
		Name: "almoner_realtime_peers",
		Help: "number of connected websocket observers",
	})
	m.sent = promautoFactory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "almoner_realtime_frames_sent_total",
			Help: "total number of event frames queued for observers",
		},
		[]string{"type"},
	)
	m.dropped = promautoFactory.NewCounter(prometheus.CounterOpts{
		Name: "almoner_realtime_frames_dropped_total",
		Help: "total number of frames dropped for slow observers",
	})
}

// Hub routes campaign events to the observers in each campaign room
type Hub struct {
	config  HubConfig
	logger  *slog.Logger
	metrics *hubMetrics
	mu      sync.Mutex
	rooms   map[uint64]map[*peer]struct{}
	peers   map[*peer]struct{}
	subIDs  map[event.EventType]event.EventSubscriberId
	wg      sync.WaitGroup
	started bool
	stopped bool
}

func NewHub(cfg HubConfig) *Hub {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	h := &Hub{
		config: cfg,
		logger: cfg.Logger.With("component", "realtime"),
		rooms:  make(map[uint64]map[*peer]struct{}),
		peers:  make(map[*peer]struct{}),
		subIDs: make(map[event.EventType]event.EventSubscriberId),
	}
	if cfg.PromRegistry != nil {
		h.metrics = &hubMetrics{}
		h.metrics.init(cfg.PromRegistry)
	}
	return h
}

// Start subscribes the hub to every campaign event topic
func (h *Hub) Start() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return ErrHubStopped
	}
	if h.started || h.config.EventBus == nil {
		h.started = true
		return nil
	}
	for _, eventType := range event.CampaignEventTypes {
		h.subIDs[eventType] = h.config.EventBus.RegisterSubscriber(
			eventType,
			&hubSubscriber{hub: h},
		)
	}
	h.started = true
	return nil
}

// Stop unsubscribes from the event bus and disconnects every observer
func (h *Hub) Stop() {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return
	}
	h.stopped = true
	subIDs := h.subIDs
	h.subIDs = nil
	peers := make([]*peer, 0, len(h.peers))
	for p := range h.peers {
		peers = append(peers, p)
	}
	h.mu.Unlock()
	if h.config.EventBus != nil {
		for eventType, id := range subIDs {
			h.config.EventBus.Unsubscribe(eventType, id)
		}
	}
	for _, p := range peers {
		p.close()
	}
	h.wg.Wait()
}

// Handler returns the websocket endpoint
func (h *Hub) Handler() http.Handler {
	wsHandler := websocket.Handler(h.serveConn)
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		wsHandler.ServeHTTP(w, r)
	})
	return mux
}

// RoomSize returns the number of observers in a campaign room
func (h *Hub) RoomSize(campaignID uint64) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms[campaignID])
}

func (h *Hub) serveConn(conn *websocket.Conn) {
	p := newPeer(conn)
	if !h.addPeer(p) {
		_ = conn.Close()
		return
	}
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		p.writeLoop(h.logger)
	}()
	defer h.removePeer(p)

	decodeErrors := 0
	for {
		var frame ClientFrame
		if err := websocket.JSON.Receive(conn, &frame); err != nil {
			var syntaxErr *json.SyntaxError
			var typeErr *json.UnmarshalTypeError
			if !errors.As(err, &syntaxErr) && !errors.As(err, &typeErr) {
				return
			}
			decodeErrors++
			p.enqueue(errorFrame("invalid frame payload"))
			if decodeErrors >= maxDecodeErrorsPerConn {
				return
			}
			continue
		}
		decodeErrors = 0
		switch frame.Type {
		case FrameTypeJoin:
			if frame.CampaignID == 0 {
				p.enqueue(errorFrame("campaign_id is required"))
				continue
			}
			h.join(p, frame.CampaignID)
			p.enqueue(ServerFrame{Type: FrameTypeJoined, CampaignID: frame.CampaignID})
		case FrameTypeLeave:
			h.leave(p)
			p.enqueue(ServerFrame{Type: FrameTypeLeft})
		default:
			p.enqueue(errorFrame("unsupported frame type"))
		}
	}
}

func (h *Hub) addPeer(p *peer) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return false
	}
	h.peers[p] = struct{}{}
	h.wg.Add(1)
	if h.metrics != nil {
		h.metrics.peers.Inc()
	}
	return true
}

func (h *Hub) removePeer(p *peer) {
	h.leave(p)
	p.close()
	h.mu.Lock()
	delete(h.peers, p)
	h.mu.Unlock()
	if h.metrics != nil {
		h.metrics.peers.Dec()
	}
	h.wg.Done()
}

func (h *Hub) join(p *peer, campaignID uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(p)
	room, ok := h.rooms[campaignID]
	if !ok {
		room = make(map[*peer]struct{})
		h.rooms[campaignID] = room
	}
	room[p] = struct{}{}
	p.room = campaignID
}

func (h *Hub) leave(p *peer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(p)
}

func (h *Hub) leaveLocked(p *peer) {
	if p.room == 0 {
		return
	}
	if room, ok := h.rooms[p.room]; ok {
		delete(room, p)
		if len(room) == 0 {
			delete(h.rooms, p.room)
		}
	}
	p.room = 0
}

func (h *Hub) broadcast(evt event.Event) {
	scoped, ok := evt.Data.(event.CampaignScoped)
	if !ok {
		return
	}
	campaignID := scoped.EventCampaignID()
	frame := ServerFrame{
		Type:       string(evt.Type),
		CampaignID: campaignID,
		Payload:    evt.Data,
	}
	h.mu.Lock()
	room := h.rooms[campaignID]
	targets := make([]*peer, 0, len(room))
	for p := range room {
		targets = append(targets, p)
	}
	h.mu.Unlock()
	for _, p := range targets {
		if !p.enqueue(frame) {
			if h.metrics != nil {
				h.metrics.dropped.Inc()
			}
			h.logger.Warn(
				"observer too slow, dropping frame",
				"campaign_id", campaignID,
				"type", evt.Type,
			)
			continue
		}
		if h.metrics != nil {
			h.metrics.sent.WithLabelValues(string(evt.Type)).Inc()
		}
	}
}

// hubSubscriber adapts the hub to the event bus. Delivery never blocks the
// publisher.
type hubSubscriber struct {
	hub *Hub
}

func (s *hubSubscriber) Deliver(evt event.Event) error {
	s.hub.broadcast(evt)
	return nil
}

func (s *hubSubscriber) Close() {}

func errorFrame(message string) ServerFrame {
	return ServerFrame{
		Type:    FrameTypeError,
		Payload: errorPayload{Message: message},
	}
}
