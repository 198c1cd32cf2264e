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

package realtime

import (
	"log/slog"
	"sync"

	"golang.org/x/net/websocket"
)

// peer is a connected observer. Frames are queued and written by a single
// writer goroutine.
type peer struct {
	conn      *websocket.Conn
	send      chan ServerFrame
	done      chan struct{}
	closeOnce sync.Once
	mu        sync.Mutex
	// room is guarded by the hub mutex
	room uint64
}

func newPeer(conn *websocket.Conn) *peer {
	return &peer{
		conn: conn,
		send: make(chan ServerFrame, peerSendBuffer),
		done: make(chan struct{}),
	}
}

// enqueue queues a frame without blocking. It returns false when the peer
// is closed or its buffer is full.
func (p *peer) enqueue(frame ServerFrame) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	select {
	case <-p.done:
		return false
	default:
	}
	select {
	case p.send <- frame:
		return true
	default:
		return false
	}
}

func (p *peer) writeLoop(logger *slog.Logger) {
	for {
		select {
		case <-p.done:
			return
		case frame := <-p.send:
			if err := websocket.JSON.Send(p.conn, frame); err != nil {
				logger.Debug(
					"websocket write failed",
					"error", err,
				)
				p.close()
				return
			}
		}
	}
}

func (p *peer) close() {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		close(p.done)
		p.mu.Unlock()
		_ = p.conn.Close()
	})
}
