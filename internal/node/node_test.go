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

package node

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/blinklabs-io/almoner/internal/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/websocket"
)

func devConfig() *config.Config {
	return &config.Config{
		MetadataPlugin:  config.DefaultMetadataPlugin,
		BlobPlugin:      "none",
		BindAddr:        "127.0.0.1",
		RunMode:         config.RunModeDev,
		PollInterval:    time.Hour,
		ShutdownTimeout: 5 * time.Second,
	}
}

func TestRunServesAndShutsDown(t *testing.T) {
	reg := prometheus.NewRegistry()
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	addrCh := make(chan Addrs, 1)
	errCh := make(chan error, 1)
	go func() {
		errCh <- run(
			ctx,
			devConfig(),
			logger,
			reg,
			promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			func(a Addrs) { addrCh <- a },
		)
	}()

	var addrs Addrs
	select {
	case addrs = <-addrCh:
	case err := <-errCh:
		t.Fatalf("run exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for listeners")
	}

	resp, err := http.Get("http://" + addrs.Realtime.String() + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get("http://" + addrs.Metrics.String() + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "almoner_realtime_peers"))

	origin := "http://" + addrs.Realtime.String()
	conn, err := websocket.Dial("ws://"+addrs.Realtime.String()+"/ws", "", origin)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, websocket.JSON.Send(conn, map[string]any{"type": "join", "campaign_id": 1}))
	require.NoError(t, conn.SetDeadline(time.Now().Add(2*time.Second)))
	var frame map[string]any
	require.NoError(t, websocket.JSON.Receive(conn, &frame))
	assert.Equal(t, "joined", frame["type"])

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("timeout waiting for shutdown")
	}
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	cfg := devConfig()
	cfg.RunMode = config.RunModeServe
	err := run(
		context.Background(),
		cfg,
		slog.New(slog.NewJSONHandler(io.Discard, nil)),
		prometheus.NewRegistry(),
		http.NotFoundHandler(),
		nil,
	)
	assert.Error(t, err)
}
