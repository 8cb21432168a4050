package led

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/agora/ranking"
)

var sampleLEDs = []ranking.LEDStatus{
	{Index: 1, Name: "Marcus", Color: "#3B82F6", Confidence: 72},
	{Index: 2, Name: "Simone", Color: "#EF4444", Confidence: 40},
}

func TestPoller_Fetch(t *testing.T) {
	tests := []struct {
		name     string
		room     string
		wantPath string
	}{
		{"default room", "", "/api/led-status"},
		{"named room", "lobby", "/api/v1/rooms/lobby/led-status"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, tt.wantPath, r.URL.Path)
				assert.Equal(t, "k", r.Header.Get("X-API-Key"))
				w.Header().Set("Content-Type", "application/json")
				json.NewEncoder(w).Encode(sampleLEDs)
			}))
			defer srv.Close()

			p := NewPoller(ClientConfig{BaseURL: srv.URL + "/", Room: tt.room, APIKey: "k"}, nil)
			leds, err := p.Fetch(context.Background())
			require.NoError(t, err)
			assert.Equal(t, sampleLEDs, leds)
		})
	}
}

func TestPoller_FetchErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		w.Write([]byte("not json"))
	}))
	defer srv.Close()

	_, err := NewPoller(ClientConfig{BaseURL: srv.URL}, nil).Fetch(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 401")

	_, err = NewPoller(ClientConfig{BaseURL: srv.URL, Token: "tok"}, nil).Fetch(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode")
}

func TestPoller_RunKeepsPollingAfterErrors(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n == 1 {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(sampleLEDs)
	}))
	defer srv.Close()

	errs := make(chan error, 10)
	p := NewPoller(ClientConfig{BaseURL: srv.URL, Interval: 10 * time.Millisecond}, func(err error) {
		select {
		case errs <- err:
		default:
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	got := make(chan []ranking.LEDStatus, 10)
	done := make(chan error, 1)
	go func() {
		done <- p.Run(ctx, func(leds []ranking.LEDStatus) {
			select {
			case got <- leds:
			default:
			}
		})
	}()

	select {
	case leds := <-got:
		assert.Equal(t, sampleLEDs, leds)
	case <-time.After(5 * time.Second):
		t.Fatal("no status emitted")
	}
	assert.NotEmpty(t, errs)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestSubscriber_RequiresRoom(t *testing.T) {
	err := NewSubscriber(ClientConfig{BaseURL: "http://localhost"}, nil).Run(context.Background(), func([]ranking.LEDStatus) {})
	assert.Error(t, err)
}

func TestSubscriber_Run(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/rooms/main/stream", r.URL.Path)
		assert.Equal(t, "k", r.Header.Get("X-API-Key"))
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()
		ctx := r.Context()
		wsjson.Write(ctx, conn, map[string]any{"type": "status", "room_id": 1, "leds": sampleLEDs})
		// 保持连接直到客户端断开
		conn.Read(ctx)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	got := make(chan []ranking.LEDStatus, 1)
	done := make(chan error, 1)
	go func() {
		done <- NewSubscriber(ClientConfig{BaseURL: srv.URL, Room: "main", APIKey: "k"}, nil).Run(ctx, func(leds []ranking.LEDStatus) {
			select {
			case got <- leds:
			default:
			}
		})
	}()

	select {
	case leds := <-got:
		assert.Equal(t, sampleLEDs, leds)
	case <-time.After(5 * time.Second):
		t.Fatal("no update received")
	}

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestSubscriber_ReconnectsAfterDrop(t *testing.T) {
	var mu sync.Mutex
	sessions := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		mu.Lock()
		sessions++
		n := sessions
		mu.Unlock()
		if n == 1 {
			conn.Close(websocket.StatusGoingAway, "restart")
			return
		}
		defer conn.CloseNow()
		wsjson.Write(r.Context(), conn, map[string]any{"type": "status", "leds": sampleLEDs})
		conn.Read(r.Context())
	}))
	defer srv.Close()

	errs := make(chan error, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	got := make(chan []ranking.LEDStatus, 1)
	go NewSubscriber(ClientConfig{BaseURL: srv.URL, Room: "main", Interval: 10 * time.Millisecond}, func(err error) {
		select {
		case errs <- err:
		default:
		}
	}).Run(ctx, func(leds []ranking.LEDStatus) {
		select {
		case got <- leds:
		default:
		}
	})

	select {
	case leds := <-got:
		assert.Equal(t, sampleLEDs, leds)
	case <-time.After(5 * time.Second):
		t.Fatal("no update after reconnect")
	}
	assert.NotEmpty(t, errs)
}
