package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/holiman/uint256"
)

func TestWSHub_PublishOdds(t *testing.T) {
	hub := NewWSHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- hub.Run(ctx) }()

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.Clients() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	hub.PublishOdds("m-1", []uint256.Int{*uint256.NewInt(17657), *uint256.NewInt(26521)})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatal(err)
	}
	if msg.Type != "odds_changed" || msg.MarketID != "m-1" {
		t.Errorf("unexpected message %+v", msg)
	}
	if len(msg.Odds) != 2 || msg.Odds[0].String() != "1.7657" || msg.OddsBps[1] != "26521" {
		t.Errorf("odds = %v / %v", msg.Odds, msg.OddsBps)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
	if hub.Clients() != 0 {
		t.Errorf("clients not closed on shutdown")
	}
}

func TestWSHub_BroadcastWithoutClients(t *testing.T) {
	hub := NewWSHub(nil)
	// No Run loop: the buffered channel absorbs messages, then drops.
	for i := 0; i < 300; i++ {
		hub.PublishOdds("m-1", nil)
	}
}
