package connectivity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestManualSignalNotifiesOnChange(t *testing.T) {
	sig := NewManualSignal(true)

	var got []bool
	sig.Subscribe(func(online bool) {
		got = append(got, online)
	})

	sig.Set(false)
	sig.Set(true)

	if !sig.Online() {
		t.Fatal("expected online after final Set(true)")
	}
	if len(got) != 2 || got[0] != false || got[1] != true {
		t.Fatalf("expected notifications [false true], got %v", got)
	}
}

func TestManualSignalIgnoresRedundantSet(t *testing.T) {
	sig := NewManualSignal(true)

	calls := 0
	sig.Subscribe(func(bool) { calls++ })

	sig.Set(true)
	sig.Set(true)

	if calls != 0 {
		t.Fatalf("expected no notifications for unchanged state, got %d", calls)
	}
}

func TestProbeMonitorDetectsReachableEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	m := NewProbeMonitor(ProbeConfig{URL: srv.URL, Timeout: time.Second})

	if !m.probe(context.Background()) {
		t.Fatal("expected probe against live server to report online")
	}

	srv.Close()
	if m.probe(context.Background()) {
		t.Fatal("expected probe against closed server to report offline")
	}
}
