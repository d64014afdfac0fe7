package wowza

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestEnsureApplicationAlreadyExists(t *testing.T) {
	var created bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == serverBase+"/applications/live":
			fmt.Fprint(w, `{"name":"live"}`)
		case r.Method == http.MethodPost:
			created = true
			w.WriteHeader(http.StatusCreated)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client := newTestClient(t, server, nil)
	result, err := client.EnsureApplication(context.Background())
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if !result.Exists || result.Created {
		t.Fatalf("unexpected ensure result %+v", result)
	}
	if created {
		t.Fatal("existing application must not be recreated")
	}
}

func TestEnsureApplicationCreatesOnMiss(t *testing.T) {
	var payload applicationConfig
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet:
			w.WriteHeader(http.StatusNotFound)
		case r.Method == http.MethodPost && r.URL.Path == serverBase+"/applications":
			if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			w.WriteHeader(http.StatusCreated)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}))
	defer server.Close()

	client := newTestClient(t, server, nil)
	result, err := client.EnsureApplication(context.Background())
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if !result.Created || result.Exists {
		t.Fatalf("unexpected ensure result %+v", result)
	}
	if payload.Name != "live" || payload.AppType != "Live" {
		t.Fatalf("unexpected application config %+v", payload)
	}
	if payload.StreamConfig.StreamType != "live" {
		t.Fatalf("unexpected stream config %+v", payload.StreamConfig)
	}
}

func TestEnsureApplicationCreateFailureCarriesDetail(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusConflict)
		fmt.Fprint(w, "licence limit reached")
	}))
	defer server.Close()

	client := newTestClient(t, server, nil)
	if _, err := client.EnsureApplication(context.Background()); err == nil || !strings.Contains(err.Error(), "licence limit reached") {
		t.Fatalf("expected creation error with server detail, got %v", err)
	}
}

func TestCreateIncomingStream(t *testing.T) {
	var gotPath string
	var payload incomingStreamConfig
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	client := newTestClient(t, server, nil)
	if err := client.CreateIncomingStream(context.Background(), "stream_tm1_42"); err != nil {
		t.Fatalf("create: %v", err)
	}
	want := serverBase + "/applications/live/instances/_definst_/incomingstreams/stream_tm1_42"
	if gotPath != want {
		t.Fatalf("path %q, want %q", gotPath, want)
	}
	if payload.Name != "stream_tm1_42" || payload.SourceStreamName != "stream_tm1_42" {
		t.Fatalf("unexpected stream config %+v", payload)
	}
}

func TestDeleteIncomingStreamTolerates404(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := newTestClient(t, server, nil)
	if err := client.DeleteIncomingStream(context.Background(), "gone"); err != nil {
		t.Fatalf("deleting an absent stream must succeed: %v", err)
	}
	if err := client.RemovePushMapping(context.Background(), "gone_youtube"); err != nil {
		t.Fatalf("removing an absent mapping must succeed: %v", err)
	}
}

func TestDeleteIncomingStreamOtherFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := newTestClient(t, server, nil)
	if err := client.DeleteIncomingStream(context.Background(), "stuck"); err == nil {
		t.Fatal("expected an error for a 500 delete")
	}
}

func TestAddPushMapping(t *testing.T) {
	var payload PushMapping
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		want := serverBase + "/applications/live/pushpublish/mapentries/stream1_youtube"
		if r.URL.Path != want {
			t.Errorf("path %q, want %q", r.URL.Path, want)
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	client := newTestClient(t, server, nil)
	err := client.AddPushMapping(context.Background(), PushMapping{
		Name:             "stream1_youtube",
		SourceStreamName: "stream1",
		Host:             "a.rtmp.youtube.com",
		Application:      "live2",
		StreamName:       "yt-key",
		Enabled:          true,
	})
	if err != nil {
		t.Fatalf("add mapping: %v", err)
	}
	if payload.Host != "a.rtmp.youtube.com" || !payload.Enabled {
		t.Fatalf("unexpected mapping payload %+v", payload)
	}
}

func TestStreamStatsMapsCounters(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"messagesInCountTotal": 42, "messagesInBytesRate": 2500000}`)
	}))
	defer server.Close()

	client := newTestClient(t, server, nil)
	stats, err := client.StreamStats(context.Background(), "stream1")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if !stats.OK {
		t.Fatal("expected usable stats")
	}
	if stats.Viewers != 42 {
		t.Fatalf("viewers %d, want 42", stats.Viewers)
	}
	if stats.BitrateKbps != 2500 {
		t.Fatalf("bitrate %d kbps, want 2500", stats.BitrateKbps)
	}
}

// A decodable payload without a usable figure must not report OK, or callers
// would overwrite their last known snapshot with zeros.
func TestStreamStatsWithoutUsableFiguresNotOK(t *testing.T) {
	for name, body := range map[string]string{
		"zero counters":  `{"messagesInCountTotal": 0, "messagesInBytesRate": 0}`,
		"missing fields": `{"uptime": 120}`,
		"non-numeric":    `{"messagesInCountTotal": "n/a", "messagesInBytesRate": null}`,
		"empty object":   `{}`,
	} {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, body)
		}))
		client := newTestClient(t, server, nil)
		stats, err := client.StreamStats(context.Background(), "stream1")
		server.Close()
		if err != nil {
			t.Fatalf("%s: stats: %v", name, err)
		}
		if stats.OK {
			t.Fatalf("%s: payload without usable figures reported OK", name)
		}
		if stats.Viewers != 0 || stats.BitrateKbps != 0 {
			t.Fatalf("%s: unexpected figures %+v", name, stats)
		}
	}
}

// One usable figure is enough to refresh the snapshot.
func TestStreamStatsSingleFigureIsOK(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"messagesInBytesRate": 1500000}`)
	}))
	defer server.Close()

	client := newTestClient(t, server, nil)
	stats, err := client.StreamStats(context.Background(), "stream1")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if !stats.OK {
		t.Fatal("expected usable stats")
	}
	if stats.Viewers != 0 || stats.BitrateKbps != 1500 {
		t.Fatalf("unexpected figures %+v", stats)
	}
}

func TestStreamStatsFetchFailureIsNotAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := newTestClient(t, server, nil)
	stats, err := client.StreamStats(context.Background(), "stream1")
	if err != nil {
		t.Fatalf("fetch failures must not surface as errors: %v", err)
	}
	if stats.OK {
		t.Fatal("failed fetch reported as usable")
	}
}

func TestEndpoints(t *testing.T) {
	client, err := NewClient(Config{Host: "media.example", Username: "admin", Password: "secret"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	endpoints := client.Endpoints("stream_tm1_42")
	if endpoints.RTMP != "rtmp://media.example:1935/live" {
		t.Fatalf("unexpected rtmp url %q", endpoints.RTMP)
	}
	if endpoints.HLS != "http://media.example:1935/live/stream_tm1_42/playlist.m3u8" {
		t.Fatalf("unexpected hls url %q", endpoints.HLS)
	}
	if endpoints.DASH != "http://media.example:1935/live/stream_tm1_42/manifest.mpd" {
		t.Fatalf("unexpected dash url %q", endpoints.DASH)
	}
}
