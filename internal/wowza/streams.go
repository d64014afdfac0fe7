package wowza

import (
	"context"
	"fmt"
	"net/http"
)

// EnsureResult distinguishes an application that already existed from one the
// gateway just created.
type EnsureResult struct {
	Exists  bool
	Created bool
}

type applicationConfig struct {
	Name         string       `json:"name"`
	AppType      string       `json:"appType"`
	Description  string       `json:"description"`
	StreamConfig streamConfig `json:"streamConfig"`
}

type streamConfig struct {
	StreamType string `json:"streamType"`
}

// EnsureApplication checks for the live application and creates it only when
// the existence check misses. A non-success creation response is returned as
// an error carrying the server's detail.
func (c *Client) EnsureApplication(ctx context.Context) (EnsureResult, error) {
	check, err := c.Request(ctx, http.MethodGet, fmt.Sprintf("%s/applications/%s", serverBase, c.cfg.Application), nil)
	if err != nil {
		return EnsureResult{}, err
	}
	if check.Success {
		return EnsureResult{Exists: true}, nil
	}

	created, err := c.Request(ctx, http.MethodPost, serverBase+"/applications", applicationConfig{
		Name:         c.cfg.Application,
		AppType:      "Live",
		Description:  "Live streaming application for multi-platform broadcasting",
		StreamConfig: streamConfig{StreamType: "live"},
	})
	if err != nil {
		return EnsureResult{}, err
	}
	if !created.Success {
		return EnsureResult{}, fmt.Errorf("create application %s: %s", c.cfg.Application, created.Detail())
	}
	return EnsureResult{Created: true}, nil
}

type incomingStreamConfig struct {
	Name                  string `json:"name"`
	SourceStreamName      string `json:"sourceStreamName"`
	DestinationStreamName string `json:"destinationStreamName"`
	ApplicationName       string `json:"applicationName"`
}

// CreateIncomingStream registers a server-side incoming stream under the live
// application.
func (c *Client) CreateIncomingStream(ctx context.Context, streamName string) error {
	result, err := c.Request(ctx, http.MethodPut, c.incomingStreamPath(streamName), incomingStreamConfig{
		Name:                  streamName,
		SourceStreamName:      streamName,
		DestinationStreamName: streamName,
		ApplicationName:       c.cfg.Application,
	})
	if err != nil {
		return err
	}
	if !result.Success {
		return fmt.Errorf("create incoming stream %s: %s", streamName, result.Detail())
	}
	return nil
}

// DeleteIncomingStream removes the incoming stream registration. A 404 is
// treated as success: the stream being gone is the desired end state.
func (c *Client) DeleteIncomingStream(ctx context.Context, streamName string) error {
	result, err := c.Request(ctx, http.MethodDelete, c.incomingStreamPath(streamName), nil)
	if err != nil {
		return err
	}
	if !result.Success && result.StatusCode != http.StatusNotFound {
		return fmt.Errorf("delete incoming stream %s: %s", streamName, result.Detail())
	}
	return nil
}

// PushMapping describes one push-publish map entry relaying the incoming
// stream to an external platform ingest.
type PushMapping struct {
	Name             string `json:"name"`
	SourceStreamName string `json:"sourceStreamName"`
	Host             string `json:"host"`
	Application      string `json:"application"`
	StreamName       string `json:"streamName"`
	UserName         string `json:"userName"`
	Password         string `json:"password"`
	Enabled          bool   `json:"enabled"`
}

// AddPushMapping registers a push-publish map entry under the live
// application.
func (c *Client) AddPushMapping(ctx context.Context, mapping PushMapping) error {
	result, err := c.Request(ctx, http.MethodPut, c.pushMappingPath(mapping.Name), mapping)
	if err != nil {
		return err
	}
	if !result.Success {
		return fmt.Errorf("add push mapping %s: %s", mapping.Name, result.Detail())
	}
	return nil
}

// RemovePushMapping deletes a push-publish map entry, tolerating entries that
// are already gone.
func (c *Client) RemovePushMapping(ctx context.Context, name string) error {
	result, err := c.Request(ctx, http.MethodDelete, c.pushMappingPath(name), nil)
	if err != nil {
		return err
	}
	if !result.Success && result.StatusCode != http.StatusNotFound {
		return fmt.Errorf("remove push mapping %s: %s", name, result.Detail())
	}
	return nil
}

// StreamStats is the usable subset of the incoming-stream statistics payload.
type StreamStats struct {
	Viewers     int
	BitrateKbps int
	// OK reports whether the server returned usable figures. Callers keep
	// their previous snapshot when OK is false.
	OK bool
}

// StreamStats fetches live statistics for an incoming stream. Fetch failures
// and payloads without a usable figure are reported with OK=false rather than
// as errors so callers can retain the last known snapshot.
func (c *Client) StreamStats(ctx context.Context, streamName string) (StreamStats, error) {
	result, err := c.Request(ctx, http.MethodGet, c.incomingStreamPath(streamName)+"/stats", nil)
	if err != nil {
		return StreamStats{}, err
	}
	if !result.Success {
		return StreamStats{}, nil
	}
	payload, ok := result.Data.(map[string]any)
	if !ok {
		return StreamStats{}, nil
	}

	var stats StreamStats
	if count, ok := numericField(payload, "messagesInCountTotal"); ok {
		stats.Viewers = int(count)
		stats.OK = true
	}
	if rate, ok := numericField(payload, "messagesInBytesRate"); ok {
		stats.BitrateKbps = int(rate / 1000)
		stats.OK = true
	}
	return stats, nil
}

// Endpoints groups the caller-facing URLs for a provisioned stream.
type Endpoints struct {
	RTMP string `json:"rtmpUrl"`
	HLS  string `json:"hlsUrl"`
	DASH string `json:"dashUrl"`
}

// Endpoints derives the ingest confirmation and playback URLs for a stream
// name from the configured host and application.
func (c *Client) Endpoints(streamName string) Endpoints {
	base := fmt.Sprintf("%s:%d/%s", c.cfg.Host, c.cfg.StreamingPort, c.cfg.Application)
	return Endpoints{
		RTMP: fmt.Sprintf("rtmp://%s", base),
		HLS:  fmt.Sprintf("http://%s/%s/playlist.m3u8", base, streamName),
		DASH: fmt.Sprintf("http://%s/%s/manifest.mpd", base, streamName),
	}
}

// TestConnection verifies the server is reachable and the credentials are
// accepted.
func (c *Client) TestConnection(ctx context.Context) (bool, error) {
	result, err := c.Request(ctx, http.MethodGet, serverBase, nil)
	if err != nil {
		return false, err
	}
	return result.Success, nil
}

// ListApplications returns the raw applications listing for the operator
// servers view.
func (c *Client) ListApplications(ctx context.Context) (Result, error) {
	return c.Request(ctx, http.MethodGet, serverBase+"/applications", nil)
}

// ServerInfo returns the raw server descriptor.
func (c *Client) ServerInfo(ctx context.Context) (Result, error) {
	return c.Request(ctx, http.MethodGet, serverBase, nil)
}

func (c *Client) incomingStreamPath(streamName string) string {
	return fmt.Sprintf("%s/applications/%s/instances/_definst_/incomingstreams/%s", serverBase, c.cfg.Application, streamName)
}

func (c *Client) pushMappingPath(name string) string {
	return fmt.Sprintf("%s/applications/%s/pushpublish/mapentries/%s", serverBase, c.cfg.Application, name)
}

func numericField(payload map[string]any, key string) (float64, bool) {
	value, ok := payload[key]
	if !ok {
		return 0, false
	}
	switch v := value.(type) {
	case float64:
		return v, v > 0
	case int:
		return float64(v), v > 0
	default:
		return 0, false
	}
}
