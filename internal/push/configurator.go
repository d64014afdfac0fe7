// Package push fans a provisioned stream out to external platforms by
// registering push-publish mappings on the media server, one per platform.
package push

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"golang.org/x/sync/errgroup"

	"samhost/internal/models"
	"samhost/internal/wowza"
)

// fallbackApplication is used when a platform ingest URL cannot be parsed
// into host and application segments.
const fallbackApplication = "live"

// Gateway is the subset of the media server API the configurator needs.
type Gateway interface {
	AddPushMapping(ctx context.Context, mapping wowza.PushMapping) error
	RemovePushMapping(ctx context.Context, name string) error
}

// Target is one resolved platform destination: where to push and with which
// credential.
type Target struct {
	PlatformCode string
	PlatformName string
	IngestURL    string
	StreamKey    string
}

// Configurator registers and removes per-platform push mappings.
type Configurator struct {
	gateway Gateway
	logger  *slog.Logger
}

// NewConfigurator wires a configurator against the given gateway.
func NewConfigurator(gateway Gateway, logger *slog.Logger) *Configurator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Configurator{gateway: gateway, logger: logger}
}

// Configure registers one push mapping per target. Targets are attempted
// concurrently and independently: a failure on one platform never prevents
// the others, and the call returns only once every target has resolved.
// Results are returned in target order, one per input.
func (c *Configurator) Configure(ctx context.Context, streamName string, targets []Target) []models.PlatformPushResult {
	results := make([]models.PlatformPushResult, len(targets))

	var group errgroup.Group
	for i, target := range targets {
		i, target := i, target
		group.Go(func() error {
			results[i] = c.configureOne(ctx, streamName, target)
			return nil
		})
	}
	group.Wait()

	return results
}

func (c *Configurator) configureOne(ctx context.Context, streamName string, target Target) models.PlatformPushResult {
	name := MappingName(streamName, target.PlatformCode)
	host, application := parseIngest(target.IngestURL)

	err := c.gateway.AddPushMapping(ctx, wowza.PushMapping{
		Name:             name,
		SourceStreamName: streamName,
		Host:             host,
		Application:      application,
		StreamName:       target.StreamKey,
		Enabled:          true,
	})
	if err != nil {
		c.logger.Warn("push mapping registration failed",
			"platform", target.PlatformCode, "mapping", name, "error", err)
		return models.PlatformPushResult{
			Platform:    target.PlatformCode,
			MappingName: name,
			Success:     false,
			Error:       err.Error(),
		}
	}
	return models.PlatformPushResult{
		Platform:    target.PlatformCode,
		MappingName: name,
		Success:     true,
	}
}

// Teardown removes the mappings recorded as successfully registered.
// Removal is best-effort: failures are logged and do not stop the remaining
// removals, and mappings that are already gone count as removed.
func (c *Configurator) Teardown(ctx context.Context, results []models.PlatformPushResult) {
	for _, result := range results {
		if !result.Success || result.MappingName == "" {
			continue
		}
		if err := c.gateway.RemovePushMapping(ctx, result.MappingName); err != nil {
			c.logger.Warn("push mapping removal failed",
				"platform", result.Platform, "mapping", result.MappingName, "error", err)
		}
	}
}

// MappingName builds the per-session, per-platform unique push mapping name.
func MappingName(streamName, platformCode string) string {
	return fmt.Sprintf("%s_%s", streamName, platformCode)
}

// parseIngest extracts host and application segment from an RTMP ingest URL.
// rtmp/rtmps are normalized to http/https for parsing. A malformed URL
// degrades to a best-effort split so one broken platform does not block the
// fan-out.
func parseIngest(ingestURL string) (host, application string) {
	normalized := ingestURL
	switch {
	case strings.HasPrefix(normalized, "rtmps://"):
		normalized = "https://" + strings.TrimPrefix(normalized, "rtmps://")
	case strings.HasPrefix(normalized, "rtmp://"):
		normalized = "http://" + strings.TrimPrefix(normalized, "rtmp://")
	}

	parsed, err := url.Parse(normalized)
	if err == nil && parsed.Hostname() != "" {
		host = parsed.Hostname()
		segments := strings.Split(strings.Trim(parsed.Path, "/"), "/")
		if len(segments) > 0 && segments[0] != "" {
			return host, segments[0]
		}
		return host, fallbackApplication
	}

	parts := strings.Split(ingestURL, "/")
	if len(parts) > 2 {
		host = parts[2]
	} else {
		host = ingestURL
	}
	if len(parts) > 3 && parts[3] != "" {
		return host, parts[3]
	}
	return host, fallbackApplication
}
