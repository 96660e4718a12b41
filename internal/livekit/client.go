// Package livekit wraps the conferencing provider's control API: room-composite
// egress jobs writing into object storage, active-room checks, and participant
// join tokens.
package livekit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/livekit/protocol/auth"
	"github.com/livekit/protocol/livekit"
	lksdk "github.com/livekit/server-sdk-go"
	"go.uber.org/zap"
)

// ErrNotConfigured is returned by every operation when provider credentials are absent.
var ErrNotConfigured = errors.New("livekit not configured")

// S3Output holds the storage destination handed to the provider for egress output.
type S3Output struct {
	AccessKey string
	Secret    string
	Region    string
	Bucket    string
}

// Config holds LiveKit server API settings.
type Config struct {
	URL       string
	APIKey    string
	APISecret string
	S3        S3Output
}

// Client wraps the egress and room service clients. Missing credentials yield a
// disabled client; callers check Enabled() and treat recording as unavailable.
type Client struct {
	egress *lksdk.EgressClient
	rooms  *lksdk.RoomServiceClient
	cfg    Config
	logger *zap.Logger
}

// New creates a LiveKit client.
func New(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{cfg: cfg, logger: logger}
	if cfg.URL == "" || cfg.APIKey == "" || cfg.APISecret == "" {
		logger.Warn("livekit disabled (url or credentials not set)")
		return c
	}
	c.egress = lksdk.NewEgressClient(cfg.URL, cfg.APIKey, cfg.APISecret)
	c.rooms = lksdk.NewRoomServiceClient(cfg.URL, cfg.APIKey, cfg.APISecret)
	logger.Info("livekit client ready", zap.String("url", cfg.URL))
	return c
}

// Enabled reports whether the provider API is available.
func (c *Client) Enabled() bool { return c != nil && c.egress != nil }

// RoomActive reports whether the named room currently exists on the provider.
func (c *Client) RoomActive(ctx context.Context, roomName string) (bool, error) {
	if !c.Enabled() {
		return false, ErrNotConfigured
	}
	resp, err := c.rooms.ListRooms(ctx, &livekit.ListRoomsRequest{Names: []string{roomName}})
	if err != nil {
		return false, fmt.Errorf("list rooms: %w", err)
	}
	return len(resp.Rooms) > 0, nil
}

// StartCompositeToStorage requests a grid-layout composite recording of the room,
// written as an MP4 object at the given key in the configured bucket. Returns the
// provider's egress job handle.
func (c *Client) StartCompositeToStorage(ctx context.Context, roomName, key string) (string, error) {
	if !c.Enabled() {
		return "", ErrNotConfigured
	}
	info, err := c.egress.StartRoomCompositeEgress(ctx, &livekit.RoomCompositeEgressRequest{
		RoomName: roomName,
		Layout:   "grid",
		FileOutputs: []*livekit.EncodedFileOutput{{
			FileType: livekit.EncodedFileType_MP4,
			Filepath: key,
			Output: &livekit.EncodedFileOutput_S3{
				S3: &livekit.S3Upload{
					AccessKey: c.cfg.S3.AccessKey,
					Secret:    c.cfg.S3.Secret,
					Region:    c.cfg.S3.Region,
					Bucket:    c.cfg.S3.Bucket,
				},
			},
		}},
	})
	if err != nil {
		return "", fmt.Errorf("start room composite egress: %w", err)
	}
	return info.EgressId, nil
}

// Stop requests the provider to finalize the egress job. The file location
// arrives later via the egress_ended webhook, not here.
func (c *Client) Stop(ctx context.Context, egressID string) error {
	if !c.Enabled() {
		return ErrNotConfigured
	}
	if _, err := c.egress.StopEgress(ctx, &livekit.StopEgressRequest{EgressId: egressID}); err != nil {
		return fmt.Errorf("stop egress: %w", err)
	}
	return nil
}

// EgressStatus returns the provider-side status string for an egress job.
func (c *Client) EgressStatus(ctx context.Context, egressID string) (string, error) {
	if !c.Enabled() {
		return "", ErrNotConfigured
	}
	resp, err := c.egress.ListEgress(ctx, &livekit.ListEgressRequest{EgressId: egressID})
	if err != nil {
		return "", fmt.Errorf("list egress: %w", err)
	}
	if len(resp.Items) == 0 {
		return "", fmt.Errorf("egress %s not found", egressID)
	}
	return resp.Items[0].Status.String(), nil
}

// JoinToken issues a room access token for a session participant. Tutors can
// publish; everyone else is subscribe-only.
func (c *Client) JoinToken(roomName, identity, name string, canPublish bool, ttl time.Duration) (string, error) {
	if c == nil || c.cfg.APIKey == "" || c.cfg.APISecret == "" {
		return "", ErrNotConfigured
	}
	t := true
	grant := &auth.VideoGrant{
		RoomJoin:     true,
		Room:         roomName,
		CanPublish:   &canPublish,
		CanSubscribe: &t,
	}
	at := auth.NewAccessToken(c.cfg.APIKey, c.cfg.APISecret)
	at.AddGrant(grant).SetIdentity(identity).SetName(name).SetValidFor(ttl)
	return at.ToJWT()
}
