// README: Call-room provisioning for requester↔operator voice/video.
package rooms

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Provider provisions a named room with a participant cap.
type Provider interface {
	CreateRoom(ctx context.Context, name string, maxParticipants int) error
}

// NewName returns a fresh room name for an emergency request.
func NewName() string {
	return "emergencia-" + uuid.NewString()
}

// NoopProvider satisfies Provider when no media backend is configured;
// rooms exist only as names on the request.
type NoopProvider struct {
	log zerolog.Logger
}

func NewNoopProvider(log zerolog.Logger) *NoopProvider {
	return &NoopProvider{log: log.With().Str("component", "rooms").Logger()}
}

func (p *NoopProvider) CreateRoom(_ context.Context, name string, maxParticipants int) error {
	if name == "" {
		return fmt.Errorf("nombre de sala vacío")
	}
	p.log.Debug().Str("room", name).Int("max", maxParticipants).Msg("sala registrada")
	return nil
}
