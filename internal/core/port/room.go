package port

import (
	"context"

	"github.com/Wyydra/huddle/internal/core/domain"
)

// RoomProvider is the external media-routing backend that owns rooms and
// traversal credentials.
type RoomProvider interface {
	CreateRoom(ctx context.Context, name string) (*domain.Room, error)
	JoinRoom(ctx context.Context, name string) (*domain.Room, error)
	ValidateRoom(ctx context.Context, name string) bool
	EndRoom(ctx context.Context, name string) bool
	ICEServers(ctx context.Context) []domain.ICEServer
}
