// Package directory lists the rooms a user belongs to.
package directory

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/npezzotti/go-chatroom/internal/database"
	"github.com/npezzotti/go-chatroom/internal/presence"
	"github.com/npezzotti/go-chatroom/internal/types"
	"golang.org/x/sync/errgroup"
)

const maxConcurrentLoads = 8

type Store interface {
	ListRoomsForAccount(ctx context.Context, accountId int) ([]database.Room, error)
	GetParticipantsWithPresence(ctx context.Context, roomId string) ([]database.Participant, error)
}

type Directory struct {
	store Store
	log   *log.Logger
	now   func() time.Time
}

func New(store Store, logger *log.Logger) *Directory {
	return &Directory{store: store, log: logger, now: time.Now}
}

// ListRooms returns the user's rooms, newest first, with participant and
// online counts.
func (d *Directory) ListRooms(ctx context.Context, accountId int) ([]types.RoomSummary, error) {
	rooms, err := d.store.ListRoomsForAccount(ctx, accountId)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}

	summaries := make([]types.RoomSummary, len(rooms))
	now := d.now()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentLoads)
	for i, room := range rooms {
		summaries[i] = types.RoomSummary{
			Id:        room.Id,
			Name:      room.Name,
			CreatedAt: room.CreatedAt,
		}
		g.Go(func() error {
			ps, err := d.store.GetParticipantsWithPresence(gctx, room.Id)
			if err != nil {
				return fmt.Errorf("load participants of room %q: %w", room.Id, err)
			}

			online := 0
			for _, p := range ps {
				if presence.IsOnline(p.LastSeen, now) {
					online++
				}
			}
			summaries[i].ParticipantCount = len(ps)
			summaries[i].OnlineCount = online
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		d.log.Println("ListRooms:", err)
		return nil, err
	}

	return summaries, nil
}
