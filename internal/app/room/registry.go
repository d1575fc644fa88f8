/*
Package room contains the shared room registry and the per-room event loop used
by both relay kinds.

This file defines the Registry, which maps room identity to a live Room,
creating rooms on first join and removing them once their loop has finished.
*/
package room

import (
	"sync"

	"github.com/rs/zerolog"

	"talkrelay/internal/pkg/errs"
	"talkrelay/internal/pkg/logx"
)

const cleanupChannelBuffer = 16

// Registry is the process-wide mapping from room identity to Room. Rooms of
// different kinds live in separate namespaces, so a chat room and a signaling
// room may share a board-derived identifier.
type Registry struct {
	// rooms maps the namespaced room key to the live Room.
	rooms map[string]*Room

	// factory builds the relay for each newly created room.
	factory RelayFactory

	// mu protects concurrent access to the rooms map.
	mu sync.RWMutex

	// cleanup is the channel rooms notify when their loop finishes.
	cleanup chan cleanupMsg

	// wg waits for the cleanup goroutine during shutdown.
	wg sync.WaitGroup

	logger zerolog.Logger
}

// NewRegistry constructs a Registry and starts its cleanup loop.
func NewRegistry(factory RelayFactory) *Registry {
	registryLogger := logx.Logger().With().Str("component", "Registry").Logger()

	g := &Registry{
		rooms:   make(map[string]*Room),
		factory: factory,
		cleanup: make(chan cleanupMsg, cleanupChannelBuffer),
		logger:  registryLogger,
	}

	g.wg.Add(1)
	go g.runCleanupLoop()

	return g
}

// roomKey namespaces room identifiers by kind.
func roomKey(kind Kind, roomID string) string {
	return string(kind) + "/" + roomID
}

// Join adds m to the room identified by (kind, roomID), creating the room on
// first join. The capacity check runs inside the room loop, atomically with
// the insert: a third join to a signaling room always fails with ErrRoomFull
// and leaves the existing members untouched. The caller must close m's
// connection itself when Join fails.
func (g *Registry) Join(kind Kind, roomID string, m Member) (*Room, *errs.CustomError) {
	if !kind.Valid() {
		return nil, errs.NewError(errs.ErrRoomKindInvalid)
	}

	for {
		r := g.getOrCreate(kind, roomID)

		req := joinRequest{member: m, reply: make(chan *errs.CustomError, 1)}
		if !r.requestJoin(req) {
			// Raced with the room tearing down; retry against a fresh one.
			g.removeIfCurrent(r.key, r)
			continue
		}

		if err := <-req.reply; err != nil {
			return nil, err
		}
		return r, nil
	}
}

// RoomCount returns the number of live rooms. Intended for health reporting.
func (g *Registry) RoomCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.rooms)
}

// getOrCreate returns the live room for the key, creating and starting one if
// absent.
func (g *Registry) getOrCreate(kind Kind, roomID string) *Room {
	key := roomKey(kind, roomID)

	g.mu.RLock()
	r, ok := g.rooms[key]
	g.mu.RUnlock()
	if ok {
		return r
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if r, ok := g.rooms[key]; ok {
		return r
	}

	r = newRoom(key, roomID, kind, g.factory(kind, roomID, g.logger), g.cleanup)
	g.rooms[key] = r
	go r.run()

	g.logger.Info().
		Str("room_id", roomID).
		Str("room_kind", string(kind)).
		Msg("New room created and started.")

	return r
}

// runCleanupLoop removes rooms from the map as their loops finish.
func (g *Registry) runCleanupLoop() {
	defer g.wg.Done()

	g.logger.Info().Msg("Cleanup loop started.")

	for msg := range g.cleanup {
		g.removeIfCurrent(msg.key, msg.room)
	}

	g.logger.Info().Msg("Cleanup loop stopped.")
}

// removeIfCurrent deletes the map entry only if it still points at the dead
// room; a fresh room may already have replaced it.
func (g *Registry) removeIfCurrent(key string, dead *Room) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if current, ok := g.rooms[key]; ok && current == dead {
		delete(g.rooms, key)
		g.logger.Info().Str("room_key", key).Msg("Room removed from registry.")
	}
}

// Shutdown stops every room loop, closes the cleanup channel, and waits for
// the cleanup goroutine to exit.
func (g *Registry) Shutdown() {
	g.logger.Info().Msg("Shutting down Registry...")

	g.mu.Lock()
	for _, r := range g.rooms {
		r.Stop()
	}
	g.rooms = make(map[string]*Room)
	g.mu.Unlock()

	close(g.cleanup)
	g.wg.Wait()

	g.logger.Info().Msg("Registry shutdown complete.")
}
