// Package commands maps CLI operations onto the RPC session and the
// transfer engine, and owns all user-facing output.
package commands

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/flipwire/flipwire/internal/protocol"
	"github.com/flipwire/flipwire/internal/rpc"
	"github.com/flipwire/flipwire/internal/transfer"
)

// Dispatcher executes one command against a connected peripheral.
type Dispatcher struct {
	session *rpc.Session
	engine  *transfer.Engine
	mtu     int
	log     zerolog.Logger
}

// NewDispatcher wires a dispatcher onto an open session. mtu is the
// transport's negotiated payload size.
func NewDispatcher(s *rpc.Session, mtu int, log zerolog.Logger) *Dispatcher {
	eng := transfer.NewEngine(sessionAdapter{s}, mtu, log)
	return &Dispatcher{session: s, engine: eng, mtu: mtu, log: log}
}

// sessionAdapter narrows *rpc.Session to the engine's Session
// interface; CallStream's concrete *rpc.Stream return needs the shim.
type sessionAdapter struct {
	s *rpc.Session
}

func (a sessionAdapter) CallOnce(ctx context.Context, content protocol.Content) (*protocol.Main, error) {
	return a.s.CallOnce(ctx, content)
}

func (a sessionAdapter) CallStream(ctx context.Context, content protocol.Content) (transfer.Stream, error) {
	return a.s.CallStream(ctx, content)
}

func (a sessionAdapter) Post(ctx context.Context, content protocol.Content) error {
	return a.s.Post(ctx, content)
}
