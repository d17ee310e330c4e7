package server

import (
	"context"
)

// Run serves requests one at a time, in arrival order, until ctx is
// cancelled. Each request is fully handled, including any ledger write,
// before its reply is sent and the next request is received. A transport
// failure or a failed ledger write ends the loop with an error.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("Control loop started", "accounts", s.store.Account().Len())

	for {
		req, err := s.receiver.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		resp, err := s.dispatcher.Handle(ctx, req)
		if err != nil {
			return err
		}

		if err := s.receiver.Reply(ctx, resp); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}
