package agentstream

import (
	"context"
	"errors"
	"io"

	"github.com/papercomputeco/hedge/pkg/sse"
)

// Consume is the reader loop of one session. It frames body into SSE
// events, classifies each one, and applies them to s strictly in arrival
// order until the body ends.
//
// Terminal handling:
//   - natural end of body: s finishes with ReasonEOF (a no-op after DONE)
//   - read failure: s finishes with ReasonTransportError and the error is returned
//   - ctx cancelled or tee destination gone: s is aborted, nothing is delivered
//
// Without a tee Consume returns as soon as DONE has been applied, even if
// the agent keeps the connection open. With a tee it keeps reading to the
// end of body so the destination still receives the full byte stream.
func Consume(ctx context.Context, body io.Reader, s *Session, opts ...sse.ReaderOption) error {
	r := sse.NewReader(body, opts...)

	for {
		if err := ctx.Err(); err != nil {
			s.Abort()
			return err
		}

		ev, err := r.Next()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				s.Abort()
				return ctxErr
			}

			var teeErr *sse.TeeError
			if errors.As(err, &teeErr) {
				s.logger.Debug("stream consumer went away", "conversation_id", s.ConversationID(), "error", err)
				s.Abort()
				return err
			}

			s.logger.Warn("agent stream failed", "conversation_id", s.ConversationID(), "error", err)
			if sinkErr := s.Finish(ctx, ReasonTransportError, err); sinkErr != nil {
				return errors.Join(err, sinkErr)
			}
			return err
		}

		if ev == nil {
			if rem := r.Remainder(); rem != "" {
				s.logger.Debug("dropped unterminated trailing event", "conversation_id", s.ConversationID(), "bytes", len(rem))
			}
			return s.Finish(ctx, ReasonEOF, nil)
		}

		s.Apply(ctx, Classify(ev))
		if s.Terminal() && !r.Tees() {
			return nil
		}
	}
}
