package nativemsg

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/focusgate/internal/domain"
	"github.com/eliteGoblin/focusd/focusgate/internal/usecase"
)

// Handler executes engine commands. *usecase.Engine implements it.
type Handler interface {
	Handle(ctx context.Context, cmd usecase.Command) (any, error)
}

// Host reads requests from the browser, answers each with a Response and
// forwards engine events as Broadcast frames. Frames are written whole
// under a mutex so responses and broadcasts never interleave.
type Host struct {
	handler Handler
	in      io.Reader
	out     io.Writer
	logger  *zap.Logger

	wmu sync.Mutex
}

// NewHost creates a host over the given streams (normally stdin/stdout).
func NewHost(handler Handler, in io.Reader, out io.Writer, logger *zap.Logger) *Host {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Host{
		handler: handler,
		in:      in,
		out:     out,
		logger:  logger,
	}
}

// Notify forwards an engine event to the browser.
func (h *Host) Notify(e domain.Event) {
	if err := h.write(encodeEvent(e)); err != nil {
		h.logger.Warn("failed to broadcast event", zap.String("type", string(e.Kind)), zap.Error(err))
	}
}

// Serve handles requests until the browser closes the stream (returns nil)
// or the stream breaks. Requests are handled one at a time in order.
func (h *Host) Serve(ctx context.Context) error {
	h.logger.Info("native messaging host started")
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		frame, err := ReadFrame(h.in)
		if errors.Is(err, io.EOF) {
			h.logger.Info("browser closed the connection")
			return nil
		}
		if err != nil {
			return err
		}

		resp := h.handle(ctx, frame)
		err = h.write(resp)
		if errors.Is(err, ErrFrameTooLarge) {
			// Nothing was written; the stream is still usable.
			h.logger.Warn("response too large", zap.String("type", resp.Type), zap.Error(err))
			err = h.write(Response{ID: resp.ID, Type: resp.Type, Error: err.Error()})
		}
		if err != nil {
			return err
		}
	}
}

// Syncer picks up changes committed by other processes.
// *usecase.Engine implements it.
type Syncer interface {
	Sync(ctx context.Context) error
}

// Watch syncs every interval until ctx is done, so resets run by the
// daemon and commands run from the CLI reach the browser as broadcasts.
// The host must be subscribed to the engine behind s.
func (h *Host) Watch(ctx context.Context, s Syncer, clock clockwork.Clock, interval time.Duration) error {
	if err := s.Sync(ctx); err != nil {
		h.logger.Warn("sync failed", zap.Error(err))
	}

	ticker := clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.Chan():
			if err := s.Sync(ctx); err != nil {
				h.logger.Warn("sync failed", zap.Error(err))
			}
		}
	}
}

func (h *Host) handle(ctx context.Context, frame []byte) Response {
	var req Request
	if err := json.Unmarshal(frame, &req); err != nil {
		h.logger.Warn("malformed request", zap.Error(err))
		return Response{Error: "malformed request: " + err.Error()}
	}
	resp := Response{ID: req.ID, Type: req.Type}

	cmd, err := Decode(req)
	if err != nil {
		resp.Error = err.Error()
		return resp
	}

	result, err := h.handler.Handle(ctx, cmd)
	if err != nil {
		h.logger.Debug("command rejected", zap.String("type", req.Type), zap.Error(err))
		resp.Error = err.Error()
		return resp
	}
	resp.Result = encodeResult(result)
	return resp
}

func (h *Host) write(v any) error {
	h.wmu.Lock()
	defer h.wmu.Unlock()
	return WriteFrame(h.out, v)
}

var _ domain.Notifier = (*Host)(nil)
var _ Syncer = (*usecase.Engine)(nil)
