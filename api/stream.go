package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"workboard/domain"
)

const streamHeartbeat = 30 * time.Second

// Broker wakes board streams of a workspace after its tasks change. A
// subscriber channel holds at most one pending wakeup, so bursts collapse
// into a single refresh.
type Broker struct {
	mu   sync.Mutex
	subs map[string]map[chan struct{}]struct{}
}

func NewBroker() *Broker {
	return &Broker{subs: make(map[string]map[chan struct{}]struct{})}
}

func (b *Broker) Subscribe(workspaceID string) chan struct{} {
	ch := make(chan struct{}, 1)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subs[workspaceID] == nil {
		b.subs[workspaceID] = make(map[chan struct{}]struct{})
	}
	b.subs[workspaceID][ch] = struct{}{}
	return ch
}

func (b *Broker) Unsubscribe(workspaceID string, ch chan struct{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs[workspaceID], ch)
	if len(b.subs[workspaceID]) == 0 {
		delete(b.subs, workspaceID)
	}
}

func (b *Broker) Notify(workspaceID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs[workspaceID] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Publish notifies local streams directly. It is used when no Redis channel
// connects the API instances.
func (b *Broker) Publish(_ context.Context, events ...domain.TaskEvent) error {
	for _, change := range domain.GroupByWorkspace(events) {
		b.Notify(change.WorkspaceID)
	}
	return nil
}

// SubscribeBoardUpdates relays board changes from a Redis channel to the
// broker until ctx is done. A closed subscription is reopened after a second.
func SubscribeBoardUpdates(ctx context.Context, rc *redis.Client, channel string, broker *Broker, logger log.FieldLogger) error {
	logger = logger.WithField("channel", channel)
	for {
		sub := rc.Subscribe(ctx, channel)
		relayBoardChanges(ctx, sub.Channel(), broker, logger)
		if err := sub.Close(); err != nil {
			logger.WithError(err).Debug("close subscription")
		}
		if ctx.Err() != nil {
			return nil
		}
		logger.Error("pubsub channel closed, reconnecting")
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(time.Second):
		}
	}
}

func relayBoardChanges(ctx context.Context, ch <-chan *redis.Message, broker *Broker, logger log.FieldLogger) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var change domain.BoardChange
			if err := sonic.ConfigStd.UnmarshalFromString(msg.Payload, &change); err != nil {
				logger.WithError(err).Error("unable to parse board change")
				continue
			}
			if change.WorkspaceID == "" {
				continue
			}
			broker.Notify(change.WorkspaceID)
		}
	}
}

// streamBoard pushes the filtered board as server sent events: once on
// connect and again after each change to the workspace.
func streamBoard(svc TaskService, auth Authenticator, broker *Broker, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()
		header := streamAuthHeader(req.Header.Get(echo.HeaderAuthorization), c.QueryParam("token"))
		userID, err := auth.UserIDFromAuthHeader(header)
		if err != nil {
			return errorResponse(c, "auth", &authError{err: err})
		}
		f, err := filterFromQuery(c)
		if err != nil {
			return errorResponse(c, "validate", err)
		}
		if broker == nil {
			return c.JSON(http.StatusServiceUnavailable, envelope{Error: "stream unavailable"})
		}

		ctx := req.Context()
		// first snapshot also checks membership before the stream is opened
		snapshot, err := boardEvent(ctx, svc, userID, f)
		if err != nil {
			return errorResponse(c, "store", err)
		}

		res := c.Response()
		flusher, ok := res.Writer.(http.Flusher)
		if !ok {
			return c.JSON(http.StatusInternalServerError, envelope{Error: "stream unsupported"})
		}
		res.Header().Set(echo.HeaderContentType, "text/event-stream")
		res.Header().Set(echo.HeaderCacheControl, "no-cache")
		res.Header().Set(echo.HeaderConnection, "keep-alive")
		res.Header().Set("X-Accel-Buffering", "no")
		res.WriteHeader(http.StatusOK)

		ch := broker.Subscribe(f.WorkspaceID)
		defer broker.Unsubscribe(f.WorkspaceID, ch)

		entry := logger.WithFields(log.Fields{"user": userID, "workspace": f.WorkspaceID})
		entry.Debug("board stream opened")
		defer entry.Debug("board stream closed")

		heartbeat := time.NewTicker(streamHeartbeat)
		defer heartbeat.Stop()

		for {
			if _, err := res.Write(snapshot); err != nil {
				entry.WithError(err).Warn("write board event")
				return nil
			}
			flusher.Flush()

		wait:
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-heartbeat.C:
					if _, err := res.Write([]byte(": ping\n\n")); err != nil {
						return nil
					}
					flusher.Flush()
				case <-ch:
					break wait
				}
			}

			snapshot, err = boardEvent(ctx, svc, userID, f)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				entry.WithError(err).Error("refresh board")
				return nil
			}
		}
	}
}

func boardEvent(ctx context.Context, svc TaskService, userID string, f domain.TaskFilter) ([]byte, error) {
	b, err := svc.Board(ctx, userID, f)
	if err != nil {
		return nil, err
	}
	data, err := sonic.ConfigStd.Marshal(boardResponse{Columns: b.Columns()})
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(data)+8)
	out = append(out, "data: "...)
	out = append(out, data...)
	return append(out, '\n', '\n'), nil
}
