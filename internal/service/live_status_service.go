package service

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/unhalum90/newveritas-api/internal/dto"
)

const liveSendBufferSize = 8

// LiveConnectionOptions wraps metadata extracted during the HTTP upgrade.
type LiveConnectionOptions struct {
	UserID       uint
	Role         string
	SubmissionID uint
	Context      context.Context
}

// LiveStatusService pushes submission status updates over websockets while
// the async pipeline runs. Updates are driven by the pipeline events on
// NATS so every node serving a connection sees them.
type LiveStatusService interface {
	ServeConnection(conn *websocket.Conn, opts LiveConnectionOptions)
	Notify(ctx context.Context, submissionID uint)
	Start(ctx context.Context)
}

type liveStatusService struct {
	status StatusService
	nats   *nats.Conn
	hub    *liveHub
	logger zerolog.Logger
}

type liveHub struct {
	mu          sync.RWMutex
	submissions map[uint]map[*liveClient]struct{}
	log         zerolog.Logger
}

type liveClient struct {
	conn    *websocket.Conn
	send    chan dto.SubmissionStatusResponse
	options LiveConnectionOptions
	service *liveStatusService
	closed  chan struct{}
	once    sync.Once
}

// NewLiveStatusService creates a live status broker.
func NewLiveStatusService(status StatusService, natsConn *nats.Conn, logger zerolog.Logger) LiveStatusService {
	return &liveStatusService{
		status: status,
		nats:   natsConn,
		hub: &liveHub{
			submissions: make(map[uint]map[*liveClient]struct{}),
			log:         logger.With().Str("component", "live_hub").Logger(),
		},
		logger: logger.With().Str("component", "live_status_service").Logger(),
	}
}

// Start subscribes to the pipeline event subjects. Without NATS the
// broker still serves connections; only cross-node updates are lost.
func (s *liveStatusService) Start(ctx context.Context) {
	if s.nats == nil {
		return
	}

	subjects := []string{EventScoringComplete, EventScoringFailed, EventFeedbackPublished}
	for _, subject := range subjects {
		sub, err := s.nats.Subscribe(subject, func(msg *nats.Msg) {
			var event PipelineEvent
			if err := json.Unmarshal(msg.Data, &event); err != nil {
				s.logger.Warn().Err(err).Str("subject", msg.Subject).Msg("invalid pipeline event")
				return
			}
			s.Notify(ctx, event.SubmissionID)
		})
		if err != nil {
			s.logger.Error().Err(err).Str("subject", subject).Msg("failed to subscribe to pipeline subject")
			continue
		}

		go func(sub *nats.Subscription) {
			<-ctx.Done()
			if err := sub.Drain(); err != nil {
				s.logger.Warn().Err(err).Msg("failed to drain pipeline subscription")
			}
		}(sub)
	}
}

// Notify reloads the submission status and pushes it to every connected
// client watching that submission.
func (s *liveStatusService) Notify(ctx context.Context, submissionID uint) {
	s.status.InvalidateStatus(ctx, submissionID)

	clients := s.hub.clients(submissionID)
	if len(clients) == 0 {
		return
	}

	for _, client := range clients {
		response, err := s.status.SubmissionStatus(ctx, submissionID, client.options.UserID)
		if err != nil {
			s.logger.Warn().Err(err).Uint("submission_id", submissionID).Msg("failed to load status for live push")
			continue
		}

		select {
		case client.send <- response:
		default:
			s.hub.log.Warn().Uint("submission_id", submissionID).Uint("user_id", client.options.UserID).Msg("dropping status update for slow client")
		}
	}
}

func (s *liveStatusService) ServeConnection(conn *websocket.Conn, opts LiveConnectionOptions) {
	baseCtx := opts.Context
	if baseCtx == nil {
		baseCtx = context.Background()
	}

	initial, err := s.status.SubmissionStatus(baseCtx, opts.SubmissionID, opts.UserID)
	if err != nil {
		s.logger.Debug().Err(err).Uint("submission_id", opts.SubmissionID).Msg("rejecting live connection")
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "submission not accessible"))
		_ = conn.Close()
		return
	}

	client := &liveClient{
		conn:    conn,
		send:    make(chan dto.SubmissionStatusResponse, liveSendBufferSize),
		options: opts,
		service: s,
		closed:  make(chan struct{}),
	}

	s.hub.register(client)
	client.send <- initial

	go client.writer()
	client.reader()
}

func (h *liveHub) register(client *liveClient) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := client.options.SubmissionID
	if _, exists := h.submissions[id]; !exists {
		h.submissions[id] = make(map[*liveClient]struct{})
	}
	h.submissions[id][client] = struct{}{}
	h.log.Debug().Uint("submission_id", id).Uint("user_id", client.options.UserID).Msg("live client connected")
}

func (h *liveHub) unregister(client *liveClient) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := client.options.SubmissionID
	if clients, ok := h.submissions[id]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.submissions, id)
		}
	}
	h.log.Debug().Uint("submission_id", id).Uint("user_id", client.options.UserID).Msg("live client disconnected")
}

func (h *liveHub) clients(submissionID uint) []*liveClient {
	h.mu.RLock()
	defer h.mu.RUnlock()

	set := h.submissions[submissionID]
	clients := make([]*liveClient, 0, len(set))
	for client := range set {
		clients = append(clients, client)
	}
	return clients
}

// reader drains incoming frames so control messages are handled; the
// stream is one-way.
func (c *liveClient) reader() {
	defer c.close()

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			c.service.logger.Debug().Err(err).Msg("live read loop ended")
			return
		}
	}
}

func (c *liveClient) writer() {
	defer c.close()

	for {
		select {
		case response, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.WriteJSON(response); err != nil {
				c.service.logger.Debug().Err(err).Msg("live write loop terminated")
				return
			}
		case <-time.After(30 * time.Second):
			if err := c.conn.WriteMessage(websocket.PingMessage, []byte("keepalive")); err != nil {
				c.service.logger.Debug().Err(err).Msg("live ping failed")
				return
			}
		case <-c.closed:
			return
		}
	}
}

func (c *liveClient) close() {
	c.once.Do(func() {
		close(c.closed)
		c.service.hub.unregister(c)
		_ = c.conn.Close()
	})
}
