package hub

import (
	"context"

	"parley/backend/internal/application/session"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const deliveryChannelSize = 1024

type subscription struct {
	sess    *session.Session
	channel string
}

type delivery struct {
	channel string
	payload []byte
}

// Hub is the per-process fan-out point: it tracks which local sessions are
// subscribed to which pub/sub channel and delivers incoming events to them.
// All state lives on the run loop goroutine; the exported methods hand work
// to it over channels. Register/Subscribe/Unsubscribe block until the loop
// has applied them, so a subscribe issued before a publish is indexed before
// that publish can be delivered.
type Hub struct {
	sessions map[*session.Session]struct{}
	subs     map[string]map[*session.Session]struct{}

	register    chan *session.Session
	unregister  chan *session.Session
	subscribe   chan subscription
	unsubscribe chan subscription
	deliver     chan delivery
	quit        chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	log    *zap.Logger
}

func NewHub(log *zap.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		sessions:    make(map[*session.Session]struct{}),
		subs:        make(map[string]map[*session.Session]struct{}),
		register:    make(chan *session.Session),
		unregister:  make(chan *session.Session),
		subscribe:   make(chan subscription),
		unsubscribe: make(chan subscription),
		deliver:     make(chan delivery, deliveryChannelSize),
		quit:        make(chan struct{}),
		ctx:         ctx,
		cancel:      cancel,
		log:         log,
	}
}

func (h *Hub) Register(s *session.Session) {
	select {
	case h.register <- s:
	case <-h.quit:
	}
}

// Unregister drops the session from every channel index and closes its send
// channel. Safe to call for a session that was never registered.
func (h *Hub) Unregister(s *session.Session) {
	select {
	case h.unregister <- s:
	case <-h.quit:
	}
}

func (h *Hub) Subscribe(s *session.Session, channel string) {
	select {
	case h.subscribe <- subscription{sess: s, channel: channel}:
	case <-h.quit:
	}
}

func (h *Hub) Unsubscribe(s *session.Session, channel string) {
	select {
	case h.unsubscribe <- subscription{sess: s, channel: channel}:
	case <-h.quit:
	}
}

// Deliver hands an event received from the shared pub/sub to every local
// session subscribed to its channel.
func (h *Hub) Deliver(channel string, payload []byte) {
	select {
	case h.deliver <- delivery{channel: channel, payload: payload}:
	case <-h.quit:
	}
}

func (h *Hub) Run() {
	for {
		select {
		case s := <-h.register:
			h.sessions[s] = struct{}{}
			h.log.Info("session registered", zap.String("session", s.ID), zap.String("identity", s.Identity.DisplayName))

		case s := <-h.unregister:
			if _, ok := h.sessions[s]; !ok {
				continue
			}
			delete(h.sessions, s)
			for channel, members := range h.subs {
				delete(members, s)
				if len(members) == 0 {
					delete(h.subs, channel)
				}
			}
			close(s.Send)
			h.log.Info("session unregistered", zap.String("session", s.ID))

		case sub := <-h.subscribe:
			if _, ok := h.sessions[sub.sess]; !ok {
				continue
			}
			if h.subs[sub.channel] == nil {
				h.subs[sub.channel] = make(map[*session.Session]struct{})
			}
			h.subs[sub.channel][sub.sess] = struct{}{}

		case sub := <-h.unsubscribe:
			if members, ok := h.subs[sub.channel]; ok {
				delete(members, sub.sess)
				if len(members) == 0 {
					delete(h.subs, sub.channel)
				}
			}

		case d := <-h.deliver:
			for s := range h.subs[d.channel] {
				if !s.TrySend(d.payload) {
					h.log.Warn("session slow, dropping event", zap.String("session", s.ID), zap.String("channel", d.channel))
				}
			}

		case <-h.quit:
			h.cancel()
			for s := range h.sessions {
				close(s.Send)
			}
			h.sessions = make(map[*session.Session]struct{})
			h.subs = make(map[string]map[*session.Session]struct{})
			return
		}
	}
}

// ListenBroadcasts feeds the shared pattern subscription into the hub until
// the hub stops. One instance runs per process.
func (h *Hub) ListenBroadcasts(pubsub *redis.PubSub) {
	defer pubsub.Close()
	ch := pubsub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			h.Deliver(msg.Channel, []byte(msg.Payload))
		case <-h.ctx.Done():
			return
		}
	}
}

func (h *Hub) Stop() {
	close(h.quit)
}
