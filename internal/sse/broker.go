package sse

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/openclaw/nowplaying-relay-go/internal/model"
	redisclient "github.com/openclaw/nowplaying-relay-go/internal/redis"
)

const (
	HeartbeatInterval = 30 * time.Second
	clientBufferSize  = 16
)

const EventPlayback = "playback"

type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type Client struct {
	ID            string
	CorrelationID string
	Events        chan Event
	Done          chan struct{}
}

// Broker fans playback changes out to /events subscribers. With redis every
// instance receives every change through pub/sub; without it delivery stays
// in-process.
type Broker struct {
	redis   *redisclient.Client
	clients map[string]map[*Client]bool // correlation id -> set of clients
	subs    map[string]*redisSub        // one pub/sub listener per id with clients
	mu      sync.RWMutex
	ctx     context.Context
	cancel  context.CancelFunc
}

type redisSub struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func NewBroker(redisClient *redisclient.Client) *Broker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Broker{
		redis:   redisClient,
		clients: make(map[string]map[*Client]bool),
		subs:    make(map[string]*redisSub),
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (b *Broker) Subscribe(correlationID string) *Client {
	client := &Client{
		ID:            uuid.NewString(),
		CorrelationID: correlationID,
		Events:        make(chan Event, clientBufferSize),
		Done:          make(chan struct{}),
	}

	b.mu.Lock()
	if b.clients[correlationID] == nil {
		b.clients[correlationID] = make(map[*Client]bool)
		if b.redis != nil {
			ctx, cancel := context.WithCancel(b.ctx)
			sub := &redisSub{cancel: cancel, done: make(chan struct{})}
			b.subs[correlationID] = sub
			go b.subscribeToRedis(ctx, correlationID, sub.done)
		}
	}
	b.clients[correlationID][client] = true
	clientCount := len(b.clients[correlationID])
	b.mu.Unlock()

	log.Info().
		Str("id", correlationID).
		Str("clientId", client.ID).
		Int("clientCount", clientCount).
		Msg("sse client subscribed")

	return client
}

func (b *Broker) Unsubscribe(client *Client) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if clients, ok := b.clients[client.CorrelationID]; ok {
		if !clients[client] {
			return
		}
		delete(clients, client)
		close(client.Done)

		if len(clients) == 0 {
			delete(b.clients, client.CorrelationID)
			if sub, ok := b.subs[client.CorrelationID]; ok {
				sub.cancel()
				delete(b.subs, client.CorrelationID)
			}
		}

		log.Info().
			Str("id", client.CorrelationID).
			Str("clientId", client.ID).
			Int("clientCount", len(clients)).
			Msg("sse client unsubscribed")
	}
}

// PublishSnapshot announces a changed playback snapshot.
func (b *Broker) PublishSnapshot(ctx context.Context, snapshot *model.PlaybackSnapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	return b.Publish(ctx, snapshot.ID, Event{Type: EventPlayback, Data: data})
}

func (b *Broker) Publish(ctx context.Context, correlationID string, event Event) error {
	if b.redis == nil {
		b.broadcast(correlationID, event)
		return nil
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	channel := redisclient.PlaybackChannel(correlationID)
	return b.redis.Publish(ctx, channel, data).Err()
}

// subscribeToRedis relays the id's channel to local clients until ctx is
// canceled by the last Unsubscribe or by Close.
func (b *Broker) subscribeToRedis(ctx context.Context, correlationID string, done chan struct{}) {
	defer close(done)

	channel := redisclient.PlaybackChannel(correlationID)
	pubsub := b.redis.Subscribe(ctx, channel)
	defer pubsub.Close()

	log.Debug().
		Str("id", correlationID).
		Str("channel", channel).
		Msg("redis pubsub subscribed")

	ch := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("id", correlationID).Msg("redis pubsub released")
			return

		case msg, ok := <-ch:
			if !ok {
				return
			}

			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				log.Error().Err(err).Msg("failed to unmarshal event")
				continue
			}

			// A replacement listener may already own the id.
			if ctx.Err() != nil {
				return
			}
			b.broadcast(correlationID, event)
		}
	}
}

func (b *Broker) broadcast(correlationID string, event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	clients, ok := b.clients[correlationID]
	if !ok {
		return
	}

	for client := range clients {
		select {
		case client.Events <- event:
		default:
			log.Warn().
				Str("id", correlationID).
				Str("clientId", client.ID).
				Msg("client event buffer full, dropping event")
		}
	}
}

func (b *Broker) Close() {
	b.cancel()

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, clients := range b.clients {
		for client := range clients {
			close(client.Done)
		}
	}
	b.clients = make(map[string]map[*Client]bool)
	b.subs = make(map[string]*redisSub)
}

func (b *Broker) ClientCount(correlationID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients[correlationID])
}

func (b *Broker) TotalClients() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	total := 0
	for _, clients := range b.clients {
		total += len(clients)
	}
	return total
}
