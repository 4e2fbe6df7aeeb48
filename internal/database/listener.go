package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/lib/pq"
)

const (
	minReconnectInterval = 10 * time.Second
	maxReconnectInterval = time.Minute
	listenerPingInterval = 90 * time.Second
)

// PgListener forwards Postgres NOTIFY payloads from the room topic
// channels to a Broker.
type PgListener struct {
	listener *pq.Listener
	broker   *Broker
	log      *log.Logger
}

func NewPgListener(dsn string, broker *Broker, logger *log.Logger) (*PgListener, error) {
	l := pq.NewListener(dsn, minReconnectInterval, maxReconnectInterval, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			logger.Printf("listener event %d: %v", ev, err)
		}
	})

	for _, topic := range Topics {
		if err := l.Listen(string(topic)); err != nil {
			l.Close()
			return nil, fmt.Errorf("listen %s: %w", topic, err)
		}
	}

	return &PgListener{
		listener: l,
		broker:   broker,
		log:      logger,
	}, nil
}

func (l *PgListener) Run(ctx context.Context) {
	ticker := time.NewTicker(listenerPingInterval)
	defer ticker.Stop()

	for {
		select {
		case n, ok := <-l.listener.Notify:
			if !ok {
				return
			}
			if n == nil {
				// connection was re-established, notifications may have been lost
				l.log.Println("listener reconnected")
				continue
			}

			ev, err := ParseEvent(Topic(n.Channel), []byte(n.Extra))
			if err != nil {
				l.log.Printf("parse notification on %q: %v", n.Channel, err)
				continue
			}
			l.broker.Publish(ev)
		case <-ticker.C:
			go func() {
				if err := l.listener.Ping(); err != nil {
					l.log.Println("listener ping:", err)
				}
			}()
		case <-ctx.Done():
			return
		}
	}
}

func (l *PgListener) Close() error {
	return l.listener.Close()
}
