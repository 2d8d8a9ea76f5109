// Package service contains the service layer for the Reference Data API
package service

import (
	"context"
	"time"

	"github.com/finref/refdataapi/pkg/utils/zaplogger"
	"github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

var PostgresChannel = "CH:REFDATA:EVENTS"
var RedisChannel = "CH:REFDATA:EVENTS"

// PublishService relays reconciliation events from the Postgres NOTIFY
// channel to the redis channel consumed by downstream systems.
type PublishService struct {
	db          *gorm.DB
	redisClient *redis.Client
	pgConnStr   string
}

// NewPublishService creates a new publish service
func NewPublishService(db *gorm.DB, redisClient *redis.Client, pgConnStr string) *PublishService {
	return &PublishService{
		db:          db,
		redisClient: redisClient,
		pgConnStr:   pgConnStr,
	}
}

// PublishEventsToRedisChannel blocks listening on the Postgres channel and
// republishing each notification to redis.
func (s *PublishService) PublishEventsToRedisChannel() {

	listener := pq.NewListener(s.pgConnStr, 10*time.Second, time.Minute, nil)
	err := listener.Listen(PostgresChannel)
	if err != nil {
		zaplogger.Error("Failed to listen on Postgres channel", zaplogger.Fields{
			"channel": PostgresChannel,
			"error":   err.Error(),
		})
		return
	}

	ctx := context.Background()

	for {
		select {
		case n := <-listener.Notify:
			if n == nil {
				continue
			}
			err := s.redisClient.Publish(ctx, RedisChannel, n.Extra).Err()
			if err != nil {
				zaplogger.Error("Failed to publish to Redis", zaplogger.Fields{"error": err})
			}
		case <-time.After(90 * time.Second):
			go func() {
				err := listener.Ping()
				if err != nil {
					zaplogger.Error("Error pinging PostgreSQL", zaplogger.Fields{"error": err})
				}
			}()
		}
	}
}
