package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultEventsQueue is the redis list holding pending book events.
const DefaultEventsQueue = "books.events"

// popWaitTimeout bounds a single blocking pop so consumers get
// a chance to notice their context is done.
const popWaitTimeout = 2 * time.Second

// ErrQueueEmpty is returned by Pop when no event arrived in time.
var ErrQueueEmpty = errors.New("queue is empty")

// Ensure *redisQueue implements Queuer.
var _ Queuer = (*redisQueue)(nil)

// Queuer describes a FIFO of book events.
type Queuer interface {
	Push(ctx context.Context, event BookEvent) error
	Pop(ctx context.Context) (BookEvent, error)
}

// redisQueue is a Queuer backed by a redis list.
type redisQueue struct {
	client *redis.Client
	name   string
}

func NewRedisQueue(client *redis.Client, name string) Queuer {
	return &redisQueue{client: client, name: name}
}

// GetRedisClient provides a ready to use redis client.
func GetRedisClient(config *Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%s", config.Redis.Host, config.Redis.Port),
		DialTimeout:  config.Redis.DialTimeout,
		ReadTimeout:  config.Redis.ReadTimeout,
		WriteTimeout: config.Redis.WriteTimeout,
		PoolSize:     config.Redis.PoolSize,
		PoolTimeout:  config.Redis.PoolTimeout,
		Password:     config.Redis.Password,
		Username:     config.Redis.Username,
		DB:           config.Redis.DatabaseIndex,
	})

	if pong, err := client.Ping(context.Background()).Result(); pong != "PONG" || err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("test connection failed: %v", err)
	}
	return client, nil
}

// Push appends an event at the tail of the queue.
func (q *redisQueue) Push(ctx context.Context, event BookEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return q.client.RPush(ctx, q.name, data).Err()
}

// Pop waits for an event at the head of the queue. It returns
// ErrQueueEmpty when nothing showed up during popWaitTimeout.
func (q *redisQueue) Pop(ctx context.Context) (BookEvent, error) {
	var event BookEvent
	infos, err := q.client.BLPop(ctx, popWaitTimeout, q.name).Result()
	if errors.Is(err, redis.Nil) {
		return event, ErrQueueEmpty
	}
	if err != nil {
		return event, err
	}
	err = json.Unmarshal([]byte(infos[1]), &event)
	return event, err
}
