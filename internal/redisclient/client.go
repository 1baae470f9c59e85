package redisclient

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/geocoder89/eventconnect/internal/completion"
	"github.com/redis/go-redis/v9"
)

// CompletionChannel carries one JSON message per completed event.
const CompletionChannel = "event.completed"

type Client struct {
	redisdb *redis.Client
}

type Config struct {
	Addr     string
	Password string
	DB       int
}

func New(cfg Config) *Client {
	redisdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	return &Client{redisdb: redisdb}
}

// NewFromRedis wraps an existing go-redis client.
func NewFromRedis(rdb *redis.Client) *Client {
	return &Client{redisdb: rdb}
}

func (c *Client) Ping(ctx context.Context) error {
	return c.redisdb.Ping(ctx).Err()
}

func (c *Client) Close() error {
	return c.redisdb.Close()
}

type completionMessage struct {
	EventID        string    `json:"eventId"`
	EventName      string    `json:"eventName"`
	TotalAttendees int       `json:"totalAttendees"`
	Sent           int       `json:"sent"`
	Failed         int       `json:"failed"`
	Skipped        int       `json:"skipped"`
	CompletedAt    time.Time `json:"completedAt"`
}

// PublishCompletion implements completion.Publisher.
func (c *Client) PublishCompletion(ctx context.Context, report completion.Report) error {
	payload, err := json.Marshal(completionMessage{
		EventID:        report.EventID,
		EventName:      report.EventName,
		TotalAttendees: report.TotalAttendees,
		Sent:           report.Sent,
		Failed:         report.Failed,
		Skipped:        report.Skipped,
		CompletedAt:    time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("encode completion message: %w", err)
	}

	if err := c.redisdb.Publish(ctx, CompletionChannel, payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", CompletionChannel, err)
	}

	return nil
}

// SubscribeCompletions is used by consumers and tests.
func (c *Client) SubscribeCompletions(ctx context.Context) *redis.PubSub {
	return c.redisdb.Subscribe(ctx, CompletionChannel)
}
