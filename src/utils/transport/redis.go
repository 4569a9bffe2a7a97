package transport

import (
	"context"
	"encoding"
	"errors"
	"fmt"
	"time"

	"github.com/blobsync/pinner/src/utils/config"
	"github.com/blobsync/pinner/src/utils/monitoring"
	"github.com/blobsync/pinner/src/utils/task"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
)

// RedisTransport implements Transport over redis pub/sub.
// Broadcasts go to a shared topic channel, direct sends go to
// "<prefix>.<peer address>". The subscription covers the topic and this
// instance's own peer channel.
type RedisTransport struct {
	*task.Task

	monitor *monitoring.Monitor

	client *redis.Client
	pubsub *redis.PubSub

	messages chan []byte
}

func NewRedisTransport(config *config.Config) (self *RedisTransport) {
	self = new(RedisTransport)

	self.messages = make(chan []byte, 16)

	self.Task = task.NewTask(config, "transport").
		WithSubtaskFunc(self.run).
		WithOnBeforeStart(self.connect).
		WithOnAfterStop(self.disconnect)

	return
}

func (self *RedisTransport) WithMonitor(monitor *monitoring.Monitor) *RedisTransport {
	self.monitor = monitor
	return self
}

func (self *RedisTransport) Messages() <-chan []byte {
	return self.messages
}

func (self *RedisTransport) peerChannel(peerAddress string) string {
	return fmt.Sprintf("%s.%s", self.Config.Comms.PeerChannelPrefix, peerAddress)
}

func (self *RedisTransport) connect() (err error) {
	self.client = redis.NewClient(&redis.Options{
		ClientName:      "pinner/transport",
		Addr:            fmt.Sprintf("%s:%d", self.Config.Redis.Host, self.Config.Redis.Port),
		Password:        self.Config.Redis.Password,
		Username:        self.Config.Redis.User,
		DB:              self.Config.Redis.DB,
		MinIdleConns:    self.Config.Redis.MinIdleConns,
		MaxIdleConns:    self.Config.Redis.MaxIdleConns,
		ConnMaxIdleTime: self.Config.Redis.ConnMaxIdleTime,
		PoolSize:        self.Config.Redis.MaxOpenConns,
		ConnMaxLifetime: self.Config.Redis.ConnMaxLifetime,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	err = self.client.Ping(ctx).Err()
	if err != nil {
		self.Log.WithError(err).Error("Failed to ping Redis")
		return
	}

	channels := []string{self.Config.Comms.TopicChannelName}
	if self.Config.Comms.PeerAddress != "" {
		channels = append(channels, self.peerChannel(self.Config.Comms.PeerAddress))
	}
	self.pubsub = self.client.Subscribe(self.Ctx, channels...)

	return
}

func (self *RedisTransport) disconnect() {
	err := self.pubsub.Close()
	if err != nil {
		self.Log.WithError(err).Error("Failed to close subscription")
	}

	err = self.client.Close()
	if err != nil {
		self.Log.WithError(err).Error("Failed to close connection")
	}

	close(self.messages)
}

func (self *RedisTransport) run() (err error) {
	return self.pump(self.pubsub.Channel())
}

func (self *RedisTransport) pump(in <-chan *redis.Message) (err error) {
	for {
		select {
		case <-self.StopChannel:
			return nil
		case msg, ok := <-in:
			if !ok {
				return nil
			}
			// The consumer may be gone while we're stopping, don't
			// stall on a full buffer
			select {
			case self.messages <- []byte(msg.Payload):
			case <-self.StopChannel:
				return nil
			}
		}
	}
}

func (self *RedisTransport) publish(ctx context.Context, channel string, payload encoding.BinaryMarshaler) (err error) {
	err = task.NewRetry().
		WithContext(ctx).
		WithMaxElapsedTime(self.Config.Redis.MaxElapsedTime).
		WithMaxInterval(self.Config.Redis.MaxInterval).
		WithOnError(func(err error, isDurationAcceptable bool) error {
			if errors.Is(err, context.Canceled) && self.IsStopping.Load() {
				return backoff.Permanent(err)
			}
			self.Log.WithError(err).Error("Failed to publish message, retrying")
			self.monitor.GetReport().Comms.Errors.Publish.Inc()
			return err
		}).
		Run(func() error {
			return self.client.Publish(ctx, channel, payload).Err()
		})
	return
}

func (self *RedisTransport) Publish(ctx context.Context, payload encoding.BinaryMarshaler) (err error) {
	return self.publish(ctx, self.Config.Comms.TopicChannelName, payload)
}

func (self *RedisTransport) SendDirect(ctx context.Context, peerAddress string, payload encoding.BinaryMarshaler) (err error) {
	return self.publish(ctx, self.peerChannel(peerAddress), payload)
}
