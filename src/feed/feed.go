package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/blobsync/pinner/src/events"
	"github.com/blobsync/pinner/src/utils/config"
	"github.com/blobsync/pinner/src/utils/monitoring"
	"github.com/blobsync/pinner/src/utils/task"

	"github.com/redis/go-redis/v9"
)

// Feed subscribes to the upstream replication stream and decodes its
// messages into domain events. A malformed message is a processing
// error, it gets logged and the stream moves on.
type Feed struct {
	*task.Task

	monitor *monitoring.Monitor

	client *redis.Client
	pubsub *redis.PubSub

	events chan *events.Event
}

func NewFeed(config *config.Config) (self *Feed) {
	self = new(Feed)

	self.events = make(chan *events.Event, config.Feed.QueueSize)

	self.Task = task.NewTask(config, "feed").
		WithSubtaskFunc(self.run).
		WithOnBeforeStart(self.connect).
		WithOnAfterStop(self.disconnect)

	return
}

func (self *Feed) WithMonitor(monitor *monitoring.Monitor) *Feed {
	self.monitor = monitor
	return self
}

func (self *Feed) Events() <-chan *events.Event {
	return self.events
}

func (self *Feed) connect() (err error) {
	self.client = redis.NewClient(&redis.Options{
		ClientName:      "pinner/feed",
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

	self.pubsub = self.client.Subscribe(self.Ctx, self.Config.Feed.ChannelName)
	return
}

func (self *Feed) disconnect() {
	err := self.pubsub.Close()
	if err != nil {
		self.Log.WithError(err).Error("Failed to close subscription")
	}

	err = self.client.Close()
	if err != nil {
		self.Log.WithError(err).Error("Failed to close connection")
	}

	close(self.events)
}

func (self *Feed) run() (err error) {
	return self.pump(self.pubsub.Channel())
}

func (self *Feed) pump(in <-chan *redis.Message) (err error) {
	for {
		select {
		case <-self.StopChannel:
			return nil
		case msg, ok := <-in:
			if !ok {
				return nil
			}

			event := new(events.Event)
			err = json.Unmarshal([]byte(msg.Payload), event)
			if err != nil {
				self.Log.WithError(err).Error("Failed to unmarshal feed message")
				self.monitor.GetReport().Processor.Errors.Processing.Inc()
				continue
			}

			select {
			case self.events <- event:
			case <-self.StopChannel:
				return nil
			}
		}
	}
}
