package transport

import (
	"testing"
	"time"

	"github.com/blobsync/pinner/src/utils/config"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

func TestRedisTransportTestSuite(t *testing.T) {
	suite.Run(t, new(RedisTransportTestSuite))
}

type RedisTransportTestSuite struct {
	suite.Suite
	config *config.Config
}

func (s *RedisTransportTestSuite) SetupTest() {
	s.config = config.Default()
}

func (s *RedisTransportTestSuite) TestPumpStopsWithFullBuffer() {
	transport := NewRedisTransport(s.config)

	// More inbound messages than the buffer holds, nothing consuming
	in := make(chan *redis.Message, 32)
	for i := 0; i < 32; i++ {
		in <- &redis.Message{Payload: "x"}
	}

	done := make(chan error, 1)
	go func() {
		done <- transport.pump(in)
	}()

	// Let the pump fill the buffer and block on the next send
	time.Sleep(50 * time.Millisecond)
	transport.Stop()

	select {
	case err := <-done:
		assert.Nil(s.T(), err)
	case <-time.After(2 * time.Second):
		s.T().Fatal("pump stalled on a full buffer during stop")
	}
}

func (s *RedisTransportTestSuite) TestPumpForwardsPayloads() {
	transport := NewRedisTransport(s.config)

	in := make(chan *redis.Message, 1)
	in <- &redis.Message{Payload: "hello"}

	go func() {
		_ = transport.pump(in)
	}()

	select {
	case raw := <-transport.Messages():
		assert.Equal(s.T(), []byte("hello"), raw)
	case <-time.After(2 * time.Second):
		s.T().Fatal("message was not forwarded")
	}

	transport.Stop()
}
