package feedback

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/wtthornton/HomeIQ-sub015/pkg/mqtt"
	"github.com/wtthornton/HomeIQ-sub015/pkg/redis"
)

// fakeRedis is an in-memory stand-in for the Redis client, covering
// the hash operations the feedback counters use.
type fakeRedis struct {
	mu          sync.Mutex
	hashes      map[string]map[string]int64
	failHIncrBy bool
	failHGetAll bool
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{hashes: make(map[string]map[string]int64)}
}

func (f *fakeRedis) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return nil
}

func (f *fakeRedis) Get(ctx context.Context, key string) (string, error) {
	return "", fmt.Errorf("key %s: %w", key, redis.ErrNotFound)
}

func (f *fakeRedis) Del(ctx context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, key := range keys {
		delete(f.hashes, key)
	}
	return nil
}

func (f *fakeRedis) HIncrBy(ctx context.Context, key string, field string, incr int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failHIncrBy {
		return 0, fmt.Errorf("hincrby %s: connection refused", key)
	}
	if f.hashes[key] == nil {
		f.hashes[key] = make(map[string]int64)
	}
	f.hashes[key][field] += incr
	return f.hashes[key][field], nil
}

func (f *fakeRedis) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failHGetAll {
		return nil, fmt.Errorf("hgetall %s: connection refused", key)
	}
	fields := make(map[string]string, len(f.hashes[key]))
	for field, value := range f.hashes[key] {
		fields[field] = strconv.FormatInt(value, 10)
	}
	return fields, nil
}

func (f *fakeRedis) ZAdd(ctx context.Context, key string, score float64, member interface{}) error {
	return nil
}

func (f *fakeRedis) ZRevRangeByScoreWithScores(ctx context.Context, key string, max, min float64, offset, count int64) ([]redis.ZMember, error) {
	return nil, nil
}

func (f *fakeRedis) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return nil
}

func (f *fakeRedis) Ping(ctx context.Context) error { return nil }

func (f *fakeRedis) Close() error { return nil }

// hash returns a copy of one hash for assertions.
func (f *fakeRedis) hash(key string) map[string]int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	fields := make(map[string]int64, len(f.hashes[key]))
	for field, value := range f.hashes[key] {
		fields[field] = value
	}
	return fields
}

// seed sets hash fields directly, bypassing HIncrBy.
func (f *fakeRedis) seed(key string, total, accepted int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hashes[key] = map[string]int64{"total": total, "accepted": accepted}
}

// fakeMQTT is an in-memory stand-in for the MQTT client.
type fakeMQTT struct {
	mu        sync.Mutex
	connected bool
	handlers  map[string]mqtt.MessageHandler
	published []string
}

func newFakeMQTT() *fakeMQTT {
	return &fakeMQTT{handlers: make(map[string]mqtt.MessageHandler)}
}

func (f *fakeMQTT) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = true
	return nil
}

func (f *fakeMQTT) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
}

func (f *fakeMQTT) Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[topic] = handler
	return nil
}

func (f *fakeMQTT) Publish(topic string, qos byte, retained bool, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, topic)
	return nil
}

func (f *fakeMQTT) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

// deliver invokes the handler subscribed to topic, if any.
func (f *fakeMQTT) deliver(topic string, payload []byte) bool {
	f.mu.Lock()
	handler, ok := f.handlers[topic]
	f.mu.Unlock()
	if !ok {
		return false
	}
	handler(&fakeMessage{topic: topic, payload: payload})
	return true
}

func (f *fakeMQTT) subscriptionCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.handlers)
}

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m *fakeMessage) Topic() string   { return m.topic }
func (m *fakeMessage) Payload() []byte { return m.payload }
func (m *fakeMessage) Ack()            {}
