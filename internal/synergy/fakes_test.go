package synergy

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/wtthornton/HomeIQ-sub015/pkg/mqtt"
	"github.com/wtthornton/HomeIQ-sub015/pkg/redis"
)

// fakeRedis is an in-memory redis.Client covering the operations the
// engine uses: plain keys, hashes and sorted sets.
type fakeRedis struct {
	mu     sync.Mutex
	values map[string]string
	hashes map[string]map[string]int64
	zsets  map[string]map[string]float64
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{
		values: make(map[string]string),
		hashes: make(map[string]map[string]int64),
		zsets:  make(map[string]map[string]float64),
	}
}

func (f *fakeRedis) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch v := value.(type) {
	case string:
		f.values[key] = v
	case []byte:
		f.values[key] = string(v)
	default:
		f.values[key] = fmt.Sprintf("%v", v)
	}
	return nil
}

func (f *fakeRedis) Get(ctx context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.values[key]
	if !ok {
		return "", fmt.Errorf("key %s: %w", key, redis.ErrNotFound)
	}
	return v, nil
}

func (f *fakeRedis) Del(ctx context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, key := range keys {
		delete(f.values, key)
		delete(f.hashes, key)
		delete(f.zsets, key)
	}
	return nil
}

func (f *fakeRedis) HIncrBy(ctx context.Context, key, field string, incr int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	h, ok := f.hashes[key]
	if !ok {
		h = make(map[string]int64)
		f.hashes[key] = h
	}
	h[field] += incr
	return h[field], nil
}

func (f *fakeRedis) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]string, len(f.hashes[key]))
	for field, v := range f.hashes[key] {
		out[field] = strconv.FormatInt(v, 10)
	}
	return out, nil
}

func (f *fakeRedis) ZAdd(ctx context.Context, key string, score float64, member interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	set, ok := f.zsets[key]
	if !ok {
		set = make(map[string]float64)
		f.zsets[key] = set
	}
	set[fmt.Sprintf("%v", member)] = score
	return nil
}

func (f *fakeRedis) ZRevRangeByScoreWithScores(ctx context.Context, key string, max, min float64, offset, count int64) ([]redis.ZMember, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var members []redis.ZMember
	for member, score := range f.zsets[key] {
		if score < min || score > max {
			continue
		}
		members = append(members, redis.ZMember{Score: score, Member: member})
	}
	sort.Slice(members, func(i, j int) bool {
		if members[i].Score != members[j].Score {
			return members[i].Score > members[j].Score
		}
		return members[i].Member > members[j].Member
	})

	if offset > 0 {
		if int(offset) >= len(members) {
			return nil, nil
		}
		members = members[offset:]
	}
	if count > 0 && int(count) < len(members) {
		members = members[:count]
	}
	return members, nil
}

func (f *fakeRedis) Expire(ctx context.Context, key string, ttl time.Duration) error { return nil }

func (f *fakeRedis) Ping(ctx context.Context) error { return nil }

func (f *fakeRedis) Close() error { return nil }

// setValue overwrites a cached value directly, bypassing the engine.
func (f *fakeRedis) setValue(key, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[key] = value
}

// valueCount reports how many plain keys are stored.
func (f *fakeRedis) valueCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.values)
}

// publishedMessage is one payload captured by fakeMQTT.
type publishedMessage struct {
	topic   string
	payload []byte
}

// fakeMQTT is an in-memory mqtt.Client that records publishes and lets
// tests deliver messages to subscribed handlers as the broker would.
type fakeMQTT struct {
	mu        sync.Mutex
	connected bool
	handlers  map[string]mqtt.MessageHandler
	published []publishedMessage
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

func (f *fakeMQTT) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
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
	f.published = append(f.published, publishedMessage{
		topic:   topic,
		payload: append([]byte(nil), payload...),
	})
	return nil
}

// deliver invokes the registered handler for a topic.
func (f *fakeMQTT) deliver(topic string, payload []byte) {
	f.mu.Lock()
	handler := f.handlers[topic]
	f.mu.Unlock()
	if handler != nil {
		handler(fakeMessage{topic: topic, payload: payload})
	}
}

// publishedTo returns the payloads published to one topic, in order.
func (f *fakeMQTT) publishedTo(topic string) [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out [][]byte
	for _, m := range f.published {
		if m.topic == topic {
			out = append(out, m.payload)
		}
	}
	return out
}

// subscriptionCount reports how many topics have handlers registered.
func (f *fakeMQTT) subscriptionCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.handlers)
}

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Topic() string   { return m.topic }
func (m fakeMessage) Payload() []byte { return m.payload }
func (m fakeMessage) Ack()            {}
