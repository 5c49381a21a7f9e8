package queue

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	// TopicCampaignCommands fans control commands out to every instance.
	TopicCampaignCommands = "campaign_commands"
	// TopicCampaignEvents carries completion events to whoever consumes them.
	TopicCampaignEvents = "campaign_events"
)

// Handler receives the JSON body of one message. A non-nil error asks for redelivery.
type Handler func(body []byte) error

// Queue interface
type Queue interface {
	Publish(topic string, payload any) error
	Subscribe(topic string, handler Handler) error
}

// InMemoryQueue delivers in-process with retry. Used when no broker is configured.
type InMemoryQueue struct {
	mu         sync.Mutex
	handlers   map[string][]Handler
	maxRetries int
	retryDelay time.Duration
	wg         sync.WaitGroup
}

// NewInMemoryQueue creates a new queue
func NewInMemoryQueue() *InMemoryQueue {
	return &InMemoryQueue{
		handlers:   make(map[string][]Handler),
		maxRetries: 3,
		retryDelay: 500 * time.Millisecond,
	}
}

// job wraps a message body with retry info
type job struct {
	topic      string
	body       []byte
	retryCount int
}

// Publish sends a message to all subscribers
func (q *InMemoryQueue) Publish(topic string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s message: %w", topic, err)
	}

	q.mu.Lock()
	handlers := append([]Handler(nil), q.handlers[topic]...)
	q.mu.Unlock()

	if len(handlers) == 0 {
		return fmt.Errorf("no subscribers for topic %s", topic)
	}

	for _, handler := range handlers {
		q.wg.Add(1)
		go q.processJob(handler, job{topic: topic, body: body})
	}
	return nil
}

// processJob handles retries and errors
func (q *InMemoryQueue) processJob(handler Handler, j job) {
	defer q.wg.Done()
	log := logrus.WithField("topic", j.topic)
	for {
		err := handler(j.body)
		if err == nil {
			log.Debug("message processed")
			return // ACK
		}

		j.retryCount++
		log.WithError(err).Warnf("message failed (attempt %d/%d)", j.retryCount, q.maxRetries)
		if j.retryCount > q.maxRetries {
			log.Errorf("message dropped after %d attempts", q.maxRetries)
			return // No requeue
		}

		time.Sleep(time.Duration(j.retryCount) * q.retryDelay)
	}
}

// Subscribe adds a handler for a topic
func (q *InMemoryQueue) Subscribe(topic string, handler Handler) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.handlers[topic] = append(q.handlers[topic], handler)
	return nil
}

// Wait blocks until every published message has been handled or dropped.
func (q *InMemoryQueue) Wait() {
	q.wg.Wait()
}

// Decode unmarshals a message body.
func Decode(body []byte, v any) error {
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decode message: %w", err)
	}
	return nil
}
