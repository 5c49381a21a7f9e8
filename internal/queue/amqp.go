package queue

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/streadway/amqp"
)

// fanoutTopics are broadcast to every subscriber; other topics are work queues.
var fanoutTopics = map[string]bool{
	TopicCampaignCommands: true,
}

// AMQPQueue implements Queue on RabbitMQ.
type AMQPQueue struct {
	conn *amqp.Connection

	mu sync.Mutex
	ch *amqp.Channel
}

func DialAMQP(url string) (*AMQPQueue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}
	return &AMQPQueue{conn: conn, ch: ch}, nil
}

func declare(ch *amqp.Channel, topic string) error {
	if fanoutTopics[topic] {
		return ch.ExchangeDeclare(
			topic,    // name
			"fanout", // kind
			true,     // durable
			false,    // auto-deleted
			false,    // internal
			false,    // no-wait
			nil,      // arguments
		)
	}
	_, err := ch.QueueDeclare(
		topic, // name
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	return err
}

func (q *AMQPQueue) Publish(topic string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s message: %w", topic, err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if err := declare(q.ch, topic); err != nil {
		return fmt.Errorf("declare %s: %w", topic, err)
	}

	exchange, key := "", topic
	if fanoutTopics[topic] {
		exchange, key = topic, ""
	}
	return q.ch.Publish(exchange, key, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         body,
	})
}

// Subscribe consumes topic on its own channel. Fanout topics get an exclusive
// queue per subscriber; work queues are shared and acknowledged manually.
func (q *AMQPQueue) Subscribe(topic string, handler Handler) error {
	ch, err := q.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open a channel: %w", err)
	}
	if err := declare(ch, topic); err != nil {
		ch.Close()
		return fmt.Errorf("declare %s: %w", topic, err)
	}

	queueName := topic
	if fanoutTopics[topic] {
		qd, err := ch.QueueDeclare("", false, true, true, false, nil)
		if err != nil {
			ch.Close()
			return fmt.Errorf("declare %s subscriber queue: %w", topic, err)
		}
		if err := ch.QueueBind(qd.Name, "", topic, false, nil); err != nil {
			ch.Close()
			return fmt.Errorf("bind %s: %w", topic, err)
		}
		queueName = qd.Name
	}

	msgs, err := ch.Consume(
		queueName,
		"",
		false, // autoAck = false for reliability
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		ch.Close()
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	go func() {
		log := logrus.WithField("topic", topic)
		for d := range msgs {
			if err := handler(d.Body); err != nil {
				// one redelivery, then drop
				requeue := !d.Redelivered
				log.WithError(err).WithField("requeue", requeue).Warn("message handling failed")
				_ = d.Nack(false, requeue)
				continue
			}
			_ = d.Ack(false)
		}
		log.Info("consumer stopped")
	}()
	return nil
}

func (q *AMQPQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.ch.Close(); err != nil {
		logrus.WithError(err).Warn("failed to close channel")
	}
	return q.conn.Close()
}
