package queue

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"feed_scraper/internal/logger"
	"feed_scraper/internal/models"
)

// RefreshTask — запрос на обновление одного источника из очереди задач.
type RefreshTask struct {
	Name string `json:"name"`
}

// RefreshEvent — событие о завершённом обновлении для внешних потребителей.
type RefreshEvent struct {
	Name     string               `json:"name"`
	Status   models.RefreshStatus `json:"status"`
	Error    string               `json:"error,omitempty"`
	Items    int                  `json:"items"`
	Finished time.Time            `json:"finished"`
}

// Producer
type Producer struct {
	conn *amqp.Connection
	ch   *amqp.Channel
}

func NewProducer(url string) (*Producer, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}

	return &Producer{conn, ch}, nil
}

// PublishEvent отправляет событие в очередь queueName.
// Очередь объявляется durable, сообщения переживают перезапуск брокера.
func (p *Producer) PublishEvent(queueName string, event RefreshEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}

	_, err = p.ch.QueueDeclare(
		queueName,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,
	)
	if err != nil {
		return err
	}

	return p.ch.PublishWithContext(
		context.Background(),
		"",        // exchange
		queueName, // routing key
		false,     // mandatory
		false,     // immediate
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			Body:         body,
		},
	)
}

func (p *Producer) Close() {
	p.ch.Close()
	p.conn.Close()
}

// Consumer
type Consumer struct {
	conn    *amqp.Connection
	ch      *amqp.Channel
	queue   string
	workers int
}

func NewConsumer(url, queue string, workers int) (*Consumer, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}

	return &Consumer{
		conn:    conn,
		ch:      ch,
		queue:   queue,
		workers: workers,
	}, nil
}

// Consume запускает воркеров, разбирающих задачи на обновление.
// Сообщения с нечитаемым JSON подтверждаются и отбрасываются,
// ошибка обработчика возвращает задачу в очередь.
func (c *Consumer) Consume(handler func(RefreshTask) error) {
	q, err := c.ch.QueueDeclare(
		c.queue,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,
	)
	if err != nil {
		logger.Log.Errorf("Queue declare error: %v", err)
		return
	}

	logger.Log.Infof("Consuming queue: %s (messages: %d)", q.Name, q.Messages)

	msgs, err := c.ch.Consume(
		q.Name,
		"",    // consumer
		false, // autoAck
		false, // exclusive
		false, // noLocal
		false, // noWait
		nil,
	)
	if err != nil {
		logger.Log.Errorf("Consume failed: %v", err)
		return
	}

	for i := 0; i < c.workers; i++ {
		go func() {
			for msg := range msgs {
				var task RefreshTask
				if err := json.Unmarshal(msg.Body, &task); err != nil {
					logger.Log.Errorf("Malformed refresh task dropped: %v", err)
					msg.Ack(false)
					continue
				}

				if err := handler(task); err == nil {
					msg.Ack(false)
				} else {
					msg.Nack(false, true)
					logger.Log.Errorf("Refresh task failed: %v", err)
				}
			}
		}()
	}
}

func (c *Consumer) Close() {
	c.ch.Close()
	c.conn.Close()
}
