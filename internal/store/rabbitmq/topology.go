package rabbitmq

import (
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// deadLetterTTL bounds how long a dead-lettered task is kept for inspection.
const deadLetterTTL = 72 * time.Hour

func retryQueue(queue string) string { return queue + ".retry" }
func deadQueue(queue string) string  { return queue + ".dlq" }

// declareTopology declares the main queue with its retry and dead-letter
// companions. Publisher and consumer must agree on it.
func declareTopology(ch *amqp.Channel, queue string) error {
	// DLQ: entries expire after deadLetterTTL
	if _, err := ch.QueueDeclare(
		deadQueue(queue),
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false,
		amqp.Table{"x-message-ttl": deadLetterTTL.Milliseconds()},
	); err != nil {
		return err
	}

	// Retry queue: message TTL -> dead-letter back to main queue
	if _, err := ch.QueueDeclare(
		retryQueue(queue),
		true,
		false,
		false,
		false,
		amqp.Table{
			"x-dead-letter-exchange":    "",
			"x-dead-letter-routing-key": queue,
		},
	); err != nil {
		return err
	}

	// Main queue: dead-letter to DLQ on reject/nack(requeue=false)
	_, err := ch.QueueDeclare(
		queue,
		true,
		false,
		false,
		false,
		amqp.Table{
			"x-dead-letter-exchange":    "",
			"x-dead-letter-routing-key": deadQueue(queue),
		},
	)
	return err
}
