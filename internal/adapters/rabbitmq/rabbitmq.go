// Package rabbitmq implements the Notifier half of the Dead-Letter Queue
// (C5): a lightweight wake-up publish to a `<operation>.dlq` queue, grounded
// on the teacher's mrabbitmq.RabbitMQConnection connect/channel pattern and
// the `.dlq`-suffix convention from its dlq test helpers.
package rabbitmq

import (
	"context"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/access-control/acs-core/internal/telemetry"
)

// Connection is a hub which deals with a single rabbitmq connection and
// channel.
type Connection struct {
	URL    string
	Logger telemetry.Logger

	conn      *amqp.Connection
	channel   *amqp.Channel
	Connected bool
}

// Connect dials the broker and opens one channel, kept open for the life
// of the process.
func (c *Connection) Connect() error {
	c.Logger.Info("connecting to rabbitmq...")

	conn, err := amqp.Dial(c.URL)
	if err != nil {
		return err
	}

	ch, err := conn.Channel()
	if err != nil {
		return err
	}

	c.conn = conn
	c.channel = ch
	c.Connected = true

	c.Logger.Info("connected to rabbitmq")

	return nil
}

// GetChannel returns the channel, connecting lazily if necessary.
func (c *Connection) GetChannel() (*amqp.Channel, error) {
	if !c.Connected {
		if err := c.Connect(); err != nil {
			return nil, err
		}
	}

	return c.channel, nil
}

// BuildDLQName applies the `.dlq` suffix convention to an operation label.
func BuildDLQName(operation string) string {
	return operation + ".dlq"
}

// Notifier implements dlq.Notifier by publishing an empty wake-up message
// to the operation's `.dlq` queue.
type Notifier struct {
	conn *Connection
}

// NewNotifier returns a Notifier bound to conn.
func NewNotifier(conn *Connection) *Notifier {
	return &Notifier{conn: conn}
}

// Notify declares (idempotently) and publishes to operation's `.dlq` queue.
func (n *Notifier) Notify(ctx context.Context, operation string) error {
	ch, err := n.conn.GetChannel()
	if err != nil {
		return err
	}

	queueName := BuildDLQName(operation)

	if _, err := ch.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
		return err
	}

	return ch.PublishWithContext(ctx, "", queueName, false, false, amqp.Publishing{
		ContentType: "text/plain",
		Body:        []byte(operation),
	})
}
