package notify

import (
	"encoding/json"
	"fmt"

	"github.com/streadway/amqp"
)

// Sink receives fabric events. The hub and the AMQP relay both satisfy it,
// so the engine can fan events out to several transports at once.
type Sink interface {
	Publish(event Event) error
}

// AMQPRelay mirrors fabric events onto a fanout exchange so consumers
// outside this process (other service instances, analytics) can observe the
// pool. Delivery is best-effort: relay failures never affect the match.
type AMQPRelay struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
}

// NewAMQPRelay dials the broker and declares the fanout exchange.
func NewAMQPRelay(amqpURL, exchange string) (*AMQPRelay, error) {
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}

	if err := ch.ExchangeDeclare(exchange, "fanout", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}

	return &AMQPRelay{conn: conn, channel: ch, exchange: exchange}, nil
}

// Publish sends one event to the exchange as JSON.
func (r *AMQPRelay) Publish(event Event) error {
	if err := event.Validate(); err != nil {
		return err
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	err = r.channel.Publish(r.exchange, "", false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
	})
	if err != nil {
		return fmt.Errorf("publish to %s: %w", r.exchange, err)
	}

	return nil
}

// Close releases the channel and connection.
func (r *AMQPRelay) Close() {
	if r.channel != nil {
		r.channel.Close()
	}
	if r.conn != nil {
		r.conn.Close()
	}
}

var _ Sink = (*AMQPRelay)(nil)
var _ Sink = (*Hub)(nil)
