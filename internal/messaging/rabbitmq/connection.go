package rabbitmq

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Connection держит AMQP-соединение и один канал для публикаций.
type Connection struct {
	conn *amqp.Connection
	ch   *amqp.Channel
}

// Dial подключается к брокеру, открывает канал и объявляет exchange.
func Dial(url string) (*Connection, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open rabbitmq channel: %w", err)
	}

	if err := DeclareExchange(ch); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}

	return &Connection{conn: conn, ch: ch}, nil
}

// Publisher создаёт publisher на общем канале соединения.
func (c *Connection) Publisher(routingKey string, options ...Option) (*Publisher, error) {
	return NewPublisher(c.ch, routingKey, options...)
}

// Close закрывает канал и соединение.
func (c *Connection) Close() error {
	if c == nil {
		return nil
	}
	if c.ch != nil {
		_ = c.ch.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
