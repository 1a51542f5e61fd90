package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/streadway/amqp"
	"go.uber.org/zap"
)

// Channel is the subset of *amqp.Channel used for notifications.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// dialFunc opens a publishing channel for connection generation gen. The
// returned closer releases it.
type dialFunc func(gen uint64) (Channel, func() error, error)

// AMQPNotifier publishes events to a durable direct exchange, routed by wheel id.
// Notifiers from DialAMQP reconnect on the next Notify after the broker drops
// the connection.
type AMQPNotifier struct {
	mu       sync.Mutex
	ch       Channel
	exchange string
	closer   func() error
	dial     dialFunc
	gen      uint64
	log      *zap.Logger
	now      func() time.Time
}

// NewAMQPNotifier declares exchange on ch. It never reconnects.
func NewAMQPNotifier(ch Channel, exchange string) (*AMQPNotifier, error) {
	if exchange == "" {
		return nil, errors.New("notify.amqp: exchange name is required")
	}
	if err := declare(ch, exchange); err != nil {
		return nil, err
	}
	return &AMQPNotifier{ch: ch, exchange: exchange, log: zap.NewNop(), now: time.Now}, nil
}

// DialAMQP connects to url and opens a channel for publishing. Connection
// loss is logged, and the next Notify dials again.
func DialAMQP(url, exchange string, log *zap.Logger) (*AMQPNotifier, error) {
	n := newDialingNotifier(exchange, log, nil)
	n.dial = func(gen uint64) (Channel, func() error, error) {
		conn, err := amqp.Dial(url)
		if err != nil {
			return nil, nil, fmt.Errorf("notify.amqp: dial: %w", err)
		}
		ch, err := conn.Channel()
		if err != nil {
			conn.Close()
			return nil, nil, fmt.Errorf("notify.amqp: open channel: %w", err)
		}
		go n.watch(gen, conn.NotifyClose(make(chan *amqp.Error, 1)))
		return ch, func() error { return errors.Join(ch.Close(), conn.Close()) }, nil
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.connectLocked(); err != nil {
		return nil, err
	}
	return n, nil
}

func newDialingNotifier(exchange string, log *zap.Logger, dial dialFunc) *AMQPNotifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &AMQPNotifier{
		exchange: exchange,
		dial:     dial,
		log:      log.Named("amqp"),
		now:      time.Now,
	}
}

func declare(ch Channel, exchange string) error {
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeDirect, true, false, false, false, nil); err != nil {
		return fmt.Errorf("notify.amqp: declare exchange %s: %w", exchange, err)
	}
	return nil
}

// connectLocked dials a new generation. n.mu must be held.
func (n *AMQPNotifier) connectLocked() error {
	if n.exchange == "" {
		return errors.New("notify.amqp: exchange name is required")
	}
	n.gen++
	ch, closer, err := n.dial(n.gen)
	if err != nil {
		return err
	}
	if err := declare(ch, n.exchange); err != nil {
		closer()
		return err
	}
	n.ch = ch
	n.closer = closer
	return nil
}

// watch drops generation gen once its connection closes. A clean close
// (channel closed without an error) is not logged.
func (n *AMQPNotifier) watch(gen uint64, closed <-chan *amqp.Error) {
	amqpErr, ok := <-closed

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.gen != gen {
		return
	}
	n.ch = nil
	n.closer = nil
	if ok && amqpErr != nil {
		n.log.Warn("amqp connection lost",
			zap.Int("code", amqpErr.Code),
			zap.String("reason", amqpErr.Reason),
			zap.Bool("server", amqpErr.Server),
		)
	}
}

func (n *AMQPNotifier) Notify(ctx context.Context, ev Event) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("notify.amqp: %w", err)
	}
	msg := amqp.Publishing{
		ContentType:  "application/octet-stream",
		MessageId:    ev.SpinID,
		DeliveryMode: amqp.Persistent,
		Timestamp:    n.now(),
		Body:         ev.Payload(),
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.ch == nil {
		if n.dial == nil {
			return errors.New("notify.amqp: not connected")
		}
		if err := n.connectLocked(); err != nil {
			return fmt.Errorf("notify.amqp: reconnect: %w", err)
		}
		n.log.Info("amqp reconnected", zap.String("exchange", n.exchange))
	}
	if err := n.ch.Publish(n.exchange, ev.WheelID, false, false, msg); err != nil {
		if errors.Is(err, amqp.ErrClosed) && n.dial != nil {
			n.dropLocked()
		}
		return fmt.Errorf("notify.amqp: publish spin %s: %w", ev.SpinID, err)
	}
	return nil
}

// dropLocked forgets the current generation so the next Notify redials.
func (n *AMQPNotifier) dropLocked() {
	n.gen++
	if n.closer != nil {
		n.closer()
	}
	n.ch = nil
	n.closer = nil
}

// Close releases the connection opened by DialAMQP and stops reconnecting.
func (n *AMQPNotifier) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.gen++
	n.dial = nil
	n.ch = nil
	closer := n.closer
	n.closer = nil
	if closer == nil {
		return nil
	}
	return closer()
}
