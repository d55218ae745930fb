package bus

import (
	"net"
	"strings"
	"time"
)

// Message is a (topic, payload) pair delivered by a TopicSubscriber.
type Message struct {
	Topic   string
	Payload []byte
}

// TopicSubscriber is the N→1 counterpart of FanoutPublisher: it connects to
// one publisher and delivers only the messages whose topic carries one of
// the configured prefixes.
type TopicSubscriber struct {
	c        *conn
	prefixes []string
	in       chan Message
	done     chan struct{}
}

// NewTopicSubscriber connects to a FanoutPublisher at addr and subscribes to
// every topic beginning with one of prefixes. An empty prefix list matches
// every topic.
func NewTopicSubscriber(addr string, prefixes ...string) (*TopicSubscriber, error) {
	c, err := net.Dial("tcp", stripScheme(addr))
	if err != nil {
		return nil, err
	}
	s := &TopicSubscriber{
		c:        wrapConn(c),
		prefixes: prefixes,
		in:       make(chan Message, highWaterMark),
		done:     make(chan struct{}),
	}
	go s.readLoop()
	return s, nil
}

func (s *TopicSubscriber) matches(topic string) bool {
	if len(s.prefixes) == 0 {
		return true
	}
	for _, p := range s.prefixes {
		if strings.HasPrefix(topic, p) {
			return true
		}
	}
	return false
}

func (s *TopicSubscriber) readLoop() {
	defer close(s.done)
	for {
		parts, err := s.c.readFrame()
		if err != nil {
			return
		}
		if len(parts) != 2 {
			continue
		}
		topic := string(parts[0])
		if !s.matches(topic) {
			continue
		}
		msg := Message{Topic: topic, Payload: parts[1]}
		select {
		case s.in <- msg:
		default:
			// high water mark reached; drop newest
		}
	}
}

// Receive blocks for up to timeout for the next matching message.
func (s *TopicSubscriber) Receive(timeout time.Duration) (Message, bool) {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case m := <-s.in:
		return m, true
	case <-t.C:
		return Message{}, false
	}
}

// TryReceive returns the next matching message without blocking.
func (s *TopicSubscriber) TryReceive() (Message, bool) {
	select {
	case m := <-s.in:
		return m, true
	default:
		return Message{}, false
	}
}

// Closed reports whether the underlying transport has shut down.
func (s *TopicSubscriber) Closed() <-chan struct{} { return s.done }

// Close disconnects from the publisher.
func (s *TopicSubscriber) Close() error { return s.c.Close() }

func stripScheme(addr string) string {
	if i := strings.Index(addr, "://"); i >= 0 {
		addr = addr[i+3:]
	}
	if strings.HasPrefix(addr, "*:") {
		addr = addr[1:] // "*" means every interface, which net.Listen spells as an empty host
	}
	return addr
}
