package bus

import (
	"net"
	"sync"

	"github.com/rs/zerolog/log"
)

// FanoutPublisher is the 1→N bus primitive: every connected TopicSubscriber
// receives every Publish call whose topic it hasn't filtered out. Send never
// blocks: a subscriber whose outbound queue is at the high water mark simply
// misses the message (drop-newest).
type FanoutPublisher struct {
	ln net.Listener

	mu   sync.Mutex
	subs map[*subConn]struct{}
}

type subConn struct {
	c    *conn
	outq chan [2][]byte
}

// NewFanoutPublisher binds addr (e.g. "tcp://*:5555" with the scheme
// stripped to ":5555") and begins accepting subscriber connections.
func NewFanoutPublisher(addr string) (*FanoutPublisher, error) {
	ln, err := net.Listen("tcp", stripScheme(addr))
	if err != nil {
		return nil, err
	}
	p := &FanoutPublisher{ln: ln, subs: make(map[*subConn]struct{})}
	go p.acceptLoop()
	return p, nil
}

func (p *FanoutPublisher) acceptLoop() {
	for {
		c, err := p.ln.Accept()
		if err != nil {
			return // listener closed
		}
		sc := &subConn{c: wrapConn(c), outq: make(chan [2][]byte, highWaterMark)}
		p.mu.Lock()
		p.subs[sc] = struct{}{}
		p.mu.Unlock()
		go p.writeLoop(sc)
	}
}

func (p *FanoutPublisher) writeLoop(sc *subConn) {
	defer func() {
		p.mu.Lock()
		delete(p.subs, sc)
		p.mu.Unlock()
		sc.c.Close()
	}()
	for parts := range sc.outq {
		if err := writeFrame(sc.c, parts[0], parts[1]); err != nil {
			log.Debug().Err(err).Msg("bus: subscriber write failed, dropping connection")
			return
		}
	}
}

// Publish sends payload tagged with topic to every connected subscriber.
// Non-blocking: subscribers at their high water mark drop the message.
func (p *FanoutPublisher) Publish(topic string, payload []byte) {
	msg := [2][]byte{[]byte(topic), payload}
	p.mu.Lock()
	defer p.mu.Unlock()
	for sc := range p.subs {
		select {
		case sc.outq <- msg:
		default:
			// high water mark reached for this subscriber; drop newest
		}
	}
}

// Close stops accepting new subscribers and disconnects existing ones.
func (p *FanoutPublisher) Close() error {
	err := p.ln.Close()
	p.mu.Lock()
	for sc := range p.subs {
		close(sc.outq)
	}
	p.subs = make(map[*subConn]struct{})
	p.mu.Unlock()
	return err
}
