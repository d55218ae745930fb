package bus

import (
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// WorkQueueReceiver is the bound side of the 1→1 work-queue primitive: it
// accepts connections from any number of WorkQueueSenders and delivers their
// payloads on a single shared, fairly-drained channel.
type WorkQueueReceiver struct {
	ln  net.Listener
	in  chan []byte
	wg  sync.WaitGroup
}

// NewWorkQueueReceiver binds addr and begins accepting sender connections.
func NewWorkQueueReceiver(addr string) (*WorkQueueReceiver, error) {
	ln, err := net.Listen("tcp", stripScheme(addr))
	if err != nil {
		return nil, err
	}
	r := &WorkQueueReceiver{ln: ln, in: make(chan []byte, highWaterMark)}
	r.wg.Add(1)
	go r.acceptLoop()
	return r, nil
}

func (r *WorkQueueReceiver) acceptLoop() {
	defer r.wg.Done()
	for {
		c, err := r.ln.Accept()
		if err != nil {
			return
		}
		go r.readLoop(wrapConn(c))
	}
}

func (r *WorkQueueReceiver) readLoop(c *conn) {
	defer c.Close()
	for {
		parts, err := c.readFrame()
		if err != nil {
			return
		}
		if len(parts) != 1 {
			continue
		}
		select {
		case r.in <- parts[0]:
		default:
			// high water mark reached; drop newest
		}
	}
}

// Receive blocks for up to timeout for the next payload.
func (r *WorkQueueReceiver) Receive(timeout time.Duration) ([]byte, bool) {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case p := <-r.in:
		return p, true
	case <-t.C:
		return nil, false
	}
}

// TryReceive returns the next payload without blocking.
func (r *WorkQueueReceiver) TryReceive() ([]byte, bool) {
	select {
	case p := <-r.in:
		return p, true
	default:
		return nil, false
	}
}

// Close stops accepting connections.
func (r *WorkQueueReceiver) Close() error { return r.ln.Close() }

// WorkQueueSender is the connecting side of the work-queue primitive. It may
// connect to several receiver endpoints, round-robining sends across them
// for fair load distribution.
type WorkQueueSender struct {
	conns []*conn
	next  uint64
}

// NewWorkQueueSender dials every address in addrs.
func NewWorkQueueSender(addrs ...string) (*WorkQueueSender, error) {
	s := &WorkQueueSender{}
	for _, a := range addrs {
		c, err := net.Dial("tcp", stripScheme(a))
		if err != nil {
			s.Close()
			return nil, err
		}
		s.conns = append(s.conns, wrapConn(c))
	}
	return s, nil
}

// Send delivers payload to one connected receiver, chosen round-robin. The
// write is synchronous and has no deadline: a failed write returns the
// transport error, and a write into a full connection send buffer blocks
// until the receiver drains it.
func (s *WorkQueueSender) Send(payload []byte) error {
	idx := atomic.AddUint64(&s.next, 1) % uint64(len(s.conns))
	return writeFrame(s.conns[idx], payload)
}

// Close disconnects from every receiver.
func (s *WorkQueueSender) Close() error {
	var firstErr error
	for _, c := range s.conns {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
