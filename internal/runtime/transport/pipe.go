package transport

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/glasswing/glasswing/internal/runtime/config"
	"github.com/glasswing/glasswing/internal/runtime/jsoncodec"
)

func init() {
	DefaultRegistry.Register("pipe", pipeTransport)
}

// pipeTransport attaches an out-of-process rendering surface over this
// process's stdin/stdout. The surface process runs the mirror arrangement.
func pipeTransport(_ context.Context, _ *config.Config, logger watermill.LoggerAdapter) (Transport, error) {
	ep := NewPipe(os.Stdin, os.Stdout, logger)
	return Transport{Publisher: ep, Subscriber: ep}, nil
}

// pipeFrame is the length-prefixed unit written to the stream. The topic
// rides inside the frame because a pipe, unlike a broker, has no notion of
// topics of its own.
type pipeFrame struct {
	UUID     string            `json:"uuid"`
	Topic    string            `json:"topic"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Payload  []byte            `json:"payload"`
}

// Pipe is an ordered, reliable duplex transport over a byte stream pair.
// Frames are written as "<size> <json>\n" so the reader can recover exact
// message boundaries from a stream.
type Pipe struct {
	out    io.Writer
	outMu  sync.Mutex
	in     *bufio.Reader
	logger watermill.LoggerAdapter

	mu         sync.Mutex
	subs       map[string][]*streamSubscription
	readerOnce sync.Once
	closeOnce  sync.Once
	closed     chan struct{}

	rawIn  io.Reader
	rawOut io.Writer
}

// NewPipe wraps separate read and write streams, which suits stdin/stdout as
// well as the two ends of an in-memory duplex pipe in tests.
func NewPipe(in io.Reader, out io.Writer, logger watermill.LoggerAdapter) *Pipe {
	return &Pipe{
		out:    out,
		in:     bufio.NewReader(in),
		logger: logger,
		subs:   make(map[string][]*streamSubscription),
		closed: make(chan struct{}),
		rawIn:  in,
		rawOut: out,
	}
}

func (p *Pipe) Publish(topic string, messages ...*message.Message) error {
	p.outMu.Lock()
	defer p.outMu.Unlock()

	for _, msg := range messages {
		frame := pipeFrame{
			UUID:     msg.UUID,
			Topic:    topic,
			Metadata: msg.Metadata,
			Payload:  msg.Payload,
		}
		b, err := jsoncodec.Marshal(frame)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(p.out, "%d %s\n", len(b), b); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipe) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	sub := newStreamSubscription()

	p.mu.Lock()
	p.subs[topic] = append(p.subs[topic], sub)
	p.mu.Unlock()

	p.readerOnce.Do(func() { go p.readLoop() })

	go func() {
		select {
		case <-ctx.Done():
		case <-p.closed:
		}
		p.mu.Lock()
		subs := p.subs[topic]
		for i, s := range subs {
			if s == sub {
				p.subs[topic] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		p.mu.Unlock()
		sub.close()
	}()

	return sub.ch, nil
}

// readLoop is the single stream reader. Frames must be consumed sequentially
// to recover boundaries, and delivery waits for each ack, so per-direction
// ordering holds end to end.
func (p *Pipe) readLoop() {
	for {
		frame, err := p.readFrame()
		if err != nil {
			if err != io.EOF {
				p.logger.Error("glasswing: pipe read failed", err, nil)
			}
			p.Close()
			return
		}

		msg := message.NewMessage(frame.UUID, frame.Payload)
		if frame.Metadata != nil {
			msg.Metadata = frame.Metadata
		}

		p.mu.Lock()
		subs := append([]*streamSubscription(nil), p.subs[frame.Topic]...)
		p.mu.Unlock()

		for _, sub := range subs {
			sub.deliver(msg, p.closed, p.logger)
		}

		select {
		case <-p.closed:
			return
		default:
		}
	}
}

func (p *Pipe) readFrame() (*pipeFrame, error) {
	sizeStr, err := p.in.ReadString(' ')
	if err != nil {
		return nil, err
	}
	size, err := strconv.Atoi(sizeStr[:len(sizeStr)-1])
	if err != nil || size < 1 {
		return nil, fmt.Errorf("invalid frame size %q", sizeStr)
	}

	blob := make([]byte, size)
	if _, err := io.ReadFull(p.in, blob); err != nil {
		return nil, err
	}
	if nl, err := p.in.ReadByte(); err != nil {
		return nil, err
	} else if nl != '\n' {
		return nil, fmt.Errorf("expected frame terminator, read %q", nl)
	}

	var frame pipeFrame
	if err := jsoncodec.Unmarshal(blob, &frame); err != nil {
		return nil, err
	}
	return &frame, nil
}

func (p *Pipe) Close() error {
	p.closeOnce.Do(func() {
		close(p.closed)
		if c, ok := p.rawIn.(io.Closer); ok {
			c.Close()
		}
		if c, ok := p.rawOut.(io.Closer); ok {
			c.Close()
		}
	})
	return nil
}
