package runtime

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	configpkg "github.com/glasswing/glasswing/internal/runtime/config"
	loggingpkg "github.com/glasswing/glasswing/internal/runtime/logging"
	schemapkg "github.com/glasswing/glasswing/internal/runtime/schema"
)

type testColor int

const (
	colorRed testColor = iota
	colorGreen
	colorBlue
)

type testPoint struct {
	X int
	Y int
}

// testGreeter is the standard bound fixture: one method per dispatch shape.
type testGreeter struct {
	mu      sync.Mutex
	greeted []string

	release chan struct{}
}

func (g *testGreeter) Greet(name string) string {
	g.mu.Lock()
	g.greeted = append(g.greeted, name)
	g.mu.Unlock()
	return "Hello " + name + "!"
}

func (g *testGreeter) Add(ctx context.Context, a, b int) int { return a + b }

func (g *testGreeter) Move(p testPoint, c testColor) (testPoint, error) {
	return testPoint{X: p.X + 1, Y: p.Y + 1}, nil
}

func (g *testGreeter) Fail(msg string) error { return errors.New(msg) }

func (g *testGreeter) Boom() { panic("kaboom") }

func (g *testGreeter) Wait() string {
	<-g.release
	return "done waiting"
}

func (g *testGreeter) Quick() string { return "quick" }

func testConfig() *configpkg.Config {
	return &configpkg.Config{Transport: "channel"}
}

func registerTestTypes(t *testing.T, b *Bridge) {
	t.Helper()
	if err := b.RegisterEnum(colorRed, []schemapkg.EnumValue{
		{Value: int64(colorRed), Tag: "red"},
		{Value: int64(colorGreen), Tag: "green"},
		{Value: int64(colorBlue), Tag: "blue"},
	}); err != nil {
		t.Fatalf("RegisterEnum: %v", err)
	}
	if err := b.RegisterStruct(testPoint{}, []schemapkg.Field{
		{Name: "X", External: "x"},
		{Name: "Y", External: "y"},
	}); err != nil {
		t.Fatalf("RegisterStruct: %v", err)
	}
}

// newTestBridge builds an unstarted bridge on the in-process channel
// transport with the test fixture bound.
func newTestBridge(t *testing.T) (*Bridge, *testGreeter) {
	t.Helper()
	b, err := TryNewBridge(testConfig(), loggingpkg.Nop(), context.Background(), Dependencies{})
	if err != nil {
		t.Fatalf("TryNewBridge: %v", err)
	}
	registerTestTypes(t, b)

	greeter := &testGreeter{release: make(chan struct{})}
	if err := b.Bind("Greeter", greeter, "Greet", "Add", "Move", "Fail", "Boom", "Wait", "Quick"); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	return b, greeter
}

// startBridgePair starts the bridge and attaches a frontend to the same
// transport, tearing both down with the test.
func startBridgePair(t *testing.T) (*Bridge, *Frontend, *testGreeter) {
	t.Helper()
	b, greeter := newTestBridge(t)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() {
		if err := b.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("bridge stopped: %v", err)
		}
	}()
	select {
	case <-b.Running():
	case <-time.After(5 * time.Second):
		t.Fatalf("bridge did not start")
	}

	fe, err := NewFrontend(ctx, b.Transport(), b.Conf, loggingpkg.Nop())
	if err != nil {
		t.Fatalf("NewFrontend: %v", err)
	}
	t.Cleanup(fe.Close)
	t.Cleanup(func() {
		if err := b.Shutdown(5 * time.Second); err != nil {
			t.Logf("shutdown: %v", err)
		}
	})
	return b, fe, greeter
}

type testPublisher struct {
	mu        sync.Mutex
	published []*message.Message
	topics    []string
	err       error
}

func (p *testPublisher) Publish(topic string, messages ...*message.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	for _, msg := range messages {
		p.published = append(p.published, msg)
		p.topics = append(p.topics, topic)
	}
	return nil
}

func (p *testPublisher) Close() error { return nil }

func (p *testPublisher) Messages() []*message.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	clone := make([]*message.Message, len(p.published))
	copy(clone, p.published)
	return clone
}

func (p *testPublisher) Topics() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	clone := make([]string, len(p.topics))
	copy(clone, p.topics)
	return clone
}
