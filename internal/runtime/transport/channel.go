package transport

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/glasswing/glasswing/internal/runtime/config"
)

// GoChannelFactory builds the in-process pub/sub pair. It is a variable so
// tests can substitute a tuned configuration.
var GoChannelFactory = func(cfg gochannel.Config, logger watermill.LoggerAdapter) (message.Publisher, message.Subscriber) {
	pubSub := gochannel.NewGoChannel(cfg, logger)
	return pubSub, pubSub
}

func init() {
	DefaultRegistry.Register("channel", channelTransport)
}

// channelTransport connects an in-process rendering surface. Persistence
// stays off: subscribers registered after an envelope was published never see
// it, which is exactly the bus's at-most-once, no-replay contract.
func channelTransport(_ context.Context, _ *config.Config, logger watermill.LoggerAdapter) (Transport, error) {
	pub, sub := GoChannelFactory(gochannel.Config{OutputChannelBuffer: 64}, logger)

	return Transport{
		Publisher:  pub,
		Subscriber: sub,
	}, nil
}
