// Package gochannel provides the in-process event transport used in development and tests.
package gochannel

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// CreateChannel creates a GoChannel-based publisher and subscriber.
// GoChannel implements both interfaces, so the same instance is returned twice.
func CreateChannel(logger watermill.LoggerAdapter) (*gochannel.GoChannel, *gochannel.GoChannel, error) {
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{
			OutputChannelBuffer:            1000,
			Persistent:                     false,
			BlockPublishUntilSubscriberAck: false,
		},
		logger,
	)

	return pubSub, pubSub, nil
}

// CreateTestChannel keeps published messages for late subscribers and blocks
// publishers until delivery is acknowledged.
func CreateTestChannel(logger watermill.LoggerAdapter) (*gochannel.GoChannel, *gochannel.GoChannel, error) {
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{
			OutputChannelBuffer:            10,
			Persistent:                     true,
			BlockPublishUntilSubscriberAck: true,
		},
		logger,
	)

	return pubSub, pubSub, nil
}
