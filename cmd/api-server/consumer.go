package main

import (
	"context"
	"log"

	"reviwa-server/internal/events"
)

const consumerGroup = "api-server"

// startConsumer bridges the event bus to the realtime hub. The HTTP handler
// has already responded by the time an event comes back through Redis, so
// clients always see the response before the broadcast.
func startConsumer(ctx context.Context, app *App) {
	log.Println("[CONSUMER] Bridging bus events to realtime hub...")

	err := app.EventBus.Consume(ctx, consumerGroup, app.InstanceID, func(event *events.Event) error {
		app.Hub.Dispatch(event)
		return nil
	})
	if err != nil && err != context.Canceled {
		log.Printf("Consumer error: %v", err)
	}
}
