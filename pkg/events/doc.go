/*
Package events provides an in-memory event broker for tracker notifications.

The runner publishes one event per case transition and one per run outcome.
Subscribers (the CLI's --events stream, tests) receive them on buffered
channels:

	Publisher → Event Channel (buffer: 256)
	     ↓
	Broadcast Loop
	     ↓
	Subscriber Channels (buffer: 128 each)

Event types:

	run.started, run.completed, run.failed
	case.opened, case.closed, case.ignored, case.recurred, case.reopened

Delivery to a subscriber is best-effort: when its buffer is full the event
is skipped for that subscriber and the publisher never blocks on it. Stop
flushes the queue before closing subscriber channels, so a consumer that
ranges over its channel sees every event published before Stop.

# Usage

	broker := events.NewBroker()
	broker.Start()
	sub := broker.Subscribe()

	go func() {
		for ev := range sub {
			fmt.Println(ev.Type, ev.NetworkID, ev.Message)
		}
	}()

	broker.Publish(&events.Event{Type: events.EventRunStarted, NetworkID: "net-a"})
	broker.Stop()
*/
package events
