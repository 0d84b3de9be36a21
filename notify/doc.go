// Package notify fans registry events out to subscribers on three channels:
// schema_updates, compatibility_alerts and system_events.
//
// Publishing never blocks the caller. Events go onto a bounded queue that a
// single dispatch worker drains, so each subscriber sees events in publish
// order. When the queue is full the event is dropped and logged.
//
//	hub := notify.NewHub(notify.WithLogger(logger), notify.WithMetrics(metrics))
//	if err := hub.Start(ctx); err != nil {
//		return err
//	}
//	defer hub.Stop(5 * time.Second)
//
//	sub, _ := hub.Subscribe(notify.ChannelSchemaUpdates, 0)
//	defer sub.Close()
//	go func() {
//		for ev := range sub.Events() {
//			log.Println(ev.Type, ev.ID)
//		}
//	}()
//
//	hub.Publish(notify.NewSchemaUpdate("orders", "1.0.0", notify.ActionCreated, doc))
//
// Any type with ID and Deliver can be attached with Attach; the HTTP gateway
// attaches websocket clients this way. A subscriber whose Deliver fails, or
// whose buffer is full, is removed and closed.
//
// Mirror republishes every event as JSON on schemaregistry.events.<channel>
// for consumers outside the process.
package notify
