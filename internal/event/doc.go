/*
Package event carries everything the reasoner reports about its own activity.

There are two layers.

The Bus is a pub/sub system built on watermill's gochannel. In-process
subscribers receive typed Event values directly, and every event is also
mirrored as JSON onto the "events" topic, which the HTTP server streams to
clients over SSE.

Bus event types:
  - session.created, session.updated, session.deleted
  - run.started, run.finished
  - run.event: one stream event of a run, see RunEventData
  - model.loaded, hardware.updated

The Emitter is the per-run stream. It writes status, log, card, token, done
and error events, in order, to a Sink (an NDJSON writer for HTTP clients, or
a Recorder for callers that want the events in memory). An emitter refuses a
card without a target and anything after a terminal event. The first sink
error sticks and is reported by Err, so the engine can keep running its
stages while the caller decides whether the client is gone.

Usage:

	bus := event.NewBus()
	defer bus.Close()

	unsub := bus.Subscribe(event.SessionCreated, func(e event.Event) {
		data := e.Data.(event.SessionCreatedData)
		log.Printf("new session %s", data.Info.ID)
	})
	defer unsub()

	em := event.NewEmitter(event.NDJSONSink(w, flush), event.WithBus(bus, sessionID, runID))
	em.Status("Initializing...")
	em.Card("x = 1", "Facts")
	em.Done("Ready")
*/
package event
