// Package paysim is the event-notification and periodic-billing core of a
// local payment-platform emulator.
//
// An Engine owns an in-memory webhook registry, a delivery log and a
// background job scheduler on top of a keyed object store. Events published
// through the engine are signed with the Stripe-Signature scheme and POSTed
// to every matching webhook, with up to three attempts and exponential
// backoff. Two jobs run in the background: one turns metered usage of ended
// subscription periods into invoice items, the other finalizes subscription
// invoices whose period has ended.
//
// Key features:
//   - Account-scoped webhooks and delivery logs
//   - One audit log entry per delivery attempt, with manual retry
//   - Composable store pattern with multiple backends (Memory, Redis, SQLite, Postgres, MongoDB)
//   - Prometheus metrics and OpenTelemetry tracing
//
// Quick start:
//
//	e, err := paysim.New(
//	    paysim.WithStore(memory.New()),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	e.Start(ctx)
//	defer e.Stop(ctx)
//
//	e.RegisterWebhook(webhook.Webhook{
//	    ID:     "wh_1",
//	    URL:    "http://localhost:4242/webhook",
//	    Secret: "whsec_test",
//	})
//
//	e.CreateEvent(ctx, "invoice.created", json.RawMessage(`{"id":"in_1"}`), "")
package paysim
