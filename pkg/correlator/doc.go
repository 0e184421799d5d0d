// Package correlator matches asynchronous responses from a host process back
// to the requests that caused them.
//
// The transport underneath only knows how to send a message and how to hand
// over whatever arrives. It may drop, reorder or duplicate messages. The
// Correlator adds request identity on top of it:
//
//  1. Request allocates the next identity (strictly increasing, never
//     reused), records a pending entry, arms a deadline and sends the
//     envelope.
//  2. HandleInbound is the single receive handler. Responses and errors are
//     matched by identity, notifications go to the Notifier, everything
//     else is dropped.
//  3. Each Call settles exactly once: response, error, timeout, send
//     failure, cancellation or Close. Whichever trigger removes the entry
//     from the pending set first wins; the others are no-ops.
//
// Settled identities are remembered for a short window so that responses
// arriving after a timeout can be told apart from identities that were
// never issued. Both are discarded.
package correlator
