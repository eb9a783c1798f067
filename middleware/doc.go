// Package middleware is the HTTP guard pipeline in front of the engine.
// Each route declares an ordered guard chain; a guard either passes the
// request on, possibly with an enriched context, or terminates it with a
// response envelope. The first terminal verdict wins and later guards
// never run. A panic anywhere in the chain or the handler becomes a 500
// envelope instead of a connection reset.
package middleware
