// Package pricing is the request-time price resolution engine: cache,
// catalog, session overrides, fallback estimation and discount math.
package pricing

import "errors"

// ErrPriceNotFound means every resolution tier was exhausted. It is a
// domain error distinct from transient failures; with the global
// default in place it should be rare.
var ErrPriceNotFound = errors.New("price not found")
