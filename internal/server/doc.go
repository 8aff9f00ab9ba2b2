// Package server assembles the HTTP stack: routing, request identifiers,
// structured request logging, metrics, rate limiting, CORS, and security
// headers. Handlers from internal/api are mounted behind that middleware
// chain so they can assume those concerns are already enforced.
package server
