// Package rfc9111 implements the parts of RFC 9111 (HTTP Caching) needed by a
// private client cache: storability, freshness, age, validation and invalidation.
//
// Files are named after the RFC sections they implement, and relevant RFC text
// is quoted in comments starting with "§".
package rfc9111
