// Package rfc9211 renders the Cache-Status response header field (RFC 9211),
// which explains how the cache handled a request.
package rfc9211
