// Package middleware provides HTTP middleware for the conversion server:
// W3C-style access logging, Prometheus request metrics labelled by route
// template, and gzip compression of JSON and text responses.
package middleware
