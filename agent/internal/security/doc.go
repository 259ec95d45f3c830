// Package security inspects the TLS certificate presented by the log
// aggregator. The agent runs Check at startup and after every config reload
// and logs a warning when the certificate is expiring, expired, untrusted or
// the endpoint cannot be reached.
package security
