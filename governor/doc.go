// Package governor admits, paces, and retries outbound upstream calls. A
// permit pool bounds concurrency, dual fixed windows pace request volume per
// caller and per account, and the executor applies retry with exponential
// backoff around the transport.
package governor
