// Package credential manages the upstream API credential as a short-lived
// lease. A single manager owns renewal: concurrent acquirers coalesce onto
// one exchange, and raw credential material never reaches logs or audit
// records.
package credential
