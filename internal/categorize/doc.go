// Package categorize assigns spending categories to transactions.
//
// A Gateway calls an external categorizer when one is configured and falls
// back to a local keyword matcher when it is missing or failing. The gateway
// tracks its operating mode so callers can report categorizer health.
package categorize
