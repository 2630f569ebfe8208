// Package broadcast delivers server messages to client sessions.
//
// Every write goes through Send, which skips closed connections and retries
// failed writes with exponential backoff (RetryConfig). Notifications fan out
// concurrently to the sessions whose view matches: new thumbnails by folder
// and tier, placeholder counts by folder and page, folder listings by
// folder. Move and delete confirmations and error reports go to everyone.
// A failure on one session is logged and never blocks the others.
package broadcast
