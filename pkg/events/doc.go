/*
Package events provides an in-memory event broker used to fan out cluster
lifecycle notifications (node joins/leaves, elections, replica repairs, job
completions) to local subscribers obtained through Subscribe.

The broker owns a single buffered intake channel; Publish blocks only while
that channel is full (and returns once the broker is stopped). A broadcast
goroutine fans each event out to every subscriber's own buffered channel,
dropping delivery to a subscriber whose buffer is full rather than stalling
the broadcast.
*/
package events
