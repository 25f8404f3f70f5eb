// Package notifications delivers operator alerts via ntfy.
//
// The daemon publishes an Event with a small Payload; the service renders the
// title, message, tags and priority. When no ntfy topic is configured the
// service is a no-op, and the notifications.session_failed and
// notifications.port_events switches suppress their event groups.
package notifications
