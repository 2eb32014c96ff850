package model

// Notifier delivers alert notifications. Body is HTML.
type Notifier interface {
	Send(subject, body string) error
}
