// Package notification renders and delivers the emails authcore sends:
// MFA codes and password-reset links.
//
// A [Registry] maps each [Kind] to a [Template] that validates its data,
// renders the HTML body and names the subject. [Notifier] renders
// synchronously and hands the message to a [Dispatcher], which delivers it
// on a background worker through a [Sender]. Delivery failures are logged and
// never reach the caller.
package notification
