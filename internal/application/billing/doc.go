// Package billing holds the billing use cases and the saga handlers that
// react to payment and subscription events.
//
// Use cases load an aggregate, apply a transition, persist it with a version
// check and then hand the returned events to a shared.Publisher. Handlers
// run once per delivered event and must tolerate redelivery.
package billing
