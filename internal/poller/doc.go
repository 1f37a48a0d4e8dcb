// Package poller provides the staggered polling core for PulseStats.
//
// This package is internal to PulseStats and owns everything between the
// one-second tick and the hand-off of a captured snapshot to storage. Polls
// are spread evenly over a configured update cycle instead of firing all at
// once.
//
// The main components are:
//
//   - [Client]: HTTP fetcher that turns one profile identifier into a [Snapshot]
//   - [Scheduler]: Tracks per-identifier due times and dispatches due polls
//   - [Driver]: Fires a callback once per fixed interval until stopped
//   - [FetchError]: Typed failure returned by [Client.Fetch]
//
// Users of the pulsestats library should not need to interact with this
// package directly. Configuration is done through the main pulsestats package.
package poller
