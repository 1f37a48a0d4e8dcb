// Package service starts and stops the long-lived parts of the process in a
// fixed order.
//
// Components are started in registration order and stopped in reverse, so a
// component registered first (the sink) outlives everything that writes to it.
package service
