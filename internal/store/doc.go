// Package store keeps the latest status of every site monitor in memory
// and fans updates out to subscribers.
//
// The store is written by a single consumer of monitor results and read by
// the status server. It holds only the most recent status per site.
package store
