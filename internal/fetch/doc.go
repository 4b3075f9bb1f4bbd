// Package fetch acquires raw page markup for tripwire.
//
// Two strategies are provided:
//
//   - [Client]: a plain HTTP GET with a configurable User-Agent
//   - [Browser]: navigation through a remote Chrome DevTools endpoint, for
//     pages that build their content with JavaScript
//
// The package is internal. Strategy selection happens in the tripwire
// package, which wraps these types behind its Fetcher interface.
package fetch
