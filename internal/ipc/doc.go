// Package ipc exposes daemon control to local clients over JSON-RPC.
// The transport is an address.Address, so the same server speaks over a
// Unix domain socket ("pipe:PATH") or a TCP endpoint ("tcp:HOST:PORT").
package ipc
