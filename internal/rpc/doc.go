// Package rpc serves the ask operation over line-delimited JSON-RPC 2.0.
//
// One request per line is read and one response line is written for every
// request that carries an id; notifications get no reply. Besides the plain
// "ask" method the server speaks the subset of the Model Context Protocol a
// stdio tool server needs: initialize, ping, tools/list and tools/call.
package rpc
