// Package moonraker speaks Moonraker's JSON-RPC 2.0 protocol.
//
// Two channels are used. Client posts request/response calls to
// /server/jsonrpc and matches each reply to its correlation token. WSDialer
// opens the /websocket notification channel that the supervisor owns.
//
// Errors fall into three kinds: *TransportError (retry), *ProtocolError
// (discard the message) and *RPCError (the server said no; show it verbatim).
package moonraker
