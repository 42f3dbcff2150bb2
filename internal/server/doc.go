// Package server implements the BlockPad relay: a WebSocket hub that lets
// clients join named rooms and exchange ephemeral presence and block-mutation
// events, each rebroadcast to every other member of the same room.
//
// The implementation is organized into specialized files: the registry owns
// room membership, the router maps inbound events to outbound broadcasts, the
// hub and clients form the transport, and the remaining files cover
// configuration, origin policy, middleware, metrics, and the HTTP surface.
package server
