// Package protocol defines the JSON messages exchanged with gallery clients
// over the websocket.
//
// Every message is an object with a "type" field. Inbound messages are
// decoded by Parse into typed requests; numeric fields accept both JSON
// numbers and numeric strings, and byte fields are base64 encoded. Outbound
// messages are built with the constructors in this package and encoded
// with Marshal.
//
// Errors:
//   - *ValidationError (matches ErrInvalidMessage): malformed input, answered
//     with INFO_RESPONSE 400
//   - *UnsupportedTypeError: unknown or server-only type, answered with
//     INFO_RESPONSE 415
package protocol
