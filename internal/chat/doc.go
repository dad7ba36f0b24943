// Package chat is the routing core of NavyChat: the identity registry, the
// per-user contact graph, the conversation history store and the message
// router that decides which live connections receive each message.
//
// The package performs no I/O. The gateway in internal/server translates
// wire events into Core calls and fans results out to connections.
package chat
