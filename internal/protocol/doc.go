// Package protocol defines the JSON event frames exchanged between the
// gateway and chat clients.
//
// Every frame is a JSON object whose "type" field names the event. Inbound
// frames decode into one of a closed set of Inbound variants; outbound
// events are encoded from the Outbound variants. One frame carries exactly
// one event.
package protocol
