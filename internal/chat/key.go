package chat

// RoomName is the wire identifier of the shared room log.
const RoomName = "general"

// Key addresses one conversation log: the shared room, or an unordered pair
// of display names. The zero value is the room.
type Key struct {
	a, b string
}

// Room is the key of the shared chat.
var Room = Key{}

// KeyFor canonicalizes the unordered pair {x, y} so that KeyFor(x, y) and
// KeyFor(y, x) address the same log.
func KeyFor(x, y string) Key {
	if y < x {
		x, y = y, x
	}
	return Key{a: x, b: y}
}

// IsRoom reports whether k addresses the shared room.
func (k Key) IsRoom() bool { return k == Room }

// Members returns the two participants of a private key in canonical order.
// Both are empty for the room.
func (k Key) Members() (string, string) { return k.a, k.b }

// Peer returns the other participant of a private key as seen from name.
func (k Key) Peer(name string) string {
	if k.a == name {
		return k.b
	}
	return k.a
}

// String renders the key as used in logs and the wire chat_id field. Names
// never contain the separator, so the rendering is unambiguous.
func (k Key) String() string {
	if k.IsRoom() {
		return RoomName
	}
	return "private" + keySeparator + k.a + keySeparator + k.b
}
