package chat

import "errors"

// Recoverable core errors. None of them terminate a connection; the gateway
// reports them to the originating connection only.
var (
	ErrInvalidName     = errors.New("display name is empty or contains ':'")
	ErrNameTaken       = errors.New("display name is already taken")
	ErrSelfContact     = errors.New("cannot add yourself as a contact")
	ErrEmptyName       = errors.New("contact name is empty")
	ErrEmptyText       = errors.New("message text is empty")
	ErrUnknownSender   = errors.New("connection is not registered")
	ErrContactNotFound = errors.New("contact not found")
)

// Code maps a core error onto the short machine-readable code carried in
// outbound error events. Unknown errors map to "internal".
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidName):
		return "invalid_name"
	case errors.Is(err, ErrNameTaken):
		return "name_taken"
	case errors.Is(err, ErrSelfContact):
		return "self_contact"
	case errors.Is(err, ErrEmptyName):
		return "empty_name"
	case errors.Is(err, ErrEmptyText):
		return "empty_text"
	case errors.Is(err, ErrUnknownSender):
		return "unknown_sender"
	case errors.Is(err, ErrContactNotFound):
		return "contact_not_found"
	default:
		return "internal"
	}
}
