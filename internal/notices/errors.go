package notices

import "errors"

var (
	// ErrStorageNil is returned when a constructor receives a nil storage.
	ErrStorageNil = errors.New("notices: storage cannot be nil")

	// ErrInvalidCategory is returned for categories outside the known set.
	ErrInvalidCategory = errors.New("notices: invalid category")

	// ErrInvalidRecipient is returned when a notice has no recipient.
	ErrInvalidRecipient = errors.New("notices: recipient cannot be empty")
)
