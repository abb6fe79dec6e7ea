package view

// Mailbox identifies one of the portal's three mail folders.
type Mailbox string

const (
	MailboxA Mailbox = "a"
	MailboxB Mailbox = "b"
	MailboxZ Mailbox = "z"
)

func (m Mailbox) Valid() bool {
	switch m {
	case MailboxA, MailboxB, MailboxZ:
		return true
	}
	return false
}

// ValidTransfer reports whether the portal accepts a transfer between the
// two folders. Only {a,b} and {b,z} work, a transfer between a and z is
// rejected upstream for reasons the portal does not document.
func ValidTransfer(from, to Mailbox) bool {
	if !from.Valid() || !to.Valid() || from == to {
		return false
	}
	return from == MailboxB || to == MailboxB
}
