package store

import "context"

// Record is one persisted session: everything needed to rebuild an
// authenticated Session that detects its own expiry lazily. The
// transient status classification is deliberately not part of it.
type Record struct {
	User     string `json:"user"`
	Password string `json:"password"`
	Token    string `json:"token"`
	Cookie   string `json:"cookie"`
}

// Store persists the full session snapshot: Save overwrites everything,
// Load returns everything. The registry loads once at startup and saves
// after every mutating call.
type Store interface {
	Load(ctx context.Context) ([]Record, error)
	Save(ctx context.Context, records []Record) error
}
