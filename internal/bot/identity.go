package bot

import "sync/atomic"

// Identity holds the bot's own user id once known.
type Identity struct {
	id atomic.Value
}

func (i *Identity) Set(id string) {
	i.id.Store(id)
}

func (i *Identity) ID() string {
	v, _ := i.id.Load().(string)
	return v
}

func (i *Identity) Is(userID string) bool {
	id := i.ID()
	return id != "" && id == userID
}
