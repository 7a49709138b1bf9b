package slack

import "context"

// Member is one workspace roster entry as the directory reports it.
type Member struct {
	ID        string
	Name      string
	Username  string
	Email     string
	AvatarURL string
	IsBot     bool
	Deleted   bool
}

type Provider interface {
	// ListMembers returns the complete workspace roster, following
	// pagination until the API signals no further pages. Any page error
	// aborts the whole listing.
	ListMembers(ctx context.Context) ([]Member, error)

	// SendDirectMessage posts a direct message to the given member.
	SendDirectMessage(ctx context.Context, userID string, text string) error
}

type NoOpProvider struct{}

func (p *NoOpProvider) ListMembers(ctx context.Context) ([]Member, error) {
	return nil, nil
}

func (p *NoOpProvider) SendDirectMessage(ctx context.Context, userID string, text string) error {
	return nil
}
