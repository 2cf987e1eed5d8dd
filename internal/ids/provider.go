package ids

import "github.com/google/uuid"

// Provider issues UUIDv7 row identifiers.
type Provider struct{}

func NewProvider() *Provider {
	return &Provider{}
}

func (p *Provider) NewID() (string, error) {
	value, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return value.String(), nil
}
