// Package identity resolves client-presented credentials to user IDs. The
// protocol layer calls Resolve once per connection, during the in-band
// authenticate step.
package identity

import "context"

type Resolver interface {
	// Resolve validates the token and returns the authenticated userID.
	Resolve(ctx context.Context, token string) (string, error)
}
