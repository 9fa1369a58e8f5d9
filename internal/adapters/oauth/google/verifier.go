package google

import (
	"context"
	"errors"
	"fmt"

	"github.com/reeltally/api/internal/core/ports"
	"github.com/rs/zerolog"
	"google.golang.org/api/idtoken"
)

// Verifier validates Google ID tokens issued by the sign-in widget.
type Verifier struct {
	log zerolog.Logger
}

func NewVerifier(log zerolog.Logger) ports.TokenVerifier {
	return &Verifier{
		log: log.With().Str("component", "google_verifier").Logger(),
	}
}

func (v *Verifier) Verify(ctx context.Context, token string, clientID string) (*ports.TokenPayload, error) {
	payload, err := idtoken.Validate(ctx, token, clientID)
	if err != nil {
		v.log.Debug().Err(err).Msg("id token rejected")
		return nil, fmt.Errorf("failed to validate id token: %w", err)
	}

	email, ok := payload.Claims["email"].(string)
	if !ok {
		return nil, errors.New("email not found in claims")
	}
	name, ok := payload.Claims["name"].(string)
	if !ok {
		return nil, errors.New("name not found in claims")
	}
	return &ports.TokenPayload{Email: email, Name: name}, nil
}
