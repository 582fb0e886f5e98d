package token

import (
	"context"
	"net/http"
)

// Generator trades a refresh token for a new pair.
type Generator interface {
	Generate(ctx context.Context, refreshToken string) (Pair, error)
}

type generatorHTTP struct {
	client   Doer
	tokenURL string
}

var _ Generator = (*generatorHTTP)(nil)

// NewGeneratorHTTP posts {"refresh_token": ...} to tokenURL. A nil client
// uses http.DefaultClient.
func NewGeneratorHTTP(client Doer, tokenURL string) Generator {
	if client == nil {
		client = http.DefaultClient
	}
	return &generatorHTTP{
		client:   client,
		tokenURL: tokenURL,
	}
}

func (g *generatorHTTP) Generate(ctx context.Context, refreshToken string) (Pair, error) {
	resp, err := Exchange(ctx, g.client, g.tokenURL, map[string]string{"refresh_token": refreshToken})
	if err != nil {
		return Pair{}, err
	}
	return resp.Pair(), nil
}
