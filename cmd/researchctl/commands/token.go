package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/suPer8Hu/market-research/internal/auth"
)

// TokenAction mints a bearer token for a server running with AUTH_JWT_SECRET.
func TokenAction(_ context.Context, cmd *cli.Command) error {
	tok, err := auth.SignJWT(cmd.String("subject"), cmd.String("secret"), cmd.Duration("ttl"))
	if err != nil {
		return err
	}
	fmt.Println(tok)
	return nil
}
