// Command devtoken mints an access token for local testing.  Production
// tokens come from the identity provider; this only shares its secret.
package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/iliyamo/event-ticketing/internal/utils"
)

func main() {
	_ = godotenv.Load()

	flagSet := pflag.NewFlagSet("devtoken", pflag.ContinueOnError)
	secret := flagSet.StringP("secret", "s", os.Getenv("JWT_SECRET"), "HMAC secret (defaults to $JWT_SECRET)")
	sub := flagSet.StringP("sub", "u", "", "user id placed in the sub claim")
	role := flagSet.StringP("role", "r", utils.RoleUser, "role claim: user or admin")
	ttl := flagSet.DurationP("ttl", "t", time.Hour, "token lifetime")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return
		}
		os.Exit(2)
	}
	if *secret == "" || *sub == "" {
		fmt.Fprintln(os.Stderr, "devtoken: --secret and --sub are required")
		flagSet.Usage()
		os.Exit(2)
	}
	if *role != utils.RoleUser && *role != utils.RoleAdmin {
		log.Fatalf("devtoken: unknown role %q", *role)
	}
	at, err := utils.NewAccessToken(*secret, *sub, *role, *ttl)
	if err != nil {
		log.Fatalf("devtoken: %v", err)
	}
	fmt.Println(at.Token)
}
