/*
Command devtoken mints a bearer token for local testing of the ticket chat API.

Usage:

	devtoken -id 5 -role worker
	devtoken -id 9 -role mentor -ttl 2h

The signing secret is read from JWT_SECRET (or .env) exactly like the server does.
*/
package main

import (
	"flag"
	"fmt"
	"os"

	"ticketchat/internal/configs"
	"ticketchat/internal/pkg/auth/jwt"
)

func main() {
	id := flag.Int64("id", 0, "user id carried by the token")
	role := flag.String("role", jwt.RoleWorker, "role carried by the token")
	ttl := flag.Duration("ttl", jwt.IdentityExpiration, "token lifetime")
	flag.Parse()

	if *id <= 0 {
		fmt.Fprintln(os.Stderr, "devtoken: -id must be a positive user id")
		os.Exit(2)
	}

	cfg, err := configs.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "devtoken: failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	token, err := jwt.GenerateToken(&jwt.Payload{ID: *id, Role: *role}, cfg.JWTSecret, *ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "devtoken: failed to sign token: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(token)
}
