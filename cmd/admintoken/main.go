// Command admintoken mints a bearer token for the admin API. It needs JWT_PRIVATE_KEY_PATH.
package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/go-redemption-api/internal/config"
	jwtinfra "github.com/go-redemption-api/internal/infrastructure/jwt"
	"github.com/joho/godotenv"
)

func main() {
	subject := flag.String("sub", "", "admin id to put in the sub claim")
	ttl := flag.Duration("ttl", 0, "token lifetime (default JWT_EXPIRY)")
	flag.Parse()
	if *subject == "" {
		log.Fatal("-sub is required")
	}

	_ = godotenv.Load()
	cfg := config.Load()
	if *ttl > 0 {
		cfg.JWTExpiry = *ttl
	}
	if cfg.JWTPrivateKeyPath == "" {
		log.Fatal("JWT_PRIVATE_KEY_PATH is not set")
	}
	p, err := jwtinfra.NewProvider(cfg)
	if err != nil {
		log.Fatalf("jwt: %v", err)
	}
	tok, err := p.Sign(*subject, jwtinfra.RoleAdmin)
	if err != nil {
		log.Fatalf("sign: %v", err)
	}
	fmt.Println(tok)
	log.Printf("expires %s", time.Now().Add(cfg.JWTExpiry).UTC().Format(time.RFC3339))
}
