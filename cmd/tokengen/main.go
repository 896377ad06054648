// Command tokengen mints a bearer token for the ingest API.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/sanjeevkumarraob/pdf-ingest-service/internal/auth"
	"github.com/sanjeevkumarraob/pdf-ingest-service/internal/config"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintf(os.Stderr, "tokengen: %v\n", err)
		}
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("tokengen", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", os.Getenv("CONFIG_FILE"), "path to YAML config file")
	subject := fs.String("subject", "", "token subject")
	ttl := fs.Duration("ttl", 0, "token lifetime, defaults to auth.token_ttl")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if cfg.Auth.Secret == "" {
		return errors.New("auth secret is not configured, set AUTH_SECRET or auth.secret")
	}

	lifetime := cfg.Auth.TokenTTL
	if *ttl > 0 {
		lifetime = *ttl
	}

	token, err := auth.NewJWTManager(cfg.Auth.Secret, lifetime).GenerateToken(*subject)
	if err != nil {
		return err
	}

	fmt.Fprintln(stdout, token)
	return nil
}
