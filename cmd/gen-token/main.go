// gen-token prints HS256 tokens for servers running with AUTH0_TEST_MODE=1.
package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"

	"workboard/api"
)

type options struct {
	secret string
	userID string
	count  int
	prefix string
	start  int
	ttl    time.Duration
	output string
}

func main() {
	if err := run(os.Args, os.Stdout); err != nil {
		log.Fatal(err)
	}
}

func run(args []string, stdout io.Writer) error {
	var o options
	app := kingpin.New("gen-token", "Generate test mode bearer tokens.")
	app.Flag("secret", "Shared HS256 secret.").Envar("TEST_JWT_SECRET").Required().StringVar(&o.secret)
	app.Flag("count", "Number of tokens to generate.").Default("1").IntVar(&o.count)
	app.Flag("prefix", "User id prefix when count > 1.").Default("perf-user").StringVar(&o.prefix)
	app.Flag("start", "First user index when count > 1.").Default("1").IntVar(&o.start)
	app.Flag("ttl", "Token lifetime.").Default("1h").DurationVar(&o.ttl)
	app.Flag("output", "Write all tokens to this file as a JSON array.").StringVar(&o.output)
	app.Arg("user-id", "Subject of a single token.").StringVar(&o.userID)

	if _, err := app.Parse(args[1:]); err != nil {
		return err
	}
	switch {
	case o.count < 1:
		return fmt.Errorf("count must be at least 1")
	case o.start < 1:
		return fmt.Errorf("start index must be at least 1")
	case o.userID != "" && o.count > 1:
		return fmt.Errorf("explicit user id cannot be combined with count > 1")
	}

	tokens, err := generate(o)
	if err != nil {
		return err
	}
	if o.output != "" {
		if err := writeTokens(o.output, tokens); err != nil {
			return fmt.Errorf("write tokens: %w", err)
		}
	}
	_, err = fmt.Fprint(stdout, tokens[0])
	return err
}

func generate(o options) ([]string, error) {
	tokens := make([]string, o.count)
	for i := range tokens {
		userID := o.userID
		switch {
		case userID != "":
		case o.count == 1:
			userID = o.prefix
		default:
			userID = fmt.Sprintf("%s-%d", o.prefix, o.start+i)
		}
		tok, err := api.SignTestToken([]byte(o.secret), userID, o.ttl)
		if err != nil {
			return nil, err
		}
		tokens[i] = tok
	}
	return tokens, nil
}

func writeTokens(path string, tokens []string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	data, err := sonic.ConfigStd.Marshal(tokens)
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o600)
}
