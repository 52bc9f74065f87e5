package twitter

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/oauth2/clientcredentials"
)

// Env vars holding the credential material, either pre-minted bearer tokens
// or consumer key pairs to mint app-only bearers from. Both use the same
// comma separated "left:right" pair format.
const (
	BearerTokensEnv = "TWITTER_BEARER_TOKENS"
	ConsumerKeysEnv = "TWITTER_CONSUMER_KEYS"
)

// tokenUrl is a var so tests can point minting at a local server.
var tokenUrl = "https://api.twitter.com/oauth2/token"

// Credential is one set of API key material plus the label it is reported
// under. Rate-limit window state lives in the pool, not here.
type Credential struct {
	Label       string
	BearerToken string
}

// parsePairs splits "a:b,c:d" into pairs, rejecting malformed entries. The
// right-hand side may itself contain colons (bearer tokens do).
func parsePairs(raw string) ([][2]string, error) {
	var pairs [][2]string
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, ":", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return nil, &ConfigError{Reason: fmt.Sprintf("malformed credential pair %q", entry)}
		}
		pairs = append(pairs, [2]string{parts[0], parts[1]})
	}
	if len(pairs) == 0 {
		return nil, &ConfigError{Reason: "no credential pairs found"}
	}
	return pairs, nil
}

// MintBearerToken exchanges a consumer key/secret for an app-only bearer
// token through the client-credentials grant.
func MintBearerToken(ctx context.Context, consumerKey, consumerSecret string) (string, error) {
	conf := &clientcredentials.Config{
		ClientID:     consumerKey,
		ClientSecret: consumerSecret,
		TokenURL:     tokenUrl,
	}
	token, err := conf.Token(ctx)
	if err != nil {
		return "", errors.Wrap(err, "fail to mint bearer token")
	}
	return token.AccessToken, nil
}

// LoadCredentialsFromEnv builds the credential set from the environment.
// TWITTER_BEARER_TOKENS ("label:token,...") wins when set; otherwise
// TWITTER_CONSUMER_KEYS ("key:secret,...") pairs are minted into bearers.
// Missing or malformed material is a ConfigError.
func LoadCredentialsFromEnv(ctx context.Context) ([]*Credential, error) {
	if raw := os.Getenv(BearerTokensEnv); raw != "" {
		pairs, err := parsePairs(raw)
		if err != nil {
			return nil, err
		}
		creds := make([]*Credential, 0, len(pairs))
		for _, pair := range pairs {
			creds = append(creds, &Credential{Label: pair[0], BearerToken: pair[1]})
		}
		return creds, nil
	}

	if raw := os.Getenv(ConsumerKeysEnv); raw != "" {
		pairs, err := parsePairs(raw)
		if err != nil {
			return nil, err
		}
		creds := make([]*Credential, 0, len(pairs))
		for i, pair := range pairs {
			token, err := MintBearerToken(ctx, pair[0], pair[1])
			if err != nil {
				return nil, err
			}
			// Consumer keys are secrets, label by position instead.
			creds = append(creds, &Credential{Label: fmt.Sprintf("key-%d", i), BearerToken: token})
		}
		return creds, nil
	}

	return nil, &ConfigError{Reason: fmt.Sprintf("neither %s nor %s is set", BearerTokensEnv, ConsumerKeysEnv)}
}
