package aws

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// SecretFetcher reads a named secret string.
type SecretFetcher interface {
	GetSecret(ctx context.Context, name string) (string, error)
}

type secretsAPI interface {
	GetSecretValue(ctx context.Context, in *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// secretTTL bounds how long a fetched value is reused. Auth keys rotate.
const secretTTL = 15 * time.Minute

type cachedSecret struct {
	value   string
	fetched time.Time
}

// SecretsClient reads dashboard secrets. A name of the form "bundle#field"
// selects one field of a JSON secret, so several keys can share one secret.
type SecretsClient struct {
	api   secretsAPI
	now   func() time.Time
	mu    sync.Mutex
	cache map[string]cachedSecret
}

func NewSecretsClient(cfg sdkaws.Config) *SecretsClient {
	return newSecretsClient(secretsmanager.NewFromConfig(cfg), time.Now)
}

func newSecretsClient(api secretsAPI, now func() time.Time) *SecretsClient {
	return &SecretsClient{api: api, now: now, cache: make(map[string]cachedSecret)}
}

func (s *SecretsClient) GetSecret(ctx context.Context, name string) (string, error) {
	id, field, _ := strings.Cut(name, "#")

	raw, err := s.fetch(ctx, id)
	if err != nil {
		return "", err
	}
	if field == "" {
		return raw, nil
	}

	var bundle map[string]string
	if err := json.Unmarshal([]byte(raw), &bundle); err != nil {
		return "", fmt.Errorf("secret %s is not a JSON object: %w", id, err)
	}
	v, ok := bundle[field]
	if !ok {
		return "", fmt.Errorf("secret %s has no field %s", id, field)
	}
	return v, nil
}

func (s *SecretsClient) fetch(ctx context.Context, id string) (string, error) {
	s.mu.Lock()
	c, ok := s.cache[id]
	s.mu.Unlock()
	if ok && s.now().Sub(c.fetched) < secretTTL {
		return c.value, nil
	}

	out, err := s.api.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{SecretId: sdkaws.String(id)})
	if err != nil {
		return "", fmt.Errorf("failed to get secret %s: %w", id, err)
	}
	if out.SecretString == nil {
		return "", fmt.Errorf("secret %s has no string value", id)
	}

	s.mu.Lock()
	s.cache[id] = cachedSecret{value: *out.SecretString, fetched: s.now()}
	s.mu.Unlock()
	return *out.SecretString, nil
}
