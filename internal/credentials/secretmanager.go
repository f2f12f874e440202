package credentials

import (
	"context"
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"google.golang.org/api/option"
)

// Resolver turns a secret reference from a Record into secret material.
type Resolver interface {
	Resolve(ctx context.Context, ref string) (string, error)
	Close() error
}

// SecretManagerResolver resolves references via GCP Secret Manager, with an
// "env:" escape hatch for local development.
type SecretManagerResolver struct {
	client    *secretmanager.Client
	projectID string
}

// NewSecretManagerResolver creates a resolver for the given GCP project.
func NewSecretManagerResolver(ctx context.Context, projectID string, opts ...option.ClientOption) (*SecretManagerResolver, error) {
	client, err := secretmanager.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create secret manager client: %w", err)
	}

	if projectID == "" {
		projectID = os.Getenv("GOOGLE_CLOUD_PROJECT")
	}

	return &SecretManagerResolver{
		client:    client,
		projectID: projectID,
	}, nil
}

// Resolve fetches the secret material for a reference.
// Supported forms:
// - env:NAME (environment variable, local development)
// - projects/PROJECT_ID/secrets/SECRET_NAME/versions/VERSION
// - projects/PROJECT_ID/secrets/SECRET_NAME (defaults to latest)
// - SECRET_NAME (requires a configured project ID)
func (r *SecretManagerResolver) Resolve(ctx context.Context, ref string) (string, error) {
	if ref == "" {
		return "", fmt.Errorf("empty secret reference")
	}

	if name, ok := strings.CutPrefix(ref, "env:"); ok {
		value := os.Getenv(name)
		if value == "" {
			return "", fmt.Errorf("environment variable %s is not set", name)
		}
		return value, nil
	}

	// Add timeout to prevent hanging if the API is slow
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req := &secretmanagerpb.AccessSecretVersionRequest{
		Name: r.normalizeSecretPath(ref),
	}

	result, err := r.client.AccessSecretVersion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("failed to access secret version: %w", err)
	}

	return string(result.Payload.Data), nil
}

// normalizeSecretPath ensures the secret path is in the correct format.
// If the path is just a secret name, it constructs the full path with the
// "latest" version.
func (r *SecretManagerResolver) normalizeSecretPath(secretPath string) string {
	if strings.HasPrefix(secretPath, "projects/") && strings.Contains(secretPath, "/versions/") {
		return secretPath
	}

	if strings.HasPrefix(secretPath, "projects/") && strings.Contains(secretPath, "/secrets/") {
		return secretPath + "/versions/latest"
	}

	secretName := path.Base(secretPath)
	return fmt.Sprintf("projects/%s/secrets/%s/versions/latest", r.projectID, secretName)
}

// Close closes the Secret Manager client.
func (r *SecretManagerResolver) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// EnvResolver resolves only "env:" references. It is the default when no
// GCP project is configured.
type EnvResolver struct{}

func (EnvResolver) Resolve(ctx context.Context, ref string) (string, error) {
	name, ok := strings.CutPrefix(ref, "env:")
	if !ok {
		return "", fmt.Errorf("unsupported secret reference %q (no Secret Manager configured; use env:NAME)", ref)
	}
	value := os.Getenv(name)
	if value == "" {
		return "", fmt.Errorf("environment variable %s is not set", name)
	}
	return value, nil
}

func (EnvResolver) Close() error { return nil }
