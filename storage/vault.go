package storage

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/vault/api"
	"github.com/ruteri/content-publisher/interfaces"
	"github.com/ruteri/content-publisher/mimeutils"
)

// VaultOptions configures a VaultPublisher.
type VaultOptions struct {
	// Address of the Vault server, e.g. https://vault.example.com:8200
	Address string

	// Mount is the KV v2 secrets engine mount. Prefix is the path within it.
	Mount  string
	Prefix string

	// Token authenticates requests. When ClientCert is set the client also
	// presents it during the TLS handshake.
	Token      string
	ClientCert *tls.Certificate
}

// VaultPublisher stores published objects as KV v2 secrets. Each object is
// a secret holding the base64 body and its content type. Writes are
// visible immediately: Commit and Rollback are no-ops.
type VaultPublisher struct {
	client      *api.Client
	mountPath   string
	dataPath    string
	log         *slog.Logger
	locationURI string
}

// NewVaultPublisher creates a new Vault publisher.
func NewVaultPublisher(opts VaultOptions, log *slog.Logger) (*VaultPublisher, error) {
	if log == nil {
		log = slog.Default()
	}

	config := api.DefaultConfig()
	config.Address = opts.Address
	config.Timeout = 30 * time.Second
	if opts.ClientCert != nil {
		config.HttpClient = &http.Client{
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{
					Certificates: []tls.Certificate{*opts.ClientCert},
				},
			},
			Timeout: 30 * time.Second,
		}
	}

	client, err := api.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}
	if opts.Token != "" {
		client.SetToken(opts.Token)
	}

	mountPath := strings.Trim(opts.Mount, "/")
	dataPath := strings.Trim(opts.Prefix, "/")

	return &VaultPublisher{
		client:      client,
		mountPath:   mountPath,
		dataPath:    dataPath,
		log:         log,
		locationURI: vaultLocationURI(opts.Address, mountPath, dataPath),
	}, nil
}

func vaultLocationURI(address, mountPath, dataPath string) string {
	u, err := url.Parse(address)
	if err != nil || u.Host == "" {
		return fmt.Sprintf("vault://%s/%s/%s", address, mountPath, dataPath)
	}
	return fmt.Sprintf("vault://%s/%s/%s?scheme=%s", u.Host, mountPath, dataPath, u.Scheme)
}

// Put stores body as the secret for path.
func (b *VaultPublisher) Put(ctx context.Context, p string, body io.Reader, contentType string) error {
	start := time.Now()
	clean, err := interfaces.CleanPath(p)
	if err != nil {
		return err
	}
	if contentType == "" {
		contentType = mimeutils.InferType(clean)
	}

	data, err := io.ReadAll(body)
	if err != nil {
		return fmt.Errorf("failed to read body: %w", err)
	}

	secretPath := b.secretPath("data", mimeutils.HTMLPath(clean, contentType))
	secretData := map[string]interface{}{
		"data": map[string]interface{}{
			"body":         base64.StdEncoding.EncodeToString(data),
			"content_type": contentType,
		},
	}

	if _, err := b.client.Logical().WriteWithContext(ctx, secretPath, secretData); err != nil {
		b.log.Error("Failed to write to Vault",
			slog.String("path", secretPath),
			"err", err)
		return fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}

	b.log.Debug("Stored object in Vault",
		slog.String("path", secretPath),
		slog.Int("size", len(data)),
		slog.Duration("duration", time.Since(start)))

	return nil
}

// Delete removes every version of the secret stored for path and contentType.
func (b *VaultPublisher) Delete(ctx context.Context, p string, contentType string) error {
	clean, err := interfaces.CleanPath(p)
	if err != nil {
		return err
	}

	name := mimeutils.HTMLPath(clean, contentType)
	obj, err := b.read(ctx, name)
	if err != nil {
		return err
	}
	if obj == nil {
		return fmt.Errorf("%s: %w", clean, interfaces.ErrNotFound)
	}

	metadataPath := b.secretPath("metadata", name)
	if _, err := b.client.Logical().DeleteWithContext(ctx, metadataPath); err != nil {
		return fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}

	b.log.Debug("Deleted object from Vault", slog.String("path", metadataPath))
	return nil
}

// Get reads the secret for path, falling back to path.html.
func (b *VaultPublisher) Get(ctx context.Context, p string) (*interfaces.Object, error) {
	clean, err := interfaces.CleanPath(p)
	if err != nil {
		return nil, err
	}

	for _, suffix := range aliasSuffixes {
		obj, err := b.read(ctx, clean+suffix)
		if err != nil {
			return nil, err
		}
		if obj != nil {
			return obj, nil
		}
	}

	b.log.Debug("Object not found in Vault", slog.String("path", clean))
	return nil, fmt.Errorf("%s: %w", clean, interfaces.ErrNotFound)
}

// Exists reports whether a secret is stored for path or path.html.
func (b *VaultPublisher) Exists(ctx context.Context, p string) bool {
	obj, err := b.Get(ctx, p)
	if err != nil {
		if !errors.Is(err, interfaces.ErrNotFound) {
			b.log.Warn("Failed to read from Vault", slog.String("path", p), "err", err)
		}
		return false
	}
	return obj != nil
}

// List walks the metadata tree below the prefix.
func (b *VaultPublisher) List(ctx context.Context) ([]string, error) {
	var files []string
	if err := b.walk(ctx, "", &files); err != nil {
		return nil, err
	}

	sort.Strings(files)
	return files, nil
}

func (b *VaultPublisher) walk(ctx context.Context, rel string, files *[]string) error {
	listPath := b.secretPath("metadata", rel)
	secret, err := b.client.Logical().ListWithContext(ctx, listPath)
	if err != nil {
		return fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}
	if secret == nil || secret.Data == nil {
		return nil
	}

	keys, _ := secret.Data["keys"].([]interface{})
	for _, k := range keys {
		key, ok := k.(string)
		if !ok {
			continue
		}
		if dir, isDir := strings.CutSuffix(key, "/"); isDir {
			if err := b.walk(ctx, path.Join(rel, dir), files); err != nil {
				return err
			}
			continue
		}
		*files = append(*files, path.Join(rel, key))
	}
	return nil
}

// Rollback is a no-op: secrets are written immediately.
func (b *VaultPublisher) Rollback(ctx context.Context) error {
	return nil
}

// Commit is a no-op: KV v2 already versions every secret.
func (b *VaultPublisher) Commit(ctx context.Context, message string) error {
	b.log.Debug("Commit on Vault publisher", slog.String("message", message))
	return nil
}

// Available checks that Vault is reachable, initialized and unsealed.
func (b *VaultPublisher) Available(ctx context.Context) bool {
	healthCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	health, err := b.client.Sys().HealthWithContext(healthCtx)
	if err != nil {
		b.log.Debug("Vault health check failed", "err", err)
		return false
	}

	if !health.Initialized || health.Sealed {
		b.log.Debug("Vault is not available",
			slog.Bool("initialized", health.Initialized),
			slog.Bool("sealed", health.Sealed))
		return false
	}

	return true
}

// Name returns a unique identifier for this publisher.
func (b *VaultPublisher) Name() string {
	return fmt.Sprintf("vault-%s-%s", b.mountPath, b.dataPath)
}

// LocationURI returns the URI that identifies this publisher.
func (b *VaultPublisher) LocationURI() string {
	return b.locationURI
}

// read returns the object stored under the exact name, or nil if there is
// no live version.
func (b *VaultPublisher) read(ctx context.Context, name string) (*interfaces.Object, error) {
	secretPath := b.secretPath("data", name)
	secret, err := b.client.Logical().ReadWithContext(ctx, secretPath)
	if err != nil {
		b.log.Error("Failed to read from Vault",
			slog.String("path", secretPath),
			"err", err)
		return nil, fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}
	if secret == nil || secret.Data == nil {
		return nil, nil
	}

	// Soft-deleted versions come back with null data
	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok || data == nil {
		return nil, nil
	}

	encoded, ok := data["body"].(string)
	if !ok {
		return nil, fmt.Errorf("invalid data format in Vault secret %s", secretPath)
	}
	body, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("invalid body encoding in Vault secret %s: %w", secretPath, err)
	}

	contentType, _ := data["content_type"].(string)
	if contentType == "" {
		contentType = mimeutils.InferType(name)
	}

	return &interfaces.Object{Body: body, ContentType: contentType}, nil
}

// secretPath builds a KV v2 API path, kind being "data" or "metadata".
func (b *VaultPublisher) secretPath(kind, rel string) string {
	return path.Join(b.mountPath, kind, b.dataPath, rel)
}
