package storage

import (
	"crypto/tls"
	"fmt"
	"log/slog"

	"github.com/ruteri/content-publisher/api/clients"
	"github.com/ruteri/content-publisher/config"
	"github.com/ruteri/content-publisher/cryptoutils"
	"github.com/ruteri/content-publisher/interfaces"
)

// PublisherFactory creates publishers from backend configurations and
// location URIs.
type PublisherFactory struct {
	log *slog.Logger
}

// NewPublisherFactory creates a new factory instance.
func NewPublisherFactory(logger *slog.Logger) *PublisherFactory {
	if logger == nil {
		logger = slog.Default()
	}
	return &PublisherFactory{log: logger}
}

// PublisherForLocation creates a publisher from a location URI.
// The URI format should be [scheme]://[auth@]host[:port][/path][?params]
//
// Supported schemes:
//   - file:// - Local filesystem with a plain-text commit log
//   - git:// - Working tree of a git repository
//   - s3:// - Amazon S3 or compatible object storage
//   - ipfs:// - Directory in the IPFS mutable file system
//   - vault:// - HashiCorp Vault KV v2 secrets engine
//   - http://, https:// - Another content-publisher server
//
// Mirrors cannot be expressed as a single URI, see PublisherFor.
func (f *PublisherFactory) PublisherForLocation(locationURI string) (interfaces.Publisher, error) {
	cfg, err := config.ParseLocation(locationURI)
	if err != nil {
		return nil, err
	}
	return f.PublisherFor(cfg)
}

// PublisherFor creates the publisher described by cfg, recursing into
// mirror halves.
func (f *PublisherFactory) PublisherFor(cfg *config.Backend) (interfaces.Publisher, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: missing backend configuration", interfaces.ErrInvalidLocationURI)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log := f.log.With(slog.String("backend", cfg.Type))

	switch cfg.Type {
	case config.TypeFile:
		log.Debug("Creating file publisher", slog.String("root", cfg.Root))
		return NewFilePublisher(cfg.Root, FileOptions{
			LogName: cfg.LogName,
			Exclude: cfg.Exclude,
		}, log)

	case config.TypeGit:
		log.Debug("Creating git publisher", slog.String("root", cfg.Root))
		return NewGitPublisher(cfg.Root, GitOptions{
			Push:    cfg.Push,
			Remote:  cfg.Remote,
			Init:    cfg.Init,
			Exclude: cfg.Exclude,
		}, log)

	case config.TypeS3:
		log.Debug("Creating S3 publisher", slog.String("bucket", cfg.Bucket))
		return NewS3Publisher(S3Options{
			Bucket:    cfg.Bucket,
			Prefix:    cfg.Prefix,
			Region:    cfg.Region,
			Endpoint:  cfg.Endpoint,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
			ACL:       cfg.ACL,
		}, log)

	case config.TypeIPFS:
		log.Debug("Creating IPFS publisher", slog.String("address", cfg.Address))
		return NewIPFSPublisher(cfg.Address, cfg.Prefix, log)

	case config.TypeVault:
		log.Debug("Creating Vault publisher", slog.String("address", cfg.Address))
		opts := VaultOptions{
			Address: cfg.Address,
			Mount:   cfg.Mount,
			Prefix:  cfg.Prefix,
			Token:   cfg.Token,
		}
		if cfg.TLSCert != "" {
			cert, err := tls.LoadX509KeyPair(cfg.TLSCert, cfg.TLSKey)
			if err != nil {
				return nil, fmt.Errorf("failed to load Vault client certificate: %w", err)
			}
			opts.ClientCert = &cert
		}
		return NewVaultPublisher(opts, log)

	case config.TypeRemote:
		log.Debug("Creating remote publisher", slog.String("address", cfg.Address))
		var opts []clients.ClientOption
		if cfg.KeyFile != "" {
			key, err := cryptoutils.LoadPrivateKey(cfg.KeyFile)
			if err != nil {
				return nil, err
			}
			opts = append(opts, clients.WithSigner(cfg.KeyID, key))
		}
		return clients.NewPublisherClient(cfg.Address, opts...), nil

	case config.TypeMirror:
		primary, err := f.PublisherFor(cfg.Primary)
		if err != nil {
			return nil, fmt.Errorf("mirror primary: %w", err)
		}
		secondary, err := f.PublisherFor(cfg.Secondary)
		if err != nil {
			return nil, fmt.Errorf("mirror secondary: %w", err)
		}
		return f.CreateMirror(primary, secondary), nil

	default:
		return nil, fmt.Errorf("%w: unsupported backend type %q", interfaces.ErrInvalidLocationURI, cfg.Type)
	}
}

// CreateMirror pairs two publishers: writes go to both, reads to primary.
func (f *PublisherFactory) CreateMirror(primary, secondary interfaces.Publisher) interfaces.Publisher {
	f.log.Debug("Creating mirror publisher",
		slog.String("primary", primary.LocationURI()),
		slog.String("secondary", secondary.LocationURI()))
	return NewMirrorPublisher(primary, secondary, f.log)
}
