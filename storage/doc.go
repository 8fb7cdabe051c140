// Package storage provides the publisher backends.
//
// Every backend implements interfaces.Publisher over a different medium:
//
//   - FilePublisher writes a directory tree and keeps a plain-text commit log
//   - GitPublisher edits the working tree of a git repository and turns
//     commits into checkpoints
//   - S3Publisher uploads to Amazon S3 or a compatible service
//   - IPFSPublisher writes into the mutable file system of an IPFS node
//   - VaultPublisher stores objects as HashiCorp Vault KV v2 secrets
//   - MirrorPublisher fans writes out to a primary and a secondary publisher
//
// # Location URI Format
//
// Backends are specified using URI format:
//
//	[scheme]://[auth@]host[:port][/path][?params]
//
// Supported URI schemes:
//
//   - file:///var/www/site
//   - git:///var/www/site?push=true&remote=origin
//   - s3://bucket-name/prefix/?region=us-west-2
//   - ipfs://localhost:5001/sites/blog
//   - vault://vault.example.com:8200/secret/site
//
// Mirrors are only available through a YAML configuration, see package config.
//
// # HTML Aliasing
//
// Content stored as text/html under a path without the .html suffix is
// stored as path.html. Reads try path first and path.html second, so an
// HTML page can be addressed by its logical name. Deletes use the same rule
// as writes and do not fall back.
//
// # Commit Semantics
//
// FilePublisher appends "<timestamp> <message>" to log.txt on every commit,
// even if nothing changed. GitPublisher creates a checkpoint only if the
// working tree differs from the last one. Object stores have no staging
// area: their Commit and Rollback are no-ops.
//
// # Usage Example
//
//	factory := storage.NewPublisherFactory(logger)
//
//	publisher, err := factory.PublisherForLocation("git:///var/www/site?push=true")
//	if err != nil {
//	    log.Fatalf("Failed to create publisher: %v", err)
//	}
//
//	err = interfaces.PutBytes(ctx, publisher, "index", page, "text/html")
//	if err != nil {
//	    publisher.Rollback(ctx)
//	}
//	err = publisher.Commit(ctx, "Publish index")
package storage
