// Package config describes which publishing backend to use. A backend is
// either loaded from a YAML document or parsed from a location URI.
//
// YAML form:
//
//	type: mirror
//	primary:
//	  type: git
//	  root: ./public
//	  push: true
//	secondary:
//	  type: s3
//	  bucket: my-site
//	  region: us-west-2
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Backend types.
const (
	TypeFile   = "file"
	TypeGit    = "git"
	TypeS3     = "s3"
	TypeIPFS   = "ipfs"
	TypeVault  = "vault"
	TypeMirror = "mirror"
	TypeRemote = "remote"
)

// Backend is one publisher configuration. Only the fields relevant to Type are used.
type Backend struct {
	Type string `yaml:"type"`

	// file, git
	Root    string   `yaml:"root,omitempty"`
	LogName string   `yaml:"log_name,omitempty"`
	Exclude []string `yaml:"exclude,omitempty"`

	// git
	Push   bool   `yaml:"push,omitempty"`
	Remote string `yaml:"remote,omitempty"`
	Init   bool   `yaml:"init,omitempty"`

	// s3
	Bucket    string `yaml:"bucket,omitempty"`
	Region    string `yaml:"region,omitempty"`
	Endpoint  string `yaml:"endpoint,omitempty"`
	AccessKey string `yaml:"access_key,omitempty"`
	SecretKey string `yaml:"secret_key,omitempty"`
	ACL       string `yaml:"acl,omitempty"`

	// s3, vault, ipfs: key prefix or MFS directory
	Prefix string `yaml:"prefix,omitempty"`

	// ipfs, vault, remote
	Address string `yaml:"address,omitempty"`

	// vault
	Mount   string `yaml:"mount,omitempty"`
	Token   string `yaml:"token,omitempty"`
	TLSCert string `yaml:"tls_cert,omitempty"`
	TLSKey  string `yaml:"tls_key,omitempty"`

	// remote: signing identity for write requests
	KeyID   string `yaml:"key_id,omitempty"`
	KeyFile string `yaml:"key_file,omitempty"`

	// mirror
	Primary   *Backend `yaml:"primary,omitempty"`
	Secondary *Backend `yaml:"secondary,omitempty"`
}

// Load reads and validates a YAML backend document.
func Load(path string) (*Backend, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML backend document.
func Parse(data []byte) (*Backend, error) {
	var b Backend
	if err := yaml.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	b.applyDefaults()
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return &b, nil
}

// Marshal encodes the backend as YAML.
func (b *Backend) Marshal() ([]byte, error) {
	return yaml.Marshal(b)
}

func (b *Backend) applyDefaults() {
	switch b.Type {
	case TypeS3:
		if b.Region == "" {
			b.Region = "us-east-1"
		}
	case TypeIPFS:
		if b.Address == "" {
			b.Address = "localhost:5001"
		}
		if b.Prefix == "" {
			b.Prefix = "/"
		}
	case TypeVault:
		if b.Mount == "" {
			b.Mount = "secret"
		}
	case TypeGit:
		if b.Remote == "" {
			b.Remote = "origin"
		}
	case TypeMirror:
		if b.Primary != nil {
			b.Primary.applyDefaults()
		}
		if b.Secondary != nil {
			b.Secondary.applyDefaults()
		}
	}
}

// Validate checks that the fields required by Type are present.
func (b *Backend) Validate() error {
	switch b.Type {
	case TypeFile, TypeGit:
		if b.Root == "" {
			return fmt.Errorf("%s backend: root is required", b.Type)
		}
	case TypeS3:
		if b.Bucket == "" {
			return errors.New("s3 backend: bucket is required")
		}
	case TypeIPFS:
		if !strings.HasPrefix(b.Prefix, "/") {
			return fmt.Errorf("ipfs backend: prefix %q must be an absolute MFS path", b.Prefix)
		}
	case TypeVault:
		if b.Address == "" {
			return errors.New("vault backend: address is required")
		}
		if (b.TLSCert == "") != (b.TLSKey == "") {
			return errors.New("vault backend: tls_cert and tls_key must be set together")
		}
	case TypeRemote:
		if b.Address == "" {
			return errors.New("remote backend: address is required")
		}
		if (b.KeyID == "") != (b.KeyFile == "") {
			return errors.New("remote backend: key_id and key_file must be set together")
		}
	case TypeMirror:
		if b.Primary == nil || b.Secondary == nil {
			return errors.New("mirror backend: primary and secondary are required")
		}
		if err := b.Primary.Validate(); err != nil {
			return fmt.Errorf("mirror primary: %w", err)
		}
		if err := b.Secondary.Validate(); err != nil {
			return fmt.Errorf("mirror secondary: %w", err)
		}
	case "":
		return errors.New("backend type is required")
	default:
		return fmt.Errorf("unsupported backend type: %s", b.Type)
	}
	return nil
}
