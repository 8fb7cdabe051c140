package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/ruteri/content-publisher/interfaces"
)

// ParseLocation converts a location URI into a backend configuration.
// The URI format is [scheme]://[auth@]host[:port][/path][?params]
//
// Supported schemes:
//   - file:///var/www/site or file://./relative/site
//   - git:///var/www/site?push=true&remote=origin&init=true
//   - s3://[ACCESS_KEY:SECRET_KEY@]bucket/prefix?region=us-west-2&endpoint=custom.s3.com&acl=public-read
//   - ipfs://localhost:5001/mfs/dir
//   - vault://vault.example.com:8200/mount/prefix?scheme=https
//   - https://publisher.example.com/?key_id=alice&key_file=alice.pem
func ParseLocation(uri string) (*Backend, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrInvalidLocationURI, err)
	}

	query := u.Query()
	var b *Backend

	switch strings.ToLower(u.Scheme) {
	case TypeFile, TypeGit:
		root := localPath(u)
		if root == "" {
			return nil, fmt.Errorf("%w: empty path in %s", interfaces.ErrInvalidLocationURI, uri)
		}
		b = &Backend{
			Type:    strings.ToLower(u.Scheme),
			Root:    root,
			LogName: query.Get("log"),
			Push:    paramBool(query, "push"),
			Remote:  query.Get("remote"),
			Init:    paramBool(query, "init"),
		}
		if b.Type == TypeFile {
			b.Push, b.Remote, b.Init = false, "", false
		}

	case TypeS3:
		b = &Backend{
			Type:     TypeS3,
			Bucket:   u.Host,
			Prefix:   strings.TrimPrefix(u.Path, "/"),
			Region:   query.Get("region"),
			Endpoint: query.Get("endpoint"),
			ACL:      query.Get("acl"),
		}
		if u.User != nil {
			b.AccessKey = u.User.Username()
			b.SecretKey, _ = u.User.Password()
		}

	case TypeIPFS:
		b = &Backend{
			Type:    TypeIPFS,
			Address: u.Host,
			Prefix:  u.Path,
		}

	case TypeVault:
		scheme := query.Get("scheme")
		if scheme == "" {
			scheme = "https"
		}
		mount, prefix, _ := strings.Cut(strings.Trim(u.Path, "/"), "/")
		b = &Backend{
			Type:    TypeVault,
			Address: fmt.Sprintf("%s://%s", scheme, u.Host),
			Mount:   mount,
			Prefix:  prefix,
			Token:   query.Get("token"),
		}

	case "http", "https":
		base := url.URL{Scheme: strings.ToLower(u.Scheme), Host: u.Host, Path: strings.TrimSuffix(u.Path, "/")}
		b = &Backend{
			Type:    TypeRemote,
			Address: base.String(),
			KeyID:   query.Get("key_id"),
			KeyFile: query.Get("key_file"),
		}

	default:
		return nil, fmt.Errorf("%w: unsupported scheme %q", interfaces.ErrInvalidLocationURI, u.Scheme)
	}

	b.applyDefaults()
	if err := b.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrInvalidLocationURI, err)
	}
	return b, nil
}

// localPath extracts a filesystem path from a file:// or git:// URI, handling
// relative paths written as file://./dir.
func localPath(u *url.URL) string {
	p := u.Path
	if u.Host != "" {
		// Handle Windows-style paths like file://C:/path
		if len(u.Host) == 2 && u.Host[1] == ':' {
			p = u.Host + p
		} else {
			p = u.Host + "/" + strings.TrimPrefix(p, "/")
		}
	}
	if u.Opaque != "" {
		p = u.Opaque
	}
	return strings.TrimSuffix(p, "/")
}

func paramBool(q url.Values, name string) bool {
	value := q.Get(name)
	return value == "true" || value == "1" || value == "yes"
}
