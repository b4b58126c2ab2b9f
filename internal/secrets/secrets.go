// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package secrets loads site session material and client passwords from a
// directory of plain-text files. Each file in the directory represents one
// secret: the filename is the key name and the file contents (trimmed) are
// the value.
//
// Recognized key files: <site>-cookie, <site>-apikey, <site>-passkey,
// <client>-password.
package secrets

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdiddy/ptengine/internal/site"
	"github.com/pdiddy/ptengine/pkg/types"
)

const (
	cookieSuffix   = "-cookie"
	apiKeySuffix   = "-apikey"
	passkeySuffix  = "-passkey"
	passwordSuffix = "-password"
)

// Load reads all files in dir and returns a map of filename to trimmed contents.
// A missing directory or missing files are not errors; Load returns an empty map.
// Unreadable files produce a warning on stderr but do not abort.
func Load(dir string) (map[string]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("reading secrets directory %s: %w", dir, err)
	}

	secrets := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: could not read secret %s: %v\n", name, err)
			continue
		}

		value := strings.TrimSpace(string(data))
		if value != "" {
			secrets[name] = value
		}
	}

	return secrets, nil
}

// Apply fills empty credential fields of the site and client profiles from
// secrets. Values already present in the profiles win.
func Apply(secrets map[string]string, sites []types.SiteProfile, clients []types.DownloadClientProfile) {
	for i := range sites {
		if sites[i].Cookie == "" {
			sites[i].Cookie = secrets[sites[i].Name+cookieSuffix]
		}
		if sites[i].APIKey == "" {
			sites[i].APIKey = secrets[sites[i].Name+apiKeySuffix]
		}
		if sites[i].Passkey == "" {
			sites[i].Passkey = secrets[sites[i].Name+passkeySuffix]
		}
	}
	for i := range clients {
		if clients[i].Password == "" {
			clients[i].Password = secrets[clients[i].Name+passwordSuffix]
		}
	}
}

// Dir is a site.CredentialSource backed by a secrets directory. It rereads
// the directory on every call so a refreshed cookie file takes effect
// without a restart.
type Dir string

var _ site.CredentialSource = Dir("")

// Credentials returns the cookie and API key stored for siteName. It fails
// when neither file exists.
func (d Dir) Credentials(ctx context.Context, siteName string) (site.Credentials, error) {
	if err := ctx.Err(); err != nil {
		return site.Credentials{}, err
	}
	secrets, err := Load(string(d))
	if err != nil {
		return site.Credentials{}, err
	}
	c := site.Credentials{
		Cookie: secrets[siteName+cookieSuffix],
		APIKey: secrets[siteName+apiKeySuffix],
	}
	if c.Cookie == "" && c.APIKey == "" {
		return c, fmt.Errorf("no credentials for site %s in %s", siteName, string(d))
	}
	return c, nil
}
