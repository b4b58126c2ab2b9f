// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"path/filepath"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

func cli(args ...string) error {
	mg.Deps(Build)
	return sh.RunV(filepath.Join(binDir, binName), args...)
}

// Search builds the CLI and searches every enabled site for keywords.
func Search(keywords string) error {
	return cli("search", "--stats", keywords)
}

// Sites builds the CLI and verifies every enabled site session.
func Sites() error {
	return cli("sites", "check")
}

// History builds the CLI and exports the download history as YAML.
func History() error {
	return cli("history", "export", "--format", "yaml")
}
