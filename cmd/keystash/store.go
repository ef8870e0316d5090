package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/benaskins/keystash/internal/audit"
	"github.com/benaskins/keystash/internal/config"
	"github.com/benaskins/keystash/internal/keychain"
	"golang.org/x/term"
)

func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = config.DefaultPath()
	}
	return config.Load(path)
}

// resolveKind prefers --kind over the config file.
func resolveKind(cfg *config.Config) (keychain.Kind, error) {
	if kindFlag != "" {
		return keychain.ParseKind(kindFlag)
	}
	return cfg.ItemKind(), nil
}

// resolveOwner prefers --owner over the config file. It returns nil when
// neither sets one.
func resolveOwner(cfg *config.Config) (*keychain.Owner, error) {
	if ownerFlag != "" {
		o, err := keychain.ParseOwner(ownerFlag)
		if err != nil {
			return nil, err
		}
		return &o, nil
	}
	return cfg.OwnerTag(), nil
}

func ownerOptions(owner *keychain.Owner) []keychain.RecordOption {
	if owner == nil {
		return nil
	}
	return []keychain.RecordOption{keychain.WithOwner(*owner)}
}

type session struct {
	store *keychain.AuditedStore
	owner *keychain.Owner
	log   *audit.Logger
}

func (s *session) Close() error {
	return s.log.Close()
}

// openSession wires the host facility, the credential store and the audit
// trail together for one CLI invocation.
func openSession() (*session, error) {
	cfg := activeConfig
	kind, err := resolveKind(cfg)
	if err != nil {
		return nil, err
	}
	owner, err := resolveOwner(cfg)
	if err != nil {
		return nil, err
	}

	opts, err := cfg.SystemOptions()
	if err != nil {
		return nil, err
	}
	opts.FilePassword = promptPassword
	facility, err := keychain.NewSystemFacility(opts)
	if err != nil {
		return nil, err
	}

	auditPath, err := cfg.AuditLogPath()
	if err != nil {
		return nil, err
	}
	metaPath, err := cfg.MetadataPath()
	if err != nil {
		return nil, err
	}
	for _, dir := range []string{filepath.Dir(auditPath), filepath.Dir(metaPath)} {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("creating %s: %w", dir, err)
		}
	}

	auditLog, err := audit.NewLogger(auditPath)
	if err != nil {
		return nil, err
	}
	meta, err := keychain.NewMetadataStore(metaPath)
	if err != nil {
		auditLog.Close()
		return nil, err
	}

	store := keychain.NewAuditedStore(keychain.New(facility, kind), auditLog, meta, "cli")
	return &session{store: store, owner: owner, log: auditLog}, nil
}

func promptPassword(prompt string) (string, error) {
	fmt.Fprintf(os.Stderr, "%s: ", prompt)
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return string(b), nil
}
