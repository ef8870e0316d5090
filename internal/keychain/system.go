package keychain

// SystemOptions configures the host facility. Keychain Services on macOS
// ignores them; the desktop keyring used elsewhere reads all of them.
type SystemOptions struct {
	// ServiceName groups this application's records in the keyring.
	ServiceName string
	// Backends restricts which keyring backends may be opened, in order of
	// preference (e.g. "secret-service", "kwallet", "file"). Empty means any.
	Backends []string
	// FileDir is where the encrypted file backend keeps its items.
	FileDir string
	// FilePassword supplies the file backend's passphrase.
	FilePassword func(prompt string) (string, error)
}

// DefaultServiceName is used when SystemOptions.ServiceName is empty.
const DefaultServiceName = "keystash"
