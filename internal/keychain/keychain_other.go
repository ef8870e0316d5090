//go:build !darwin

package keychain

// NewSystemFacility opens the desktop keyring on non-darwin platforms.
func NewSystemFacility(opts SystemOptions) (Facility, error) {
	f, err := OpenRingFacility(opts)
	if err != nil {
		return nil, err
	}
	return f, nil
}
