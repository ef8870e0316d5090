//go:build darwin

package keychain

import (
	"errors"
	"fmt"

	gokeychain "github.com/keybase/go-keychain"
)

// creatorKey is the raw value of kSecAttrCreator. The binding exposes no
// constant for it.
const creatorKey = "crtr"

// SystemFacility issues SecItem* calls against the user's default Keychain.
type SystemFacility struct{}

// NewSystemFacility returns the Keychain Services facility.
func NewSystemFacility(opts SystemOptions) (Facility, error) {
	return SystemFacility{}, nil
}

// Capabilities reports that SecItemDelete on macOS removes one match per
// call regardless of kSecMatchLimit.
func (SystemFacility) Capabilities() Capabilities {
	return Capabilities{DeletesAllMatches: false}
}

func (SystemFacility) item(q Query) (gokeychain.Item, error) {
	item := gokeychain.NewItem()
	switch q.Kind {
	case InternetPassword:
		item.SetSecClass(gokeychain.SecClassInternetPassword)
		item.SetServer(q.Realm)
	case GenericPassword:
		item.SetSecClass(gokeychain.SecClassGenericPassword)
		item.SetService(q.Realm)
	default:
		return item, &StatusError{Code: CodeParam, Msg: fmt.Sprintf("unsupported item kind %s", q.Kind)}
	}
	if !q.AnyKey {
		// SetString drops empty values, which would widen the query to
		// every account or realm.
		if q.Account == "" || q.Realm == "" {
			return item, &StatusError{Code: CodeParam, Msg: "empty account or realm is not representable"}
		}
		item.SetAccount(q.Account)
	}

	if q.Owner != nil {
		// SetInt32 drops zero values, which would widen the query to every
		// record of the kind.
		if *q.Owner == 0 {
			return item, &StatusError{Code: CodeParam, Msg: "owner tag 0 is not representable"}
		}
		item.SetInt32(creatorKey, int32(*q.Owner))
	}

	switch q.Limit {
	case MatchOne:
		item.SetMatchLimit(gokeychain.MatchLimitOne)
	case MatchAll:
		item.SetMatchLimit(gokeychain.MatchLimitAll)
	}
	if q.ReturnAttributes {
		item.SetReturnAttributes(true)
	}
	if q.ReturnData {
		item.SetReturnData(true)
	}
	if q.Data != nil {
		item.SetData(q.Data)
		item.SetLabel(fmt.Sprintf("%s@%s", q.Account, q.Realm))
		item.SetSynchronizable(gokeychain.SynchronizableNo)
		item.SetAccessible(gokeychain.AccessibleWhenUnlockedThisDeviceOnly)
	}
	return item, nil
}

func (f SystemFacility) CopyMatching(q Query) ([]Record, error) {
	item, err := f.item(q)
	if err != nil {
		return nil, err
	}
	results, err := gokeychain.QueryItem(item)
	if err != nil {
		return nil, fromKeychainError(err)
	}
	// QueryItem reports errSecItemNotFound as an empty result.
	if len(results) == 0 {
		return nil, ErrItemNotFound
	}

	records := make([]Record, 0, len(results))
	for _, r := range results {
		realm := r.Server
		if q.Kind == GenericPassword {
			realm = r.Service
		}
		records = append(records, Record{
			Account: r.Account,
			Realm:   realm,
			Label:   r.Label,
			Data:    r.Data,
		})
	}
	return records, nil
}

func (f SystemFacility) Add(q Query) error {
	item, err := f.item(q)
	if err != nil {
		return err
	}
	return fromKeychainError(gokeychain.AddItem(item))
}

func (f SystemFacility) Update(q Query, data []byte) error {
	item, err := f.item(q)
	if err != nil {
		return err
	}
	update := gokeychain.NewItem()
	update.SetData(data)
	return fromKeychainError(gokeychain.UpdateItem(item, update))
}

func (f SystemFacility) Delete(q Query) error {
	item, err := f.item(q)
	if err != nil {
		return err
	}
	return fromKeychainError(gokeychain.DeleteItem(item))
}

func fromKeychainError(err error) error {
	if err == nil {
		return nil
	}
	var kerr gokeychain.Error
	if errors.As(err, &kerr) {
		if kerr == gokeychain.ErrorItemNotFound {
			return ErrItemNotFound
		}
		return &StatusError{Code: int32(kerr), Msg: kerr.Error()}
	}
	return err
}
