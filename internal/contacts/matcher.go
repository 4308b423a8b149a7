// Package contacts reconciles the device address book against the backend's
// registered users. This is a one-shot batch operation, not a stream: read
// numbers, normalize, match, annotate with saved names.
package contacts

import (
	"context"
	"fmt"
	"time"

	"github.com/sierrachat/client/internal/logger"
	"github.com/sierrachat/client/internal/model"
)

// DeviceContact is one address-book record as the device facility hands it
// over. Reading the address book (and its permission prompt) is outside this
// package.
type DeviceContact struct {
	Name         string
	PhoneNumbers []string
}

// AddressBook supplies the device's contact records.
type AddressBook interface {
	Contacts(ctx context.Context) ([]DeviceContact, error)
}

// Backend is the slice of the REST client the matcher needs.
type Backend interface {
	MatchPhone(ctx context.Context, numbers []string) ([]model.Identity, error)
}

type Matcher struct {
	book    AddressBook
	backend Backend
	region  string
}

func NewMatcher(book AddressBook, backend Backend, defaultRegion string) *Matcher {
	return &Matcher{book: book, backend: backend, region: defaultRegion}
}

// Match reads all device numbers, normalizes them, submits the batch, and
// returns the registered users annotated with the device's saved name for
// their number. localPhone filters the local user out of their own results.
func (m *Matcher) Match(ctx context.Context, localPhone string) ([]model.MatchedContact, error) {
	defer logger.DeferLogDuration("contacts.Match", time.Now())()

	records, err := m.book.Contacts(ctx)
	if err != nil {
		return nil, fmt.Errorf("contacts.Match: read address book: %w", err)
	}

	// Normalized number -> saved contact name, for annotating matches.
	nameByNumber := make(map[string]string)
	numbers := make([]string, 0, len(records))
	for _, rec := range records {
		for _, raw := range rec.PhoneNumbers {
			normalized, err := NormalizePhone(raw, m.region)
			if err != nil {
				logger.Errorf("contacts: skip %q: %v", raw, err)
				continue
			}
			if _, seen := nameByNumber[normalized]; !seen {
				nameByNumber[normalized] = rec.Name
				numbers = append(numbers, normalized)
			}
		}
	}
	if len(numbers) == 0 {
		return nil, nil
	}

	matched, err := m.backend.MatchPhone(ctx, numbers)
	if err != nil {
		return nil, fmt.Errorf("contacts.Match: %w", err)
	}

	out := make([]model.MatchedContact, 0, len(matched))
	for _, user := range matched {
		if user.Phone == localPhone {
			continue
		}
		name := nameByNumber[user.Phone]
		if name == "" {
			name = "No Name"
		}
		out = append(out, model.MatchedContact{Identity: user, SavedName: name})
	}
	return out, nil
}
