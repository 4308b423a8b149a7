package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/sierrachat/client/internal/config"
	"github.com/sierrachat/client/internal/contacts"
	"github.com/sierrachat/client/internal/logger"
	"github.com/sierrachat/client/internal/model"
	"github.com/sierrachat/client/internal/rest"
	"github.com/sierrachat/client/internal/session"
	filestorage "github.com/sierrachat/client/internal/storage/file"
	"github.com/sierrachat/client/internal/storage/memory"
)

// contactsync is the one-shot matcher: it reads an exported address book,
// normalizes every number, asks the backend which of them are registered
// users, and prints the result with the saved contact names.
func main() {
	logger.SetPrefix("contactsync")
	contactsPath := flag.String("contacts", "contacts.json", "address book export: [{\"name\":..., \"phones\":[...]}]")
	flag.Parse()

	cfg := config.Load()

	var sess *session.Store
	if cfg.TokenPath != "" {
		sess = session.New(filestorage.New(cfg.TokenPath))
	} else {
		sess = session.New(memory.New())
	}

	ctx := context.Background()
	token, err := sess.RestoreToken(ctx)
	if err != nil {
		logger.Errorf("restore token: %v", err)
		os.Exit(1)
	}
	if token == "" {
		token = os.Getenv("SIERRA_TOKEN")
	}
	if token == "" {
		logger.Error("no session token; set SIERRA_TOKEN or token_path")
		os.Exit(1)
	}

	restc := rest.NewClient(cfg.BackendURL, cfg.HTTPTimeout, sess)

	ctx, cancel := context.WithTimeout(ctx, cfg.HTTPTimeout)
	defer cancel()

	// The token must be visible to the REST client before the profile call.
	if err := sess.Begin(ctx, model.Identity{}, token); err != nil {
		logger.Errorf("begin session: %v", err)
		os.Exit(1)
	}

	user, err := restc.Profile(ctx)
	if err != nil {
		logger.Errorf("fetch profile: %v", err)
		os.Exit(1)
	}
	if err := sess.Begin(ctx, user, token); err != nil {
		logger.Errorf("begin session: %v", err)
		os.Exit(1)
	}

	book, err := loadAddressBook(*contactsPath)
	if err != nil {
		logger.Errorf("load contacts: %v", err)
		os.Exit(1)
	}

	matcher := contacts.NewMatcher(book, restc, cfg.DefaultRegion)
	matched, err := matcher.Match(ctx, user.Phone)
	if err != nil {
		logger.Errorf("match: %v", err)
		os.Exit(1)
	}

	for _, c := range matched {
		fmt.Printf("%s\t%s\t@%s\n", c.SavedName, c.Phone, c.Username)
	}
	logger.Infof("matched %d of your contacts", len(matched))
}

// fileAddressBook reads an exported address book from a JSON file. The
// device-side permission prompt and export are outside this tool.
type fileAddressBook struct {
	records []contacts.DeviceContact
}

func loadAddressBook(path string) (*fileAddressBook, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var raw []struct {
		Name   string   `json:"name"`
		Phones []string `json:"phones"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	records := make([]contacts.DeviceContact, 0, len(raw))
	for _, r := range raw {
		records = append(records, contacts.DeviceContact{Name: r.Name, PhoneNumbers: r.Phones})
	}
	return &fileAddressBook{records: records}, nil
}

func (b *fileAddressBook) Contacts(ctx context.Context) ([]contacts.DeviceContact, error) {
	return b.records, nil
}
