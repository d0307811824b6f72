// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package permission keeps track of the sites the user connected to the
// wallet. Sites are stored as JSON records in a walletdb bucket keyed by
// origin.
package permission

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/btcsuite/btcprovider/wallet"
	"github.com/btcsuite/btcwallet/walletdb"
	_ "github.com/btcsuite/btcwallet/walletdb/bdb" // Register bdb driver.
)

const (
	// dbDriver is the walletdb driver the store is opened with.
	dbDriver = "bdb"

	// DefaultDBTimeout is the default time to wait for the database lock.
	DefaultDBTimeout = 10 * time.Second
)

var (
	// sitesBucketKey is the top-level bucket holding the site records.
	sitesBucketKey = []byte("connected-sites")
)

var (
	// ErrSiteNotFound is returned when an origin is not connected.
	ErrSiteNotFound = errors.New("site not found")

	// ErrInvalidOrigin is returned when a site has an empty origin.
	ErrInvalidOrigin = errors.New("invalid origin")

	// ErrMissingBucket is returned when the database was not initialized
	// by this package.
	ErrMissingBucket = errors.New("connected sites bucket not found")
)

// A compile time check to ensure that Store implements the interface.
var _ wallet.PermissionChecker = (*Store)(nil)

// Site is a site the user granted access to the wallet.
type Site struct {
	// Origin is the scheme, host and port the site is served from.
	Origin string `json:"origin"`

	// Name is the display name of the site.
	Name string `json:"name,omitempty"`

	// Icon is the URL of the site's icon.
	Icon string `json:"icon,omitempty"`

	// ConnectedAt is the time the user connected the site.
	ConnectedAt time.Time `json:"connectedAt"`
}

// Store is a walletdb backed set of connected sites. It is safe for
// concurrent use.
type Store struct {
	db     walletdb.DB
	ownsDB bool
}

// New creates a store on top of an already opened database and makes sure
// its bucket exists.
func New(db walletdb.DB) (*Store, error) {
	err := walletdb.Update(db, func(tx walletdb.ReadWriteTx) error {
		_, err := tx.CreateTopLevelBucket(sitesBucketKey)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("unable to create sites bucket: %w", err)
	}

	return &Store{db: db}, nil
}

// Open opens the database at dbPath, creating it if it does not exist yet,
// and returns a store that closes the database on Close.
func Open(dbPath string, timeout time.Duration) (*Store, error) {
	db, err := walletdb.Open(dbDriver, dbPath, true, timeout, false)
	if errors.Is(err, walletdb.ErrDbDoesNotExist) {
		log.Infof("Creating permission database at %s", dbPath)

		err = os.MkdirAll(filepath.Dir(dbPath), 0700)
		if err != nil {
			return nil, err
		}

		db, err = walletdb.Create(dbDriver, dbPath, true, timeout, false)
	}
	if err != nil {
		return nil, fmt.Errorf("unable to open permission db: %w", err)
	}

	store, err := New(db)
	if err != nil {
		if e := db.Close(); e != nil {
			log.Warnf("Error closing database: %v", e)
		}

		return nil, err
	}
	store.ownsDB = true

	return store, nil
}

// Close closes the underlying database if it was opened by Open.
func (s *Store) Close() error {
	if !s.ownsDB {
		return nil
	}

	return s.db.Close()
}

// normalizeOrigin trims the origin and rejects empty ones. Origins are
// compared case-insensitively.
func normalizeOrigin(origin string) (string, error) {
	origin = strings.ToLower(strings.TrimSpace(origin))
	if origin == "" {
		return "", ErrInvalidOrigin
	}

	return strings.TrimSuffix(origin, "/"), nil
}

// Connect records site as connected, replacing any previous record of the
// same origin.
func (s *Store) Connect(_ context.Context, site Site) error {
	origin, err := normalizeOrigin(site.Origin)
	if err != nil {
		return err
	}
	site.Origin = origin

	if site.ConnectedAt.IsZero() {
		site.ConnectedAt = time.Now().UTC()
	}

	record, err := json.Marshal(site)
	if err != nil {
		return fmt.Errorf("unable to encode site: %w", err)
	}

	err = walletdb.Update(s.db, func(tx walletdb.ReadWriteTx) error {
		bucket := tx.ReadWriteBucket(sitesBucketKey)
		if bucket == nil {
			return ErrMissingBucket
		}

		return bucket.Put([]byte(origin), record)
	})
	if err != nil {
		return err
	}

	log.Infof("Connected site %s", origin)

	return nil
}

// Disconnect removes the record of origin. It fails with ErrSiteNotFound if
// the origin is not connected.
func (s *Store) Disconnect(_ context.Context, origin string) error {
	origin, err := normalizeOrigin(origin)
	if err != nil {
		return err
	}

	err = walletdb.Update(s.db, func(tx walletdb.ReadWriteTx) error {
		bucket := tx.ReadWriteBucket(sitesBucketKey)
		if bucket == nil {
			return ErrMissingBucket
		}

		if bucket.Get([]byte(origin)) == nil {
			return fmt.Errorf("%w: %s", ErrSiteNotFound, origin)
		}

		return bucket.Delete([]byte(origin))
	})
	if err != nil {
		return err
	}

	log.Infof("Disconnected site %s", origin)

	return nil
}

// Site returns the record of a connected origin.
func (s *Store) Site(_ context.Context, origin string) (*Site, error) {
	origin, err := normalizeOrigin(origin)
	if err != nil {
		return nil, err
	}

	var site *Site
	err = walletdb.View(s.db, func(tx walletdb.ReadTx) error {
		bucket := tx.ReadBucket(sitesBucketKey)
		if bucket == nil {
			return ErrMissingBucket
		}

		record := bucket.Get([]byte(origin))
		if record == nil {
			return fmt.Errorf("%w: %s", ErrSiteNotFound, origin)
		}

		site = &Site{}

		return json.Unmarshal(record, site)
	})
	if err != nil {
		return nil, err
	}

	return site, nil
}

// IsOriginConnected reports whether origin is connected.
func (s *Store) IsOriginConnected(ctx context.Context,
	origin string) (bool, error) {

	_, err := s.Site(ctx, origin)
	switch {
	case errors.Is(err, ErrSiteNotFound), errors.Is(err, ErrInvalidOrigin):
		return false, nil

	case err != nil:
		return false, err
	}

	return true, nil
}

// ConnectedSites returns every connected site ordered by origin.
func (s *Store) ConnectedSites(_ context.Context) ([]Site, error) {
	var sites []Site
	err := walletdb.View(s.db, func(tx walletdb.ReadTx) error {
		bucket := tx.ReadBucket(sitesBucketKey)
		if bucket == nil {
			return ErrMissingBucket
		}

		return bucket.ForEach(func(k, v []byte) error {
			var site Site
			if err := json.Unmarshal(v, &site); err != nil {
				return fmt.Errorf("corrupt record for %s: %w",
					k, err)
			}
			sites = append(sites, site)

			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return sites, nil
}
