package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/makkenzo/entitlement-service/internal/domain/license"
	"github.com/makkenzo/entitlement-service/internal/ierr"
)

const maxKeyGenerationAttempts = 5

// createWithFreshKey assigns a random key to lic and inserts it, drawing a new key
// when the store reports a collision.
func createWithFreshKey(ctx context.Context, repo license.Repository, lic *license.License) error {
	for attempt := 0; attempt < maxKeyGenerationAttempts; attempt++ {
		key, err := license.GenerateKey()
		if err != nil {
			return fmt.Errorf("%w: %v", ierr.ErrInternalServer, err)
		}
		lic.LicenseKey = key

		err = repo.Create(ctx, lic)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ierr.ErrDuplicateKey) {
			return err
		}
	}
	return fmt.Errorf("%w: could not allocate a unique license key", ierr.ErrInternalServer)
}
