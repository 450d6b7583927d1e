package store

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/harunnryd/frontdesk/pkg/errorsx"
	"github.com/harunnryd/frontdesk/pkg/tenant"
	"gopkg.in/yaml.v3"
)

// SeedFile is the on-disk shape of a tenant seed document.
type SeedFile struct {
	Clients []tenant.Config `yaml:"clients"`
}

// SeedFromFile loads tenants from a YAML document. Clients whose phone number
// already exists are skipped, so the seed can be applied on every boot.
func (s *Store) SeedFromFile(ctx context.Context, path string) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read seed file: %w", err)
	}
	return s.Seed(ctx, raw)
}

func (s *Store) Seed(ctx context.Context, raw []byte) (int, error) {
	var doc SeedFile
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return 0, fmt.Errorf("parse seed file: %w", err)
	}
	created := 0
	for _, client := range doc.Clients {
		_, err := s.FindByPhone(ctx, tenant.NormalizePhone(client.PhoneNumber))
		if err == nil {
			continue
		}
		if !errors.Is(err, tenant.ErrNotFound) {
			return created, err
		}
		if _, err := s.CreateClient(ctx, client); err != nil {
			return created, errorsx.Wrapf(errorsx.ReasonStoreQuery, "seed %q: %w", client.CompanyName, err)
		}
		created++
	}
	return created, nil
}
