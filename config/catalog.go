package config

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/alem-hub/xp-economy/internal/domain/account"
	"github.com/alem-hub/xp-economy/internal/domain/economy"
	"github.com/alem-hub/xp-economy/internal/domain/shared"
	"github.com/alem-hub/xp-economy/internal/domain/social"
)

// Catalog is the YAML seed of the admin-managed catalog.
//
//	badges:
//	  - {id: gopher, name: Gopher}
//	activities:
//	  - {id: go-101, kind: course, title: Go 101, xp_reward: 500, badge_id: gopher}
//	rewards:
//	  - {id: mug, name: Mug, xp_cost: 300}
//	groups:
//	  - {id: gophers, name: Gophers}
//	accounts:
//	  - {id: root, display_name: Root, role: admin}
type Catalog struct {
	Badges     []CatalogBadge    `yaml:"badges"`
	Activities []CatalogActivity `yaml:"activities"`
	Rewards    []CatalogReward   `yaml:"rewards"`
	Groups     []CatalogGroup    `yaml:"groups"`
	Accounts   []CatalogAccount  `yaml:"accounts"`
}

type CatalogBadge struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Icon        string `yaml:"icon"`
}

type CatalogActivity struct {
	ID       string `yaml:"id"`
	Kind     string `yaml:"kind"`
	Title    string `yaml:"title"`
	XPReward int64  `yaml:"xp_reward"`
	BadgeID  string `yaml:"badge_id"`
}

type CatalogReward struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Icon        string `yaml:"icon"`
	XPCost      int64  `yaml:"xp_cost"`
}

type CatalogGroup struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Icon        string `yaml:"icon"`
}

type CatalogAccount struct {
	ID          string `yaml:"id"`
	DisplayName string `yaml:"display_name"`
	Role        string `yaml:"role"`
}

// LoadCatalog reads a catalog seed. An empty path yields an empty catalog.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return &Catalog{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes a YAML catalog and rejects unknown keys.
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	return &c, nil
}

// Seed upserts the catalog into store. Badges go first so activities can
// reference them; accounts that already exist are left untouched.
func (c *Catalog) Seed(ctx context.Context, store economy.Store, now time.Time) error {
	for _, b := range c.Badges {
		if err := store.PutBadge(ctx, &economy.Badge{ID: b.ID, Name: b.Name, Description: b.Description, Icon: b.Icon}); err != nil {
			return fmt.Errorf("badge %q: %w", b.ID, err)
		}
	}
	for _, a := range c.Activities {
		kind, err := economy.ParseKind(a.Kind)
		if err != nil {
			return fmt.Errorf("activity %q: %w", a.ID, err)
		}
		activity := &economy.Activity{ID: a.ID, Kind: kind, Title: a.Title, XPReward: a.XPReward, BadgeID: a.BadgeID}
		if err := store.PutActivity(ctx, activity); err != nil {
			return fmt.Errorf("activity %q: %w", a.ID, err)
		}
	}
	for _, r := range c.Rewards {
		reward := &economy.Reward{ID: r.ID, Name: r.Name, Description: r.Description, Icon: r.Icon, XPCost: r.XPCost}
		if err := store.PutReward(ctx, reward); err != nil {
			return fmt.Errorf("reward %q: %w", r.ID, err)
		}
	}
	for _, g := range c.Groups {
		if err := store.PutGroup(ctx, &social.Group{ID: g.ID, Name: g.Name, Description: g.Description, Icon: g.Icon}); err != nil {
			return fmt.Errorf("group %q: %w", g.ID, err)
		}
	}
	for _, a := range c.Accounts {
		acc, err := account.New(a.ID, a.DisplayName, account.ParseRole(a.Role), now)
		if err != nil {
			return fmt.Errorf("account %q: %w", a.ID, err)
		}
		if err := store.CreateAccount(ctx, acc); err != nil && !shared.IsAlreadyExists(err) {
			return fmt.Errorf("account %q: %w", a.ID, err)
		}
	}
	return nil
}
