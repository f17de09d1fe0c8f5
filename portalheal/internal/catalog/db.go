package catalog

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/paulhshort/grid4-netsapiens-skin-sub000/dbopen"
)

// Schema for catalog tables. Priority orders profiles and signatures.
const Schema = `
CREATE TABLE IF NOT EXISTS portal_profiles (
	name     TEXT PRIMARY KEY,
	priority INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS profile_selectors (
	profile  TEXT NOT NULL REFERENCES portal_profiles(name) ON DELETE CASCADE,
	role     TEXT NOT NULL,
	selector TEXT NOT NULL,
	PRIMARY KEY (profile, role)
);
CREATE TABLE IF NOT EXISTS fingerprint_signatures (
	key      TEXT PRIMARY KEY,
	selector TEXT NOT NULL,
	priority INTEGER NOT NULL
);
`

// LoadDB reads a catalog from the tables in Schema.
func LoadDB(ctx context.Context, db *sql.DB) (*Catalog, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT p.name, s.role, s.selector
		FROM portal_profiles p
		LEFT JOIN profile_selectors s ON s.profile = p.name
		ORDER BY p.priority, p.name`)
	if err != nil {
		return nil, fmt.Errorf("catalog: query profiles: %w", err)
	}
	defer rows.Close()

	var c Catalog
	index := make(map[string]int)
	for rows.Next() {
		var name string
		var role, selector sql.NullString
		if err := rows.Scan(&name, &role, &selector); err != nil {
			return nil, fmt.Errorf("catalog: scan profile: %w", err)
		}
		i, ok := index[name]
		if !ok {
			i = len(c.Profiles)
			index[name] = i
			c.Profiles = append(c.Profiles, Profile{Name: name, Selectors: make(map[Role]string)})
		}
		if role.Valid {
			c.Profiles[i].Selectors[Role(role.String)] = selector.String
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sigRows, err := db.QueryContext(ctx, `SELECT key, selector FROM fingerprint_signatures ORDER BY priority, key`)
	if err != nil {
		return nil, fmt.Errorf("catalog: query signatures: %w", err)
	}
	defer sigRows.Close()
	for sigRows.Next() {
		var s Signature
		if err := sigRows.Scan(&s.Key, &s.Selector); err != nil {
			return nil, fmt.Errorf("catalog: scan signature: %w", err)
		}
		c.Signatures = append(c.Signatures, s)
	}
	if err := sigRows.Err(); err != nil {
		return nil, err
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// SaveDB replaces the stored catalog with c in one transaction.
func SaveDB(ctx context.Context, db *sql.DB, c *Catalog) error {
	if err := c.Validate(); err != nil {
		return err
	}

	return dbopen.RunTx(ctx, db, func(tx *sql.Tx) error {
		for _, q := range []string{
			`DELETE FROM profile_selectors`,
			`DELETE FROM portal_profiles`,
			`DELETE FROM fingerprint_signatures`,
		} {
			if _, err := tx.ExecContext(ctx, q); err != nil {
				return fmt.Errorf("catalog: clear: %w", err)
			}
		}

		for i, p := range c.Profiles {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO portal_profiles (name, priority) VALUES (?, ?)`, p.Name, i); err != nil {
				return fmt.Errorf("catalog: insert profile %s: %w", p.Name, err)
			}
			for role, sel := range p.Selectors {
				if _, err := tx.ExecContext(ctx,
					`INSERT INTO profile_selectors (profile, role, selector) VALUES (?, ?, ?)`,
					p.Name, string(role), sel); err != nil {
					return fmt.Errorf("catalog: insert selector %s/%s: %w", p.Name, role, err)
				}
			}
		}
		for i, s := range c.Signatures {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO fingerprint_signatures (key, selector, priority) VALUES (?, ?, ?)`,
				s.Key, s.Selector, i); err != nil {
				return fmt.Errorf("catalog: insert signature %s: %w", s.Key, err)
			}
		}
		return nil
	})
}

// OpenDB opens (or creates) a catalog database at path.
func OpenDB(path string) (*sql.DB, error) {
	return dbopen.Open(path, dbopen.WithMkdirAll(), dbopen.WithSchema(Schema))
}
