// Package catalog stores hairstyles, their per-angle reference images,
// and the stylist directory.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/Snogger/ai-hairstyle-plugin/internal/gemini"
	"github.com/Snogger/ai-hairstyle-plugin/internal/tryon"
)

const schema = `
CREATE TABLE IF NOT EXISTS style (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL,
    gender TEXT NOT NULL DEFAULT 'both' CHECK (gender IN ('male', 'female', 'both')),
    alt_names TEXT NOT NULL DEFAULT '',
    enabled INTEGER NOT NULL DEFAULT 1,
    UNIQUE (name, gender)
);

CREATE TABLE IF NOT EXISTS style_image (
    style_id INTEGER NOT NULL REFERENCES style(id) ON DELETE CASCADE,
    angle TEXT NOT NULL CHECK (angle IN ('front', 'back', 'left', 'right')),
    mime_type TEXT NOT NULL,
    data BLOB NOT NULL,
    PRIMARY KEY (style_id, angle)
);

CREATE TABLE IF NOT EXISTS stylist (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL UNIQUE,
    email TEXT NOT NULL
);
`

type Style struct {
	ID       int64    `json:"id"`
	Name     string   `json:"name"`
	Gender   string   `json:"gender"`
	AltNames []string `json:"alt_names,omitempty"`
	Enabled  bool     `json:"enabled"`
}

type Stylist struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

var ErrStylistNotFound = errors.New("stylist not found")

type Catalog struct {
	db     *sql.DB
	logger *slog.Logger
}

func New(db *sql.DB, logger *slog.Logger) (*Catalog, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("create catalog schema: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Catalog{db: db, logger: logger}, nil
}

func (c *Catalog) AddStyle(ctx context.Context, name, gender string, altNames []string) (int64, error) {
	res, err := c.db.ExecContext(ctx,
		`INSERT INTO style (name, gender, alt_names) VALUES (?, ?, ?)`,
		name, gender, strings.Join(altNames, ","),
	)
	if err != nil {
		return 0, fmt.Errorf("insert style: %w", err)
	}
	return res.LastInsertId()
}

func (c *Catalog) SetReference(ctx context.Context, styleID int64, angle tryon.Angle, mimeType string, data []byte) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO style_image (style_id, angle, mime_type, data) VALUES (?, ?, ?, ?)
		 ON CONFLICT(style_id, angle) DO UPDATE SET mime_type = excluded.mime_type, data = excluded.data`,
		styleID, string(angle), mimeType, data,
	)
	if err != nil {
		return fmt.Errorf("set reference: %w", err)
	}
	return nil
}

// Style returns the enabled style with the given id, or
// tryon.ErrStyleNotFound.
func (c *Catalog) Style(ctx context.Context, id int64) (Style, error) {
	var s Style
	var altNames string
	var enabled int
	err := c.db.QueryRowContext(ctx,
		`SELECT id, name, gender, alt_names, enabled FROM style WHERE id = ? AND enabled = 1`, id,
	).Scan(&s.ID, &s.Name, &s.Gender, &altNames, &enabled)
	if errors.Is(err, sql.ErrNoRows) {
		return Style{}, tryon.ErrStyleNotFound
	}
	if err != nil {
		return Style{}, fmt.Errorf("read style: %w", err)
	}
	s.Enabled = enabled != 0
	if altNames != "" {
		s.AltNames = strings.Split(altNames, ",")
	}
	return s, nil
}

// List returns enabled styles, optionally filtered by gender.
func (c *Catalog) List(ctx context.Context, gender string) ([]Style, error) {
	query := `SELECT id, name, gender, alt_names, enabled FROM style WHERE enabled = 1`
	args := []any{}
	if gender != "" && gender != "both" {
		query += ` AND gender IN (?, 'both')`
		args = append(args, gender)
	}
	query += ` ORDER BY name`

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list styles: %w", err)
	}
	defer rows.Close()

	var out []Style
	for rows.Next() {
		var s Style
		var altNames string
		var enabled int
		if err := rows.Scan(&s.ID, &s.Name, &s.Gender, &altNames, &enabled); err != nil {
			return nil, fmt.Errorf("scan style: %w", err)
		}
		s.Enabled = enabled != 0
		if altNames != "" {
			s.AltNames = strings.Split(altNames, ",")
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// References resolves the style's stored reference images. Angles without
// an image are absent from the set; an unknown or disabled style is
// tryon.ErrStyleNotFound.
func (c *Catalog) References(ctx context.Context, styleID int64) (tryon.ReferenceSet, error) {
	if _, err := c.Style(ctx, styleID); err != nil {
		return nil, err
	}

	rows, err := c.db.QueryContext(ctx,
		`SELECT angle, mime_type, data FROM style_image WHERE style_id = ?`, styleID)
	if err != nil {
		return nil, fmt.Errorf("read references: %w", err)
	}
	defer rows.Close()

	set := make(tryon.ReferenceSet)
	for rows.Next() {
		var angle, mimeType string
		var data []byte
		if err := rows.Scan(&angle, &mimeType, &data); err != nil {
			return nil, fmt.Errorf("scan reference: %w", err)
		}
		if a, ok := tryon.ParseAngle(angle); ok {
			set[a] = gemini.Blob{Data: data, MimeType: mimeType}
		}
	}
	return set, rows.Err()
}

func (c *Catalog) AddStylist(ctx context.Context, name, email string) (int64, error) {
	res, err := c.db.ExecContext(ctx,
		`INSERT INTO stylist (name, email) VALUES (?, ?)
		 ON CONFLICT(name) DO UPDATE SET email = excluded.email`,
		name, email,
	)
	if err != nil {
		return 0, fmt.Errorf("insert stylist: %w", err)
	}
	return res.LastInsertId()
}

func (c *Catalog) StylistByName(ctx context.Context, name string) (Stylist, error) {
	var s Stylist
	err := c.db.QueryRowContext(ctx,
		`SELECT id, name, email FROM stylist WHERE name = ?`, strings.TrimSpace(name),
	).Scan(&s.ID, &s.Name, &s.Email)
	if errors.Is(err, sql.ErrNoRows) {
		return Stylist{}, ErrStylistNotFound
	}
	if err != nil {
		return Stylist{}, fmt.Errorf("read stylist: %w", err)
	}
	return s, nil
}

// SeedDir preloads styles from an assets directory laid out as
// <dir>/<gender>/<style name>/<angle>.<ext>. Existing styles keep their id;
// reference images are upserted.
func (c *Catalog) SeedDir(ctx context.Context, dir string) error {
	genders, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read assets dir: %w", err)
	}

	for _, genderEntry := range genders {
		if !genderEntry.IsDir() {
			continue
		}
		gender := strings.ToLower(genderEntry.Name())
		if gender != "male" && gender != "female" && gender != "both" {
			continue
		}

		styleDirs, err := os.ReadDir(filepath.Join(dir, genderEntry.Name()))
		if err != nil {
			return fmt.Errorf("read gender dir: %w", err)
		}

		for _, styleEntry := range styleDirs {
			if !styleEntry.IsDir() {
				continue
			}
			if err := c.seedStyle(ctx, filepath.Join(dir, genderEntry.Name(), styleEntry.Name()), styleEntry.Name(), gender); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *Catalog) seedStyle(ctx context.Context, dir, name, gender string) error {
	styleID, err := c.styleIDByName(ctx, name, gender)
	if errors.Is(err, sql.ErrNoRows) {
		styleID, err = c.AddStyle(ctx, name, gender, nil)
	}
	if err != nil {
		return fmt.Errorf("seed style %q: %w", name, err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read style dir: %w", err)
	}

	seeded := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		angle, ok := tryon.ParseAngle(strings.TrimSuffix(entry.Name(), ext))
		if !ok {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return fmt.Errorf("read reference %q: %w", entry.Name(), err)
		}

		mimeType := mime.TypeByExtension(ext)
		if mimeType == "" {
			mimeType = "image/png"
		}
		if err := c.SetReference(ctx, styleID, angle, mimeType, data); err != nil {
			return err
		}
		seeded++
	}

	c.logger.Info("seeded style", "name", name, "gender", gender, "references", seeded)
	return nil
}

func (c *Catalog) styleIDByName(ctx context.Context, name, gender string) (int64, error) {
	var id int64
	err := c.db.QueryRowContext(ctx,
		`SELECT id FROM style WHERE name = ? AND gender = ?`, name, gender,
	).Scan(&id)
	return id, err
}
