// Package teams loads the team directory from a YAML seed file.
package teams

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mixelka/clarify/internal/cases"
	"github.com/mixelka/clarify/internal/database"
	"github.com/mixelka/clarify/pkg/models"
)

// Encrypter encrypts mailbox passwords before they are stored
type Encrypter interface {
	Encrypt(plaintext string) (string, error)
}

// File is the layout of the seed file
type File struct {
	Teams []TeamEntry `yaml:"teams"`
}

// TeamEntry describes one team
type TeamEntry struct {
	ID               int64             `yaml:"id"`
	Name             string            `yaml:"name"`
	Responsibilities string            `yaml:"responsibilities"`
	TelegramTopicID  int               `yaml:"telegram_topic_id"`
	Mailbox          *MailboxEntry     `yaml:"mailbox"`
	Specialists      []SpecialistEntry `yaml:"specialists"`
	Partners         []PartnerEntry    `yaml:"partners"`
}

// MailboxEntry holds IMAP settings; an empty host is resolved from the username
type MailboxEntry struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	UseTLS    *bool  `yaml:"use_tls"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
	Folder    string `yaml:"folder"`
	FetchMode string `yaml:"fetch_mode"`
	Enabled   *bool  `yaml:"enabled"`
}

// SpecialistEntry is a team member with the categories they handle
type SpecialistEntry struct {
	Name       string   `yaml:"name"`
	Email      string   `yaml:"email"`
	Categories []string `yaml:"categories"`
	Inactive   bool     `yaml:"inactive"`
}

// PartnerEntry is an external organization the team knows
type PartnerEntry struct {
	Name   string   `yaml:"name"`
	Domain string   `yaml:"domain"`
	Codes  []string `yaml:"codes"`
}

// Load reads a seed file, expanding ${VAR} references
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read teams file %s: %w", path, err)
	}

	// Passwords usually come from the environment
	expanded := os.ExpandEnv(string(data))

	var f File
	if err := yaml.Unmarshal([]byte(expanded), &f); err != nil {
		return nil, fmt.Errorf("failed to parse teams file: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate checks IDs, names and enum values
func (f *File) Validate() error {
	seen := make(map[int64]bool)
	for i, t := range f.Teams {
		if t.ID <= 0 {
			return fmt.Errorf("team #%d: id must be positive", i+1)
		}
		if seen[t.ID] {
			return fmt.Errorf("team %d: duplicate id", t.ID)
		}
		seen[t.ID] = true
		if strings.TrimSpace(t.Name) == "" {
			return fmt.Errorf("team %d: name is required", t.ID)
		}

		if mb := t.Mailbox; mb != nil {
			if mb.Username == "" {
				return fmt.Errorf("team %d: mailbox username is required", t.ID)
			}
			switch models.FetchMode(mb.FetchMode) {
			case "", models.FetchUnseen, models.FetchWatermark:
			default:
				return fmt.Errorf("team %d: unknown fetch_mode %q", t.ID, mb.FetchMode)
			}
		}
		for _, s := range t.Specialists {
			if s.Email == "" {
				return fmt.Errorf("team %d: specialist %q has no email", t.ID, s.Name)
			}
		}
	}
	return nil
}

// Seeder writes a seed file into the database
type Seeder struct {
	db     *database.DB
	box    Encrypter
	logger *slog.Logger
}

// NewSeeder creates a new seeder
func NewSeeder(db *database.DB, box Encrypter, logger *slog.Logger) *Seeder {
	return &Seeder{
		db:     db,
		box:    box,
		logger: logger.With("component", "teams"),
	}
}

// SeedFile loads path and seeds it
func (s *Seeder) SeedFile(ctx context.Context, path string) error {
	f, err := Load(path)
	if err != nil {
		return err
	}
	return s.Seed(ctx, f)
}

// Seed upserts teams, mailboxes, specialists and partners.
// Watermarks of existing mailboxes are kept.
func (s *Seeder) Seed(ctx context.Context, f *File) error {
	for _, t := range f.Teams {
		if err := s.seedTeam(ctx, t); err != nil {
			return fmt.Errorf("team %d: %w", t.ID, err)
		}
	}
	s.logger.Info("team directory seeded", "teams", len(f.Teams))
	return nil
}

func (s *Seeder) seedTeam(ctx context.Context, t TeamEntry) error {
	team := &models.Team{
		ID:               t.ID,
		Name:             t.Name,
		Responsibilities: strings.TrimSpace(t.Responsibilities),
		TelegramTopicID:  t.TelegramTopicID,
	}
	if err := s.db.UpsertTeam(ctx, team); err != nil {
		return err
	}

	if t.Mailbox != nil {
		cfg, err := s.mailboxConfig(t.ID, t.Mailbox)
		if err != nil {
			return err
		}
		if err := s.db.UpsertMailboxConfig(ctx, cfg); err != nil {
			return err
		}
	}

	for _, sp := range t.Specialists {
		specialist := &models.Specialist{
			TeamID: t.ID,
			Name:   sp.Name,
			Email:  strings.ToLower(sp.Email),
			Active: !sp.Inactive,
		}
		categories := make([]string, 0, len(sp.Categories))
		for _, c := range sp.Categories {
			categories = append(categories, strings.ToLower(strings.TrimSpace(c)))
		}
		if err := s.db.UpsertSpecialist(ctx, specialist, categories); err != nil {
			return err
		}
	}

	for _, p := range t.Partners {
		if err := s.db.AddKnownPartner(ctx, t.ID, p.Name); err != nil {
			return err
		}
		if err := s.ensurePartner(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

func (s *Seeder) mailboxConfig(teamID int64, mb *MailboxEntry) (*models.TeamMailboxConfig, error) {
	encrypted, err := s.box.Encrypt(mb.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt mailbox password: %w", err)
	}

	useTLS := mb.Port == 0 || mb.Port == 993
	if mb.UseTLS != nil {
		useTLS = *mb.UseTLS
	}
	enabled := true
	if mb.Enabled != nil {
		enabled = *mb.Enabled
	}

	return &models.TeamMailboxConfig{
		TeamID:                teamID,
		Host:                  mb.Host,
		Port:                  mb.Port,
		UseTLS:                useTLS,
		Username:              mb.Username,
		PasswordEncrypted:     encrypted,
		Folder:                mb.Folder,
		FetchMode:             models.FetchMode(mb.FetchMode),
		AutoProcessingEnabled: enabled,
	}, nil
}

// ensurePartner creates the partner unless one with the same domain or name exists
func (s *Seeder) ensurePartner(ctx context.Context, p PartnerEntry) error {
	domain := strings.ToLower(strings.TrimSpace(p.Domain))
	key := cases.NameKey(p.Name)
	if key == "" && domain == "" {
		return nil
	}

	return s.db.InTx(ctx, func(tx *database.Tx) error {
		if domain != "" {
			_, err := tx.FindPartnerByDomain(ctx, domain)
			if err == nil {
				return nil
			}
			if !errors.Is(err, database.ErrNotFound) {
				return err
			}
		}
		if key != "" {
			_, err := tx.FindPartnerByNameKey(ctx, key)
			if err == nil {
				return nil
			}
			if !errors.Is(err, database.ErrNotFound) {
				return err
			}
		}

		return tx.CreatePartner(ctx, &models.Partner{
			Name:    p.Name,
			NameKey: key,
			Domain:  domain,
			Codes:   strings.Join(p.Codes, ","),
		})
	})
}
