package model

import (
	"context"
	"errors"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"github.com/MarcoPoloResearchLab/inkwell/internal/auth"
)

// ErrInvalidCredentials reports an unknown email or a wrong password.
var ErrInvalidCredentials = errors.New("model: invalid credentials")

var authorDescriptor = newDescriptor(Descriptor{
	Entity: "authors",
	Table:  "authors",
	Fields: []Field{
		{Name: "id", Exposed: true, Operators: KindEquality | KindRange | KindSet},
		{Name: "name", Exposed: true, Operators: KindEquality | KindSet},
		{Name: "email", Exposed: true, Operators: KindEquality | KindSet},
		{Name: "password_hash"},
		{Name: "created_at", Exposed: true, Operators: KindRange},
		{Name: "updated_at", Exposed: true, Operators: KindRange},
	},
	Cached: true,
	ReferencedBy: []Reference{
		{Table: "posts", Column: "author_id"},
		{Table: "edits", Column: "editor_id"},
	},
})

// Author is a registered writer.
type Author struct {
	ID           int64     `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Name         string    `gorm:"column:name;size:128;not null" json:"name"`
	Email        string    `gorm:"column:email;size:320;not null;uniqueIndex:idx_authors_email" json:"email"`
	PasswordHash string    `gorm:"column:password_hash;size:255;not null" json:"-"`
	CreatedAt    time.Time `gorm:"column:created_at;not null" json:"created_at"`
	UpdatedAt    time.Time `gorm:"column:updated_at;not null" json:"updated_at"`
}

func (Author) TableName() string       { return authorDescriptor.Table }
func (Author) Descriptor() *Descriptor { return authorDescriptor }
func (a Author) Identity() int64       { return a.ID }
func (a Author) Created() time.Time    { return a.CreatedAt }

// Result projects the author for outward serialization.
func (a Author) Result() AuthorForResult {
	return AuthorForResult{ID: a.ID, Name: a.Name, Email: a.Email}
}

// AuthorForResult is the outward projection of an author.
type AuthorForResult struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// AuthorForCreate registers an author; the password is hashed before insert.
type AuthorForCreate struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate checks the normalized name and email, the same values Build stores.
func (p AuthorForCreate) Validate() error {
	p.Name = strings.TrimSpace(p.Name)
	p.Email = normalizeEmail(p.Email)
	return validation.ValidateStruct(&p,
		validation.Field(&p.Name, validation.Required, validation.Length(1, 128)),
		validation.Field(&p.Email, validation.Required, is.EmailFormat, validation.Length(3, 320)),
		validation.Field(&p.Password, validation.Required, validation.Length(8, 72)),
	)
}

func (p AuthorForCreate) Build(_ Ctx, now time.Time) (Author, error) {
	hash, err := auth.HashPassword(p.Password)
	if err != nil {
		return Author{}, err
	}
	return Author{
		Name:         strings.TrimSpace(p.Name),
		Email:        normalizeEmail(p.Email),
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// AuthorForUpdate changes only the fields that are set.
type AuthorForUpdate struct {
	Name  *string `json:"name"`
	Email *string `json:"email"`
}

func (p AuthorForUpdate) Validate() error {
	p.Name = normalized(p.Name, strings.TrimSpace)
	p.Email = normalized(p.Email, normalizeEmail)
	return validation.ValidateStruct(&p,
		validation.Field(&p.Name, validation.NilOrNotEmpty, validation.Length(1, 128)),
		validation.Field(&p.Email, validation.NilOrNotEmpty, is.EmailFormat, validation.Length(3, 320)),
	)
}

func (p AuthorForUpdate) Changes() map[string]any {
	changes := map[string]any{}
	if p.Name != nil {
		changes["name"] = strings.TrimSpace(*p.Name)
	}
	if p.Email != nil {
		changes["email"] = normalizeEmail(*p.Email)
	}
	return changes
}

// Authors is the author controller plus lookups by email.
type Authors struct {
	*Controller[Author]
}

func newAuthors(m *Manager) *Authors {
	return &Authors{Controller: newController[Author](m, Rules[Author]{})}
}

// FindByEmail returns the author registered under email.
func (a *Authors) FindByEmail(ctx context.Context, actor Ctx, email string) (Author, error) {
	filter := Filter{}.And("email", OpEq, normalizeEmail(email))
	found, err := a.List(ctx, actor, filter, &ListOptions{Limit: 1})
	if err != nil {
		return Author{}, err
	}
	if len(found) == 0 {
		return Author{}, &EntityNotFoundError{Entity: authorDescriptor.Entity}
	}
	return found[0], nil
}

// Authenticate checks credentials and returns the matching author.
func (a *Authors) Authenticate(ctx context.Context, email, password string) (Author, error) {
	author, err := a.FindByEmail(ctx, RootCtx(), email)
	if errors.Is(err, ErrEntityNotFound) {
		return Author{}, ErrInvalidCredentials
	}
	if err != nil {
		return Author{}, err
	}
	if err := auth.VerifyPassword(author.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return Author{}, ErrInvalidCredentials
		}
		return Author{}, err
	}
	return author, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// normalized applies fn to an optional value, keeping nil as nil.
func normalized(value *string, fn func(string) string) *string {
	if value == nil {
		return nil
	}
	out := fn(*value)
	return &out
}
