package model

import (
	"context"
	"errors"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// EditStatus is the review state of a suggested edit.
type EditStatus string

const (
	EditPending  EditStatus = "PENDING"
	EditAccepted EditStatus = "ACCEPTED"
	EditRejected EditStatus = "REJECTED"
)

// Terminal reports whether no further change is allowed.
func (s EditStatus) Terminal() bool {
	return s == EditAccepted || s == EditRejected
}

// Valid reports whether s is a known status.
func (s EditStatus) Valid() bool {
	return s == EditPending || s.Terminal()
}

var editDescriptor = newDescriptor(Descriptor{
	Entity: "edits",
	Table:  "edits",
	Fields: []Field{
		{Name: "id", Exposed: true, Operators: KindEquality | KindRange | KindSet},
		{Name: "editor_id", Exposed: true, Operators: KindEquality | KindSet},
		{Name: "post_id", Exposed: true, Operators: KindEquality | KindSet},
		{Name: "new_content", Exposed: true, Operators: KindEquality},
		{Name: "status", Exposed: true, Operators: KindEquality | KindSet},
		{Name: "created_at", Exposed: true, Operators: KindRange},
		{Name: "updated_at", Exposed: true, Operators: KindRange},
	},
	ForeignKeys: []ForeignKey{
		{Column: "editor_id", Table: "authors"},
		{Column: "post_id", Table: "posts"},
	},
})

// Edit is a suggested replacement of a post's content.
type Edit struct {
	ID         int64      `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	EditorID   int64      `gorm:"column:editor_id;not null;index:idx_edits_editor" json:"editor_id"`
	PostID     int64      `gorm:"column:post_id;not null;index:idx_edits_post" json:"post_id"`
	NewContent string     `gorm:"column:new_content;type:text;not null" json:"new_content"`
	Status     EditStatus `gorm:"column:status;size:16;not null" json:"status"`
	CreatedAt  time.Time  `gorm:"column:created_at;not null" json:"created_at"`
	UpdatedAt  time.Time  `gorm:"column:updated_at;not null" json:"updated_at"`

	Editor *Author `gorm:"foreignKey:EditorID;constraint:OnUpdate:RESTRICT,OnDelete:RESTRICT" json:"-"`
	Post   *Post   `gorm:"foreignKey:PostID;constraint:OnUpdate:RESTRICT,OnDelete:RESTRICT" json:"-"`
}

func (Edit) TableName() string       { return editDescriptor.Table }
func (Edit) Descriptor() *Descriptor { return editDescriptor }
func (e Edit) Identity() int64       { return e.ID }
func (e Edit) Created() time.Time    { return e.CreatedAt }

func (e Edit) References() map[string]int64 {
	return map[string]int64{"editor_id": e.EditorID, "post_id": e.PostID}
}

// Result projects the edit for outward serialization.
func (e Edit) Result() EditForResult {
	return EditForResult{ID: e.ID, PostID: e.PostID, Status: e.Status, NewContent: e.NewContent}
}

// EditForResult is the outward projection of an edit.
type EditForResult struct {
	ID         int64      `json:"id"`
	PostID     int64      `json:"post_id"`
	Status     EditStatus `json:"status"`
	NewContent string     `json:"new_content"`
}

// EditForCreate suggests an edit. New edits always start PENDING.
type EditForCreate struct {
	EditorID   int64  `json:"editor_id"`
	PostID     int64  `json:"post_id"`
	NewContent string `json:"new_content"`
}

func (p EditForCreate) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.EditorID, validation.Required, validation.Min(int64(1))),
		validation.Field(&p.PostID, validation.Required, validation.Min(int64(1))),
		validation.Field(&p.NewContent, validation.Required),
	)
}

func (p EditForCreate) Build(_ Ctx, now time.Time) (Edit, error) {
	return Edit{
		EditorID:   p.EditorID,
		PostID:     p.PostID,
		NewContent: p.NewContent,
		Status:     EditPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// EditForUpdate changes only the fields that are set.
type EditForUpdate struct {
	NewContent *string     `json:"new_content"`
	Status     *EditStatus `json:"status"`
}

func (p EditForUpdate) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.NewContent, validation.NilOrNotEmpty),
		validation.Field(&p.Status, validation.NilOrNotEmpty,
			validation.In(EditPending, EditAccepted, EditRejected).Error("must be PENDING, ACCEPTED or REJECTED")),
	)
}

func (p EditForUpdate) Changes() map[string]any {
	changes := map[string]any{}
	if p.NewContent != nil {
		changes["new_content"] = *p.NewContent
	}
	if p.Status != nil {
		changes["status"] = *p.Status
	}
	return changes
}

// checkEditTransition enforces the review workflow: terminal edits are frozen,
// and a pending edit may only be accepted, rejected or left pending.
func checkEditTransition(current Edit, changes map[string]any) error {
	next, _ := changes["status"].(EditStatus)
	if current.Status.Terminal() {
		if len(changes) == 0 {
			return nil
		}
		return &InvalidTransitionError{
			Entity: editDescriptor.Entity,
			ID:     current.ID,
			From:   string(current.Status),
			To:     string(next),
		}
	}
	if next == "" {
		return nil
	}
	if !next.Valid() {
		return &ValidationError{Entity: editDescriptor.Entity, err: validation.Errors{"status": validation.ErrInInvalid}}
	}
	return nil
}

// applyAcceptedEdit copies the accepted content onto the target post.
func applyAcceptedEdit(tx *gorm.DB, before Edit, changes map[string]any, now time.Time) ([]string, error) {
	if next, _ := changes["status"].(EditStatus); next != EditAccepted {
		return nil, nil
	}
	content := before.NewContent
	if replacement, ok := changes["new_content"].(string); ok {
		content = replacement
	}
	var post Post
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where(clause.Eq{Column: clause.Column{Name: columnID}, Value: before.PostID}).
		Take(&post).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &ConstraintViolationError{Entity: editDescriptor.Entity, Field: "post_id"}
	}
	if err != nil {
		return nil, err
	}
	err = tx.Model(&Post{}).
		Where(clause.Eq{Column: clause.Column{Name: columnID}, Value: post.ID}).
		Updates(map[string]any{"content": content, columnUpdatedAt: monotonic(post.CreatedAt, now)}).Error
	if err != nil {
		return nil, err
	}
	return []string{postDescriptor.Entity}, nil
}

// Edits is the edit controller plus review shortcuts.
type Edits struct {
	*Controller[Edit]
}

func newEdits(m *Manager) *Edits {
	return &Edits{Controller: newController[Edit](m, Rules[Edit]{
		CheckUpdate: checkEditTransition,
		AfterUpdate: applyAcceptedEdit,
	})}
}

// Accept marks a pending edit accepted and applies its content to the post.
func (e *Edits) Accept(ctx context.Context, actor Ctx, id int64) error {
	status := EditAccepted
	return e.Update(ctx, actor, id, EditForUpdate{Status: &status})
}

// Reject marks a pending edit rejected.
func (e *Edits) Reject(ctx context.Context, actor Ctx, id int64) error {
	status := EditRejected
	return e.Update(ctx, actor, id, EditForUpdate{Status: &status})
}
