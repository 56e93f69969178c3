package model

import (
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

var postDescriptor = newDescriptor(Descriptor{
	Entity: "posts",
	Table:  "posts",
	Fields: []Field{
		{Name: "id", Exposed: true, Operators: KindEquality | KindRange | KindSet},
		{Name: "author_id", Exposed: true, Operators: KindEquality | KindSet},
		{Name: "title", Exposed: true, Operators: KindEquality | KindSet},
		{Name: "content", Exposed: true},
		{Name: "weight", Exposed: true, Operators: KindEquality | KindRange | KindSet},
		{Name: "published", Exposed: true, Operators: KindBoolean},
		{Name: "created_at", Exposed: true, Operators: KindRange},
		{Name: "updated_at", Exposed: true, Operators: KindRange},
	},
	Cached:       true,
	ForeignKeys:  []ForeignKey{{Column: "author_id", Table: "authors"}},
	ReferencedBy: []Reference{{Table: "edits", Column: "post_id"}},
})

// Post is a published or draft article. AuthorID is nil for system-seeded posts.
type Post struct {
	ID        int64     `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	AuthorID  *int64    `gorm:"column:author_id;index:idx_posts_author" json:"author_id"`
	Title     string    `gorm:"column:title;size:255;not null" json:"title"`
	Content   string    `gorm:"column:content;type:text;not null" json:"content"`
	Weight    int64     `gorm:"column:weight;not null;default:0" json:"weight"`
	Published bool      `gorm:"column:published;not null;default:false" json:"published"`
	CreatedAt time.Time `gorm:"column:created_at;not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null" json:"updated_at"`

	Author *Author `gorm:"foreignKey:AuthorID;constraint:OnUpdate:RESTRICT,OnDelete:RESTRICT" json:"-"`
}

func (Post) TableName() string       { return postDescriptor.Table }
func (Post) Descriptor() *Descriptor { return postDescriptor }
func (p Post) Identity() int64       { return p.ID }
func (p Post) Created() time.Time    { return p.CreatedAt }

func (p Post) References() map[string]int64 {
	if p.AuthorID == nil {
		return nil
	}
	return map[string]int64{"author_id": *p.AuthorID}
}

// PostForCreate creates a post. Without AuthorID the acting author owns it.
type PostForCreate struct {
	AuthorID  *int64 `json:"author_id"`
	Title     string `json:"title"`
	Content   string `json:"content"`
	Weight    int64  `json:"weight"`
	Published bool   `json:"published"`
}

func (p PostForCreate) Validate() error {
	p.Title = strings.TrimSpace(p.Title)
	return validation.ValidateStruct(&p,
		validation.Field(&p.AuthorID, validation.NilOrNotEmpty, validation.Min(int64(1))),
		validation.Field(&p.Title, validation.Required, validation.Length(1, 255)),
		validation.Field(&p.Content, validation.Required),
	)
}

func (p PostForCreate) Build(actor Ctx, now time.Time) (Post, error) {
	authorID := p.AuthorID
	if authorID == nil && !actor.IsRoot() && actor.AuthorID() > 0 {
		id := actor.AuthorID()
		authorID = &id
	}
	return Post{
		AuthorID:  authorID,
		Title:     strings.TrimSpace(p.Title),
		Content:   p.Content,
		Weight:    p.Weight,
		Published: p.Published,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// PostForUpdate changes only the fields that are set.
type PostForUpdate struct {
	Title     *string `json:"title"`
	Content   *string `json:"content"`
	Weight    *int64  `json:"weight"`
	Published *bool   `json:"published"`
}

func (p PostForUpdate) Validate() error {
	p.Title = normalized(p.Title, strings.TrimSpace)
	return validation.ValidateStruct(&p,
		validation.Field(&p.Title, validation.NilOrNotEmpty, validation.Length(1, 255)),
		validation.Field(&p.Content, validation.NilOrNotEmpty),
	)
}

func (p PostForUpdate) Changes() map[string]any {
	changes := map[string]any{}
	if p.Title != nil {
		changes["title"] = strings.TrimSpace(*p.Title)
	}
	if p.Content != nil {
		changes["content"] = *p.Content
	}
	if p.Weight != nil {
		changes["weight"] = *p.Weight
	}
	if p.Published != nil {
		changes["published"] = *p.Published
	}
	return changes
}

// Posts is the post controller.
type Posts struct {
	*Controller[Post]
}

func newPosts(m *Manager) *Posts {
	return &Posts{Controller: newController[Post](m, Rules[Post]{})}
}
