package model

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCreateThenGetReturnsStoredAuthor(t *testing.T) {
	env := newTestEnv(t, testOptions{})
	ctx := context.Background()

	id, err := env.manager.Authors.Create(ctx, env.root, AuthorForCreate{
		Name:     "Grace",
		Email:    " Grace@Example.com ",
		Password: "hopper-1906",
	})
	require.NoError(t, err)
	require.Positive(t, id)

	author, err := env.manager.Authors.Get(ctx, env.root, id)
	require.NoError(t, err)
	require.Equal(t, id, author.ID)
	require.Equal(t, "Grace", author.Name)
	require.Equal(t, "grace@example.com", author.Email)
	require.NotEqual(t, "hopper-1906", author.PasswordHash)
	require.False(t, author.CreatedAt.IsZero())
	require.Equal(t, author.CreatedAt, author.UpdatedAt)
}

func TestGetUnknownIDReturnsEntityNotFound(t *testing.T) {
	env := newTestEnv(t, testOptions{})

	_, err := env.manager.Edits.Get(context.Background(), env.root, 100)
	require.ErrorIs(t, err, ErrEntityNotFound)

	var notFound *EntityNotFoundError
	require.ErrorAs(t, err, &notFound)
	require.Equal(t, "edits", notFound.Entity)
	require.Equal(t, int64(100), notFound.ID)
}

func TestCreateRejectsInvalidPayload(t *testing.T) {
	env := newTestEnv(t, testOptions{})

	_, err := env.manager.Authors.Create(context.Background(), env.root, AuthorForCreate{
		Name:     "",
		Email:    "not-an-email",
		Password: "short",
	})
	require.ErrorIs(t, err, ErrValidation)

	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	require.Equal(t, "authors", validationErr.Entity)
}

func TestDuplicateEmailIsConstraintViolation(t *testing.T) {
	env := newTestEnv(t, testOptions{})
	env.seedAuthor(t, "first", "dup@example.com")

	_, err := env.manager.Authors.Create(context.Background(), env.root, AuthorForCreate{
		Name:     "second",
		Email:    "DUP@example.com",
		Password: "password-2",
	})
	var violation *ConstraintViolationError
	require.ErrorAs(t, err, &violation)
	require.Equal(t, "email", violation.Field)
	require.ErrorIs(t, err, ErrConstraintViolation)
}

func TestCreateWithMissingReferenceIsConstraintViolation(t *testing.T) {
	env := newTestEnv(t, testOptions{})
	authorID := env.seedAuthor(t, "editor", "editor@example.com")

	_, err := env.manager.Edits.Create(context.Background(), env.root, EditForCreate{
		EditorID:   authorID,
		PostID:     999,
		NewContent: "orphan",
	})
	var violation *ConstraintViolationError
	require.ErrorAs(t, err, &violation)
	require.Equal(t, "post_id", violation.Field)

	_, err = env.manager.Posts.Create(context.Background(), env.root, PostForCreate{
		AuthorID: int64Ptr(4242),
		Title:    "ghost",
		Content:  "nobody wrote this",
	})
	require.ErrorAs(t, err, &violation)
	require.Equal(t, "author_id", violation.Field)
}

func TestCreatePostDefaultsAuthorToActor(t *testing.T) {
	env := newTestEnv(t, testOptions{})
	authorID := env.seedAuthor(t, "owner", "owner@example.com")
	actor, err := NewCtx(authorID)
	require.NoError(t, err)

	id, err := env.manager.Posts.Create(context.Background(), actor, PostForCreate{Title: "mine", Content: "body"})
	require.NoError(t, err)

	post, err := env.manager.Posts.Get(context.Background(), actor, id)
	require.NoError(t, err)
	require.NotNil(t, post.AuthorID)
	require.Equal(t, authorID, *post.AuthorID)

	rootID, err := env.manager.Posts.Create(context.Background(), env.root, PostForCreate{Title: "system", Content: "body"})
	require.NoError(t, err)
	rootPost, err := env.manager.Posts.Get(context.Background(), env.root, rootID)
	require.NoError(t, err)
	require.Nil(t, rootPost.AuthorID)
}

func TestListWithoutFilterReturnsAllInDefaultOrder(t *testing.T) {
	env := newTestEnv(t, testOptions{})
	first := env.seedPost(t, nil, "a", 10, true)
	second := env.seedPost(t, nil, "b", 5, false)
	third := env.seedPost(t, nil, "c", 7, true)

	posts, err := env.manager.Posts.List(context.Background(), env.root, nil, nil)
	require.NoError(t, err)
	require.Len(t, posts, 3)
	require.Equal(t, []int64{first, second, third}, []int64{posts[0].ID, posts[1].ID, posts[2].ID})
}

func TestListOnEmptyTableReturnsEmptySlice(t *testing.T) {
	env := newTestEnv(t, testOptions{})

	edits, err := env.manager.Edits.List(context.Background(), env.root, nil, nil)
	require.NoError(t, err)
	require.NotNil(t, edits)
	require.Empty(t, edits)
}

func TestListWithUndeclaredFieldFailsWithoutQuery(t *testing.T) {
	env := newTestEnv(t, testOptions{})
	env.seedPost(t, nil, "a", 1, true)
	queries := countQueries(t, env.db)

	_, err := env.manager.Posts.List(context.Background(), env.root, Filter{}.And("password", OpEq, "x"), nil)
	var fieldErr *InvalidFilterFieldError
	require.ErrorAs(t, err, &fieldErr)
	require.Equal(t, "password", fieldErr.Field)
	require.Zero(t, queries.Load())

	_, err = env.manager.Authors.List(context.Background(), env.root, Filter{}.And("password_hash", OpEq, "x"), nil)
	require.ErrorIs(t, err, ErrInvalidFilterField)

	_, err = env.manager.Posts.List(context.Background(), env.root, Filter{}.And("weight", OpIs, true), nil)
	require.ErrorIs(t, err, ErrInvalidFilterOperator)
	require.Zero(t, queries.Load())
}

func TestListAppliesFiltersOrderingAndPaging(t *testing.T) {
	env := newTestEnv(t, testOptions{})
	ctx := context.Background()
	light := env.seedPost(t, nil, "light", 1, true)
	medium := env.seedPost(t, nil, "medium", 5, false)
	heavy := env.seedPost(t, nil, "heavy", 9, true)
	alsoHeavy := env.seedPost(t, nil, "also heavy", 9, false)

	ids := func(posts []Post) []int64 {
		out := make([]int64, len(posts))
		for i, post := range posts {
			out[i] = post.ID
		}
		return out
	}

	published, err := env.manager.Posts.List(ctx, env.root, Filter{}.And("published", OpIs, true), nil)
	require.NoError(t, err)
	require.Equal(t, []int64{light, heavy}, ids(published))

	ranged, err := env.manager.Posts.List(ctx, env.root, Filter{}.And("weight", OpGte, 5).And("weight", OpLt, 9), nil)
	require.NoError(t, err)
	require.Equal(t, []int64{medium}, ids(ranged))

	set, err := env.manager.Posts.List(ctx, env.root, Filter{}.And("id", OpIn, []int64{light, heavy, 777}), nil)
	require.NoError(t, err)
	require.Equal(t, []int64{light, heavy}, ids(set))

	excluded, err := env.manager.Posts.List(ctx, env.root, Filter{}.And("title", OpNotIn, []string{"light", "heavy"}), nil)
	require.NoError(t, err)
	require.Equal(t, []int64{medium, alsoHeavy}, ids(excluded))

	ordered, err := env.manager.Posts.List(ctx, env.root, nil, &ListOptions{OrderBy: []string{"!weight"}})
	require.NoError(t, err)
	require.Equal(t, []int64{heavy, alsoHeavy, medium, light}, ids(ordered))

	page, err := env.manager.Posts.List(ctx, env.root, nil, &ListOptions{Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Equal(t, []int64{medium, heavy}, ids(page))

	total, err := env.manager.Posts.Count(ctx, env.root, Filter{}.And("weight", OpEq, 9))
	require.NoError(t, err)
	require.Equal(t, int64(2), total)
}

func TestUpdateAppliesOnlySetFields(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	env := newTestEnv(t, testOptions{clock: func() time.Time { return now }})
	ctx := context.Background()
	id := env.seedPost(t, nil, "original", 3, false)

	now = now.Add(time.Hour)
	published := true
	require.NoError(t, env.manager.Posts.Update(ctx, env.root, id, PostForUpdate{Published: &published}))

	post, err := env.manager.Posts.Get(ctx, env.root, id)
	require.NoError(t, err)
	require.True(t, post.Published)
	require.Equal(t, "original", post.Title)
	require.Equal(t, int64(3), post.Weight)
	require.True(t, post.UpdatedAt.Equal(now))
	require.True(t, post.CreatedAt.Before(post.UpdatedAt))
}

func TestUpdateNeverMovesUpdatedAtBeforeCreatedAt(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	env := newTestEnv(t, testOptions{clock: func() time.Time { return now }})
	ctx := context.Background()
	id := env.seedPost(t, nil, "skewed", 1, false)

	now = now.Add(-time.Hour)
	require.NoError(t, env.manager.Posts.Update(ctx, env.root, id, PostForUpdate{Title: stringPtr("renamed")}))

	post, err := env.manager.Posts.Get(ctx, env.root, id)
	require.NoError(t, err)
	require.Equal(t, "renamed", post.Title)
	require.False(t, post.UpdatedAt.Before(post.CreatedAt))
}

func TestUpdateMissingAndEmptyPatch(t *testing.T) {
	env := newTestEnv(t, testOptions{})
	ctx := context.Background()

	err := env.manager.Posts.Update(ctx, env.root, 55, PostForUpdate{})
	require.ErrorIs(t, err, ErrEntityNotFound)

	id := env.seedPost(t, nil, "stable", 1, false)
	before, err := env.manager.Posts.Get(ctx, env.root, id)
	require.NoError(t, err)

	require.NoError(t, env.manager.Posts.Update(ctx, env.root, id, PostForUpdate{}))
	after, err := env.manager.Posts.Get(ctx, env.root, id)
	require.NoError(t, err)
	require.Equal(t, before, after)
}

func TestUpdateRejectsInvalidPatch(t *testing.T) {
	env := newTestEnv(t, testOptions{})
	id := env.seedPost(t, nil, "title", 1, false)

	err := env.manager.Posts.Update(context.Background(), env.root, id, PostForUpdate{Title: stringPtr("")})
	require.ErrorIs(t, err, ErrValidation)
}

func TestDeleteTwiceReturnsEntityNotFound(t *testing.T) {
	env := newTestEnv(t, testOptions{})
	ctx := context.Background()
	id := env.seedPost(t, nil, "doomed", 1, false)

	require.NoError(t, env.manager.Posts.Delete(ctx, env.root, id))

	_, err := env.manager.Posts.Get(ctx, env.root, id)
	require.ErrorIs(t, err, ErrEntityNotFound)

	err = env.manager.Posts.Delete(ctx, env.root, id)
	var notFound *EntityNotFoundError
	require.ErrorAs(t, err, &notFound)
	require.Equal(t, id, notFound.ID)
}

func TestDeleteReferencedRowIsRejected(t *testing.T) {
	env := newTestEnv(t, testOptions{})
	ctx := context.Background()
	authorID := env.seedAuthor(t, "writer", "writer@example.com")
	postID := env.seedPost(t, &authorID, "kept", 1, true)

	err := env.manager.Authors.Delete(ctx, env.root, authorID)
	var violation *ConstraintViolationError
	require.ErrorAs(t, err, &violation)
	require.Equal(t, "author_id", violation.Field)

	require.NoError(t, env.manager.Posts.Delete(ctx, env.root, postID))
	require.NoError(t, env.manager.Authors.Delete(ctx, env.root, authorID))
}

func TestCancelledContextIsTimeout(t *testing.T) {
	env := newTestEnv(t, testOptions{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := env.manager.Posts.Create(ctx, env.root, PostForCreate{Title: "late", Content: "body"})
	require.ErrorIs(t, err, ErrTimeout)

	count, err := env.manager.Posts.Count(context.Background(), env.root, nil)
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestClosedStoreIsUnavailable(t *testing.T) {
	env := newTestEnv(t, testOptions{})
	sqlDB, err := env.db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	_, err = env.manager.Posts.Get(context.Background(), env.root, 1)
	require.ErrorIs(t, err, ErrStoreUnavailable)
	require.False(t, errors.Is(err, ErrEntityNotFound))
}

func TestFindByEmailAndAuthenticate(t *testing.T) {
	env := newTestEnv(t, testOptions{})
	ctx := context.Background()
	id := env.seedAuthor(t, "login", "login@example.com")

	author, err := env.manager.Authors.FindByEmail(ctx, env.root, "LOGIN@example.com")
	require.NoError(t, err)
	require.Equal(t, id, author.ID)

	_, err = env.manager.Authors.FindByEmail(ctx, env.root, "nobody@example.com")
	require.ErrorIs(t, err, ErrEntityNotFound)

	authenticated, err := env.manager.Authors.Authenticate(ctx, "login@example.com", "password-login")
	require.NoError(t, err)
	require.Equal(t, id, authenticated.ID)

	_, err = env.manager.Authors.Authenticate(ctx, "login@example.com", "wrong-password")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = env.manager.Authors.Authenticate(ctx, "nobody@example.com", "password-login")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestNewManagerRequiresDatabase(t *testing.T) {
	_, err := NewManager(ManagerConfig{})
	require.ErrorIs(t, err, errMissingDatabase)

	var storeErr *StoreError
	require.ErrorAs(t, err, &storeErr)
	require.Equal(t, "model.manager.new.missing_database", storeErr.Code())
}

func TestOperationTimeoutBoundsContext(t *testing.T) {
	db := openTestDatabase(t)
	manager, err := NewManager(ManagerConfig{Database: db, OperationTimeout: time.Second})
	require.NoError(t, err)

	ctx, cancel := manager.bound(context.Background())
	defer cancel()
	deadline, ok := ctx.Deadline()
	require.True(t, ok)
	require.WithinDuration(t, time.Now().Add(time.Second), deadline, 500*time.Millisecond)

	parent, parentCancel := context.WithTimeout(context.Background(), time.Minute)
	defer parentCancel()
	bounded, boundedCancel := manager.bound(parent)
	defer boundedCancel()
	parentDeadline, _ := parent.Deadline()
	boundedDeadline, _ := bounded.Deadline()
	require.Equal(t, parentDeadline, boundedDeadline)
}

func TestCreateAcceptsWellFormedEmailOnAnyDomain(t *testing.T) {
	env := newTestEnv(t, testOptions{})

	id, err := env.manager.Authors.Create(context.Background(), env.root, AuthorForCreate{
		Name:     "A",
		Email:    "a@x.com",
		Password: "password-a",
	})
	require.NoError(t, err)

	author, err := env.manager.Authors.Get(context.Background(), env.root, id)
	require.NoError(t, err)
	require.Equal(t, "a@x.com", author.Email)
}

func TestAuthorPayloadsValidateNormalizedValues(t *testing.T) {
	require.NoError(t, AuthorForCreate{Name: " Grace ", Email: " Grace@Example.COM ", Password: "hopper-1906"}.Validate())
	require.NoError(t, AuthorForUpdate{Email: stringPtr("  Ada@Example.org ")}.Validate())

	require.Error(t, AuthorForCreate{Name: "   ", Email: "a@x.com", Password: "password-a"}.Validate())
	require.Error(t, AuthorForCreate{Name: "A", Email: "   ", Password: "password-a"}.Validate())
	require.Error(t, AuthorForUpdate{Name: stringPtr(" \t ")}.Validate())
	require.Error(t, PostForCreate{Title: "   ", Content: "body"}.Validate())
	require.Error(t, PostForUpdate{Title: stringPtr("  ")}.Validate())
}

func TestWhitespaceOnlyNameAndTitleAreRejected(t *testing.T) {
	env := newTestEnv(t, testOptions{})
	ctx := context.Background()

	_, err := env.manager.Authors.Create(ctx, env.root, AuthorForCreate{Name: "   ", Email: "blank@example.com", Password: "password-1"})
	require.ErrorIs(t, err, ErrValidation)
	count, err := env.manager.Authors.Count(ctx, env.root, nil)
	require.NoError(t, err)
	require.Zero(t, count)

	id := env.seedPost(t, nil, "titled", 1, false)
	err = env.manager.Posts.Update(ctx, env.root, id, PostForUpdate{Title: stringPtr("   ")})
	require.ErrorIs(t, err, ErrValidation)

	post, err := env.manager.Posts.Get(ctx, env.root, id)
	require.NoError(t, err)
	require.Equal(t, "titled", post.Title)
}

func TestSchemaRejectsOrphanedReferences(t *testing.T) {
	env := newTestEnv(t, testOptions{})
	now := time.Now().UTC()

	err := env.db.Create(&Edit{EditorID: 999, PostID: 999, NewContent: "orphan", Status: EditPending, CreatedAt: now, UpdatedAt: now}).Error
	require.Error(t, err)
	require.ErrorIs(t, classifyStoreError("edits", "edits.create", err), ErrConstraintViolation)

	err = env.db.Create(&Post{AuthorID: int64Ptr(999), Title: "orphan", Content: "body", CreatedAt: now, UpdatedAt: now}).Error
	require.Error(t, err)

	count, err := env.manager.Edits.Count(context.Background(), env.root, nil)
	require.NoError(t, err)
	require.Zero(t, count)
}
