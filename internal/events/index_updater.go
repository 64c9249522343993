package events

import (
	"context"
	"errors"
	"fmt"

	"shutter/internal/search"
)

// Documents loads fresh search documents from the primary store.
type Documents interface {
	PostDocument(ctx context.Context, postID uint) (search.PostDocument, error)
	UserDocument(ctx context.Context, userID uint) (search.UserDocument, error)
	TagDocument(ctx context.Context, tagID uint) (search.TagDocument, error)
}

// IndexUpdater keeps the search index in step with committed writes.
type IndexUpdater struct {
	index   search.Index
	docs    Documents
	handles func(string) bool
}

func NewIndexUpdater(index search.Index, docs Documents) *IndexUpdater {
	return &IndexUpdater{
		index:   index,
		docs:    docs,
		handles: handles(TypeUserRegistered, TypePostCreated, TypePostUpdated, TypePostDeleted, TypeAvatarUploaded),
	}
}

func (l *IndexUpdater) Name() string                  { return "index_updater" }
func (l *IndexUpdater) Priority() int                 { return 20 }
func (l *IndexUpdater) Handles(eventType string) bool { return l.handles(eventType) }

func (l *IndexUpdater) Handle(ctx context.Context, event Event) error {
	switch e := event.(type) {
	case UserRegistered:
		doc, err := l.docs.UserDocument(ctx, e.UserID)
		if err != nil {
			return fmt.Errorf("load user %d: %w", e.UserID, err)
		}
		return l.index.IndexUser(ctx, doc)
	case PostCreated:
		doc, err := l.docs.PostDocument(ctx, e.PostID)
		if err != nil {
			return fmt.Errorf("load post %d: %w", e.PostID, err)
		}
		return errors.Join(l.index.IndexPost(ctx, doc), l.indexTags(ctx, e.NewTagIDs()))
	case PostUpdated:
		doc, err := l.docs.PostDocument(ctx, e.PostID)
		if err != nil {
			return fmt.Errorf("load post %d: %w", e.PostID, err)
		}
		return errors.Join(l.index.UpdatePost(ctx, doc), l.indexTags(ctx, e.NewTagIDs()))
	case PostDeleted:
		return l.index.DeletePost(ctx, e.PostID)
	case AvatarUploaded:
		doc, err := l.docs.UserDocument(ctx, e.UserID)
		if err != nil {
			return fmt.Errorf("load user %d: %w", e.UserID, err)
		}
		return l.index.UpdateUser(ctx, doc)
	}
	return nil
}

func (l *IndexUpdater) indexTags(ctx context.Context, ids []uint) error {
	var errs []error
	for _, id := range ids {
		doc, err := l.docs.TagDocument(ctx, id)
		if err != nil {
			errs = append(errs, fmt.Errorf("load tag %d: %w", id, err))
			continue
		}
		if err := l.index.IndexTag(ctx, doc); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (e PostCreated) NewTagIDs() []uint { return tagIDs(e.NewTags) }
func (e PostUpdated) NewTagIDs() []uint { return tagIDs(e.NewTags) }
