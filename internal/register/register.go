// Package register provisions a local identity and publishes the
// profile document to the user directory.
package register

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/chatit/chatit/internal/blob"
	"github.com/chatit/chatit/internal/docstore"
	"github.com/chatit/chatit/internal/identity"
)

// Registrar creates or refreshes the viewer's directory entry.
type Registrar struct {
	store    docstore.Store
	uploader blob.Uploader
	ids      identity.Provider
	logger   *zap.Logger
}

// New creates a registrar.
func New(store docstore.Store, uploader blob.Uploader, ids identity.Provider, logger *zap.Logger) *Registrar {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registrar{store: store, uploader: uploader, ids: ids, logger: logger}
}

// Register ensures an identity exists, uploads the optional profile
// image, and upserts the user document. Registering again with the same
// profile keeps the uid and replaces email and image.
func (r *Registrar) Register(ctx context.Context, email string, image io.Reader, size int64) (docstore.User, error) {
	uid, err := r.ids.EnsureUID(ctx)
	if err != nil {
		return docstore.User{}, fmt.Errorf("provision identity: %w", err)
	}

	var imageURL string
	if image != nil {
		url, err := r.uploader.Upload(ctx, "profile_images/"+uid+".jpg", image, size, "image/jpeg")
		if err != nil {
			return docstore.User{}, fmt.Errorf("upload profile image: %w", err)
		}
		imageURL = url
	}

	user := docstore.User{UID: uid, Email: email, ImageURL: imageURL}
	if err := r.store.UpsertUser(ctx, user); err != nil {
		return docstore.User{}, fmt.Errorf("save user: %w", err)
	}

	r.logger.Info("user registered", zap.String("uid", uid), zap.String("email", email))
	return user, nil
}
