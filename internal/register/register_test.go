package register

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/chatit/chatit/internal/docstore"
)

type fakeIdentity struct {
	uid string
	err error
}

func (f fakeIdentity) CurrentUID() (string, bool) { return f.uid, f.uid != "" }
func (f fakeIdentity) EnsureUID(context.Context) (string, error) {
	return f.uid, f.err
}

type fakeStore struct {
	users     []docstore.User
	upsertErr error
}

func (f *fakeStore) UpsertUser(_ context.Context, u docstore.User) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.users = append(f.users, u)
	return nil
}

func (f *fakeStore) MergeConversation(context.Context, docstore.Conversation) error { return nil }
func (f *fakeStore) InsertMessage(context.Context, string, docstore.Message) error  { return nil }
func (f *fakeStore) Close() error                                                   { return nil }

func (f *fakeStore) WatchConversations(context.Context, string) (*docstore.Subscription[docstore.Conversation], error) {
	return nil, errors.New("not implemented")
}

func (f *fakeStore) WatchUsers(context.Context) (*docstore.Subscription[docstore.User], error) {
	return nil, errors.New("not implemented")
}

func (f *fakeStore) WatchMessages(context.Context, string) (*docstore.Subscription[docstore.Message], error) {
	return nil, errors.New("not implemented")
}

type fakeUploader struct {
	keys []string
	err  error
}

func (f *fakeUploader) Upload(_ context.Context, key string, _ io.Reader, _ int64, _ string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.keys = append(f.keys, key)
	return "https://blobs.local/" + key, nil
}

func TestRegisterWithImage(t *testing.T) {
	store := &fakeStore{}
	up := &fakeUploader{}
	r := New(store, up, fakeIdentity{uid: "u1"}, nil)

	user, err := r.Register(context.Background(), "u1@x.io", strings.NewReader("jpegbytes"), 9)
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	if user.UID != "u1" || user.Email != "u1@x.io" {
		t.Errorf("user = %+v", user)
	}
	if len(up.keys) != 1 || up.keys[0] != "profile_images/u1.jpg" {
		t.Errorf("upload keys = %v, want profile_images/u1.jpg", up.keys)
	}
	if user.ImageURL != "https://blobs.local/profile_images/u1.jpg" {
		t.Errorf("image url = %q", user.ImageURL)
	}
	if len(store.users) != 1 || store.users[0] != user {
		t.Errorf("stored users = %+v", store.users)
	}
}

func TestRegisterWithoutImage(t *testing.T) {
	store := &fakeStore{}
	up := &fakeUploader{}
	r := New(store, up, fakeIdentity{uid: "u1"}, nil)

	user, err := r.Register(context.Background(), "u1@x.io", nil, 0)
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if user.ImageURL != "" {
		t.Errorf("image url = %q, want empty", user.ImageURL)
	}
	if len(up.keys) != 0 {
		t.Errorf("unexpected uploads: %v", up.keys)
	}
}

func TestRegisterUploadFailureWritesNothing(t *testing.T) {
	store := &fakeStore{}
	up := &fakeUploader{err: errors.New("bucket unreachable")}
	r := New(store, up, fakeIdentity{uid: "u1"}, nil)

	if _, err := r.Register(context.Background(), "u1@x.io", strings.NewReader("x"), 1); err == nil {
		t.Fatal("Register() expected upload error")
	}
	if len(store.users) != 0 {
		t.Error("user document written despite failed image upload")
	}
}

func TestRegisterIdentityFailure(t *testing.T) {
	store := &fakeStore{}
	r := New(store, &fakeUploader{}, fakeIdentity{err: errors.New("disk read-only")}, nil)

	if _, err := r.Register(context.Background(), "u1@x.io", nil, 0); err == nil {
		t.Fatal("Register() expected identity error")
	}
	if len(store.users) != 0 {
		t.Error("user document written without an identity")
	}
}
