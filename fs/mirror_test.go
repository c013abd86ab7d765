package fs_test

import (
	"context"
	"io"
	"testing"

	"github.com/pkg/errors"

	"github.com/duskline/backend/cmn"
	"github.com/duskline/backend/fs"
)

type fakeMirror struct {
	fail bool
}

func (m *fakeMirror) Put(_ context.Context, _ cmn.AccountId, _ cmn.ContentId, r io.Reader) error {
	if _, err := io.ReadAll(r); err != nil {
		return err
	}
	if m.fail {
		return errors.New("fake mirror failure")
	}
	return nil
}

func TestMirrorSetCollectsFailuresWithoutShortCircuiting(t *testing.T) {
	set := fs.MirrorSet{&fakeMirror{}, &fakeMirror{fail: true}, &fakeMirror{}, &fakeMirror{fail: true}}
	errs := set.Put(context.Background(), cmn.NewAccountId(), cmn.NewContentId(), []byte("data"))
	if len(errs) != 2 {
		t.Fatalf("expected 2 errors from the failing mirrors, got %d: %v", len(errs), errs)
	}
}

func TestMirrorSetNoErrorsWhenAllSucceed(t *testing.T) {
	set := fs.MirrorSet{&fakeMirror{}, &fakeMirror{}}
	errs := set.Put(context.Background(), cmn.NewAccountId(), cmn.NewContentId(), []byte("data"))
	if len(errs) != 0 {
		t.Fatalf("expected no errors, got %v", errs)
	}
}
