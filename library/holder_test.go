package library_test

import (
	"strconv"
	"testing"
	"time"

	"github.com/spenselabs/partnersdk/browser/browserfakes"
	"github.com/spenselabs/partnersdk/flow/flowfakes"
	sdkerrors "github.com/spenselabs/partnersdk/internal/errors"
	"github.com/spenselabs/partnersdk/library"
	"github.com/spenselabs/partnersdk/storage"
	"github.com/spenselabs/partnersdk/storage/storefakes"
	"github.com/stretchr/testify/require"
)

func holderDeps(store *storefakes.FakeStore) library.Deps {
	return library.Deps{
		Store:    store,
		Surface:  browserfakes.NewFakeSurface(),
		Prompter: &flowfakes.FakePrompter{},
	}
}

func TestHolderSecondInitializeIsNoOp(t *testing.T) {
	settings, err := library.NewSettings("https://partner.example.com", true, nil, false)
	require.NoError(t, err)

	store := storefakes.NewFakeStore()
	require.NoError(t, store.Set(storage.KeyPinSetAt, strconv.FormatInt(time.Now().UnixMilli(), 10)))

	holder := library.NewHolder()
	require.NoError(t, holder.Initialize(settings, holderDeps(store)))
	first, err := holder.Library()
	require.NoError(t, err)

	// Second initialize with a different store keeps the first instance and
	// its persisted state untouched.
	require.NoError(t, holder.Initialize(settings, holderDeps(storefakes.NewFakeStore())))
	second, err := holder.Library()
	require.NoError(t, err)
	require.Same(t, first, second)
	_, ok := store.Get(storage.KeyPinSetAt)
	require.True(t, ok)
}

func TestHolderResetAllowsReinitialize(t *testing.T) {
	settings, err := library.NewSettings("https://partner.example.com", true, nil, false)
	require.NoError(t, err)

	holder := library.NewHolder()
	require.NoError(t, holder.Initialize(settings, holderDeps(storefakes.NewFakeStore())))
	first, err := holder.Library()
	require.NoError(t, err)

	holder.Reset()
	_, err = holder.Library()
	require.True(t, sdkerrors.Is(err, sdkerrors.ErrNotInitialized))

	require.NoError(t, holder.Initialize(settings, holderDeps(storefakes.NewFakeStore())))
	second, err := holder.Library()
	require.NoError(t, err)
	require.NotSame(t, first, second)
}

func TestHolderRejectsInvalidSettings(t *testing.T) {
	holder := library.NewHolder()
	require.Error(t, holder.Initialize(library.Settings{}, holderDeps(storefakes.NewFakeStore())))
}
