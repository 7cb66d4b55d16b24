package cachemgr

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/crawlcache-core/internal/appcache"
)

func TestInvalidatorSinkDeleteKeysRemovesFromManager(t *testing.T) {
	local := NewLocalLayer()
	mgr := NewManager(local)
	defer mgr.Close()

	ctx := context.Background()
	require.NoError(t, mgr.Set(ctx, "k1", []byte("v"), time.Minute))

	sink := NewInvalidatorSink(mgr, nil)
	require.NoError(t, sink.DeleteKeys(ctx, []string{"k1"}))

	_, found, _, _ := local.Get(ctx, "k1")
	assert.False(t, found)
}

func TestInvalidatorSinkDeleteTagsForwardsToApplicationLayer(t *testing.T) {
	appCache := appcache.New()
	defer appCache.Close()
	appCache.Set("k1", []byte("v"), 0, 1, []string{"grp"})

	mgr := NewManager(NewApplicationLayer(appCache))
	defer mgr.Close()

	sink := NewInvalidatorSink(mgr, appCache)
	require.NoError(t, sink.DeleteTags(context.Background(), []string{"grp"}))

	_, found := appCache.Get("k1")
	assert.False(t, found)
}
