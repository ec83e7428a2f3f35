package cart

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/bassista/labasica/internal/broadcast"
	"github.com/bassista/labasica/internal/events"
	"github.com/bassista/labasica/internal/kv"
	"github.com/containerd/errdefs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func clock() func() time.Time { return func() time.Time { return fixedNow } }

type recorder struct {
	mu    sync.Mutex
	names []string
}

func (r *recorder) listener(ev events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.names = append(r.names, ev.Name)
	return nil
}

func (r *recorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.names...)
}

func TestAdd_MergesQuantityAndPersists(t *testing.T) {
	ctx := context.Background()
	mem := kv.NewMemory()
	c := New(ctx, mem, Pricing{}, clock())
	rec := &recorder{}
	c.Subscribe(rec.listener)

	_, err := c.Add(ctx, Product{ID: 1, Name: "Pan", Price: 500})
	require.NoError(t, err)
	item, err := c.Add(ctx, Product{ID: 1, Name: "Pan", Price: 500, Quantity: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, item.Quantity)
	assert.Equal(t, fixedNow.UnixMilli(), item.AddedAt)
	require.Len(t, c.Items(), 1)

	assert.Equal(t, []string{
		events.ItemAddedToCart, events.CartUpdated,
		events.ItemAddedToCart, events.CartUpdated,
	}, rec.all())

	reloaded := New(ctx, mem, Pricing{}, clock())
	assert.Equal(t, c.Items(), reloaded.Items())
}

func TestAdd_RejectsProductWithoutID(t *testing.T) {
	c := New(context.Background(), kv.NewMemory(), Pricing{}, clock())
	_, err := c.Add(context.Background(), Product{Name: "Pan"})
	assert.True(t, errdefs.IsInvalidArgument(err))
	assert.Empty(t, c.Items())
}

func TestRemoveUpdateAndClear(t *testing.T) {
	ctx := context.Background()
	c := New(ctx, kv.NewMemory(), Pricing{}, clock())
	rec := &recorder{}

	_, _ = c.Add(ctx, Product{ID: 1, Name: "Pan", Price: 500})
	_, _ = c.Add(ctx, Product{ID: 2, Name: "Torta", Price: 1500})
	c.Subscribe(rec.listener)

	assert.True(t, c.UpdateQuantity(ctx, 1, 4))
	assert.Equal(t, 4, c.Items()[0].Quantity)
	assert.False(t, c.UpdateQuantity(ctx, 9, 1))

	assert.True(t, c.UpdateQuantity(ctx, 2, 0), "zero quantity removes the item")
	assert.Len(t, c.Items(), 1)
	assert.False(t, c.Remove(ctx, 2))

	c.Clear(ctx)
	assert.Empty(t, c.Items())
	c.Clear(ctx)

	assert.Equal(t, []string{
		events.CartQuantityUpdated, events.CartUpdated,
		events.ItemRemovedFromCart, events.CartUpdated,
		events.CartCleared, events.CartUpdated,
	}, rec.all())
}

func TestTotals(t *testing.T) {
	ctx := context.Background()
	c := New(ctx, kv.NewMemory(), Pricing{}, clock())

	empty := c.Totals()
	assert.Equal(t, 250.0, empty.Shipping)
	assert.False(t, empty.FreeShipping)

	_, _ = c.Add(ctx, Product{ID: 1, Name: "Pan", Price: 450, Quantity: 2})
	tot := c.Totals()
	assert.Equal(t, 2, tot.ItemCount)
	assert.Equal(t, 900.0, tot.Subtotal)
	assert.Equal(t, 250.0, tot.Shipping)
	assert.Equal(t, 1150.0, tot.Total)
	assert.Equal(t, 1150, tot.Points)

	_, _ = c.Add(ctx, Product{ID: 2, Name: "Torta", Price: 1100})
	tot = c.Totals()
	assert.Equal(t, 2000.0, tot.Subtotal)
	assert.True(t, tot.FreeShipping, "free shipping starts at the threshold")
	assert.Zero(t, tot.Shipping)
	assert.Equal(t, 2000, tot.Points)
}

func TestNew_DropsInvalidStoredItems(t *testing.T) {
	ctx := context.Background()
	mem := kv.NewMemory()
	require.NoError(t, mem.Set(ctx, StorageKey, []byte(`[
		{"id":1,"name":"Pan","price":500,"quantity":1},
		{"id":2,"name":"","price":500,"quantity":1},
		{"id":3,"name":"Torta","price":0,"quantity":1},
		{"id":4,"name":"Galleta","price":100,"quantity":0}
	]`)))

	c := New(ctx, mem, Pricing{}, clock())
	items := c.Items()
	require.Len(t, items, 1)
	assert.Equal(t, 1, items[0].ID)
}

func TestNew_CorruptStoredCartStartsEmpty(t *testing.T) {
	ctx := context.Background()
	mem := kv.NewMemory()
	require.NoError(t, mem.Set(ctx, StorageKey, []byte(`{not json`)))

	c := New(ctx, mem, Pricing{}, clock())
	assert.Empty(t, c.Items())
}

func TestImport_IsSilent(t *testing.T) {
	ctx := context.Background()
	mem := kv.NewMemory()
	c := New(ctx, mem, Pricing{}, clock())
	rec := &recorder{}
	c.Subscribe(rec.listener)

	c.Import(ctx, []Item{{ID: 5, Name: "Pan", Price: 300, Quantity: 1}})
	assert.Len(t, c.Items(), 1)
	assert.Empty(t, rec.all())

	stored, err := c.Stored(ctx)
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}

func TestItemsEqual(t *testing.T) {
	a := []Item{{ID: 1, Quantity: 2, Price: 10}, {ID: 2, Quantity: 1, Price: 5}}

	assert.True(t, ItemsEqual(a, []Item{{ID: 1, Quantity: 2, Price: 10, Name: "other"}, {ID: 2, Quantity: 1, Price: 5}}))
	assert.False(t, ItemsEqual(a, []Item{{ID: 2, Quantity: 1, Price: 5}, {ID: 1, Quantity: 2, Price: 10}}), "order matters")
	assert.False(t, ItemsEqual(a, a[:1]))
	assert.False(t, ItemsEqual(a, []Item{{ID: 1, Quantity: 3, Price: 10}, {ID: 2, Quantity: 1, Price: 5}}))
	assert.False(t, ItemsEqual(a, []Item{{ID: 1, Quantity: 2, Price: 11}, {ID: 2, Quantity: 1, Price: 5}}))
	assert.True(t, ItemsEqual(nil, []Item{}))
}

func TestSync_CrossTabMerge(t *testing.T) {
	ctx := context.Background()
	tabA := kv.NewMemory()
	tabB := tabA.Share()

	cartA := New(ctx, tabA, Pricing{}, clock())
	_, _ = cartA.Add(ctx, Product{ID: 1, Name: "Pan", Price: 500, Quantity: 2})
	syncA := NewSync(cartA, nil, SyncOptions{Now: clock()})
	defer syncA.Close()

	cartB := New(ctx, tabB, Pricing{}, clock())
	syncB := NewSync(cartB, nil, SyncOptions{Now: clock()})
	defer syncB.Close()

	recA := &recorder{}
	cartA.Subscribe(recA.listener)

	before := syncA.Status().LastKnownUpdate
	_, err := cartB.Add(ctx, Product{ID: 2, Name: "Torta", Price: 1500})
	require.NoError(t, err)

	counter, err := tabA.Get(ctx, LastUpdateKey)
	require.NoError(t, err)
	n, err := strconv.ParseInt(string(counter), 10, 64)
	require.NoError(t, err)
	assert.Greater(t, n, before, "the shared counter only moves forward")

	replaced, err := syncA.CheckForUpdates(ctx)
	require.NoError(t, err)
	assert.True(t, replaced)

	items := cartA.Items()
	require.Len(t, items, 2)
	assert.Equal(t, 2, items[0].Quantity)
	assert.Equal(t, 2, items[1].ID)
	assert.Empty(t, recA.all(), "a synced replace emits no cart events")

	replaced, err = syncA.CheckForUpdates(ctx)
	require.NoError(t, err)
	assert.False(t, replaced, "no counter change, no re-read")
}

func TestSync_CounterIsStrictlyIncreasing(t *testing.T) {
	ctx := context.Background()
	mem := kv.NewMemory()
	c := New(ctx, mem, Pricing{}, clock())
	s := NewSync(c, nil, SyncOptions{Now: clock()})
	defer s.Close()

	var seen []int64
	for i := 1; i <= 3; i++ {
		_, _ = c.Add(ctx, Product{ID: i, Name: "x", Price: 1})
		seen = append(seen, s.Status().LastKnownUpdate)
	}
	assert.Equal(t, fixedNow.UnixMilli(), seen[0])
	assert.Equal(t, seen[0]+1, seen[1])
	assert.Equal(t, seen[1]+1, seen[2])
}

func TestSync_EqualItemsAreNotReplaced(t *testing.T) {
	ctx := context.Background()
	tabA := kv.NewMemory()
	tabB := tabA.Share()

	cartA := New(ctx, tabA, Pricing{}, clock())
	_, _ = cartA.Add(ctx, Product{ID: 1, Name: "Pan", Price: 500})
	syncA := NewSync(cartA, nil, SyncOptions{Now: clock()})
	defer syncA.Close()

	require.NoError(t, tabB.Set(ctx, LastUpdateKey, []byte(strconv.FormatInt(fixedNow.UnixMilli()+1000, 10))))
	replaced, err := syncA.CheckForUpdates(ctx)
	require.NoError(t, err)
	assert.False(t, replaced)
	assert.Equal(t, fixedNow.UnixMilli()+1000, syncA.Status().LastKnownUpdate)
}

func TestSync_WatchAppliesForeignWrites(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tabA := kv.NewMemory()
	tabB := tabA.Share()

	cartA := New(ctx, tabA, Pricing{}, clock())
	syncA := NewSync(cartA, nil, SyncOptions{Interval: time.Hour, Now: clock()})
	defer syncA.Close()
	require.NoError(t, syncA.Start(ctx))
	assert.True(t, syncA.Status().Watching)

	cartB := New(ctx, tabB, Pricing{}, clock())
	syncB := NewSync(cartB, nil, SyncOptions{Now: clock()})
	defer syncB.Close()
	_, _ = cartB.Add(ctx, Product{ID: 7, Name: "Medialuna", Price: 200})

	require.Eventually(t, func() bool { return len(cartA.Items()) == 1 }, time.Second, 5*time.Millisecond)
}

func TestSync_BroadcastTriggersCheck(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// bolt is not watchable, so only the poll and the channel can carry changes
	store, err := kv.NewBoltStore(t.TempDir() + "/cart.db")
	require.NoError(t, err)
	defer store.Close()

	hub := broadcast.NewLocalHub()
	cartA := New(ctx, store, Pricing{}, clock())
	syncA := NewSync(cartA, hub, SyncOptions{Interval: time.Hour, Origin: "a", Now: clock()})
	defer syncA.Close()
	require.NoError(t, syncA.Start(ctx))
	assert.False(t, syncA.Status().Watching)

	cartB := New(ctx, store, Pricing{}, clock())
	syncB := NewSync(cartB, hub, SyncOptions{Interval: time.Hour, Origin: "b", Now: clock()})
	defer syncB.Close()

	_, _ = cartB.Add(ctx, Product{ID: 3, Name: "Alfajor", Price: 150})
	require.Eventually(t, func() bool { return len(cartA.Items()) == 1 }, time.Second, 5*time.Millisecond)
}
