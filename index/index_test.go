package index

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"iter"
	"slices"
	"testing"
	"time"

	"dhashfinder/fingerprint"
	"dhashfinder/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gradient(decreasing bool) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, 9, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 9; x++ {
			v := uint8(20 + x*20)
			if decreasing {
				v = uint8(200 - x*20)
			}
			img.SetGray(x, y, color.Gray{Y: v})
		}
	}
	return img
}

func nearest(t *testing.T) fingerprint.Resampler {
	t.Helper()
	r, err := fingerprint.Lookup("nearest")
	require.NoError(t, err)
	return r
}

func itemsOf(items ...Item) iter.Seq[Item] {
	return slices.Values(items)
}

func TestIndex_AddLookup(t *testing.T) {
	idx, err := New(8, "")
	require.NoError(t, err)
	assert.Equal(t, fingerprint.DefaultResampler, idx.Resampler())

	a := fingerprint.MustParse("abcdef0123456789", 8)
	z := fingerprint.MustParse("0000000000000000", 8)

	require.NoError(t, idx.Add(z, "y.jpg"))
	require.NoError(t, idx.Add(a, "imgA.jpg"))
	require.NoError(t, idx.Add(z, "x.jpg"))

	assert.Equal(t, 2, idx.Count())
	assert.Equal(t, 3, idx.ImageCount())
	assert.Equal(t, []fingerprint.Fingerprint{z, a}, idx.Keys())
	assert.Equal(t, []types.ImageID{"y.jpg", "x.jpg"}, idx.Lookup(z))
	assert.Nil(t, idx.Lookup(fingerprint.MustParse("1111111111111111", 8)))

	t.Run("lookup returns a copy", func(t *testing.T) {
		ids := idx.Lookup(a)
		ids[0] = "changed"
		assert.Equal(t, []types.ImageID{"imgA.jpg"}, idx.Lookup(a))
	})

	t.Run("rejects other hash sizes", func(t *testing.T) {
		assert.Error(t, idx.Add(fingerprint.MustParse("1ff", 3), "small.jpg"))
		assert.Error(t, idx.Add(fingerprint.Fingerprint{}, "zero.jpg"))
	})

	_, err = New(0, "")
	assert.Error(t, err)
}

func TestBuild_GroupsAndSkips(t *testing.T) {
	decodeErr := errors.New("truncated file")
	items := itemsOf(
		Item{ID: "a.jpg", Open: func() (image.Image, error) { return gradient(true), nil }},
		Item{ID: "broken.jpg", Open: func() (image.Image, error) { return nil, decodeErr }},
		Item{ID: "b.jpg", Open: func() (image.Image, error) { return gradient(false), nil }},
		Item{ID: "c.jpg", Open: func() (image.Image, error) { return gradient(true), nil }},
		Item{ID: "empty.jpg", Open: func() (image.Image, error) { return image.NewGray(image.Rect(0, 0, 0, 0)), nil }},
		Item{ID: "panics.jpg", Open: func() (image.Image, error) { panic("bad codec") }},
	)

	idx, stats, err := Build(context.Background(), items, BuildOptions{Resampler: nearest(t), Workers: 3})
	require.NoError(t, err)

	assert.Equal(t, 6, stats.Processed)
	assert.Equal(t, 3, stats.Skipped)
	require.Len(t, stats.Failures, 3)
	for _, f := range stats.Failures {
		assert.True(t, types.IsDecodeError(f.Err), "%s: %v", f.ID, f.Err)
	}
	assert.ErrorIs(t, stats.Failures[0].Err, decodeErr)
	assert.Equal(t, types.ImageID("broken.jpg"), stats.Failures[0].ID)

	assert.Equal(t, 2, idx.Count())
	assert.Equal(t, 3, idx.ImageCount())
	assert.Equal(t, []types.ImageID{"a.jpg", "c.jpg"}, idx.Lookup(fingerprint.MustParse("ffffffffffffffff", 8)))
	assert.Equal(t, []types.ImageID{"b.jpg"}, idx.Lookup(fingerprint.MustParse("0000000000000000", 8)))
	assert.Equal(t, "nearest", idx.Resampler())
}

func TestBuild_PreservesInputOrder(t *testing.T) {
	var items []Item
	for i := 0; i < 50; i++ {
		delay := time.Duration((50-i)%7) * time.Millisecond
		items = append(items, Item{
			ID: types.ImageID(fmt.Sprintf("img%02d.jpg", i)),
			Open: func() (image.Image, error) {
				time.Sleep(delay)
				return gradient(true), nil
			},
		})
	}

	var seen []int
	var lastProcessed int
	observer := func(ev Event) {
		seen = append(seen, ev.Seq)
		assert.Equal(t, lastProcessed+1, ev.Processed)
		assert.Equal(t, 50, ev.Total)
		lastProcessed = ev.Processed
	}

	idx, stats, err := Build(context.Background(), slices.Values(items), BuildOptions{
		Resampler: nearest(t),
		Workers:   8,
		Total:     50,
		Observer:  observer,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Skipped)

	ids := idx.Lookup(fingerprint.MustParse("ffffffffffffffff", 8))
	require.Len(t, ids, 50)
	for i, id := range ids {
		assert.Equal(t, types.ImageID(fmt.Sprintf("img%02d.jpg", i)), id)
	}
	for i, seq := range seen {
		assert.Equal(t, i, seq)
	}
}

func TestBuild_EmptySequence(t *testing.T) {
	idx, stats, err := Build(context.Background(), itemsOf(), BuildOptions{HashSize: 4})
	require.NoError(t, err)
	assert.Equal(t, 0, idx.Count())
	assert.Equal(t, 4, idx.HashSize())
	assert.Equal(t, 0, stats.Processed)
}

func TestBuild_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	infinite := func(yield func(Item) bool) {
		for i := 0; ; i++ {
			if i == 10 {
				cancel()
			}
			item := Item{
				ID:   types.ImageID(fmt.Sprintf("%d.jpg", i)),
				Open: func() (image.Image, error) { return gradient(true), nil },
			}
			if !yield(item) {
				return
			}
		}
	}

	idx, _, err := Build(ctx, infinite, BuildOptions{Workers: 2})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, idx)
}
