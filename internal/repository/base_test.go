package repository

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectPages(t *testing.T) {
	rows := make([]int, 250)
	for i := range rows {
		rows[i] = i
	}
	var asked []Page
	fetch := func(p Page) ([]int, error) {
		asked = append(asked, p)
		if p.Offset >= len(rows) {
			return nil, nil
		}
		end := p.Offset + p.Limit
		if end > len(rows) {
			end = len(rows)
		}
		return rows[p.Offset:end], nil
	}

	got, err := CollectPages(fetch)
	require.NoError(t, err)
	assert.Equal(t, rows, got)
	assert.Equal(t, []Page{{Limit: 100}, {Limit: 100, Offset: 100}, {Limit: 100, Offset: 200}}, asked)

	t.Run("exact multiple needs one empty page", func(t *testing.T) {
		rows = rows[:200]
		asked = nil
		got, err := CollectPages(fetch)
		require.NoError(t, err)
		assert.Len(t, got, 200)
		assert.Len(t, asked, 3)
	})

	t.Run("error stops paging", func(t *testing.T) {
		_, err := CollectPages(func(Page) ([]int, error) { return nil, errors.New("boom") })
		assert.EqualError(t, err, "boom")
	})

	t.Run("nothing yields an empty slice", func(t *testing.T) {
		got, err := CollectPages(func(Page) ([]int, error) { return nil, nil })
		require.NoError(t, err)
		assert.NotNil(t, got)
		assert.Empty(t, got)
	})
}
