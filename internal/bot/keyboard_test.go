package bot

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Devendrasinghadiya/dekhomovie/internal/tg"
	"github.com/Devendrasinghadiya/dekhomovie/internal/tmdb"
)

func media(n int) []tmdb.Media {
	out := make([]tmdb.Media, 0, n)
	for i := 1; i <= n; i++ {
		kind := tmdb.KindMovie
		if i%2 == 0 {
			kind = tmdb.KindTV
		}
		out = append(out, tmdb.Media{Kind: kind, ID: i, Title: fmt.Sprintf("Title %d", i), Year: "2020", Poster: "/p.jpg"})
	}
	return out
}

func navRow(kb *tg.InlineKeyboardMarkup) []tg.InlineKeyboardButton {
	last := kb.InlineKeyboard[len(kb.InlineKeyboard)-1]
	for _, b := range last {
		if b.Text != labelPrev && b.Text != labelNext {
			return nil
		}
	}
	return last
}

func hasButton(row []tg.InlineKeyboardButton, text string) bool {
	for _, b := range row {
		if b.Text == text {
			return true
		}
	}
	return false
}

func TestResultsKeyboardPagination(t *testing.T) {
	cases := []struct {
		page, total int
		prev, next  bool
	}{
		{1, 1, false, false},
		{1, 3, false, true},
		{2, 3, true, true},
		{3, 3, true, false},
		{5, 5, true, false},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("%d_of_%d", tc.page, tc.total), func(t *testing.T) {
			kb := ResultsKeyboard(media(3), tc.page, tc.total)
			nav := navRow(kb)
			assert.Equal(t, tc.prev, hasButton(nav, labelPrev))
			assert.Equal(t, tc.next, hasButton(nav, labelNext))
			if !tc.prev && !tc.next {
				assert.Nil(t, nav)
			}
		})
	}
}

func TestResultsKeyboardNavTargets(t *testing.T) {
	kb := ResultsKeyboard(media(2), 2, 3)
	nav := navRow(kb)
	require.Len(t, nav, 2)
	assert.Equal(t, "search_prev_1", nav[0].CallbackData)
	assert.Equal(t, "search_next_3", nav[1].CallbackData)
}

func TestResultsKeyboardGrid(t *testing.T) {
	items := media(5)
	items[2].Title = "An Extremely Long Title That Needs Its Own Row"

	kb := ResultsKeyboard(items, 1, 1)
	sizes := []int{}
	for _, row := range kb.InlineKeyboard {
		sizes = append(sizes, len(row))
	}
	assert.Equal(t, []int{2, 1, 2}, sizes)
	assert.Equal(t, "🎬 Title 1 (2020)", kb.InlineKeyboard[0][0].Text)
	assert.Equal(t, "select_movie_1", kb.InlineKeyboard[0][0].CallbackData)
	assert.Equal(t, "📺 Title 2 (2020)", kb.InlineKeyboard[0][1].Text)
	assert.Equal(t, "select_tv_2", kb.InlineKeyboard[0][1].CallbackData)
	assert.Equal(t, "select_movie_3", kb.InlineKeyboard[1][0].CallbackData)
}

func TestJoinKeyboard(t *testing.T) {
	kb := JoinKeyboard([]string{"https://t.me/+a", "https://t.me/+b"})
	require.Len(t, kb.InlineKeyboard, 3)
	assert.Equal(t, "https://t.me/+a", kb.InlineKeyboard[0][0].URL)
	assert.Equal(t, "📢 Join #2", kb.InlineKeyboard[1][0].Text)
	assert.Equal(t, "check_membership", kb.InlineKeyboard[2][0].CallbackData)
}

func TestParseCallback(t *testing.T) {
	cases := []struct {
		data string
		want Callback
		ok   bool
	}{
		{"select_tv_1399", Callback{Action: ActionSelect, Kind: tmdb.KindTV, ID: 1399}, true},
		{"select_movie_27205", Callback{Action: ActionSelect, Kind: tmdb.KindMovie, ID: 27205}, true},
		{"search_next_2", Callback{Action: ActionPage, Page: 2}, true},
		{"search_prev_1", Callback{Action: ActionPage, Page: 1}, true},
		{"check_membership", Callback{Action: ActionCheckMembership}, true},
		{"close", Callback{Action: ActionClose}, true},
		{"select_person_1", Callback{}, false},
		{"select_movie_x", Callback{}, false},
		{"select_movie", Callback{}, false},
		{"search_next_0", Callback{}, false},
		{"search_next_", Callback{}, false},
		{"watch:1", Callback{}, false},
	}
	for _, tc := range cases {
		t.Run(tc.data, func(t *testing.T) {
			got, ok := ParseCallback(tc.data)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}
