package bot

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/Devendrasinghadiya/dekhomovie/internal/tg"
	"github.com/Devendrasinghadiya/dekhomovie/internal/tmdb"
)

const (
	perRow      = 2
	wideLabel   = 28
	cbSelect    = "select_"
	cbPrev      = "search_prev_"
	cbNext      = "search_next_"
	cbJoined    = "check_membership"
	cbClose     = "close"
	labelPrev   = "⬅️ Previous"
	labelNext   = "Next ➡️"
	labelJoined = "✅ I've joined"
	labelClose  = "✖️ Close"
)

func resultLabel(m tmdb.Media) string {
	icon := "🎬"
	if m.Kind == tmdb.KindTV {
		icon = "📺"
	}
	if m.Year == "" {
		return fmt.Sprintf("%s %s", icon, m.Title)
	}
	return fmt.Sprintf("%s %s (%s)", icon, m.Title, m.Year)
}

// ResultsKeyboard lays out one page of results. Long labels get a row of
// their own; the rest are paired. The navigation row comes last and only
// when there is more than one page.
func ResultsKeyboard(results []tmdb.Media, page, totalPages int) *tg.InlineKeyboardMarkup {
	rows := make([][]tg.InlineKeyboardButton, 0, len(results)/perRow+2)

	row := []tg.InlineKeyboardButton{}
	for _, m := range results {
		btn := tg.InlineKeyboardButton{
			Text:         resultLabel(m),
			CallbackData: fmt.Sprintf("%s%s_%d", cbSelect, m.Kind, m.ID),
		}
		if utf8.RuneCountInString(btn.Text) > wideLabel {
			if len(row) > 0 {
				rows = append(rows, row)
				row = []tg.InlineKeyboardButton{}
			}
			rows = append(rows, []tg.InlineKeyboardButton{btn})
			continue
		}
		row = append(row, btn)
		if len(row) == perRow {
			rows = append(rows, row)
			row = []tg.InlineKeyboardButton{}
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}

	if totalPages > 1 {
		nav := []tg.InlineKeyboardButton{}
		if page > 1 {
			nav = append(nav, tg.InlineKeyboardButton{Text: labelPrev, CallbackData: fmt.Sprintf("%s%d", cbPrev, page-1)})
		}
		if page < totalPages {
			nav = append(nav, tg.InlineKeyboardButton{Text: labelNext, CallbackData: fmt.Sprintf("%s%d", cbNext, page+1)})
		}
		if len(nav) > 0 {
			rows = append(rows, nav)
		}
	}

	kb := tg.NewInlineKeyboardMarkup(rows)
	return &kb
}

// JoinKeyboard lists the invite links followed by the re-check button.
func JoinKeyboard(inviteLinks []string) *tg.InlineKeyboardMarkup {
	rows := make([][]tg.InlineKeyboardButton, 0, len(inviteLinks)+1)
	for i, link := range inviteLinks {
		text := "📢 Join"
		if len(inviteLinks) > 1 {
			text = fmt.Sprintf("📢 Join #%d", i+1)
		}
		rows = append(rows, []tg.InlineKeyboardButton{{Text: text, URL: link}})
	}
	rows = append(rows, []tg.InlineKeyboardButton{{Text: labelJoined, CallbackData: cbJoined}})
	kb := tg.NewInlineKeyboardMarkup(rows)
	return &kb
}

type CallbackAction int

const (
	ActionSelect CallbackAction = iota + 1
	ActionPage
	ActionCheckMembership
	ActionClose
)

// Callback is decoded callback data.
type Callback struct {
	Action CallbackAction
	Kind   tmdb.Kind
	ID     int
	Page   int
}

func ParseCallback(data string) (Callback, bool) {
	data = strings.TrimSpace(data)
	switch {
	case data == cbJoined:
		return Callback{Action: ActionCheckMembership}, true
	case data == cbClose:
		return Callback{Action: ActionClose}, true
	case strings.HasPrefix(data, cbPrev), strings.HasPrefix(data, cbNext):
		raw := strings.TrimPrefix(strings.TrimPrefix(data, cbPrev), cbNext)
		page, err := strconv.Atoi(raw)
		if err != nil || page < 1 {
			return Callback{}, false
		}
		return Callback{Action: ActionPage, Page: page}, true
	case strings.HasPrefix(data, cbSelect):
		kindStr, idStr, ok := strings.Cut(strings.TrimPrefix(data, cbSelect), "_")
		if !ok {
			return Callback{}, false
		}
		kind, ok := tmdb.ParseKind(kindStr)
		if !ok {
			return Callback{}, false
		}
		id, err := strconv.Atoi(idStr)
		if err != nil || id <= 0 {
			return Callback{}, false
		}
		return Callback{Action: ActionSelect, Kind: kind, ID: id}, true
	}
	return Callback{}, false
}
