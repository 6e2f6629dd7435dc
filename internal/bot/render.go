package bot

import (
	"fmt"
	"html"
	"strings"

	"github.com/Devendrasinghadiya/dekhomovie/internal/tg"
	"github.com/Devendrasinghadiya/dekhomovie/internal/tmdb"
)

// captionOverview keeps photo captions under Telegram's 1024 character limit.
const captionOverview = 800

type links struct {
	site string
	name string
}

func (l links) watch(m tmdb.Media) string {
	return fmt.Sprintf("%s/%s/%d", l.site, m.Kind, m.ID)
}

func (l links) download(m tmdb.Media) string {
	return fmt.Sprintf("%s/download/%s/%d", l.site, m.Kind, m.ID)
}

func (l links) share(m tmdb.Media) string {
	return fmt.Sprintf("Check out %s on %s:\n%s", m.Title, l.name, l.watch(m))
}

func (l links) cardKeyboard(m tmdb.Media) *tg.InlineKeyboardMarkup {
	watch := "🎬 Watch Movie"
	if m.Kind == tmdb.KindTV {
		watch = "📺 Watch Show"
	}
	kb := tg.NewInlineKeyboardMarkup([][]tg.InlineKeyboardButton{
		{{Text: watch, URL: l.watch(m)}},
		{
			{Text: "⬇️ Download", URL: l.download(m)},
			{Text: "🔗 Share", SwitchInlineQuery: tg.StrPtr(l.share(m))},
		},
		{{Text: labelClose, CallbackData: cbClose}},
	})
	return &kb
}

func cardCaption(m tmdb.Media) string {
	b := strings.Builder{}
	b.WriteString("<b>")
	b.WriteString(html.EscapeString(m.Title))
	b.WriteString("</b>")
	if m.Year != "" {
		b.WriteString(" (" + html.EscapeString(m.Year) + ")")
	}
	b.WriteString("\n<i>" + m.Kind.Label() + "</i>")
	desc := truncate(strings.TrimSpace(m.Overview), captionOverview)
	if desc == "" {
		desc = "No overview available"
	}
	b.WriteString("\n\n")
	b.WriteString(html.EscapeString(desc))
	return b.String()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n])) + "…"
}

func resultsHeader(query string, page, totalPages int) string {
	return fmt.Sprintf("🔎 Results for <b>%s</b>\nPage %d of %d", html.EscapeString(query), page, totalPages)
}
