// Package views renders the server-side HTML pages.
package views

//go:generate templ generate

import (
	"context"
	"strconv"
	"time"

	"github.com/a-h/templ"

	appI18n "github.com/pavelanni/phishtrap/internal/i18n"
	"github.com/pavelanni/phishtrap/internal/leaderboard"
	"github.com/pavelanni/phishtrap/internal/model"
)

func pageLang() string {
	if tags := appI18n.Languages(); len(tags) > 0 {
		return tags[0]
	}
	return "en"
}

// href prefixes p with the request's base path.
func href(ctx context.Context, p string) templ.SafeURL {
	return templ.SafeURL(model.BasePathFromContext(ctx) + p)
}

func scoreText(ctx context.Context, row leaderboard.Row) string {
	if row.Total > 0 {
		return appI18n.Td(ctx, "ScoreOf", map[string]any{"Score": row.Score, "Total": row.Total})
	}
	return strconv.Itoa(row.Score)
}

func updatedAt(ctx context.Context, t time.Time) string {
	return appI18n.Td(ctx, "UpdatedAt", map[string]any{"Time": t.Format(time.RFC1123)})
}

func trapStatus(ctx context.Context, e model.TrapEvent) string {
	if e.Ignored {
		return appI18n.T(ctx, "Ignored")
	}
	return appI18n.T(ctx, "FellForIt")
}

func yesNo(ctx context.Context, b bool) string {
	if b {
		return appI18n.T(ctx, "Yes")
	}
	return appI18n.T(ctx, "No")
}
