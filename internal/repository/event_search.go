package repository

import (
	"context"
	"strings"

	"github.com/iliyamo/event-ticketing/internal/database"
	"github.com/iliyamo/event-ticketing/internal/model"
)

// Time filters accepted by EventSearchQuery.
const (
	WhenUpcoming = "upcoming"
	WhenPast     = "past"
	WhenAny      = "any"
)

// EventSearchQuery defines filters and paging for the public event search.
// Title and Venue match case-insensitive substrings.
type EventSearchQuery struct {
	Title      string
	Venue      string
	When       string
	OnlyOnSale bool // skip sold-out events
	Skip       int
	Limit      int
}

// where renders the filter as a SQL condition plus its arguments.
func (q EventSearchQuery) where() (string, []any) {
	var (
		conds []string
		args  []any
	)
	switch strings.ToLower(q.When) {
	case WhenAny:
	case WhenPast:
		conds = append(conds, "starts_at < UTC_TIMESTAMP()")
	default:
		conds = append(conds, "starts_at >= UTC_TIMESTAMP()")
	}
	if q.Title != "" {
		conds = append(conds, "LOWER(title) LIKE ?")
		args = append(args, "%"+escapeLike(strings.ToLower(q.Title))+"%")
	}
	if q.Venue != "" {
		conds = append(conds, "LOWER(venue) LIKE ?")
		args = append(args, "%"+escapeLike(strings.ToLower(q.Venue))+"%")
	}
	if q.OnlyOnSale {
		conds = append(conds, "available_seats > 0")
	}
	if len(conds) == 0 {
		return "1=1", args
	}
	return strings.Join(conds, " AND "), args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string { return likeEscaper.Replace(s) }

// Search returns one page of matching events ordered by start time, plus
// the number of matches.
func (r *EventRepo) Search(ctx context.Context, q EventSearchQuery) ([]model.Event, int, error) {
	cond, args := q.where()
	exec := database.ExecutorFrom(ctx, r.db)

	var total int
	if err := exec.QueryRowContext(ctx, `SELECT COUNT(*) FROM events WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	dataArgs := append(append([]any{}, args...), q.Limit, q.Skip)
	rows, err := exec.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE `+cond+` ORDER BY starts_at, id LIMIT ? OFFSET ?`, dataArgs...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := make([]model.Event, 0, q.Limit)
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}
