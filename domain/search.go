package domain

import "strings"

// NormalizeQuery trims surrounding whitespace and lower-cases q. An empty
// result means "match everything".
func NormalizeQuery(q string) string {
	return strings.ToLower(strings.TrimSpace(q))
}

// MatchesQuery reports whether the task title or description contains the
// normalized query, ignoring case. An empty description only matches the empty
// query, which FilterLists never evaluates.
func MatchesQuery(t Task, normalized string) bool {
	if strings.Contains(strings.ToLower(t.Title), normalized) {
		return true
	}
	return t.Description != "" && strings.Contains(strings.ToLower(t.Description), normalized)
}

// FilterLists returns copies of lists holding only the tasks matching query.
// Lists are never dropped; an empty or blank query returns every task.
func FilterLists(lists []List, query string) []List {
	q := NormalizeQuery(query)
	out := make([]List, len(lists))
	for i, l := range lists {
		tasks := make([]Task, 0, len(l.Tasks))
		for _, t := range l.Tasks {
			if q == "" || MatchesQuery(t, q) {
				tasks = append(tasks, t)
			}
		}
		out[i] = List{ID: l.ID, Title: l.Title, Tasks: tasks}
	}
	return out
}
