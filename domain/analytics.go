package domain

import "time"

// Analytics holds the aggregate task counters of one user.
type Analytics struct {
	TotalTasks     int `json:"totalTasks"`
	CompletedTasks int `json:"completedTasks"`
	OverdueTasks   int `json:"overdueTasks"`
}

// Tally folds boards into counters. A task is completed when it sits in the
// done list and overdue when it sits elsewhere with a due date before now.
func Tally(boards []Board, now time.Time) Analytics {
	var a Analytics
	for _, b := range boards {
		for _, l := range b.Lists {
			a.TotalTasks += len(l.Tasks)
			if l.ID == ListDone {
				a.CompletedTasks += len(l.Tasks)
				continue
			}
			for _, t := range l.Tasks {
				if t.IsOverdue(now) {
					a.OverdueTasks++
				}
			}
		}
	}
	return a
}
