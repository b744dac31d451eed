package domain

// Move relocates a task between (or within) lists.
type Move struct {
	TaskID   string
	From     ListID
	To       ListID
	Position int
}

// MoveTask removes the task from its source list and inserts it into the
// destination at Position, clamped to [0, len(destination)]. Both lists are
// rebuilt before either is assigned, so the task is never in zero or two lists.
// The destination must be one of the fixed lists; the source may also be a
// stored list outside the fixed set, so tasks can be moved out of it.
func (b *Board) MoveTask(m Move) error {
	if !m.To.Valid() {
		return ErrInvalidListID
	}
	b.normalize()
	src, err := b.list(m.From)
	if err != nil {
		return err
	}
	idx := -1
	for i, t := range src.Tasks {
		if t.ID == m.TaskID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return ErrTaskNotFound
	}
	task := src.Tasks[idx]

	remaining := make([]Task, 0, len(src.Tasks))
	remaining = append(remaining, src.Tasks[:idx]...)
	remaining = append(remaining, src.Tasks[idx+1:]...)

	if m.From == m.To {
		src.Tasks = insertAt(remaining, task, m.Position)
		return nil
	}

	dst, err := b.list(m.To)
	if err != nil {
		return err
	}
	if len(dst.Tasks) >= MaxTasksPerList {
		return ErrListFull
	}
	moved := insertAt(dst.Tasks, task, m.Position)
	src.Tasks, dst.Tasks = remaining, moved
	return nil
}

func insertAt(tasks []Task, t Task, pos int) []Task {
	if pos < 0 {
		pos = 0
	}
	if pos > len(tasks) {
		pos = len(tasks)
	}
	out := make([]Task, 0, len(tasks)+1)
	out = append(out, tasks[:pos]...)
	out = append(out, t)
	out = append(out, tasks[pos:]...)
	return out
}
