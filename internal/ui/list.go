package ui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/desertthunder/portalsync/internal/formatter"
	"github.com/desertthunder/portalsync/internal/models"
)

var _ list.Item = row{}

// row is one rendered item of a working set.
type row struct {
	title string
	desc  string
}

func (r row) FilterValue() string { return r.title }
func (r row) Title() string       { return r.title }
func (r row) Description() string { return r.desc }

// Describer turns an item into its list title and description.
type Describer[T any] func(T) (title, desc string)

// HomeworkRow describes homework with its course and deadline relative to now().
func HomeworkRow(now func() time.Time) Describer[models.Homework] {
	return func(h models.Homework) (string, string) {
		desc := fmt.Sprintf("%s • due %s", h.CourseName, formatter.Deadline(h.Deadline, now()))
		if h.Submitted {
			desc += " • submitted"
		}
		return h.Title, desc
	}
}

// DocumentRow describes a document with its course, type and size.
func DocumentRow(d models.Document) (string, string) {
	return d.Name, fmt.Sprintf("%s • %s • %s", d.CourseName, d.Type, formatter.Size(d.Size))
}

func rows[T any](items []T, describe Describer[T]) []list.Item {
	out := make([]list.Item, len(items))
	for i, it := range items {
		title, desc := describe(it)
		out[i] = row{title: title, desc: desc}
	}
	return out
}
