package views

import (
	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/chatbox/internal/model"
	"github.com/rivo/tview"
)

// SearchView finds users by username prefix.
type SearchView struct {
	*tview.Flex
	input   *tview.InputField
	results *tview.Table
	onQuery func(query string)
	data    []model.Principal
}

// NewSearchView creates a new search view.
func NewSearchView() *SearchView {
	input := tview.NewInputField().
		SetLabel(" Username: ").
		SetFieldWidth(0)

	results := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false)
	results.SetBorder(true).SetTitle(" Users ")

	flex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(input, 1, 0, true).
		AddItem(results, 0, 1, false)

	sv := &SearchView{
		Flex:    flex,
		input:   input,
		results: results,
	}
	input.SetDoneFunc(func(key tcell.Key) {
		if key == tcell.KeyEnter && sv.onQuery != nil {
			sv.onQuery(sv.input.GetText())
		}
	})
	return sv
}

// SetOnQuery sets the callback when a search query is submitted.
func (sv *SearchView) SetOnQuery(fn func(query string)) {
	sv.onQuery = fn
}

// Reset clears the query and results.
func (sv *SearchView) Reset() {
	sv.input.SetText("")
	sv.Update(nil)
}

// Update refreshes search results.
func (sv *SearchView) Update(users []model.Principal) {
	sv.data = users
	sv.results.Clear()

	sv.results.SetCell(0, 0, tview.NewTableCell(" Username").SetSelectable(false).SetTextColor(tview.Styles.SecondaryTextColor))
	sv.results.SetCell(0, 1, tview.NewTableCell(" Name").SetSelectable(false).SetTextColor(tview.Styles.SecondaryTextColor))

	for i, u := range users {
		row := i + 1
		sv.results.SetCell(row, 0, tview.NewTableCell(" @"+u.Username).SetMaxWidth(25))
		sv.results.SetCell(row, 1, tview.NewTableCell(" "+cellText(u.Name)).SetExpansion(1))
	}
	if len(users) > 0 {
		sv.results.Select(1, 0)
	}
}

// SelectedUser returns the principal under the cursor.
func (sv *SearchView) SelectedUser() (model.Principal, bool) {
	row, _ := sv.results.GetSelection()
	idx := row - 1
	if idx >= 0 && idx < len(sv.data) {
		return sv.data[idx], true
	}
	return model.Principal{}, false
}

// Input returns the search input field.
func (sv *SearchView) Input() *tview.InputField {
	return sv.input
}

// Results returns the results table.
func (sv *SearchView) Results() *tview.Table {
	return sv.results
}
