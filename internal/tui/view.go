package tui

import (
	"fmt"
	"strings"

	"github.com/Sternrassler/posts-client/pkg/loader"
	"github.com/Sternrassler/posts-client/pkg/pagination"
	"github.com/Sternrassler/posts-client/pkg/post"
	"github.com/charmbracelet/lipgloss"
)

// View implements tea.Model.
func (m Model) View() string {
	var body string
	switch m.screen {
	case screenAll:
		body = m.viewAll()
	case screenPaged:
		body = m.viewPaged()
	case screenDetail:
		body = m.viewDetail()
	default:
		body = m.viewHome()
	}
	return lipgloss.JoinVertical(lipgloss.Left, body, "", m.help.View(m.keys))
}

func (m Model) viewHome() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Posts"))
	b.WriteString("\n\n")
	for i, item := range menu {
		if i == m.menuCursor {
			b.WriteString(selectedStyle.Render("> " + item))
		} else {
			b.WriteString("  " + item)
		}
		b.WriteString("\n")
	}
	return panelStyle.Render(strings.TrimRight(b.String(), "\n"))
}

func (m Model) viewAll() string {
	header := titleStyle.Render("All posts")
	s := m.listState
	switch s.Phase {
	case loader.PhaseLoading:
		return header + "\n\n" + m.spinner.View() + " Loading posts..."
	case loader.PhaseError:
		return header + "\n\n" + errorStyle.Render(s.Message) + "\n" + mutedStyle.Render("press r to retry")
	}
	if len(s.Posts) == 0 {
		return header + "\n\n" + mutedStyle.Render(NoPosts)
	}
	c := m.all
	return header + "\n\n" + m.renderRows(s.Posts, &c)
}

func (m Model) viewPaged() string {
	header := titleStyle.Render("Paginated posts")
	if m.initErr != nil {
		return header + "\n\n" + errorStyle.Render(m.initErr.Error()) + "\n" + mutedStyle.Render("press r to retry")
	}
	s := m.pagedState

	// Refresh state takes the whole screen until there is something to show.
	if len(s.Items) == 0 {
		switch s.Refresh.Phase {
		case pagination.PhaseIdle, pagination.PhaseLoading:
			return header + "\n\n" + m.spinner.View() + " Loading posts..."
		case pagination.PhaseFailed:
			return header + "\n\n" + errorStyle.Render(message(s.Refresh.Err, LoadPostsFailed)) +
				"\n" + mutedStyle.Render("press r to retry")
		}
		return header + "\n\n" + mutedStyle.Render(NoPosts)
	}

	c := m.paged
	var footer string
	switch {
	case s.Refresh.Loading():
		footer = m.spinner.View() + " Refreshing..."
	case s.Refresh.Failed():
		footer = errorStyle.Render(message(s.Refresh.Err, LoadPostsFailed)) + mutedStyle.Render("  r to retry")
	case s.Append.Loading():
		footer = m.spinner.View() + " Loading more..."
	case s.Append.Failed():
		footer = errorStyle.Render(message(s.Append.Err, LoadMoreFailed)) + mutedStyle.Render("  r to retry")
	case !s.HasNext():
		footer = mutedStyle.Render("End of posts")
	}
	out := header + "\n\n" + m.renderRows(s.Items, &c)
	if footer != "" {
		out += "\n" + footer
	}
	return out
}

func (m Model) viewDetail() string {
	p := m.selected
	width := max(m.width-4, 20)
	body := lipgloss.NewStyle().Width(width).Render(p.Body)
	content := titleStyle.Render(p.Title) + "\n\n" + body + "\n\n" +
		mutedStyle.Render(fmt.Sprintf("User ID: %d", p.OwnerID))
	return panelStyle.Render(content)
}

func (m Model) renderRows(posts []post.Post, c *cursor) string {
	rows := max(m.height-8, 3)
	start, end := c.window(len(posts), rows)
	lines := make([]string, 0, end-start)
	for i := start; i < end; i++ {
		line := fmt.Sprintf("%4d  %s", posts[i].ID, truncate(posts[i].Title, m.width-8))
		if i == c.index {
			line = selectedStyle.Render(line)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

// message prefers the description carried by a network error.
func message(err error, fallback string) string {
	if msg := post.Describe(err); msg != "" {
		return msg
	}
	return fallback
}

func truncate(s string, n int) string {
	if n < 4 {
		n = 4
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
