package tui

import (
	"fmt"
	"math"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/san-kum/seaice/internal/analysis"
	"github.com/san-kum/seaice/internal/dynamo"
	"github.com/san-kum/seaice/internal/stability"
	"github.com/san-kum/seaice/internal/viz"
)

// Session is a computed diagram ready to explore.
type Session struct {
	Model     string
	ParamName string
	System    dynamo.System
	Config    dynamo.Config
	Result    *analysis.Result
}

// Loader computes the session for a model name.
type Loader func(model string) (*Session, error)

type view int

const (
	viewMenu view = iota
	viewExplore
)

type sessionMsg struct {
	session *Session
	err     error
}

type model struct {
	view    view
	cursor  int
	models  []string
	load    Loader
	loading bool
	err     error

	session *Session
	param   float64

	theme  viz.Theme
	styles viz.Styles

	width  int
	height int
}

// NewExplorer starts on a model menu; choosing a model runs load.
func NewExplorer(models []string, load Loader) model {
	theme := viz.GetTheme("polar")
	return model{
		view:   viewMenu,
		models: models,
		load:   load,
		theme:  theme,
		styles: viz.NewStyles(theme),
		width:  80,
		height: 30,
	}
}

// NewSessionExplorer opens an already computed session directly.
func NewSessionExplorer(s *Session) model {
	m := NewExplorer(nil, nil)
	return m.open(s)
}

func (m model) open(s *Session) model {
	m.session = s
	m.view = viewExplore
	m.param = (s.Config.ParamMin + s.Config.ParamMax) / 2
	return m
}

func (m model) Init() tea.Cmd { return nil }

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case sessionMsg:
		m.loading = false
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.err = nil
		return m.open(msg.session), tea.ClearScreen
	}
	return m, nil
}

func (m model) handleKey(msg tea.KeyMsg) (model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		return m, tea.Quit
	}
	if m.view == viewMenu {
		return m.menuKey(msg)
	}
	return m.exploreKey(msg)
}

func (m model) menuKey(msg tea.KeyMsg) (model, tea.Cmd) {
	if m.loading {
		return m, nil
	}
	switch msg.String() {
	case "q", "esc":
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.models)-1 {
			m.cursor++
		}
	case "enter", " ":
		if len(m.models) == 0 || m.load == nil {
			return m, nil
		}
		m.loading = true
		name, load := m.models[m.cursor], m.load
		return m, func() tea.Msg {
			s, err := load(name)
			return sessionMsg{session: s, err: err}
		}
	}
	return m, nil
}

func (m model) exploreKey(msg tea.KeyMsg) (model, tea.Cmd) {
	cfg := m.session.Config
	switch msg.String() {
	case "q", "esc":
		if len(m.models) == 0 {
			return m, tea.Quit
		}
		m.view = viewMenu
		m.session = nil
		return m, tea.ClearScreen
	case "left", "h":
		m.param -= cfg.ParamStep
	case "right", "l":
		m.param += cfg.ParamStep
	case "[":
		m.param -= 10 * cfg.ParamStep
	case "]":
		m.param += 10 * cfg.ParamStep
	case "home":
		m.param = cfg.ParamMin
	case "end":
		m.param = cfg.ParamMax
	case "t":
		m.theme = viz.NextTheme(m.theme.Name)
		m.styles = viz.NewStyles(m.theme)
	}
	m.param = math.Max(cfg.ParamMin, math.Min(cfg.ParamMax, m.param))
	return m, nil
}

// equilibria at the cursor. One-dimensional systems are scanned directly;
// others are read off the traced branches.
func (m model) equilibria() ([]dynamo.Equilibrium, error) {
	if m.session.System.StateDim() == 1 {
		s, err := analysis.SliceAt(m.session.System, m.session.Config, m.param)
		if err != nil {
			return nil, err
		}
		return s.Equilibria, nil
	}
	return m.session.Result.Crossings(m.param), nil
}

func (m model) View() string {
	if m.view == viewMenu {
		return m.viewMenu()
	}
	return m.viewExplore()
}

func (m model) viewMenu() string {
	st := m.styles
	var b strings.Builder

	b.WriteString("\n   " + st.Title.Render("s e a i c e") + "\n\n")
	for i, name := range m.models {
		if i == m.cursor {
			b.WriteString("   " + st.Value.Render("▸ "+name) + "\n")
		} else {
			b.WriteString("     " + st.Muted.Render(name) + "\n")
		}
	}

	b.WriteString("\n")
	switch {
	case m.loading:
		b.WriteString("   " + st.Event.Render("tracing branches...") + "\n")
	case m.err != nil:
		b.WriteString("   " + st.Unstable.Render("error: "+m.err.Error()) + "\n")
	}
	b.WriteString("\n" + st.KeyHint.Render("   ↑↓ select   enter trace   q quit") + "\n")
	return b.String()
}

func (m model) viewExplore() string {
	st := m.styles
	s := m.session
	cw := max(m.width-8, 40)
	ch := max(m.height-16, 8)

	var b strings.Builder
	b.WriteString(fmt.Sprintf("\n   %s  %s %s\n\n",
		st.Title.Render(s.Model),
		st.Label.Render(s.ParamName+" ="),
		st.Value.Render(fmt.Sprintf("%.4g", m.param))))

	canvas := viz.NewCanvas(cw, ch)
	vp := viz.DiagramViewport(s.Result)
	viz.DrawDiagram(canvas, vp, s.Result)
	x, _ := canvas.Project(vp, m.param, vp.YMin)
	canvas.VLine(x)
	for _, row := range strings.Split(strings.TrimSuffix(canvas.String(), "\n"), "\n") {
		b.WriteString("   " + st.Muted.Render(row) + "\n")
	}
	b.WriteString("   " + st.Separator(cw) + "\n")

	eqs, err := m.equilibria()
	if err != nil {
		b.WriteString("   " + st.Unstable.Render(err.Error()) + "\n")
	} else {
		b.WriteString(fmt.Sprintf("   %s %d\n", st.Label.Render("equilibria"), len(eqs)))
		for _, e := range eqs {
			b.WriteString(fmt.Sprintf("     x=%s  %s  %s\n",
				st.Value.Render(formatState(e.State)),
				st.Stability(e),
				st.Label.Render(fmt.Sprintf("λ=%.3g", stability.Leading(e)))))
		}
	}

	if s.System.StateDim() == 1 {
		lo, hi := analysis.StateWindow(s.System, s.Config)
		if c, err := analysis.SampleRate(s.System, m.param, lo, hi, cw); err == nil {
			b.WriteString(fmt.Sprintf("   %s %s\n", st.Label.Render("dx/dt"), st.Event.Render(viz.Sparkline(c.Values(), cw-6))))
		}
	}

	if folds := s.Result.Folds(); len(folds) > 0 {
		parts := make([]string, len(folds))
		for i, f := range folds {
			parts[i] = fmt.Sprintf("%.4g", f.Param)
		}
		b.WriteString(fmt.Sprintf("   %s %s\n", st.Label.Render("folds at"), st.Event.Render(strings.Join(parts, ", "))))
	}

	b.WriteString("\n" + st.KeyHint.Render("   ←→ step  [] ×10  home/end  t theme  q back") + "\n")
	return b.String()
}

func formatState(x dynamo.State) string {
	parts := make([]string, len(x))
	for i, v := range x {
		parts[i] = fmt.Sprintf("%.5g", v)
	}
	return strings.Join(parts, ",")
}

func RunExplorer(m tea.Model) error {
	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err := p.Run()
	return err
}
