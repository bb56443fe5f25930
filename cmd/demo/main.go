package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/kass/go-geo-label/pkg/logging"
	"github.com/kass/go-geo-label/pkg/rtree"
)

var (
	// Styles
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FF79C6")).
			Background(lipgloss.Color("#282A36")).
			Padding(0, 1).
			MarginTop(1).
			MarginBottom(1)

	subtitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#8BE9FD"))

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#50FA7B"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF5555"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6272A4"))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#BD93F9")).
			Padding(1, 2).
			MarginTop(1)

	statStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFB86C"))
)

type stage int

const (
	stageBuilding stage = iota
	stageQuerying
	stagePostGIS
	stageDone
)

type model struct {
	cfg             Config
	stage           stage
	spinner         spinner.Model
	progress        progress.Model
	progressPercent float64

	build   buildStats
	queries queryStats
	pg      *queryStats
	err     error
}

type progressMsg float64

type builtMsg buildStats

type queriedMsg queryStats

type postgisMsg struct {
	stats queryStats
	err   error
}

type failedMsg struct{ err error }

var program *tea.Program

func initialModel(cfg Config) model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF79C6"))

	return model{
		cfg:      cfg,
		stage:    stageBuilding,
		spinner:  s,
		progress: progress.New(progress.WithDefaultGradient()),
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, runDemo(m.cfg))
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.progress.Width = msg.Width - 10
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case progress.FrameMsg:
		progressModel, cmd := m.progress.Update(msg)
		m.progress = progressModel.(progress.Model)
		return m, cmd

	case progressMsg:
		m.progressPercent = float64(msg)
		return m, m.progress.SetPercent(float64(msg))

	case builtMsg:
		m.build = buildStats(msg)
		m.stage = stageQuerying
		m.progressPercent = 0

	case queriedMsg:
		m.queries = queryStats(msg)
		if m.cfg.PostGIS.Host == "" {
			m.stage = stageDone
		} else {
			m.stage = stagePostGIS
		}

	case postgisMsg:
		if msg.err != nil {
			m.err = msg.err
		} else {
			m.pg = &msg.stats
		}
		m.stage = stageDone

	case failedMsg:
		m.err = msg.err
		m.stage = stageDone
	}

	return m, nil
}

func (m model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("🌍 Go Geo-Label Demo"))
	b.WriteString("\n")

	if m.stage > stageBuilding {
		b.WriteString(renderBuildStats(m.build))
	}
	if m.stage > stageQuerying {
		b.WriteString(renderQueryStats("Partition Tree Lookups", m.queries))
	}
	if m.pg != nil {
		b.WriteString(renderQueryStats("PostGIS Lookups", *m.pg))
	}

	switch m.stage {
	case stageBuilding:
		b.WriteString(subtitleStyle.Render("Building Partition Tree"))
		b.WriteString("\n\n")
		b.WriteString(m.spinner.View() + fmt.Sprintf(" Partitioning %d triangles to depth %d...\n",
			2*m.cfg.Demo.Grid*m.cfg.Demo.Grid, m.cfg.Demo.MaxDepth))

	case stageQuerying:
		b.WriteString("\n")
		b.WriteString(subtitleStyle.Render("Labelling Random Points"))
		b.WriteString("\n\n")
		b.WriteString(m.spinner.View() + fmt.Sprintf(" Labelling %d points on %d cores...\n\n", m.cfg.Demo.Queries, runtime.NumCPU()))
		b.WriteString(m.progress.ViewAs(m.progressPercent))

	case stagePostGIS:
		b.WriteString("\n")
		b.WriteString(subtitleStyle.Render("Comparing With PostGIS"))
		b.WriteString("\n\n")
		b.WriteString(m.spinner.View() + fmt.Sprintf(" Running %d ST_Intersects lookups...\n", m.cfg.PostGIS.Queries))

	case stageDone:
		if m.err != nil {
			b.WriteString("\n")
			b.WriteString(errorStyle.Render("✗ " + m.err.Error()))
		}
		if m.pg != nil && m.pg.perSec > 0 {
			b.WriteString("\n")
			b.WriteString(successStyle.Render(fmt.Sprintf("✓ Partition tree is %s faster than PostGIS",
				statStyle.Render(fmt.Sprintf("%.0fx", m.queries.perSec/m.pg.perSec)))))
		}
	}

	b.WriteString("\n\n")
	b.WriteString(dimStyle.Render("Press 'q' to quit"))

	return b.String()
}

func renderBuildStats(s buildStats) string {
	stats := fmt.Sprintf(
		"✓ Regions: %s\n"+
			"✓ Build time: %s\n"+
			"✓ Leaves: %s (%s covered, %s empty)\n"+
			"✓ Stored vertices: %s",
		statStyle.Render(fmt.Sprintf("%d", s.regions)),
		statStyle.Render(s.duration.String()),
		statStyle.Render(fmt.Sprintf("%d", s.tree.Leaves)),
		statStyle.Render(fmt.Sprintf("%d", s.tree.CoveredLeaves)),
		statStyle.Render(fmt.Sprintf("%d", s.tree.EmptyLeaves)),
		statStyle.Render(fmt.Sprintf("%d", s.tree.Vertices)),
	)

	return boxStyle.Render(successStyle.Render("Build Complete!\n\n")+stats) + "\n"
}

func renderQueryStats(title string, s queryStats) string {
	content := fmt.Sprintf(
		"✓ Total queries: %s\n"+
			"✓ Total time: %s\n"+
			"✓ Queries per second: %s\n"+
			"✓ Average query time: %s\n"+
			"✓ Labelled points: %s",
		statStyle.Render(fmt.Sprintf("%d", s.queries)),
		statStyle.Render(s.totalTime.String()),
		statStyle.Render(fmt.Sprintf("%.0f", s.perSec)),
		statStyle.Render(s.avgTime.String()),
		statStyle.Render(fmt.Sprintf("%d", s.hits)),
	)
	if s.agreement > 0 {
		content += fmt.Sprintf("\n✓ Agreement with R-Tree: %s", statStyle.Render(fmt.Sprintf("%.2f%%", s.agreement)))
	}

	return boxStyle.Render(successStyle.Render(title+"\n\n")+content) + "\n"
}

func runDemo(cfg Config) tea.Cmd {
	return func() tea.Msg {
		// Run the actual demo in the background
		go executeDemo(cfg)
		return nil
	}
}

func executeDemo(cfg Config) {
	c := demoRegions(cfg.Demo.Grid)
	tree, bs, err := buildTree(c, cfg.Demo.MaxDepth)
	if err != nil {
		program.Send(failedMsg{err})
		return
	}
	program.Send(builtMsg(bs))

	baseline := rtree.NewIndex(c)
	qs := runQueries(tree, baseline, cfg.Demo.Queries, func(f float64) {
		program.Send(progressMsg(f))
	})
	program.Send(queriedMsg(qs))

	if cfg.PostGIS.Host != "" {
		ps, err := runPostGIS(context.Background(), cfg, c)
		program.Send(postgisMsg{stats: ps, err: err})
	}
}

func main() {
	configPath := flag.String("config", "config.yaml", "Demo config file")
	plain := flag.Bool("plain", false, "Print plain output instead of the interactive view")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if *plain || !isTerminal() {
		if err := logging.Setup("warn", "text"); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		if err := runPlain(cfg); err != nil {
			os.Exit(1)
		}
		return
	}

	// log lines would tear the interactive view
	logging.Silence()
	program = tea.NewProgram(initialModel(cfg))
	if _, err := program.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running demo: %v\n", err)
		os.Exit(1)
	}
}
