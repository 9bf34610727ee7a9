package main

import (
	"bytes"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"focus_sched/internal/domain"
	"focus_sched/internal/experiment"
)

type embeddedServer struct {
	cmd *exec.Cmd
}

func main() {
	addr := flag.String("addr", "http://localhost:8092", "focussim api base URL")
	interval := flag.Duration("interval", 2*time.Second, "refresh interval")
	embedded := flag.Bool("embedded", false, "start focussim serve in the same monitor process lifecycle")
	serverBinary := flag.String("focussim-bin", "", "path to focussim binary (optional in embedded mode)")
	dbPath := flag.String("db", "data/focus_sched.db", "sqlite db path for the embedded server")
	flag.Parse()

	c := newClient(*addr)

	if *embedded {
		proc, err := startEmbeddedServer(*addr, *serverBinary, *dbPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start embedded server: %v\n", err)
			os.Exit(1)
		}
		defer proc.Stop()
	}

	if err := waitHealth(c, 30*time.Second); err != nil {
		fmt.Fprintf(os.Stderr, "api health check failed: %v\n", err)
		os.Exit(1)
	}

	app := tview.NewApplication()
	runsTable := tview.NewTable().
		SetBorders(false).
		SetSelectable(true, false)
	runsTable.SetTitle("Runs (Enter inspect, F5 refresh, F10 quit)").SetBorder(true)

	summaryView := tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(false)
	summaryView.SetTitle("Summary").SetBorder(true)

	runView := tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(false)
	runView.SetTitle("Run").SetBorder(true)

	eventsView := tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(false)
	eventsView.SetTitle("Event Log").SetBorder(true)

	filterInput := tview.NewInputField().
		SetLabel("Scheduler filter: ")
	filterInput.SetBorder(true).SetTitle("Enter = apply (empty shows all)")

	statusView := tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(false)
	statusView.SetBorder(true).SetTitle("Status")
	statusView.SetText(fmt.Sprintf(
		"Connected to %s | embedded=%t | shortcuts: F10 quit, F5 refresh, Ctrl+L focus filter, Ctrl+T focus runs",
		c.baseURL,
		*embedded,
	))

	right := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(summaryView, 8, 0, false).
		AddItem(runView, 9, 0, false).
		AddItem(eventsView, 0, 1, false)

	mainLayout := tview.NewFlex().
		AddItem(runsTable, 0, 1, false).
		AddItem(right, 0, 2, false)

	root := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(mainLayout, 0, 12, false).
		AddItem(filterInput, 3, 0, false).
		AddItem(statusView, 3, 0, false)

	var (
		selectedRunID  string
		lastRuns       []domain.RunRecord
		filter         atomic.Value
		detailsVersion uint64
	)
	filter.Store("")

	setStatusUI := func(msg string) {
		statusView.SetText(msg)
	}

	refreshRuns := func() {
		runs, err := c.listRuns(filter.Load().(string), 200)
		if err != nil {
			app.QueueUpdateDraw(func() {
				runsTable.Clear()
				runsTable.SetCell(0, 0, tview.NewTableCell(fmt.Sprintf("load error: %v", err)).SetTextColor(tview.Styles.ContrastSecondaryTextColor))
			})
			return
		}
		summary, sumErr := c.summary(1000)
		datasets, dsErr := c.listDatasets()
		app.QueueUpdateDraw(func() {
			lastRuns = runs
			renderRunsTable(runsTable, runs, selectedRunID)
			if sumErr != nil {
				summaryView.SetText(fmt.Sprintf("error: %v", sumErr))
			} else {
				summaryView.SetText(renderSummary(summary, datasets, dsErr))
			}
		})
	}

	refreshDetailsAsync := func(runID string) {
		if strings.TrimSpace(runID) == "" {
			return
		}
		version := atomic.AddUint64(&detailsVersion, 1)
		go func(selected string, v uint64) {
			events, err := c.listRunEvents(selected, 2000)
			if atomic.LoadUint64(&detailsVersion) != v {
				return
			}
			app.QueueUpdateDraw(func() {
				if selected != selectedRunID {
					return
				}
				for _, r := range lastRuns {
					if r.RunID == selected {
						runView.SetText(renderRun(r))
						break
					}
				}
				if err != nil {
					eventsView.SetText(fmt.Sprintf("error: %v", err))
					return
				}
				eventsView.SetText(renderEvents(events))
				eventsView.ScrollToBeginning()
			})
		}(runID, version)
	}

	filterInput.SetDoneFunc(func(key tcell.Key) {
		if key != tcell.KeyEnter {
			return
		}
		value := strings.TrimSpace(filterInput.GetText())
		filter.Store(value)
		app.SetFocus(runsTable)
		if value == "" {
			setStatusUI("Showing all schedulers")
		} else {
			setStatusUI("Showing scheduler " + value)
		}
		go refreshRuns()
	})

	runsTable.SetSelectedFunc(func(row, _ int) {
		if row <= 0 || row > len(lastRuns) {
			return
		}
		selectedRunID = lastRuns[row-1].RunID
		refreshDetailsAsync(selectedRunID)
	})

	app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if app.GetFocus() == filterInput {
			if event.Key() == tcell.KeyEscape || event.Key() == tcell.KeyTAB {
				app.SetFocus(runsTable)
				setStatusUI("Focus -> runs")
				return nil
			}
			return event
		}
		switch event.Key() {
		case tcell.KeyF10:
			app.Stop()
			return nil
		case tcell.KeyF5:
			go func() {
				refreshRuns()
				refreshDetailsAsync(selectedRunID)
			}()
			setStatusUI("Manual refresh requested")
			return nil
		case tcell.KeyCtrlL, tcell.KeyTAB:
			app.SetFocus(filterInput)
			setStatusUI("Focus -> filter")
			return nil
		case tcell.KeyCtrlT, tcell.KeyEscape:
			app.SetFocus(runsTable)
			setStatusUI("Focus -> runs")
			return nil
		}
		return event
	})

	go func() {
		ticker := time.NewTicker(*interval)
		defer ticker.Stop()
		refreshRuns()
		for range ticker.C {
			refreshRuns()
		}
	}()

	if err := app.SetRoot(root, true).EnableMouse(true).SetFocus(runsTable).Run(); err != nil {
		fmt.Fprintf(os.Stderr, "monitor failed: %v\n", err)
		os.Exit(1)
	}
}

func startEmbeddedServer(addr string, serverBinary string, dbPath string) (*embeddedServer, error) {
	parsed, err := url.Parse(addr)
	if err != nil {
		return nil, fmt.Errorf("parse addr: %w", err)
	}
	port := parsed.Port()
	if port == "" {
		return nil, fmt.Errorf("addr must include explicit port, got %q", addr)
	}
	args := []string{"serve", "--addr", ":" + port, "--db", dbPath}

	var cmd *exec.Cmd
	if strings.TrimSpace(serverBinary) != "" {
		cmd = exec.Command(serverBinary, args...)
	} else {
		self, err := os.Executable()
		if err == nil {
			sibling := filepath.Join(filepath.Dir(self), "focussim")
			if fileExists(sibling) {
				cmd = exec.Command(sibling, args...)
			}
		}
		if cmd == nil {
			cmd = exec.Command("go", append([]string{"run", "./cmd/focussim"}, args...)...)
			cwd, _ := os.Getwd()
			cmd.Dir = cwd
		}
	}

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start focussim process: %w", err)
	}
	return &embeddedServer{cmd: cmd}, nil
}

func (e *embeddedServer) Stop() {
	if e == nil || e.cmd == nil || e.cmd.Process == nil {
		return
	}
	_ = e.cmd.Process.Kill()
	_, _ = e.cmd.Process.Wait()
}

func renderRunsTable(table *tview.Table, runs []domain.RunRecord, selectedRunID string) {
	table.Clear()
	headers := []string{"Run", "Scheduler", "Score", "Done", "Overdue", "Created"}
	for i, h := range headers {
		table.SetCell(0, i, tview.NewTableCell(h).SetSelectable(false).SetAttributes(tcell.AttrBold))
	}
	for i, r := range runs {
		row := i + 1
		table.SetCell(row, 0, tview.NewTableCell(shortID(r.RunID)))
		table.SetCell(row, 1, tview.NewTableCell(r.Scheduler))
		table.SetCell(row, 2, tview.NewTableCell(fmt.Sprint(r.TotalScore)).SetAlign(tview.AlignRight))
		table.SetCell(row, 3, tview.NewTableCell(fmt.Sprintf("%d/%d", r.CompletedCount, r.CompletedCount+r.IncompleteCount)))
		table.SetCell(row, 4, tview.NewTableCell(fmt.Sprint(r.OverdueCount)))
		table.SetCell(row, 5, tview.NewTableCell(r.CreatedAt.Local().Format("01-02 15:04:05")))
		if r.RunID == selectedRunID {
			table.Select(row, 0)
		}
	}
}

func renderSummary(items []experiment.Summary, datasets []domain.Dataset, dsErr error) string {
	var b strings.Builder
	if dsErr != nil {
		b.WriteString(fmt.Sprintf("datasets: error %v\n", dsErr))
	} else {
		train, test := 0, 0
		for _, ds := range datasets {
			if ds.Kind == domain.DatasetTrain {
				train++
			} else {
				test++
			}
		}
		b.WriteString(fmt.Sprintf("datasets: train=%d test=%d\n", train, test))
	}
	if len(items) == 0 {
		b.WriteString("No runs yet")
		return b.String()
	}
	for _, s := range items {
		b.WriteString(fmt.Sprintf(
			"[yellow]%-10s[-] runs=%-4d score=%7.1f±%-6.1f completion=%5.1f%% on_time=%5.1f%% eff=%.3f\n",
			s.Scheduler, s.Runs, s.MeanScore, s.StdScore,
			s.MeanCompletionRate*100, s.MeanDeadlineCompliance*100, s.MeanEfficiency,
		))
	}
	return b.String()
}

func renderRun(r domain.RunRecord) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Run: %s  scheduler=%s\n", r.RunID, r.Scheduler))
	if r.DatasetID != "" {
		b.WriteString(fmt.Sprintf("Dataset: %s\n", shortID(r.DatasetID)))
	}
	b.WriteString(fmt.Sprintf("Score: %d  completed=%d incomplete=%d overdue=%d\n",
		r.TotalScore, r.CompletedCount, r.IncompleteCount, r.OverdueCount))
	b.WriteString(fmt.Sprintf("Completion: %.1f%%  on time: %.1f%%\n",
		r.CompletionRate*100, r.DeadlineComplianceRate*100))
	b.WriteString(fmt.Sprintf("Work: %.0f min  break: %.0f min  efficiency=%.3f\n",
		r.TotalWorkMinutes, r.TotalBreakMinutes, r.Efficiency))
	b.WriteString(fmt.Sprintf("Window: %s -> %s\n", r.StartedAt.Format("2006-01-02 15:04"), r.EndsAt.Format("2006-01-02 15:04")))
	return b.String()
}

func renderEvents(items []domain.Event) string {
	if len(items) == 0 {
		return "No events"
	}
	var b strings.Builder
	for _, ev := range items {
		switch ev.Kind {
		case domain.EventBreak:
			b.WriteString(fmt.Sprintf(
				"d%d %s [blue]break[-] %3.0f min  level=%.2f\n",
				ev.Day, ev.At.Format("15:04"), ev.DurationMinutes, ev.Concentration,
			))
		default:
			status := "[red]failed[-]"
			if ev.Completed != nil && *ev.Completed {
				status = "[green]done[-]"
			}
			task := "-"
			if ev.TaskID != nil {
				task = fmt.Sprint(*ev.TaskID)
			}
			b.WriteString(fmt.Sprintf(
				"d%d %s task %-4s %5.1f min (base %d) %s level=%.2f\n",
				ev.Day, ev.At.Format("15:04"), task, ev.DurationMinutes, ev.BaseDurationMinutes, status, ev.Concentration,
			))
		}
	}
	return b.String()
}

func shortID(v string) string {
	if len(v) <= 8 {
		return v
	}
	return v[:8]
}

func fileExists(p string) bool {
	info, err := os.Stat(p)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
