package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/kailiangshang/team-work/internal/domain"
	sqlitestore "github.com/kailiangshang/team-work/internal/store/sqlite"
)

type client struct {
	baseURL string
	http    *http.Client
}

func main() {
	addr := flag.String("addr", "http://localhost:8844", "simd base URL")
	interval := flag.Duration("interval", 2*time.Second, "refresh interval")
	flag.Parse()

	c := &client{
		baseURL: strings.TrimRight(*addr, "/"),
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
	}

	if err := waitHealth(c, 15*time.Second); err != nil {
		fmt.Fprintf(os.Stderr, "simd health check failed: %v\n", err)
		os.Exit(1)
	}

	app := tview.NewApplication()
	runsTable := tview.NewTable().
		SetBorders(false).
		SetSelectable(true, false)
	runsTable.SetTitle("Runs (Enter inspect, Ctrl+N new run, F5 refresh, F10 quit)").SetBorder(true)

	daysView := tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(false)
	daysView.SetTitle("Day Logs").SetBorder(true)

	disruptionsView := tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(false)
	disruptionsView.SetTitle("Disruptions").SetBorder(true)

	summaryView := tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(false)
	summaryView.SetTitle("Run Summary").SetBorder(true)

	statusView := tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(false)
	statusView.SetBorder(true).SetTitle("Status")
	statusView.SetText(fmt.Sprintf("Connected to %s | shortcuts: F10 quit, F5 refresh, Ctrl+N new run", c.baseURL))

	right := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(summaryView, 8, 0, false).
		AddItem(daysView, 0, 3, false).
		AddItem(disruptionsView, 0, 2, false)

	mainLayout := tview.NewFlex().
		AddItem(runsTable, 0, 1, true).
		AddItem(right, 0, 2, false)

	root := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(mainLayout, 0, 12, false).
		AddItem(statusView, 3, 0, false)

	var selectedRunID string
	var lastRuns []sqlitestore.RunRecord
	var detailsVersion uint64

	setStatusAsync := func(msg string) {
		app.QueueUpdateDraw(func() {
			statusView.SetText(msg)
		})
	}

	refreshRuns := func() {
		runs, err := c.listRuns(100)
		if err != nil {
			app.QueueUpdateDraw(func() {
				runsTable.Clear()
				runsTable.SetCell(0, 0, tview.NewTableCell(fmt.Sprintf("load error: %v", err)).SetTextColor(tview.Styles.ContrastSecondaryTextColor))
			})
			return
		}
		lastRuns = runs
		app.QueueUpdateDraw(func() {
			renderRunsTable(runsTable, runs, selectedRunID)
		})
	}

	refreshDetailsAsync := func(runID string) {
		if strings.TrimSpace(runID) == "" {
			return
		}
		version := atomic.AddUint64(&detailsVersion, 1)
		app.QueueUpdateDraw(func() {
			summaryView.SetText("Loading...")
			daysView.SetText("Loading...")
			disruptionsView.SetText("Loading...")
		})

		go func(selected string, v uint64) {
			rec, recErr := c.getRun(selected)
			days, daysErr := c.listDays(selected)
			events, evErr := c.listDisruptions(selected)

			if atomic.LoadUint64(&detailsVersion) != v {
				return
			}
			app.QueueUpdateDraw(func() {
				if selected != selectedRunID {
					return
				}
				if recErr != nil {
					summaryView.SetText(fmt.Sprintf("error: %v", recErr))
				} else {
					summaryView.SetText(renderSummary(rec))
				}
				if daysErr != nil {
					daysView.SetText(fmt.Sprintf("error: %v", daysErr))
				} else {
					daysView.SetText(renderDays(days))
				}
				if evErr != nil {
					disruptionsView.SetText(fmt.Sprintf("error: %v", evErr))
				} else {
					disruptionsView.SetText(renderDisruptions(events))
				}
			})
		}(runID, version)
	}

	startRun := func() {
		setStatusAsync("Starting run...")
		go func() {
			runID, err := c.startRun()
			if err != nil {
				setStatusAsync("Failed to start run: " + err.Error())
				return
			}
			selectedRunID = runID
			refreshRuns()
			refreshDetailsAsync(runID)
			setStatusAsync("Run started: " + runID)
		}()
	}

	runsTable.SetSelectedFunc(func(row, _ int) {
		if row <= 0 || row > len(lastRuns) {
			return
		}
		selectedRunID = lastRuns[row-1].ID
		refreshDetailsAsync(selectedRunID)
	})

	app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyF10:
			app.Stop()
			return nil
		case tcell.KeyF5:
			go refreshRuns()
			go refreshDetailsAsync(selectedRunID)
			return nil
		case tcell.KeyCtrlN:
			startRun()
			return nil
		}
		return event
	})

	go func() {
		refreshRuns()
		ticker := time.NewTicker(*interval)
		defer ticker.Stop()
		for range ticker.C {
			refreshRuns()
			if selectedRunID != "" {
				refreshDetailsAsync(selectedRunID)
			}
		}
	}()

	if err := app.SetRoot(root, true).SetFocus(runsTable).Run(); err != nil {
		fmt.Fprintf(os.Stderr, "monitor failed: %v\n", err)
		os.Exit(1)
	}
}

func renderRunsTable(table *tview.Table, runs []sqlitestore.RunRecord, selectedID string) {
	table.Clear()
	headers := []string{"RUN", "PROJECT", "STATUS", "DAYS", "STARTED"}
	for i, h := range headers {
		table.SetCell(0, i, tview.NewTableCell(h).
			SetTextColor(tview.Styles.SecondaryTextColor).
			SetSelectable(false))
	}
	selectRow := 1
	for i, run := range runs {
		row := i + 1
		if run.ID == selectedID {
			selectRow = row
		}
		table.SetCell(row, 0, tview.NewTableCell(shortID(run.ID)))
		table.SetCell(row, 1, tview.NewTableCell(run.ProjectID))
		table.SetCell(row, 2, tview.NewTableCell(string(run.Status)).SetTextColor(statusColor(run.Status)))
		table.SetCell(row, 3, tview.NewTableCell(fmt.Sprintf("%d/%d", run.DaysUsed, run.TotalDays)))
		table.SetCell(row, 4, tview.NewTableCell(run.StartedAt.Local().Format("01-02 15:04:05")))
	}
	if len(runs) > 0 {
		table.Select(selectRow, 0)
	}
}

func renderSummary(rec sqlitestore.RunRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "run: %s\nproject: %s\nstatus: %s\ndays: %d/%d\n", rec.ID, rec.ProjectID, rec.Status, rec.DaysUsed, rec.TotalDays)
	if rec.Result != nil {
		completed := 0
		for _, t := range rec.Result.Tasks {
			if t.Status == domain.TaskStatusCompleted {
				completed++
			}
		}
		fmt.Fprintf(&b, "tasks: %d/%d completed\n", completed, len(rec.Result.Tasks))
		fmt.Fprintf(&b, "disruptions: %d (%d delay days)\n", rec.Result.Disruptions.Total, rec.Result.Disruptions.DelayDays)
	}
	return b.String()
}

func renderDays(days []domain.DayLog) string {
	if len(days) == 0 {
		return "no day logs yet"
	}
	var b strings.Builder
	for _, day := range days {
		fmt.Fprintf(&b, "[yellow]day %d[-] ready=%d assigned=%d done=%d pending=%d\n",
			day.Day, len(day.ReadyTaskIDs), len(day.Assignments), day.CompletedCount, day.PendingCount)
		for _, entry := range day.Entries {
			text := entry.Text
			if text == "" {
				text = "(no narrative)"
			}
			fmt.Fprintf(&b, "  %s -> %s %.0f%% %s\n", entry.AgentID, entry.TaskID, entry.Progress, text)
		}
		for _, warning := range day.Warnings {
			fmt.Fprintf(&b, "  [red]! %s[-]\n", warning)
		}
	}
	return b.String()
}

func renderDisruptions(events []domain.DisruptionEvent) string {
	if len(events) == 0 {
		return "no disruptions"
	}
	var b strings.Builder
	for _, ev := range events {
		fmt.Fprintf(&b, "day %d [%s/%s] %s (tasks: %s)\n",
			ev.Day, ev.Category, ev.Severity, ev.Description, strings.Join(ev.AffectedIDs, ", "))
	}
	return b.String()
}

func statusColor(status domain.RunStatus) tcell.Color {
	switch status {
	case domain.RunStatusCompleted:
		return tcell.ColorGreen
	case domain.RunStatusRunning:
		return tcell.ColorYellow
	case domain.RunStatusExhausted:
		return tcell.ColorOrange
	case domain.RunStatusAborted:
		return tcell.ColorRed
	default:
		return tview.Styles.PrimaryTextColor
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func waitHealth(c *client, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		err := c.health()
		if err == nil {
			return nil
		}
		lastErr = err
		time.Sleep(500 * time.Millisecond)
	}
	return lastErr
}

func (c *client) health() error {
	resp, err := c.http.Get(c.baseURL + "/healthz")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health status %d", resp.StatusCode)
	}
	return nil
}

func (c *client) listRuns(limit int) ([]sqlitestore.RunRecord, error) {
	var out []sqlitestore.RunRecord
	err := c.getJSON(fmt.Sprintf("/runs?limit=%d", limit), &out)
	return out, err
}

func (c *client) getRun(runID string) (sqlitestore.RunRecord, error) {
	var out sqlitestore.RunRecord
	err := c.getJSON("/runs/"+runID, &out)
	return out, err
}

func (c *client) listDays(runID string) ([]domain.DayLog, error) {
	var out []domain.DayLog
	err := c.getJSON("/runs/"+runID+"/days", &out)
	return out, err
}

func (c *client) listDisruptions(runID string) ([]domain.DisruptionEvent, error) {
	var out []domain.DisruptionEvent
	err := c.getJSON("/runs/"+runID+"/disruptions", &out)
	return out, err
}

func (c *client) startRun() (string, error) {
	resp, err := c.http.Post(c.baseURL+"/runs", "application/json", bytes.NewReader([]byte("{}")))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("start run status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var out struct {
		RunID string `json:"run_id"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", err
	}
	if out.RunID == "" {
		return "", errors.New("empty run id in response")
	}
	return out.RunID, nil
}

func (c *client) getJSON(path string, out any) error {
	resp, err := c.http.Get(c.baseURL + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("GET %s status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
