// Package report turns derived metrics and the execution log into ready-to-send
// messages: Liquid HTML bodies, PNG charts and xlsx action sheets.
package report

import (
	"fmt"
	"image/color"
	"strings"
	"time"

	"github.com/ignite/punchlist-monitor/internal/config"
	"github.com/ignite/punchlist-monitor/internal/domain"
	"github.com/ignite/punchlist-monitor/internal/execlog"
	"github.com/ignite/punchlist-monitor/internal/metrics"
	"github.com/ignite/punchlist-monitor/internal/spreadsheet"
)

// Attachment names of the action sheets.
const (
	RoleCheckFile      = "Operation to check.xlsx"
	SecondaryCheckFile = "ESUP to check.xlsx"
	ClosureCheckFile   = "Closure to check.xlsx"
)

const (
	pngType = "image/png"
	// closureDays caps the daily closures chart.
	closureDays = 30
)

// Renderer builds the outgoing messages of a cycle.
type Renderer struct {
	tpl   *TemplateService
	mail  config.MailConfig
	rules config.MetricsConfig
}

// NewRenderer creates a renderer for the given mail settings and rules.
func NewRenderer(mail config.MailConfig, rules config.MetricsConfig) *Renderer {
	return &Renderer{tpl: NewTemplateService(), mail: mail, rules: rules}
}

func dateBR(t time.Time) string { return t.Format("02/01/2006") }

func counts(cs []metrics.Count) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(cs))
	for _, c := range cs {
		out = append(out, map[string]interface{}{"key": c.Key, "count": c.Count})
	}
	return out
}

func bars(cs []metrics.Count) []Bar {
	out := make([]Bar, 0, len(cs))
	for _, c := range cs {
		label := c.Key
		if label == "" {
			label = "Sem disciplina"
		}
		out = append(out, Bar{Label: label, Value: c.Count})
	}
	return out
}

// Indicator is one row of the figures table of the main report.
type Indicator struct {
	Label string
	Value int
}

// Indicators returns the labelled figures of the main report table.
func Indicators(d *metrics.Derived) []Indicator {
	return []Indicator{
		{"Itens Pendentes de Resposta da Operação", d.AwaitingRoleReply.Len()},
		{"Itens com Prazo de Operação Vencido", d.RoleOverdue.Len()},
		{"Itens com Prazo ESUP Vencido", d.SecondaryOverdue.Len()},
		{"Overdue ESUP com Dependência da Operação", d.SecondaryDependent},
		{"Overdue ESUP sem Dependência da Operação", d.SecondaryIndependent},
		{"Itens Mandatórios Avaliados pela Operação", d.RoleAnsweredTotal},
		{"Itens de Engenharia Avaliados pela Operação", d.EngineeringAnsweredByRole},
	}
}

// Main renders the status report of the primary list with the dashboard,
// the daily closures chart and the action sheets attached.
func (r *Renderer) Main(list string, d *metrics.Derived) (domain.EmailMessage, error) {
	indicators := make([]map[string]interface{}, 0, 7)
	for _, i := range Indicators(d) {
		indicators = append(indicators, map[string]interface{}{"label": i.Label, "value": i.Value})
	}

	body, err := r.tpl.Render(TemplateMain, map[string]interface{}{
		"project":              r.mail.Project,
		"mention":              r.mail.Mention,
		"signature":            r.mail.Signature,
		"pending":              d.PendingCount,
		"pending_status":       r.rules.PendingStatus,
		"disciplines":          counts(d.DisciplineCounts),
		"mentions":             d.MentionLine(),
		"role_check":           d.RoleCheck.Len(),
		"role_check_file":      RoleCheckFile,
		"secondary_check":      d.SecondaryCheck.Len(),
		"secondary_check_file": SecondaryCheckFile,
		"indicators":           indicators,
	})
	if err != nil {
		return domain.EmailMessage{}, err
	}

	msg := domain.EmailMessage{
		To:          r.mail.To,
		Subject:     fmt.Sprintf("Status Report: Punch List %s - %s", list, dateBR(d.Now)),
		HTMLContent: body,
	}

	dash, err := Dashboard(list, d.TotalRows, d.PendingCount, d.DisciplineCounts)
	if err != nil {
		return domain.EmailMessage{}, err
	}
	msg.Attachments = append(msg.Attachments, domain.Attachment{
		Filename: fileSafe("Dashboard "+list) + ".png", ContentType: pngType, Data: dash,
	})

	if len(d.DailyClosures) > 0 {
		chart, err := ClosuresChart(d.DailyClosures)
		if err != nil {
			return domain.EmailMessage{}, err
		}
		msg.Attachments = append(msg.Attachments, domain.Attachment{
			Filename: "Fechamentos diarios.png", ContentType: pngType, Data: chart,
		})
	}

	for _, sheet := range []struct {
		name  string
		table *domain.Table
	}{
		{RoleCheckFile, d.RoleCheck},
		{SecondaryCheckFile, d.SecondaryCheck},
	} {
		if sheet.table.Len() == 0 {
			continue
		}
		a, err := sheetAttachment(sheet.name, sheet.table)
		if err != nil {
			return domain.EmailMessage{}, err
		}
		msg.Attachments = append(msg.Attachments, a)
	}
	return msg, nil
}

// Closure renders the high-priority closure request. ok is false when no
// item awaits closure.
func (r *Renderer) Closure(d *metrics.Derived) (msg domain.EmailMessage, ok bool, err error) {
	n := d.ClosureCheck.Len()
	if n == 0 {
		return domain.EmailMessage{}, false, nil
	}
	body, err := r.tpl.Render(TemplateClosure, map[string]interface{}{
		"addressee": r.mail.ClosureAddressee,
		"count":     n,
		"file":      ClosureCheckFile,
		"signature": r.mail.Signature,
	})
	if err != nil {
		return domain.EmailMessage{}, false, err
	}
	a, err := sheetAttachment(ClosureCheckFile, d.ClosureCheck)
	if err != nil {
		return domain.EmailMessage{}, false, err
	}
	to := r.mail.ClosureRecipients
	if len(to) == 0 {
		to = r.mail.To
	}
	return domain.EmailMessage{
		To:           to,
		BCC:          r.mail.ClosureBCC,
		Subject:      fmt.Sprintf("Action Required: %d Punch List Items for Closure - %s", n, dateBR(d.Now)),
		HTMLContent:  body,
		Attachments:  []domain.Attachment{a},
		HighPriority: true,
	}, true, nil
}

// Secondary renders the report of a secondary list. ok is false when the
// list has nothing pending.
func (r *Renderer) Secondary(s *metrics.Secondary, now time.Time) (msg domain.EmailMessage, ok bool, err error) {
	if s.PendingCount == 0 {
		return domain.EmailMessage{}, false, nil
	}
	body, err := r.tpl.Render(TemplateSecondary, map[string]interface{}{
		"list":           s.List,
		"mention":        r.mail.Mention,
		"signature":      r.mail.Signature,
		"pending":        s.PendingCount,
		"total":          s.TotalRows,
		"pending_status": r.rules.SecondaryPending,
		"disciplines":    counts(s.DisciplineCounts),
	})
	if err != nil {
		return domain.EmailMessage{}, false, err
	}
	chart, err := SecondaryChart(s)
	if err != nil {
		return domain.EmailMessage{}, false, err
	}
	return domain.EmailMessage{
		To:          r.mail.To,
		Subject:     fmt.Sprintf("Status Report: Punch List %s - %s", s.List, dateBR(now)),
		HTMLContent: body,
		Attachments: []domain.Attachment{{
			Filename: fileSafe("Status "+s.List) + ".png", ContentType: pngType, Data: chart,
		}},
	}, true, nil
}

// Log renders the execution log mail of a cycle.
func (r *Renderer) Log(entries []execlog.Entry, success bool, finished time.Time) (domain.EmailMessage, error) {
	status := "SUCESSO"
	if !success {
		status = "FALHA"
	}
	lines := make([]map[string]interface{}, 0, len(entries))
	text := make([]string, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, map[string]interface{}{
			"time":    e.Time.Format("15:04:05"),
			"level":   string(e.Level),
			"message": e.Message,
		})
		text = append(text, e.Line())
	}
	body, err := r.tpl.Render(TemplateLog, map[string]interface{}{
		"status":   status,
		"success":  success,
		"finished": finished.Format("02/01/2006 15:04"),
		"entries":  lines,
	})
	if err != nil {
		return domain.EmailMessage{}, err
	}
	return domain.EmailMessage{
		To:          r.mail.To,
		Subject:     fmt.Sprintf("Log de Execução (%s) - Automação Punch List - %s", status, finished.Format("02/01/2006 15:04")),
		HTMLContent: body,
		TextContent: strings.Join(text, "\n"),
	}, nil
}

// Dashboard draws total against pending next to the pending items per
// discipline.
func Dashboard(list string, total, pending int, disciplines []metrics.Count) ([]byte, error) {
	return Figure{
		Title:   "Dashboard Punch List " + list,
		Width:   1200,
		Height:  640,
		Weights: []int{1, 2},
		Panels: []BarChart{
			{
				Title:  "Total x Pendentes",
				Bars:   []Bar{{"Total", total}, {"Pendentes", pending}},
				Colors: []color.RGBA{colorPrimary, colorHighlight},
			},
			{
				Title:      "Pendentes por Disciplina",
				Bars:       bars(disciplines),
				Horizontal: true,
				Colors:     palette(len(disciplines), colorPrimary, colorHighlight),
				Empty:      "Nenhum item pendente",
			},
		},
	}.PNG()
}

// ClosuresChart draws the items cleared per day, limited to the last days.
func ClosuresChart(series []metrics.DailyCount) ([]byte, error) {
	if len(series) > closureDays {
		series = series[len(series)-closureDays:]
	}
	b := make([]Bar, 0, len(series))
	for _, d := range series {
		b = append(b, Bar{Label: d.Date.Format("02/01"), Value: d.Count})
	}
	return Figure{
		Title:  "Itens Avaliados pela Operação por Dia",
		Width:  1200,
		Height: 480,
		Panels: []BarChart{{Title: "Fechamentos diários", Bars: b, Colors: []color.RGBA{colorClosures}}},
	}.PNG()
}

// SecondaryChart draws total against pending and the pending items per
// discipline of a secondary list.
func SecondaryChart(s *metrics.Secondary) ([]byte, error) {
	return Figure{
		Title:   "Status Punch List " + s.List,
		Width:   1100,
		Height:  560,
		Weights: []int{1, 2},
		Panels: []BarChart{
			{
				Title:  "Total x Pendentes",
				Bars:   []Bar{{"Total", s.TotalRows}, {"Pendentes", s.PendingCount}},
				Colors: []color.RGBA{colorVendors, colorVendorsHi},
			},
			{
				Title:      "Pendentes por Disciplina",
				Bars:       bars(s.DisciplineCounts),
				Horizontal: true,
				Colors:     []color.RGBA{colorVendors},
			},
		},
	}.PNG()
}

func sheetAttachment(name string, table *domain.Table) (domain.Attachment, error) {
	data, err := spreadsheet.Render(table)
	if err != nil {
		return domain.Attachment{}, fmt.Errorf("building %s: %w", name, err)
	}
	return domain.Attachment{Filename: name, ContentType: spreadsheet.ContentType, Data: data}, nil
}

// fileSafe replaces characters that are not allowed in attachment names.
func fileSafe(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, s)
}
