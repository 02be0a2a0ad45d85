// Package pipeline runs one monitoring cycle: authenticate, extract every
// list, persist the artifacts and, on report cycles, derive the metrics and
// mail the reports. The execution log mail closes every cycle.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/punchlist-monitor/internal/browser"
	"github.com/ignite/punchlist-monitor/internal/config"
	"github.com/ignite/punchlist-monitor/internal/domain"
	"github.com/ignite/punchlist-monitor/internal/execlog"
	"github.com/ignite/punchlist-monitor/internal/metrics"
	"github.com/ignite/punchlist-monitor/internal/notify"
	"github.com/ignite/punchlist-monitor/internal/pkg/logger"
	"github.com/ignite/punchlist-monitor/internal/punch"
	"github.com/ignite/punchlist-monitor/internal/report"
	"github.com/ignite/punchlist-monitor/internal/sharepoint"
	"github.com/ignite/punchlist-monitor/internal/spreadsheet"
)

// ErrNoCookies is returned when the browser produced an empty session.
var ErrNoCookies = errors.New("pipeline: authenticated session has no cookies")

// APIFactory builds a list client from the cycle's credentials.
type APIFactory func(creds domain.Credentials) (sharepoint.API, error)

// ArtifactWriter persists a table to every destination.
type ArtifactWriter interface {
	Write(ctx context.Context, table *domain.Table, destinations []string, filename string) []domain.PathOutcome
}

// ArtifactReader loads a persisted table.
type ArtifactReader interface {
	Read(ctx context.Context, name, filename string) (*domain.Table, error)
}

// Options tune one cycle.
type Options struct {
	// SendClosure enables the closure-action mail on report cycles.
	SendClosure bool
	// Notices are logged as AVISO lines at the start of the cycle.
	Notices []string
}

// Runner executes cycles. It is not safe for concurrent use; the scheduler
// guarantees a single cycle at a time.
type Runner struct {
	cfg      *config.Config
	auth     browser.Authenticator
	newAPI   APIFactory
	writer   ArtifactWriter
	reader   ArtifactReader
	renderer *report.Renderer
	sender   notify.Sender
	log      *execlog.Log
	now      func() time.Time
	onState  func(domain.CycleState)
}

// Deps are the collaborators of a Runner.
type Deps struct {
	Auth   browser.Authenticator
	NewAPI APIFactory
	Writer ArtifactWriter
	Reader ArtifactReader
	Sender notify.Sender
	Log    *execlog.Log
	Now    func() time.Time
}

// NewRunner creates a runner.
func NewRunner(cfg *config.Config, deps Deps) *Runner {
	r := &Runner{
		cfg:      cfg,
		auth:     deps.Auth,
		newAPI:   deps.NewAPI,
		writer:   deps.Writer,
		reader:   deps.Reader,
		renderer: report.NewRenderer(cfg.Mail, cfg.Metrics),
		sender:   deps.Sender,
		log:      deps.Log,
		now:      deps.Now,
		onState:  func(domain.CycleState) {},
	}
	if r.log == nil {
		r.log = execlog.New()
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r
}

// OnState registers a callback invoked on every state transition.
func (r *Runner) OnState(fn func(domain.CycleState)) {
	if fn != nil {
		r.onState = fn
	}
}

// Log returns the execution log of the current or last cycle.
func (r *Runner) Log() *execlog.Log { return r.log }

func (r *Runner) enter(res *domain.CycleResult, state domain.CycleState) {
	res.State = state
	r.onState(state)
}

// Run executes one cycle of the given kind. Failures are recorded in the
// result and the execution log; Run itself never fails.
func (r *Runner) Run(ctx context.Context, kind domain.CycleKind, opts Options) domain.CycleResult {
	res := domain.CycleResult{RunID: uuid.NewString(), Kind: kind, StartedAt: r.now()}
	r.log.Reset()
	r.log.Info("Iniciando ciclo de %s (%s)...", kindLabel(kind), res.RunID)
	for _, n := range opts.Notices {
		r.log.Warn("%s", n)
	}

	r.enter(&res, domain.StateAuthenticating)
	api, err := r.authenticate(ctx)
	if err != nil {
		r.log.Error("Falha na autenticação: %v", err)
		res.Error = err.Error()
		r.enter(&res, domain.StateFailed)
		return r.finish(ctx, res)
	}

	r.enter(&res, domain.StateExtracting)
	extractor := sharepoint.NewExtractor(api, r.cfg.SharePoint.DirectoryBatchSize)
	for _, list := range r.cfg.Lists {
		if ctx.Err() != nil {
			r.log.Error("Ciclo interrompido: %v", ctx.Err())
			res.Error = ctx.Err().Error()
			break
		}
		res.Lists = append(res.Lists, r.extractList(ctx, extractor, list))
	}

	if kind == domain.CycleReport && ctx.Err() == nil {
		r.enter(&res, domain.StateReporting)
		r.report(ctx, opts)
	}
	return r.finish(ctx, res)
}

func (r *Runner) authenticate(ctx context.Context) (sharepoint.API, error) {
	creds, err := r.auth.Authenticate(ctx)
	if err != nil {
		return nil, err
	}
	if creds.Empty() {
		return nil, ErrNoCookies
	}
	r.log.Info("Sessão autenticada (%d cookies).", len(creds.Cookies))
	return r.newAPI(creds)
}

func (r *Runner) finish(ctx context.Context, res domain.CycleResult) domain.CycleResult {
	res.Success = !r.log.Failed()
	if res.Success {
		r.log.Success("Ciclo concluído.")
	} else {
		r.log.Warn("Ciclo concluído com falhas.")
	}
	res.FinishedAt = r.now()

	// The log mail goes out even when the cycle context was canceled.
	mctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.Mail.Timeout()+5*time.Second)
	defer cancel()
	msg, err := r.renderer.Log(r.log.Entries(), res.Success, res.FinishedAt)
	if err == nil {
		_, err = r.sender.Send(mctx, msg)
	}
	if err != nil {
		logger.Error("pipeline: log mail failed", "run_id", res.RunID, "error", err)
	}

	logger.Info("pipeline: cycle finished",
		"run_id", res.RunID,
		"kind", string(res.Kind),
		"success", res.Success,
		"duration", res.Duration())
	return res
}

// extractList handles one list end to end. Its failures stay inside the
// outcome; the previous artifact is left untouched.
func (r *Runner) extractList(ctx context.Context, ex *sharepoint.Extractor, list config.ListConfig) domain.ListOutcome {
	out := domain.ListOutcome{List: list.Name}
	if !list.Configured() {
		r.log.Warn("Lista '%s' ignorada: nome de API não configurado.", list.Name)
		out.Skipped = true
		return out
	}

	r.log.Info("--- Iniciando processamento da lista: %s ---", list.Name)
	ext, err := ex.Extract(ctx, list.APIName, list.Columns)
	if err != nil {
		var f *sharepoint.Failure
		if errors.As(err, &f) && f.Reason == sharepoint.ReasonSchemaUnavailable {
			r.log.Error("Falha ao obter schema para '%s': %v", list.Name, err)
		} else {
			r.log.Error("Falha ao extrair dados de '%s': %v", list.Name, err)
		}
		out.Error = err.Error()
		return out
	}
	out.Mode = string(ext.Mode)

	if ext.Mode == sharepoint.ModeFallback {
		r.log.Warn("Consulta expandida rejeitada para '%s'; usando consulta base com resolução de usuários.", list.Name)
		if ext.Partial() {
			r.log.Warn("Resolução parcial em '%s': %d de %d IDs resolvidos.", list.Name, ext.Resolved, ext.Requested)
		}
	}

	table, missing := punch.Normalize(list.Name, ext.Rows, ext.Schema, list.Columns)
	if len(missing) > 0 {
		r.log.Warn("Colunas não encontradas em '%s': %s", list.Name, strings.Join(missing, ", "))
	}
	out.Rows = table.Len()
	if table.Len() == 0 {
		r.log.Warn("Lista '%s' não retornou itens; planilha gravada apenas com cabeçalhos.", list.Name)
	} else {
		r.log.Info("%d itens extraídos de '%s'.", table.Len(), list.Name)
	}

	out.Destinations = r.writer.Write(ctx, table, r.cfg.Destinations, list.OutputFile)
	for _, d := range out.Destinations {
		switch {
		case d.OK:
			r.log.Success("Arquivo salvo: %s", d.Path)
		case d.Locked:
			r.log.Error("Arquivo bloqueado (aberto em outro programa?): %s", d.Path)
		default:
			r.log.Error("Falha ao salvar %s: %s", d.Path, d.Error)
		}
	}
	return out
}

// report derives the metrics from the persisted artifacts and mails them.
func (r *Runner) report(ctx context.Context, opts Options) {
	now := r.now()
	r.log.Info("Gerando relatórios...")

	if primary, ok := r.cfg.PrimaryList(); ok && primary.Configured() {
		r.reportPrimary(ctx, primary, opts, now)
	}

	for _, list := range r.cfg.Lists {
		if list.Role != config.RoleSecondary || !list.Configured() {
			continue
		}
		r.reportSecondary(ctx, list, now)
	}
}

func (r *Runner) reportPrimary(ctx context.Context, list config.ListConfig, opts Options, now time.Time) {
	table, err := r.reader.Read(ctx, list.Name, list.OutputFile)
	if err != nil {
		r.log.Error("Não foi possível ler a planilha de '%s': %v", list.Name, err)
		return
	}

	lookup := r.loadLookup()
	d, err := metrics.Compute(table, lookup, r.cfg.Metrics, now)
	if err != nil {
		r.log.Error("Falha ao calcular indicadores de '%s': %v", list.Name, err)
		return
	}
	r.log.Info("Indicadores de '%s': %d itens, %d pendentes.", list.Name, d.TotalRows, d.PendingCount)

	msg, err := r.renderer.Main(list.Name, d)
	if err != nil {
		r.log.Error("Falha ao montar o relatório de '%s': %v", list.Name, err)
		return
	}
	r.send(ctx, msg, fmt.Sprintf("Relatório de '%s'", list.Name))

	if !opts.SendClosure {
		return
	}
	closure, ok, err := r.renderer.Closure(d)
	switch {
	case err != nil:
		r.log.Error("Falha ao montar o e-mail de fechamento: %v", err)
	case !ok:
		r.log.Info("Nenhum item aguardando fechamento.")
	default:
		r.send(ctx, closure, fmt.Sprintf("E-mail de fechamento (%d itens)", d.ClosureCheck.Len()))
	}
}

func (r *Runner) reportSecondary(ctx context.Context, list config.ListConfig, now time.Time) {
	table, err := r.reader.Read(ctx, list.Name, list.OutputFile)
	if err != nil {
		r.log.Error("Não foi possível ler a planilha de '%s': %v", list.Name, err)
		return
	}
	s, err := metrics.ComputeSecondary(table, r.cfg.Metrics)
	if err != nil {
		r.log.Error("Falha ao calcular indicadores de '%s': %v", list.Name, err)
		return
	}
	msg, ok, err := r.renderer.Secondary(s, now)
	switch {
	case err != nil:
		r.log.Error("Falha ao montar o relatório de '%s': %v", list.Name, err)
	case !ok:
		r.log.Info("Nenhum item pendente em '%s'; relatório não enviado.", list.Name)
	default:
		r.send(ctx, msg, fmt.Sprintf("Relatório de '%s'", list.Name))
	}
}

// loadLookup reads the discipline table. Without it the report has no
// mentions but is still sent.
func (r *Runner) loadLookup() *domain.Table {
	if r.cfg.LookupPath == "" {
		return nil
	}
	lookup, err := spreadsheet.ReadFile("lookup", r.cfg.LookupPath)
	if err != nil {
		r.log.Warn("Tabela de responsáveis indisponível (%v); menções omitidas.", err)
		return nil
	}
	return lookup
}

func (r *Runner) send(ctx context.Context, msg domain.EmailMessage, what string) {
	if _, err := r.sender.Send(ctx, msg); err != nil {
		r.log.Error("%s não enviado: %v", what, err)
		return
	}
	r.log.Success("%s enviado.", what)
}

func kindLabel(k domain.CycleKind) string {
	if k == domain.CycleReport {
		return "extração e relatórios"
	}
	return "extração"
}
