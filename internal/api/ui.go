package api

import (
	"context"
	"html/template"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"modbot/internal/modal"
)

// maxUIRows caps how many running workflows the index queries.
const maxUIRows = 100

type uiServer struct {
	s *Server
	t *template.Template
}

type uiSessionRow struct {
	Execution Execution
	Instance  modal.WorkflowInstance
}

type uiIndexData struct {
	Tab      string
	Subject  string
	Sessions []uiSessionRow
	Actions  []modal.ActionRecord
	Error    string
}

type uiDetailData struct {
	WorkflowID string
	RunID      string
	Instance   modal.WorkflowInstance
	Audit      []modal.AuditEvent
	Error      string
}

func registerUIRoutes(r chi.Router, s *Server) {
	t := template.Must(template.New("base").Funcs(template.FuncMap{
		"fmtTime": func(t time.Time) string {
			if t.IsZero() {
				return "-"
			}
			return t.UTC().Format("2006-01-02 15:04:05 MST")
		},
	}).Parse(uiTemplates))
	ui := &uiServer{s: s, t: t}

	r.Get("/ui", ui.handleIndex)
	r.Get("/ui/wf/{workflowId}", ui.handleDetail)
	r.Post("/ui/wf/{workflowId}/event", ui.handleEvent)
}

// handleIndex lists live conversational sessions or, on the modlog tab, a subject's history.
func (u *uiServer) handleIndex(w http.ResponseWriter, r *http.Request) {
	tab := r.URL.Query().Get("tab")
	if tab != "modlog" {
		tab = "sessions"
	}
	data := uiIndexData{Tab: tab, Subject: strings.TrimSpace(r.URL.Query().Get("subject"))}

	if tab == "modlog" {
		if data.Subject != "" {
			recs, err := u.s.Store.QueryActions(r.Context(), modal.ActionQuery{SubjectID: data.Subject})
			if err != nil {
				u.s.Logger.Error("ui mod log query failed", zap.Error(err))
				data.Error = "could not load the mod log"
			}
			data.Actions = recs
		}
		u.render(w, "index", data)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), listTimeout)
	defer cancel()
	execs, err := u.s.Engine.Running(ctx)
	if err != nil {
		u.s.Logger.Error("ui listing failed", zap.Error(err))
		data.Error = "could not list running workflows"
		u.render(w, "index", data)
		return
	}
	for _, ex := range execs {
		if len(data.Sessions) >= maxUIRows {
			break
		}
		inst, err := u.instance(r.Context(), ex.WorkflowID, ex.RunID)
		if err != nil {
			// Workflows without the instance query, such as the expiry loop, are skipped.
			continue
		}
		data.Sessions = append(data.Sessions, uiSessionRow{Execution: ex, Instance: inst})
	}
	u.render(w, "index", data)
}

func (u *uiServer) handleDetail(w http.ResponseWriter, r *http.Request) {
	wid := chi.URLParam(r, "workflowId")
	rid := r.URL.Query().Get("runId")
	data := uiDetailData{WorkflowID: wid, RunID: rid}

	inst, err := u.instance(r.Context(), wid, rid)
	if err != nil {
		data.Error = err.Error()
		u.render(w, "detail", data)
		return
	}
	data.Instance = inst

	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()
	data.Audit, _ = u.s.Engine.Audit(ctx, wid, rid)

	u.render(w, "detail", data)
}

// handleEvent posts a reply or choice on behalf of the initiator from the detail page form.
func (u *uiServer) handleEvent(w http.ResponseWriter, r *http.Request) {
	wid := chi.URLParam(r, "workflowId")
	rid := r.URL.Query().Get("runId")

	ev := modal.PromptEvent{
		Kind:      modal.EventMessage,
		AuthorID:  r.FormValue("authorId"),
		ChannelID: r.FormValue("channelId"),
		Content:   r.FormValue("content"),
	}
	if opt := r.FormValue("option"); opt != "" {
		ev.Kind, ev.Option = modal.EventChoice, opt
	}
	if raw := strings.TrimSpace(r.FormValue("attachment")); raw != "" {
		ev.Attachments = []string{raw}
	}
	if err := validateEvent(ev); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	ev.ReceivedAt = u.s.now().UTC()

	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()
	if err := u.s.Engine.Signal(ctx, wid, rid, ev); err != nil {
		u.s.Logger.Warn("ui signal failed", zap.String("workflow_id", wid), zap.Error(err))
		http.Error(w, "could not deliver the event", http.StatusBadGateway)
		return
	}
	http.Redirect(w, r, "/ui/wf/"+url.PathEscape(wid)+"?runId="+url.QueryEscape(rid), http.StatusSeeOther)
}

func (u *uiServer) instance(ctx context.Context, wid, rid string) (modal.WorkflowInstance, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	return u.s.Engine.Instance(ctx, wid, rid)
}

func (u *uiServer) render(w http.ResponseWriter, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := u.t.ExecuteTemplate(w, name, data); err != nil {
		u.s.Logger.Error("ui render failed", zap.String("template", name), zap.Error(err))
	}
}

const uiTemplates = `
{{define "index"}}
<!doctype html>
<html>
<head>
  <meta charset="utf-8"/>
  <title>modbot operator</title>
  <style>
    body { font-family: sans-serif; margin: 24px; }
    .tabs a { margin-right: 12px; }
    table { border-collapse: collapse; width: 100%; margin-top: 12px; }
    th, td { border: 1px solid #ddd; padding: 8px; text-align: left; }
    .err { color: #b00020; }
    .muted { color: #666; }
  </style>
</head>
<body>
  <h2>modbot operator</h2>

  <div class="tabs">
    <a href="/ui?tab=sessions">Sessions</a>
    <a href="/ui?tab=modlog">Mod log</a>
  </div>

  {{if .Error}}<p class="err">{{.Error}}</p>{{end}}

  {{if eq .Tab "sessions"}}
    <h3>Live sessions</h3>
    <p class="muted">Running workflows and the step each one is waiting on.</p>
    <table>
      <thead><tr><th>Workflow</th><th>Kind</th><th>Initiator</th><th>State</th><th>Deadline</th></tr></thead>
      <tbody>
      {{range .Sessions}}
        <tr>
          <td><a href="/ui/wf/{{.Execution.WorkflowID}}?runId={{.Execution.RunID}}">{{.Execution.WorkflowID}}</a></td>
          <td>{{.Instance.Kind}}</td>
          <td>{{.Instance.Initiator.Tag}} ({{.Instance.Initiator.ID}})</td>
          <td>{{.Instance.State}}</td>
          <td>{{fmtTime .Instance.DeadlineAt}}</td>
        </tr>
      {{else}}
        <tr><td colspan="5" class="muted">No live sessions.</td></tr>
      {{end}}
      </tbody>
    </table>
  {{else}}
    <h3>Mod log by user</h3>
    <form method="get" action="/ui">
      <input type="hidden" name="tab" value="modlog"/>
      <input name="subject" placeholder="user id" value="{{.Subject}}" style="width: 320px;"/>
      <button type="submit">Search</button>
    </form>

    {{if .Subject}}
      <table>
        <thead><tr><th>ID</th><th>Action</th><th>Moderator</th><th>Reason</th><th>Duration</th><th>Time</th></tr></thead>
        <tbody>
        {{range .Actions}}
          <tr>
            <td>{{.ActionID}}</td>
            <td>{{.Kind}}</td>
            <td>{{.ModeratorID}}</td>
            <td>{{.Reason}}</td>
            <td>{{with .DurationSpec}}{{.}}{{else}}N/A{{end}}</td>
            <td>{{fmtTime .CreatedAt}}</td>
          </tr>
        {{else}}
          <tr><td colspan="6" class="muted">No mod logs found for {{.Subject}}.</td></tr>
        {{end}}
        </tbody>
      </table>
    {{end}}
  {{end}}
</body>
</html>
{{end}}

{{define "detail"}}
<!doctype html>
<html>
<head>
  <meta charset="utf-8"/>
  <title>Workflow {{.WorkflowID}}</title>
  <style>
    body { font-family: sans-serif; margin: 24px; }
    .err { color: #b00020; }
    table { border-collapse: collapse; width: 100%; margin-top: 12px; }
    th, td { border: 1px solid #ddd; padding: 8px; text-align: left; }
  </style>
</head>
<body>
  <a href="/ui">← Back</a>
  <h2>Workflow {{.WorkflowID}}</h2>

  {{if .Error}}<p class="err">{{.Error}}</p>{{else}}
  <p><b>Run:</b> {{.RunID}}<br/>
     <b>Kind:</b> {{.Instance.Kind}}<br/>
     <b>Status:</b> {{.Instance.Status}} {{with .Instance.Reason}}({{.}}){{end}}<br/>
     <b>State:</b> {{.Instance.State}}<br/>
     <b>Deadline:</b> {{fmtTime .Instance.DeadlineAt}}</p>

  <h3>Collected steps</h3>
  <table>
    <tbody>
    {{range $name, $value := .Instance.Steps}}
      <tr><th>{{$name}}</th><td>{{$value}}</td></tr>
    {{end}}
    </tbody>
  </table>

  <h3>Reply as initiator</h3>
  <form method="post" action="/ui/wf/{{.WorkflowID}}/event?runId={{.RunID}}">
    <input type="hidden" name="authorId" value="{{.Instance.Initiator.ID}}"/>
    <input type="hidden" name="channelId" value="{{.Instance.ChannelID}}"/>
    <label>Message: <input name="content" style="width: 480px;"/></label><br/><br/>
    <label>Attachment URL: <input name="attachment" style="width: 480px;"/></label><br/><br/>
    <label>Button option: <input name="option" placeholder="confirm, deny, paypal, robux"/></label><br/><br/>
    <button type="submit">Send</button>
  </form>
  {{end}}

  <h3>Audit log</h3>
  <table>
    <thead><tr><th>Time</th><th>Kind</th><th>Message</th></tr></thead>
    <tbody>
      {{range .Audit}}
        <tr>
          <td>{{fmtTime .At}}</td>
          <td>{{.Kind}}</td>
          <td>{{.Message}}</td>
        </tr>
      {{end}}
    </tbody>
  </table>
</body>
</html>
{{end}}
`
