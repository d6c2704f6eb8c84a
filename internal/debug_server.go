package internal

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net"
	"net/http"
	"secure-chat/domain"
	"secure-chat/repositories"
	"time"

	"github.com/samber/lo"
)

const auditPage = `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>secure-chat audit</title></head>
<body>
<h1>Session audit</h1>
{{if .Stats}}<p>{{range $k, $v := .Stats}}{{$k}}: {{$v}} {{end}}</p>{{end}}
<table>
<tr><th>At</th><th>Type</th><th>Username</th><th>Identity</th><th>Remote</th><th>Reason</th><th>Conn</th></tr>
{{range .Rows}}<tr><td>{{.At}}</td><td>{{.Type}}</td><td>{{.Username}}</td><td>{{.Identity}}</td><td>{{.Remote}}</td><td>{{.Reason}}</td><td>{{.ConnID}}</td></tr>
{{end}}</table>
{{if .Next}}<a href="?cursor={{.Next}}">older</a>{{end}}
</body>
</html>`

var auditTemplate = template.Must(template.New("audit").Parse(auditPage))

type AuditRow struct {
	At       string
	Type     string
	Username string
	Identity string
	Remote   string
	Reason   string
	ConnID   string
}

type StatsProvider func() map[string]any

type PageData struct {
	Rows  []AuditRow
	Next  string
	Stats map[string]any
}

// DebugServer serves the audit log as an HTML page. Only started at debug level.
// repository may be nil when audit storage is disabled, stats may be nil.
type DebugServer struct {
	log        *slog.Logger
	repository repositories.IAuditRepository
	stats      StatsProvider
	server     *http.Server
}

func NewDebugServer(log *slog.Logger, repository repositories.IAuditRepository, stats StatsProvider) *DebugServer {
	d := &DebugServer{log: log, repository: repository, stats: stats}
	d.server = &http.Server{Handler: d.Handler(), ReadHeaderTimeout: 5 * time.Second}
	return d
}

func (d *DebugServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/audit", d.audit)
	return mux
}

func (d *DebugServer) audit(w http.ResponseWriter, r *http.Request) {
	var data PageData
	if d.stats != nil {
		data.Stats = d.stats()
	}
	if d.repository != nil {
		var cursor *string
		if c := r.URL.Query().Get("cursor"); c != "" {
			cursor = &c
		}
		events, next, err := d.repository.List(cursor)
		if err != nil {
			d.log.Error("Audit listing failed", "error", err)
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		data.Rows = lo.Map(events, func(e domain.SessionEvent, _ int) AuditRow { return toAuditRow(e) })
		if next != nil && len(events) > 0 {
			data.Next = *next
		}
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := auditTemplate.Execute(w, data); err != nil {
		d.log.Error("Audit page rendering failed", "error", err)
	}
}

// Start listens on port and serves in the background.
func (d *DebugServer) Start(port int) error {
	listener, err := net.Listen("tcp", fmt.Sprintf("localhost:%d", port))
	if err != nil {
		return err
	}
	d.log.Debug(fmt.Sprintf("Audit page on http://%s/audit", listener.Addr()))
	go func() {
		if err := d.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			d.log.Error("Debug server stopped", "error", err)
		}
	}()
	return nil
}

func (d *DebugServer) Stop(ctx context.Context) error {
	return d.server.Shutdown(ctx)
}

func toAuditRow(e domain.SessionEvent) AuditRow {
	return AuditRow{
		At:       e.At.Format(time.DateTime),
		Type:     string(e.Type),
		Username: lo.CoalesceOrEmpty(e.Username.String(), "-"),
		Identity: lo.CoalesceOrEmpty(e.Identity, "-"),
		Remote:   e.RemoteAddr,
		Reason:   lo.CoalesceOrEmpty(e.Reason, "-"),
		ConnID:   lo.Substring(e.ConnID, 0, 8),
	}
}
