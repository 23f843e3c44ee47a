package invoice

import (
	"bytes"
	htmltemplate "html/template"
	"text/template"
	"time"

	"github.com/sadopc/dwell/internal/billing"
	"github.com/sadopc/dwell/internal/store"
)

// LineItem is one billed detention event.
type LineItem struct {
	EventID          int64
	Facility         string
	LoadNumber       string
	EventType        string
	Arrival          time.Time
	Departure        time.Time
	DwellSeconds     int64
	GracePeriod      int64
	DetentionMinutes int64
	Rate             float64
	Amount           float64
}

// Document is a rendered invoice.
type Document struct {
	Invoice      store.Invoice
	Broker       *store.Broker
	CompanyName  string
	CompanyEmail string
	DriverName   string
	TruckNumber  string
	Items        []LineItem

	Subject string
	Text    string
	HTML    string
}

var funcs = map[string]any{
	"money":   billing.FormatCurrency,
	"clock":   billing.FormatTime,
	"minutes": billing.FormatMinutes,
	"date":    func(t time.Time) string { return t.UTC().Format("2006-01-02") },
	"stamp":   func(t time.Time) string { return t.UTC().Format("2006-01-02 15:04 MST") },
}

var textTmpl = template.Must(template.New("invoice.txt").Funcs(funcs).Parse(invoiceText))

var htmlTmpl = htmltemplate.Must(htmltemplate.New("invoice.html").Funcs(funcs).Parse(invoiceHTML))

const invoiceText = `{{if .CompanyName}}{{.CompanyName}}
{{end}}{{if .CompanyEmail}}{{.CompanyEmail}}
{{end}}
DETENTION INVOICE {{.Invoice.Number}}
Issued: {{date .Invoice.CreatedAt}}    Due: {{date .Invoice.DueDate}}
{{if .Broker}}Bill to: {{.Broker.Name}}
{{end}}{{if .DriverName}}Driver: {{.DriverName}}{{if .TruckNumber}}  Truck: {{.TruckNumber}}{{end}}
{{end}}
{{range .Items}}- {{.Facility}}{{if .LoadNumber}} / load {{.LoadNumber}}{{end}} ({{.EventType}})
  Arrived {{stamp .Arrival}}, departed {{stamp .Departure}}
  Dwell {{clock .DwellSeconds}}, free time {{minutes .GracePeriod}}, detention {{minutes .DetentionMinutes}} @ {{money .Rate}}/h = {{money .Amount}}
{{end}}
TOTAL DUE: {{money .Invoice.TotalAmount}}
`

const invoiceHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Invoice {{.Invoice.Number}}</title>
<style>
body { font-family: sans-serif; max-width: 760px; margin: 2em auto; padding: 0 1em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
td.num, th.num { text-align: right; }
.total { font-size: 1.2em; font-weight: bold; text-align: right; }
</style>
</head>
<body>
{{if .CompanyName}}<h2>{{.CompanyName}}</h2>{{end}}
<h1>Detention invoice {{.Invoice.Number}}</h1>
<p>Issued {{date .Invoice.CreatedAt}}, due {{date .Invoice.DueDate}}{{if .Broker}}<br>Bill to: {{.Broker.Name}}{{end}}</p>
{{if .DriverName}}<p>Driver: {{.DriverName}}{{if .TruckNumber}}, truck {{.TruckNumber}}{{end}}</p>{{end}}
<table>
<tr><th>Facility</th><th>Load</th><th>Arrival</th><th>Departure</th><th class="num">Dwell</th><th class="num">Detention</th><th class="num">Rate</th><th class="num">Amount</th></tr>
{{range .Items}}<tr><td>{{.Facility}}</td><td>{{.LoadNumber}}</td><td>{{stamp .Arrival}}</td><td>{{stamp .Departure}}</td><td class="num">{{clock .DwellSeconds}}</td><td class="num">{{minutes .DetentionMinutes}}</td><td class="num">{{money .Rate}}</td><td class="num">{{money .Amount}}</td></tr>
{{end}}</table>
<p class="total">Total due: {{money .Invoice.TotalAmount}}</p>
</body>
</html>
`

// render fills doc.Subject, doc.Text and doc.HTML.
func render(doc *Document) error {
	var text, html bytes.Buffer
	if err := textTmpl.Execute(&text, doc); err != nil {
		return err
	}
	if err := htmlTmpl.Execute(&html, doc); err != nil {
		return err
	}
	doc.Subject = "Detention invoice " + doc.Invoice.Number
	if doc.CompanyName != "" {
		doc.Subject += " from " + doc.CompanyName
	}
	doc.Text = text.String()
	doc.HTML = html.String()
	return nil
}
