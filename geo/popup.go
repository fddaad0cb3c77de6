package geo

import (
	"bytes"
	"html/template"
)

const (
	canalHeaderColor  = "#1E3A8A"
	parcelHeaderColor = "#E67E22"
)

type popupRow struct {
	Label string
	Value string
}

type popupData struct {
	Header string
	Color  template.CSS
	Rows   []popupRow
}

var featurePopup = template.Must(template.New("feature-popup").Parse(
	`<div style="width:180px;">` +
		`<div style="background:{{.Color}}; color:white; padding:5px; text-align:center; font-weight:bold;">{{.Header}}</div>` +
		`<table style="width:100%; font-size:11px; margin-top:5px;">` +
		`{{range .Rows}}<tr><td><b>{{.Label}}:</b></td><td style="text-align:right;">{{.Value}}</td></tr>{{end}}` +
		`</table></div>`))

func renderPopup(tmpl *template.Template, data popupData) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
