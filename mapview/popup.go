package mapview

import (
	"bytes"
	"html/template"

	"github.com/consorcio-sanramon/aforo-live/store"
)

var stationPopup = template.Must(template.New("station-popup").Parse(
	`<div style="width:200px;">` +
		`<div style="background:#1E3A8A; color:white; padding:5px; text-align:center; font-weight:bold;">{{.Name}}</div>` +
		`<table style="width:100%; font-size:11px; margin-top:5px;">` +
		`{{range .Readings}}<tr><td>{{.Date}}</td><td>{{.Clock}}</td><td style="text-align:right;"><b>{{.Flow}} l/s</b></td></tr>{{end}}` +
		`</table></div>`))

func renderStationPopup(name string, readings []store.Reading) (string, error) {
	var buf bytes.Buffer
	err := stationPopup.Execute(&buf, struct {
		Name     string
		Readings []store.Reading
	}{name, readings})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}
