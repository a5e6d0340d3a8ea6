package mapview

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/mapmark/mapmark/internal/annotation"
)

var popupTmpl = template.Must(template.New("popup").Parse(`<div class="marker-popup">
<b>{{.Name}}</b>
<p>{{.Description}}</p>
<p>Annotated by: {{.Person}}</p>
{{- if .Image}}
<img src="{{.Image}}" style="max-width: 200px; max-height: 200px;">
{{- end}}
{{- if .Video}}
<video src="{{.Video}}" controls style="max-width: 200px; max-height: 200px;"></video>
{{- end}}
<button data-action="delete">Delete</button>
</div>`))

// RenderPopup returns the escaped popup content for a record.
func RenderPopup(a annotation.Annotation) (string, error) {
	var buf bytes.Buffer
	if err := popupTmpl.Execute(&buf, a); err != nil {
		return "", fmt.Errorf("render popup for %s: %w", a.ID, err)
	}
	return buf.String(), nil
}
