package auth

import (
	"html/template"

	"github.com/Masterminds/sprig/v3"
)

const callbackPages = `
{{- define "success" -}}
<!DOCTYPE html>
<html>
<head><title>{{ .Title }}</title></head>
<body style="font-family: sans-serif; text-align: center; padding-top: 3em;">
<h1 style="color: #2e844a;">{{ .Title }}</h1>
<p>You can close this window and return to the terminal.</p>
</body>
</html>
{{- end -}}
{{- define "completed" -}}
<!DOCTYPE html>
<html>
<head><title>{{ .Title }}</title></head>
<body style="font-family: sans-serif; text-align: center; padding-top: 3em;">
<h1>{{ .Title }}</h1>
<p>This login was already handled. Return to the terminal.</p>
</body>
</html>
{{- end -}}
{{- define "failure" -}}
<!DOCTYPE html>
<html>
<head><title>{{ .Title }}</title></head>
<body style="font-family: sans-serif; text-align: center; padding-top: 3em;">
<h1 style="color: #ba0517;">{{ .Title }}</h1>
<p>{{ .Message | trunc 500 | default "Unknown error" }}</p>
<p>Return to the terminal for details.</p>
</body>
</html>
{{- end -}}
`

func callbackTemplates() *template.Template {
	return template.Must(template.New("callback").Funcs(sprig.HtmlFuncMap()).Parse(callbackPages))
}
