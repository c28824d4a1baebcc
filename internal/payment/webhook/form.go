package webhook

import (
	"html/template"
	"net/http"

	"finna-payment/internal/payment"
)

var autoSubmitForm = template.Must(template.New("payment-form").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Payment</title></head>
<body onload="document.forms[0].submit()">
<form method="post" action="{{.FormAction}}">
{{- range .FormFields}}
<input type="hidden" name="{{.Name}}" value="{{.Value}}">
{{- end}}
<noscript><button type="submit">Continue to payment</button></noscript>
</form>
</body>
</html>
`))

// renderForm writes a page that posts the gateway form as soon as it loads.
func renderForm(w http.ResponseWriter, redirect *payment.Redirect) error {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	return autoSubmitForm.Execute(w, redirect)
}
