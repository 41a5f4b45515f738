package fakehost

import (
	"html/template"
	"net/http"

	"go.uber.org/zap"
)

type childData struct {
	Token   string
	PayerID string
}

var hostingPage = template.Must(template.New("hosting").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Merchant</title></head>
<body>
<h1>Merchant checkout</h1>
<button id="checkout">Check out</button>
</body>
</html>
`))

var waitingPage = template.Must(template.New("waiting").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Checkout</title></head>
<body><p>Loading checkout&hellip;</p></body>
</html>
`))

// childPage mirrors ReturnFragment in script: it reports to the opener and closes.
var childPage = template.Must(template.New("child").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Checkout</title></head>
<body>
<script>
(function () {
  var hash = window.location.hash.slice(1);
  var fragment = "#return?token=" + {{.Token}} + "&PayerID=" + {{.PayerID}};
  if (hash) {
    fragment += "&hash=" + hash;
  }
  if (window.opener) {
    window.opener.location.hash = fragment;
  }
  window.close();
})();
</script>
</body>
</html>
`))

func (s *Server) render(w http.ResponseWriter, tmpl *template.Template, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if err := tmpl.Execute(w, data); err != nil {
		s.logger.Error("Failed to render page.", zap.String("template", tmpl.Name()), zap.Error(err))
	}
}
