package site

// pageTemplate wraps one view fragment in a standalone page. Actions are
// resolved to links ahead of time, so the page needs no server.
const pageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
  <title>{{.Title}}</title>
  <link rel="manifest" href="{{.Base}}manifest.json">
  <link rel="stylesheet" href="{{.Base}}css/style.css">
</head>
<body>
  <header>
    <h1>{{.Title}}</h1>
    <nav>
      {{- range .Nav}}
      <a href="{{$.Base}}{{.Href}}"><button id="{{.ID}}"{{if .Active}} class="active"{{end}}>{{.Label}}</button></a>
      {{- end}}
    </nav>
  </header>
  <main id="app-container">{{.Fragment}}</main>
  <script>
  (function () {
    var routes = {{.Routes}};
    document.getElementById("app-container").addEventListener("click", function (ev) {
      var el = ev.target.closest("[data-action]");
      if (!el || !routes[el.dataset.action]) return;
      var r = routes[el.dataset.action];
      ev.preventDefault();
      if (r.href) { window.location.href = r.href; return; }
      var w = window.open(r.url, "_blank");
      if (r.print && w) w.addEventListener("load", function () { w.print(); });
    });
  })();
  </script>
</body>
</html>
`
