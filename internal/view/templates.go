package view

// viewTemplates holds every view fragment. Each fragment is wrapped in a
// single .view element so replacing the display region is all-or-nothing.
const viewTemplates = `
{{define "welcome"}}<div class="view active">
  <div class="welcome-content">
    <h2>Welcome</h2>
    {{.Body}}
    <div class="install-instructions">
      <h4>Install This App</h4>
      <p>
        <strong>Android:</strong> Tap the ⋮ menu in Chrome and select "Add to Home screen".<br>
        <strong>iPhone:</strong> Tap the Share button in Safari and choose "Add to Home Screen".
      </p>
      <p>This allows you to access CatechiseMe like a regular app!</p>
    </div>
    <div class="support-section">
      <h3>Support CatechiseMe</h3>
      <p>
        Help us keep this app free to as many people as possible.
        Donations cover development costs with the remaining proceeds
        going to ministries like <strong>Disciple the Nations</strong>.
        Find out more about DTN on our Resource page.
      </p>
      <button id="donate-btn" data-action="{{.DonateAction}}">Support This App</button>
    </div>
    <div class="scripture-notice">
      {{.Notice}}
    </div>
  </div>
</div>{{end}}

{{define "index"}}<div class="view active">
  <h2>Index of Catechisms</h2>
  <ul class="toc-list">
    {{- range .Items}}
    <li data-id="{{.ID}}" data-action="{{.Action}}"><strong>Q{{.ID}}:</strong> {{.Question}}</li>
    {{- end}}
  </ul>
</div>{{end}}

{{define "detail"}}<div class="view active">
  <button class="back-button" data-action="{{.BackAction}}">← Back to Index</button>
  <div class="catechism-content">
    <h2>Question {{.Entry.ID}}</h2>
    <h3>{{.Entry.Question}}</h3>
    <p class="answer">{{.Entry.Answer}}</p>
    <p class="scripture">{{.Entry.MainScripture}}</p>
    {{- if .Links}}
    <p class="other-scriptures">
      Other Scriptures:<br>
      {{- range $i, $l := .Links}}{{if $i}}<br>{{end}}
      <a href="{{$l.URL}}" target="_blank" rel="noopener noreferrer" data-action="{{$l.Action}}">{{$l.Label}}</a>
      {{- end}}
    </p>
    {{- end}}
    <div class="explanation">
      <h4>Explanation</h4>
      {{.Explanation}}
    </div>
    {{- if .Entry.ExpandedExplanation}}
    <div class="expanded-explanation">
      <hr class="explanation-divider">
      <h4>Expanded Explanation</h4>
      {{- range .Entry.ExpandedExplanation}}
      <p>{{.}}</p>
      {{- end}}
    </div>
    {{- end}}
  </div>
</div>{{end}}

{{define "resources"}}<div class="view active">
  <h2>Resources</h2>
  {{- range .Groups}}
  <h3 class="resource-category">{{.Category}}</h3>
  <ul class="resources-list">
    {{- range .Links}}
    <li><a href="{{.URL}}" target="_blank" rel="noopener noreferrer" data-action="{{.Action}}">📄 {{.Label}}</a></li>
    {{- end}}
  </ul>
  {{- end}}
</div>{{end}}

{{define "printable"}}<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <title>{{.Title}}</title>
  <link rel="stylesheet" href="/css/style.css">
</head>
<body class="printable">
  <h1>{{.Title}}</h1>
  {{- range .Entries}}
  <section class="catechism-content">
    <h2>Question {{.Entry.ID}}</h2>
    <h3>{{.Entry.Question}}</h3>
    <p class="answer">{{.Entry.Answer}}</p>
    <p class="scripture">{{.Entry.MainScripture}}</p>
    {{.Explanation}}
  </section>
  {{- end}}
</body>
</html>
{{end}}
`
