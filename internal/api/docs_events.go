package api

const eventsDocsHTML = `<!doctype html>
<html lang="en" data-theme="dark">
<head>
  <meta charset="utf-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <title>Event Stream - Shotover Settings Agent</title>
  <style>
    body {
      margin: 0;
      font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif;
      font-size: 14px;
      line-height: 1.65;
      background: #0d1117;
      color: #c9d1d9;
    }
    main { max-width: 860px; margin: 0 auto; padding: 24px 16px; }
    a { color: #58a6ff; text-decoration: none; }
    h1, h2 { color: #e6edf3; }
    code, pre {
      background: #161b22;
      border: 1px solid #30363d;
      border-radius: 6px;
      font-family: ui-monospace, SFMono-Regular, Menlo, monospace;
      font-size: 13px;
    }
    code { padding: 1px 5px; }
    pre { padding: 12px 16px; overflow-x: auto; }
    table { border-collapse: collapse; width: 100%; }
    th, td { border: 1px solid #30363d; padding: 6px 10px; text-align: left; }
  </style>
</head>
<body>
<main>
  <p><a href="/docs">&larr; REST API</a></p>
  <h1>Event Stream</h1>
  <p><code>GET /api/v1/events</code> is a Server-Sent Events stream. Each event name is the kind and the data line is one JSON object.
  A <code>: ping</code> comment is sent every 25 seconds.</p>

  <h2>Filters</h2>
  <table>
    <tr><th>Query</th><th>Meaning</th></tr>
    <tr><td><code>kinds</code></td><td>Comma separated kinds to receive, e.g. <code>kinds=tabIdle,status</code>. Omit for all.</td></tr>
    <tr><td><code>tab_id</code></td><td>Drop events of other tabs.</td></tr>
  </table>

  <h2>Kinds</h2>
  <h3>tabIdle</h3>
  <p>A tracked tab finished its last pending HTML request and answered the liveness ping.</p>
  <pre>event: tabIdle
data: {"type":"tabIdle","tab_id":"8F1C..."}</pre>

  <h3>status</h3>
  <p>Progress of save-all, load-page and load-all runs.</p>
  <pre>event: status
data: {"type":"status","tab_id":"8F1C...","flow":"load_all","message":"Going to Page: /cameras"}</pre>

  <h3>import</h3>
  <p>Counts after each import pass.</p>
  <pre>event: import
data: {"type":"import","tab_id":"8F1C...","page":"/cameras","pass":1,"committed":42,"skipped":3,"failed":0}</pre>

  <h2>Example</h2>
  <pre>curl -N 'http://127.0.0.1:8190/api/v1/events?kinds=status,import'</pre>
</main>
</body>
</html>`
