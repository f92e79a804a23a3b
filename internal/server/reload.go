package server

import (
	"bytes"
	"context"
	"net/http"
	"path"

	"github.com/conneroisu/assetforge/internal/events"
	"github.com/conneroisu/assetforge/internal/websocket"
)

// messageFor turns a task event into a browser message. Runs that changed
// nothing and did not fail send nothing.
func messageFor(e events.Event) (websocket.Message, bool) {
	msg := websocket.Message{Category: string(e.Category)}

	switch {
	case e.Failed():
		msg.Type = websocket.TypeBuildError
		msg.Error = e.Err.Error()
		return msg, true

	case len(e.Paths) == 0:
		return msg, false

	case e.Reload == events.ReloadCSS:
		for _, p := range e.Paths {
			if path.Ext(p) == ".css" {
				msg.Paths = append(msg.Paths, p)
			}
		}
		if len(msg.Paths) == 0 {
			return msg, false
		}
		msg.Type = websocket.TypeCSSUpdate
		return msg, true

	default:
		msg.Type = websocket.TypeFullReload
		return msg, true
	}
}

func (s *DevServer) forward(ctx context.Context, sub <-chan events.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-sub:
			if !ok {
				return
			}
			msg, send := messageFor(e)
			if !send {
				continue
			}
			s.logger.Debug(ctx, "Sending reload", "type", msg.Type, "category", msg.Category,
				"run_id", e.RunID, "clients", s.hub.Clients())
			s.hub.Broadcast(msg)
			s.opts.Metrics.ObserveReload(msg.Type)
		}
	}
}

// clientScript reconnects after a server restart and reloads the page when
// it comes back. Stylesheets are swapped by cache-busting their href.
const clientScript = `(function () {
  var url = (location.protocol === "https:" ? "wss://" : "ws://") + location.host + "` + LiveReloadPath + `";
  function relative(href) {
    return href.split("?")[0].split("#")[0].replace(/^(\.{1,2}\/)+/, "").replace(/^\//, "");
  }
  function swap(paths) {
    var links = document.querySelectorAll('link[rel="stylesheet"]');
    for (var i = 0; i < links.length; i++) {
      var href = links[i].getAttribute("href");
      if (!href) continue;
      var rel = relative(href);
      for (var j = 0; j < paths.length; j++) {
        if (paths[j] === rel || paths[j].slice(-rel.length - 1) === "/" + rel) {
          links[i].setAttribute("href", href.split("?")[0] + "?v=" + Date.now());
          break;
        }
      }
    }
  }
  function connect(reconnect) {
    var ws = new WebSocket(url);
    ws.onopen = function () { if (reconnect) location.reload(); };
    ws.onmessage = function (ev) {
      var msg = JSON.parse(ev.data);
      if (msg.type === "` + websocket.TypeFullReload + `") location.reload();
      else if (msg.type === "` + websocket.TypeCSSUpdate + `") swap(msg.paths || []);
      else if (msg.type === "` + websocket.TypeBuildError + `") console.error("[assetforge] " + msg.category + ": " + msg.error);
    };
    ws.onclose = function () { setTimeout(function () { connect(true); }, 1000); };
  }
  connect(false);
})();
`

const scriptTag = `<script src="` + LiveReloadScript + `" defer></script>`

func handleScript(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/javascript; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write([]byte(clientScript))
}

// InjectScript inserts the live-reload script tag before the last </body>,
// or appends it when the document has none.
func InjectScript(doc []byte) []byte {
	i := lastIndexFold(doc, []byte("</body>"))
	if i < 0 {
		out := make([]byte, 0, len(doc)+len(scriptTag))
		return append(append(out, doc...), scriptTag...)
	}
	out := make([]byte, 0, len(doc)+len(scriptTag))
	out = append(out, doc[:i]...)
	out = append(out, scriptTag...)
	return append(out, doc[i:]...)
}

func lastIndexFold(s, sep []byte) int {
	for i := len(s) - len(sep); i >= 0; i-- {
		if bytes.EqualFold(s[i:i+len(sep)], sep) {
			return i
		}
	}
	return -1
}
