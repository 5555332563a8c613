package handlers

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"html/template"
	"net/http"

	"github.com/ardanlabs/dpos/foundation/web"
)

//go:embed assets/index.html
var indexHTML string

type index struct {
	page []byte
}

// newIndex renders the page once with the address of the node it watches.
func newIndex(nodeHost string) (*index, error) {
	tmpl, err := template.New("index").Parse(indexHTML)
	if err != nil {
		return nil, fmt.Errorf("parsing index template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, struct{ NodeHost string }{NodeHost: nodeHost}); err != nil {
		return nil, fmt.Errorf("executing index template: %w", err)
	}

	return &index{page: buf.Bytes()}, nil
}

func (ig *index) handler(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	web.SetStatusCode(ctx, http.StatusOK)

	if _, err := w.Write(ig.page); err != nil {
		return err
	}

	return nil
}
