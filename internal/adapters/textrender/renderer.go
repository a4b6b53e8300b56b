// Package textrender renders rows as an aligned text table.
package textrender

import (
	"context"
	"fmt"
	"io"
	"sync"
	"text/tabwriter"

	"github.com/transitclock/refresher/internal/domain"
)

// Renderer writes each rendered view to w. It is safe for concurrent use.
type Renderer struct {
	mu sync.Mutex
	w  io.Writer
}

func New(w io.Writer) *Renderer {
	return &Renderer{w: w}
}

func (r *Renderer) Render(ctx context.Context, id domain.SubscriberID, rows []domain.Row) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()

	tw := tabwriter.NewWriter(r.w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "subscriber %s\n", id)
	if len(rows) == 0 {
		fmt.Fprintln(tw, "  no upcoming trips")
	}
	for _, row := range rows {
		fmt.Fprintf(tw, "  %s\t%s\t%s\n", row.LineShortName, row.Direction, row.DeparturesText)
	}
	return tw.Flush()
}

func (r *Renderer) Clear(ctx context.Context, id domain.SubscriberID) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	_, err := fmt.Fprintf(r.w, "subscriber %s removed\n", id)
	return err
}
