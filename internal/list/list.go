package list

import (
	"context"
	"fmt"
	"io"
	"strings"

	"crosspost/internal/social"
)

// Lister is the read side of the ledger.
type Lister interface {
	List(ctx context.Context, network social.Network, limit int) ([]social.SyndicatedPost, error)
}

// Run prints ledger rows, newest first. An empty network lists every network.
func Run(ctx context.Context, w io.Writer, ledger Lister, network social.Network, limit int) error {
	if limit <= 0 {
		limit = 20
	}

	rows, err := ledger.List(ctx, network, limit)
	if err != nil {
		return fmt.Errorf("query failed while reading the ledger: %w", err)
	}

	if len(rows) == 0 {
		if network != "" {
			fmt.Fprintf(w, "Nothing syndicated to %s yet.\n", network)
		} else {
			fmt.Fprintln(w, "Nothing syndicated yet.")
		}
		return nil
	}

	fmt.Fprintf(w, "Found %d syndicated posts:\n\n", len(rows))

	for _, r := range rows {
		uri := r.OriginalURI
		if uri == "" {
			uri = "Unknown URI"
		}

		fmt.Fprintf(w, "GUID: %s\n", r.OriginalGUID)
		fmt.Fprintf(w, "Network: %s\n", r.Network)
		fmt.Fprintf(w, "Remote ID: %s\n", r.RemoteID)
		fmt.Fprintf(w, "Original: %s\n", uri)
		fmt.Fprintf(w, "Date: %s\n", r.CreatedAt.Local().Format("2006-01-02 15:04:05"))
		fmt.Fprintln(w, strings.Repeat("-", 80))
	}

	return nil
}
