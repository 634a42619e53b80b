package archiver

import (
	"fmt"
	"io"
	"time"

	"github.com/kamazee/vcutil/internal/window"
)

// Summary reports what a run did. A failed run returns its partial summary.
type Summary struct {
	RunID   string `json:"run_id"`
	Table   string `json:"table"`
	Domain  string `json:"domain"`
	Minimum string `json:"minimum,omitempty"`
	Maximum string `json:"maximum,omitempty"`

	Windows      int   `json:"windows"`
	EmptyWindows int   `json:"empty_windows"`
	RowsExported int64 `json:"rows_exported"`
	RowsDeleted  int64 `json:"rows_deleted"`
	DSTWidened   int   `json:"dst_widened"`
	DSTFlagged   int   `json:"dst_flagged"`
	DryRun       bool  `json:"dry_run"`

	Destinations  []string   `json:"destinations"`
	LastCompleted *Completed `json:"last_completed,omitempty"`

	Duration time.Duration `json:"-"`
	Elapsed  string        `json:"elapsed"`
}

// Completed is the boundary of the last window that was fully exported (and
// pruned, when pruning). A failed run can be resumed from its End.
type Completed struct {
	Begin string `json:"begin"`
	End   string `json:"end"`
}

func completedOf(w window.Window) *Completed {
	return &Completed{Begin: w.Begin.String(), End: w.End.String()}
}

// WriteText renders the summary for humans.
func (s *Summary) WriteText(w io.Writer) error {
	_, err := fmt.Fprintf(w,
		"table:          %s\n"+
			"domain:         %s [%s, %s]\n"+
			"windows:        %d (%d empty)\n"+
			"rows exported:  %d\n"+
			"rows deleted:   %d\n"+
			"dst boundaries: %d widened, %d flagged\n"+
			"destinations:   %d\n"+
			"elapsed:        %s\n",
		s.Table, s.Domain, s.Minimum, s.Maximum,
		s.Windows, s.EmptyWindows, s.RowsExported, s.RowsDeleted,
		s.DSTWidened, s.DSTFlagged, len(s.Destinations), s.Elapsed)
	if err != nil {
		return err
	}
	if s.DryRun {
		if _, err := fmt.Fprintln(w, "dry run:        no rows were deleted"); err != nil {
			return err
		}
	}
	if s.LastCompleted != nil {
		_, err = fmt.Fprintf(w, "last completed: [%s, %s)\n", s.LastCompleted.Begin, s.LastCompleted.End)
	}
	return err
}
